package escrow

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/types"
	"tokenescrow/native/token"
)

const (
	InstructionInitialize = "initialize_escrow"
	InstructionExchange   = "exchange"
	InstructionCancel     = "cancel"
)

var (
	initializeDiscriminator = discriminator("global", InstructionInitialize)
	exchangeDiscriminator   = discriminator("global", InstructionExchange)
	cancelDiscriminator     = discriminator("global", InstructionCancel)
)

// InitializeArgs are the amounts offered and requested by the initializer.
type InitializeArgs struct {
	DepositAmount uint64
	TakerAmount   uint64
}

// ExchangeArgs carry the terms the taker agreed to. The record must offer at
// least ExpectedDepositAmount and ask at most ExpectedTakerAmount. Zero
// disables the corresponding check.
type ExchangeArgs struct {
	ExpectedDepositAmount uint64
	ExpectedTakerAmount   uint64
}

// InitializeAccounts lists the accounts of initialize_escrow in instruction
// order. The initializer signs and pays rent.
type InitializeAccounts struct {
	Initializer                    solana.PublicKey
	InitializerDepositTokenAccount solana.PublicKey
	CustodyTokenAccount            solana.PublicKey
	DepositMint                    solana.PublicKey
	InitializerReceiveTokenAccount solana.PublicKey
	EscrowRecord                   solana.PublicKey
	TokenProgram                   solana.PublicKey
}

func (a InitializeAccounts) metas() []types.AccountMeta {
	return []types.AccountMeta{
		types.Meta(a.Initializer).Signer().Writable(),
		types.Meta(a.InitializerDepositTokenAccount).Writable(),
		types.Meta(a.CustodyTokenAccount).Writable(),
		types.Meta(a.DepositMint),
		types.Meta(a.InitializerReceiveTokenAccount),
		types.Meta(a.EscrowRecord).Writable(),
		types.Meta(a.TokenProgram),
	}
}

// ExchangeAccounts lists the accounts of exchange in instruction order. Only
// the taker signs.
type ExchangeAccounts struct {
	Taker                          solana.PublicKey
	TakerDepositTokenAccount       solana.PublicKey
	TakerReceiveTokenAccount       solana.PublicKey
	CustodyTokenAccount            solana.PublicKey
	InitializerReceiveTokenAccount solana.PublicKey
	Initializer                    solana.PublicKey
	EscrowRecord                   solana.PublicKey
	TokenProgram                   solana.PublicKey
}

func (a ExchangeAccounts) metas() []types.AccountMeta {
	return []types.AccountMeta{
		types.Meta(a.Taker).Signer(),
		types.Meta(a.TakerDepositTokenAccount).Writable(),
		types.Meta(a.TakerReceiveTokenAccount).Writable(),
		types.Meta(a.CustodyTokenAccount).Writable(),
		types.Meta(a.InitializerReceiveTokenAccount).Writable(),
		types.Meta(a.Initializer).Writable(),
		types.Meta(a.EscrowRecord).Writable(),
		types.Meta(a.TokenProgram),
	}
}

// CancelAccounts lists the accounts of cancel in instruction order.
type CancelAccounts struct {
	Initializer                    solana.PublicKey
	InitializerDepositTokenAccount solana.PublicKey
	CustodyTokenAccount            solana.PublicKey
	EscrowRecord                   solana.PublicKey
	TokenProgram                   solana.PublicKey
}

func (a CancelAccounts) metas() []types.AccountMeta {
	return []types.AccountMeta{
		types.Meta(a.Initializer).Signer().Writable(),
		types.Meta(a.InitializerDepositTokenAccount).Writable(),
		types.Meta(a.CustodyTokenAccount).Writable(),
		types.Meta(a.EscrowRecord).Writable(),
		types.Meta(a.TokenProgram),
	}
}

// Decoded instruction payloads returned by DecodeInstruction.
type (
	InitializeInstruction struct {
		Accounts InitializeAccounts
		Args     InitializeArgs
	}
	ExchangeInstruction struct {
		Accounts ExchangeAccounts
		Args     ExchangeArgs
	}
	CancelInstruction struct {
		Accounts CancelAccounts
	}
)

func encodeData(disc [8]byte, args interface{}) []byte {
	buf := bytes.NewBuffer(append([]byte(nil), disc[:]...))
	if args != nil {
		_ = bin.NewBorshEncoder(buf).Encode(args)
	}
	return buf.Bytes()
}

// NewInitializeInstruction encodes initialize_escrow with explicit accounts.
// BuildInitialize derives the custody account instead.
func NewInitializeInstruction(programID solana.PublicKey, accounts InitializeAccounts, args InitializeArgs) types.Instruction {
	return types.Instruction{ProgramID: programID, Accounts: accounts.metas(), Data: encodeData(initializeDiscriminator, args)}
}

// NewExchangeInstruction encodes exchange with explicit accounts and slippage
// terms.
func NewExchangeInstruction(programID solana.PublicKey, accounts ExchangeAccounts, args ExchangeArgs) types.Instruction {
	return types.Instruction{ProgramID: programID, Accounts: accounts.metas(), Data: encodeData(exchangeDiscriminator, args)}
}

// NewCancelInstruction encodes cancel.
func NewCancelInstruction(programID solana.PublicKey, accounts CancelAccounts) types.Instruction {
	return types.Instruction{ProgramID: programID, Accounts: accounts.metas(), Data: encodeData(cancelDiscriminator, nil)}
}

// DecodeInstruction parses instruction data and account lists into one of
// *InitializeInstruction, *ExchangeInstruction or *CancelInstruction.
func DecodeInstruction(ix types.Instruction) (interface{}, error) {
	if len(ix.Data) < 8 {
		return nil, fmt.Errorf("%w: data shorter than discriminator", ErrInvalidInstruction)
	}
	var disc [8]byte
	copy(disc[:], ix.Data[:8])
	keys := make([]solana.PublicKey, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		keys[i] = meta.PublicKey
	}
	need := func(n int) error {
		if len(keys) < n {
			return fmt.Errorf("%w: expected %d accounts, got %d", ErrInvalidInstruction, n, len(keys))
		}
		return nil
	}
	decode := func(v interface{}) error {
		if err := bin.NewBorshDecoder(ix.Data[8:]).Decode(v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		return nil
	}

	switch disc {
	case initializeDiscriminator:
		if err := need(7); err != nil {
			return nil, err
		}
		out := &InitializeInstruction{Accounts: InitializeAccounts{
			Initializer:                    keys[0],
			InitializerDepositTokenAccount: keys[1],
			CustodyTokenAccount:            keys[2],
			DepositMint:                    keys[3],
			InitializerReceiveTokenAccount: keys[4],
			EscrowRecord:                   keys[5],
			TokenProgram:                   keys[6],
		}}
		if err := decode(&out.Args); err != nil {
			return nil, err
		}
		return out, nil
	case exchangeDiscriminator:
		if err := need(8); err != nil {
			return nil, err
		}
		out := &ExchangeInstruction{Accounts: ExchangeAccounts{
			Taker:                          keys[0],
			TakerDepositTokenAccount:       keys[1],
			TakerReceiveTokenAccount:       keys[2],
			CustodyTokenAccount:            keys[3],
			InitializerReceiveTokenAccount: keys[4],
			Initializer:                    keys[5],
			EscrowRecord:                   keys[6],
			TokenProgram:                   keys[7],
		}}
		if err := decode(&out.Args); err != nil {
			return nil, err
		}
		return out, nil
	case cancelDiscriminator:
		if err := need(5); err != nil {
			return nil, err
		}
		return &CancelInstruction{Accounts: CancelAccounts{
			Initializer:                    keys[0],
			InitializerDepositTokenAccount: keys[1],
			CustodyTokenAccount:            keys[2],
			EscrowRecord:                   keys[3],
			TokenProgram:                   keys[4],
		}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown discriminator %x", ErrInvalidInstruction, disc)
	}
}

// custodySeeds returns the derivation seeds for a record, optionally followed
// by the bump.
func custodySeeds(record solana.PublicKey, bump ...uint8) [][]byte {
	seeds := [][]byte{[]byte(Seed), append([]byte(nil), record[:]...)}
	if len(bump) > 0 {
		seeds = append(seeds, []byte{bump[0]})
	}
	return seeds
}

// DeriveCustody returns the custody address and bump for an escrow record.
// Clients and the program use the same derivation.
func DeriveCustody(programID, record solana.PublicKey) (solana.PublicKey, uint8, error) {
	return findProgramAddress(custodySeeds(record), programID)
}

// BuildInitialize assembles an initialize_escrow instruction, deriving the
// custody account from the record address.
func BuildInitialize(programID, initializer, depositTokenAccount, depositMint, receiveTokenAccount, record solana.PublicKey, depositAmount, takerAmount uint64) (types.Instruction, error) {
	custody, _, err := DeriveCustody(programID, record)
	if err != nil {
		return types.Instruction{}, err
	}
	return NewInitializeInstruction(programID, InitializeAccounts{
		Initializer:                    initializer,
		InitializerDepositTokenAccount: depositTokenAccount,
		CustodyTokenAccount:            custody,
		DepositMint:                    depositMint,
		InitializerReceiveTokenAccount: receiveTokenAccount,
		EscrowRecord:                   record,
		TokenProgram:                   token.ProgramID,
	}, InitializeArgs{DepositAmount: depositAmount, TakerAmount: takerAmount}), nil
}

// BuildExchange assembles an exchange instruction for the taker using the
// accounts stored in rec. The taker's expectations default to the record's
// own amounts.
func BuildExchange(programID, recordAddr solana.PublicKey, rec *EscrowRecord, taker, takerDepositTokenAccount, takerReceiveTokenAccount solana.PublicKey) types.Instruction {
	return NewExchangeInstruction(programID, ExchangeAccounts{
		Taker:                          taker,
		TakerDepositTokenAccount:       takerDepositTokenAccount,
		TakerReceiveTokenAccount:       takerReceiveTokenAccount,
		CustodyTokenAccount:            rec.CustodyTokenAccount,
		InitializerReceiveTokenAccount: rec.InitializerReceiveTokenAccount,
		Initializer:                    rec.Initializer,
		EscrowRecord:                   recordAddr,
		TokenProgram:                   token.ProgramID,
	}, ExchangeArgs{ExpectedDepositAmount: rec.DepositAmount, ExpectedTakerAmount: rec.TakerAmount})
}

// BuildCancel assembles a cancel instruction for the record's initializer.
func BuildCancel(programID, recordAddr solana.PublicKey, rec *EscrowRecord) types.Instruction {
	return NewCancelInstruction(programID, CancelAccounts{
		Initializer:                    rec.Initializer,
		InitializerDepositTokenAccount: rec.InitializerDepositTokenAccount,
		CustodyTokenAccount:            rec.CustodyTokenAccount,
		EscrowRecord:                   recordAddr,
		TokenProgram:                   token.ProgramID,
	})
}
