package token

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/types"
)

// Instruction tags follow the SPL token numbering.
const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionSetAuthority      uint8 = 6
	InstructionMintTo            uint8 = 7
	InstructionCloseAccount      uint8 = 9
)

type initializeMintArgs struct {
	Decimals      uint8
	MintAuthority [32]byte
}

type amountArgs struct {
	Amount uint64
}

type setAuthorityArgs struct {
	NewOwner [32]byte
}

func encodeInstruction(tag uint8, args interface{}) []byte {
	buf := bytes.NewBuffer([]byte{tag})
	if args != nil {
		_ = bin.NewBorshEncoder(buf).Encode(args)
	}
	return buf.Bytes()
}

func decodeArgs(data []byte, args interface{}) error {
	if err := bin.NewBorshDecoder(data[1:]).Decode(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return nil
}

// NewInitializeMintInstruction creates a mint at mint, paid for by payer.
// Both must sign.
func NewInitializeMintInstruction(mint, payer, authority solana.PublicKey, decimals uint8) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.Meta(mint).Signer().Writable(),
			types.Meta(payer).Signer().Writable(),
		},
		Data: encodeInstruction(InstructionInitializeMint, initializeMintArgs{Decimals: decimals, MintAuthority: [32]byte(authority)}),
	}
}

// NewInitializeAccountInstruction creates a token account at account owned
// by owner.
func NewInitializeAccountInstruction(account, mint, owner, payer solana.PublicKey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.Meta(account).Signer().Writable(),
			types.Meta(mint),
			types.Meta(owner),
			types.Meta(payer).Signer().Writable(),
		},
		Data: encodeInstruction(InstructionInitializeAccount, nil),
	}
}

func NewTransferInstruction(source, destination, owner solana.PublicKey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.Meta(source).Writable(),
			types.Meta(destination).Writable(),
			types.Meta(owner).Signer(),
		},
		Data: encodeInstruction(InstructionTransfer, amountArgs{Amount: amount}),
	}
}

func NewSetAuthorityInstruction(account, owner, newOwner solana.PublicKey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.Meta(account).Writable(),
			types.Meta(owner).Signer(),
		},
		Data: encodeInstruction(InstructionSetAuthority, setAuthorityArgs{NewOwner: [32]byte(newOwner)}),
	}
}

func NewMintToInstruction(mint, destination, authority solana.PublicKey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.Meta(mint).Writable(),
			types.Meta(destination).Writable(),
			types.Meta(authority).Signer(),
		},
		Data: encodeInstruction(InstructionMintTo, amountArgs{Amount: amount}),
	}
}

func NewCloseAccountInstruction(account, destination, owner solana.PublicKey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.Meta(account).Writable(),
			types.Meta(destination).Writable(),
			types.Meta(owner).Signer(),
		},
		Data: encodeInstruction(InstructionCloseAccount, nil),
	}
}
