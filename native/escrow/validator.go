package escrow

import (
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/ledger"
	"tokenescrow/core/state"
	"tokenescrow/crypto"
	"tokenescrow/native/token"
)

// Swappable so tests can exercise derivation failure.
var findProgramAddress = crypto.FindProgramAddress

// initializePlan is the validated input of an Initialize transition.
type initializePlan struct {
	record  EscrowRecord
	custody token.Authority
}

// settlePlan is the validated input shared by Exchange and Cancel.
type settlePlan struct {
	address solana.PublicKey
	record  *EscrowRecord
	custody token.Authority
	account *token.Account
}

// released is the custody balance paid out on settlement. It can exceed the
// recorded deposit when third parties transfer into custody.
func (p *settlePlan) released() uint64 { return p.account.Amount }

// requireRoom rejects a credit that would overflow the receiving account.
func requireRoom(acc *token.Account, amount uint64, role string) error {
	if acc.Amount > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s holds %d and cannot receive %d", ErrUnexpectedState, role, acc.Amount, amount)
	}
	return nil
}

func requireSigner(inv *ledger.Invocation, pk solana.PublicKey, role string) error {
	if !inv.IsSigner(pk) {
		return fmt.Errorf("%w: %s %s did not sign", ErrUnauthorized, role, pk)
	}
	return nil
}

func requireTokenProgram(pk solana.PublicKey) error {
	if !pk.Equals(token.ProgramID) {
		return fmt.Errorf("%w: token program %s", ErrAccountMismatch, pk)
	}
	return nil
}

func requireDistinct(keys ...solana.PublicKey) error {
	seen := make(map[solana.PublicKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: account %s supplied twice", ErrAccountMismatch, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// loadTokenAccount maps token-layer failures to escrow error kinds.
func loadTokenAccount(st *state.Tx, addr solana.PublicKey, role string) (*token.Account, error) {
	acc, err := token.LoadAccount(st, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrAccountMismatch, role, addr, err)
	}
	return acc, nil
}

func validateInitialize(inv *ledger.Invocation, programID solana.PublicKey, accts InitializeAccounts, args InitializeArgs) (*initializePlan, error) {
	if args.DepositAmount == 0 || args.TakerAmount == 0 {
		return nil, fmt.Errorf("%w: deposit %d, taker %d", ErrInvalidAmount, args.DepositAmount, args.TakerAmount)
	}
	if err := requireSigner(inv, accts.Initializer, "initializer"); err != nil {
		return nil, err
	}
	if err := requireTokenProgram(accts.TokenProgram); err != nil {
		return nil, err
	}
	if err := requireDistinct(accts.Initializer, accts.InitializerDepositTokenAccount, accts.CustodyTokenAccount,
		accts.InitializerReceiveTokenAccount, accts.EscrowRecord); err != nil {
		return nil, err
	}
	exists, err := inv.State.AccountExists(accts.EscrowRecord)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: record %s already in use", ErrAccountMismatch, accts.EscrowRecord)
	}

	custody, bump, err := findProgramAddress(custodySeeds(accts.EscrowRecord), programID)
	if err != nil {
		return nil, err
	}
	if !custody.Equals(accts.CustodyTokenAccount) {
		return nil, fmt.Errorf("%w: custody %s, derived %s", ErrAccountMismatch, accts.CustodyTokenAccount, custody)
	}
	exists, err = inv.State.AccountExists(custody)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: custody %s already initialized", ErrAccountMismatch, custody)
	}

	deposit, err := loadTokenAccount(inv.State, accts.InitializerDepositTokenAccount, "deposit account")
	if err != nil {
		return nil, err
	}
	if !deposit.Owner.Equals(accts.Initializer) {
		return nil, fmt.Errorf("%w: deposit account owned by %s", ErrAccountMismatch, deposit.Owner)
	}
	if !deposit.Mint.Equals(accts.DepositMint) {
		return nil, fmt.Errorf("%w: deposit account mint %s, expected %s", ErrAccountMismatch, deposit.Mint, accts.DepositMint)
	}
	if deposit.Amount < args.DepositAmount {
		return nil, fmt.Errorf("%w: deposit account holds %d, needs %d", ErrInsufficientBalance, deposit.Amount, args.DepositAmount)
	}
	receive, err := loadTokenAccount(inv.State, accts.InitializerReceiveTokenAccount, "receive account")
	if err != nil {
		return nil, err
	}
	if !receive.Owner.Equals(accts.Initializer) {
		return nil, fmt.Errorf("%w: receive account owned by %s", ErrAccountMismatch, receive.Owner)
	}

	rent := inv.Rent.MinimumBalance(token.AccountSize) + inv.Rent.MinimumBalance(RecordSize)
	if rent > 0 {
		payer, err := inv.State.GetAccount(accts.Initializer)
		if err != nil && !errors.Is(err, state.ErrAccountNotFound) {
			return nil, err
		}
		if payer == nil || payer.Lamports < rent {
			return nil, fmt.Errorf("%w: initializer cannot cover %d lamports of rent", ErrInsufficientBalance, rent)
		}
	}

	return &initializePlan{
		record: EscrowRecord{
			Initializer:                    accts.Initializer,
			InitializerDepositTokenAccount: accts.InitializerDepositTokenAccount,
			InitializerReceiveTokenAccount: accts.InitializerReceiveTokenAccount,
			CustodyTokenAccount:            custody,
			DepositAmount:                  args.DepositAmount,
			TakerAmount:                    args.TakerAmount,
			BumpSeed:                       bump,
		},
		custody: token.Authority{Key: custody, Seeds: custodySeeds(accts.EscrowRecord, bump)},
	}, nil
}

// loadOpenRecord checks that the record is still open and that its custody
// account is intact. A record closed earlier in the same batch surfaces as
// ErrRecordNotFound.
func loadOpenRecord(inv *ledger.Invocation, programID, recordAddr, custodyAddr solana.PublicKey) (*settlePlan, error) {
	raw, err := inv.State.GetAccount(recordAddr)
	if errors.Is(err, state.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordAddr)
	}
	if err != nil {
		return nil, err
	}
	if !raw.Owner.Equals(programID) {
		return nil, fmt.Errorf("%w: %s is not owned by the escrow program", ErrAccountMismatch, recordAddr)
	}
	record, err := DecodeRecord(raw.Data)
	if err != nil {
		return nil, err
	}
	if !custodyAddr.Equals(record.CustodyTokenAccount) {
		return nil, fmt.Errorf("%w: custody %s, record holds %s", ErrAccountMismatch, custodyAddr, record.CustodyTokenAccount)
	}
	authority, err := token.ProgramSigner(programID, custodySeeds(recordAddr, record.BumpSeed)...)
	if err != nil || !authority.Key.Equals(record.CustodyTokenAccount) {
		return nil, fmt.Errorf("%w: stored bump does not reproduce custody %s", ErrAccountMismatch, record.CustodyTokenAccount)
	}
	custody, err := token.LoadAccount(inv.State, record.CustodyTokenAccount)
	if token.IsNotFound(err) {
		return nil, fmt.Errorf("%w: custody %s already closed", ErrRecordNotFound, record.CustodyTokenAccount)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: custody: %v", ErrUnexpectedState, err)
	}
	// Custody may hold more than the deposit, never less.
	if !custody.Owner.Equals(authority.Key) || custody.Amount < record.DepositAmount {
		return nil, fmt.Errorf("%w: custody holds %d under %s", ErrUnexpectedState, custody.Amount, custody.Owner)
	}
	return &settlePlan{
		address: recordAddr,
		record:  record,
		custody: authority,
		account: custody,
	}, nil
}

func validateExchange(inv *ledger.Invocation, programID solana.PublicKey, accts ExchangeAccounts, args ExchangeArgs) (*settlePlan, error) {
	if err := requireSigner(inv, accts.Taker, "taker"); err != nil {
		return nil, err
	}
	if err := requireTokenProgram(accts.TokenProgram); err != nil {
		return nil, err
	}
	plan, err := loadOpenRecord(inv, programID, accts.EscrowRecord, accts.CustodyTokenAccount)
	if err != nil {
		return nil, err
	}
	rec := plan.record
	if args.ExpectedDepositAmount != 0 && rec.DepositAmount < args.ExpectedDepositAmount {
		return nil, fmt.Errorf("%w: record offers %d, taker expects %d", ErrUnexpectedState, rec.DepositAmount, args.ExpectedDepositAmount)
	}
	if args.ExpectedTakerAmount != 0 && rec.TakerAmount > args.ExpectedTakerAmount {
		return nil, fmt.Errorf("%w: record asks %d, taker expects %d", ErrUnexpectedState, rec.TakerAmount, args.ExpectedTakerAmount)
	}
	if !accts.Initializer.Equals(rec.Initializer) {
		return nil, fmt.Errorf("%w: initializer %s, record holds %s", ErrAccountMismatch, accts.Initializer, rec.Initializer)
	}
	if !accts.InitializerReceiveTokenAccount.Equals(rec.InitializerReceiveTokenAccount) {
		return nil, fmt.Errorf("%w: initializer receive account %s, record holds %s", ErrAccountMismatch, accts.InitializerReceiveTokenAccount, rec.InitializerReceiveTokenAccount)
	}
	if err := requireDistinct(accts.TakerDepositTokenAccount, accts.TakerReceiveTokenAccount, accts.CustodyTokenAccount,
		accts.InitializerReceiveTokenAccount, accts.EscrowRecord); err != nil {
		return nil, err
	}

	initReceive, err := loadTokenAccount(inv.State, rec.InitializerReceiveTokenAccount, "initializer receive account")
	if err != nil {
		return nil, err
	}
	takerDeposit, err := loadTokenAccount(inv.State, accts.TakerDepositTokenAccount, "taker deposit account")
	if err != nil {
		return nil, err
	}
	if !takerDeposit.Owner.Equals(accts.Taker) {
		return nil, fmt.Errorf("%w: taker deposit account owned by %s", ErrAccountMismatch, takerDeposit.Owner)
	}
	if !takerDeposit.Mint.Equals(initReceive.Mint) {
		return nil, fmt.Errorf("%w: taker pays mint %s, initializer wants %s", ErrAccountMismatch, takerDeposit.Mint, initReceive.Mint)
	}
	if takerDeposit.Amount < rec.TakerAmount {
		return nil, fmt.Errorf("%w: taker holds %d, needs %d", ErrInsufficientBalance, takerDeposit.Amount, rec.TakerAmount)
	}
	if err := requireRoom(initReceive, rec.TakerAmount, "initializer receive account"); err != nil {
		return nil, err
	}
	takerReceive, err := loadTokenAccount(inv.State, accts.TakerReceiveTokenAccount, "taker receive account")
	if err != nil {
		return nil, err
	}
	if !takerReceive.Mint.Equals(plan.account.Mint) {
		return nil, fmt.Errorf("%w: taker receive mint %s, custody holds %s", ErrAccountMismatch, takerReceive.Mint, plan.account.Mint)
	}
	if err := requireRoom(takerReceive, plan.released(), "taker receive account"); err != nil {
		return nil, err
	}
	return plan, nil
}

func validateCancel(inv *ledger.Invocation, programID solana.PublicKey, accts CancelAccounts) (*settlePlan, error) {
	if err := requireSigner(inv, accts.Initializer, "initializer"); err != nil {
		return nil, err
	}
	if err := requireTokenProgram(accts.TokenProgram); err != nil {
		return nil, err
	}
	plan, err := loadOpenRecord(inv, programID, accts.EscrowRecord, accts.CustodyTokenAccount)
	if err != nil {
		return nil, err
	}
	rec := plan.record
	if !accts.Initializer.Equals(rec.Initializer) {
		return nil, fmt.Errorf("%w: only initializer %s may cancel", ErrUnauthorized, rec.Initializer)
	}
	if !accts.InitializerDepositTokenAccount.Equals(rec.InitializerDepositTokenAccount) {
		return nil, fmt.Errorf("%w: deposit account %s, record holds %s", ErrAccountMismatch, accts.InitializerDepositTokenAccount, rec.InitializerDepositTokenAccount)
	}
	deposit, err := loadTokenAccount(inv.State, rec.InitializerDepositTokenAccount, "deposit account")
	if err != nil {
		return nil, err
	}
	if !deposit.Mint.Equals(plan.account.Mint) {
		return nil, fmt.Errorf("%w: deposit account mint %s, custody holds %s", ErrAccountMismatch, deposit.Mint, plan.account.Mint)
	}
	if err := requireRoom(deposit, plan.released(), "deposit account"); err != nil {
		return nil, err
	}
	return plan, nil
}
