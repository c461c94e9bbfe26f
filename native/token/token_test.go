package token

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/ledger"
	"tokenescrow/core/state"
	"tokenescrow/core/types"
	"tokenescrow/crypto"
	"tokenescrow/storage"
)

const testLamports = 1_000_000

type tokenFixture struct {
	ledger *ledger.Ledger
	payer  *crypto.PrivateKey
	mint   *crypto.PrivateKey
	alice  *crypto.PrivateKey
	bob    *crypto.PrivateKey
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func submit(t *testing.T, l *ledger.Ledger, ixs []types.Instruction, signers ...types.KeySigner) error {
	t.Helper()
	tx := &types.Transaction{Instructions: ixs}
	if err := tx.Sign(signers...); err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err := l.Submit(context.Background(), tx)
	return err
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	l := ledger.New(mgr, types.Rent{LamportsPerByte: 1})
	if err := l.Register(NewProgram()); err != nil {
		t.Fatalf("register: %v", err)
	}
	f := &tokenFixture{ledger: l, payer: newKey(t), mint: newKey(t), alice: newKey(t), bob: newKey(t)}
	if err := mgr.PutAccount(f.payer.PubKey(), &types.Account{Owner: solana.SystemProgramID, Lamports: testLamports}); err != nil {
		t.Fatalf("fund payer: %v", err)
	}
	err := submit(t, l, []types.Instruction{
		NewInitializeMintInstruction(f.mint.PubKey(), f.payer.PubKey(), f.payer.PubKey(), 6),
		NewInitializeAccountInstruction(f.alice.PubKey(), f.mint.PubKey(), f.payer.PubKey(), f.payer.PubKey()),
		NewInitializeAccountInstruction(f.bob.PubKey(), f.mint.PubKey(), f.bob.PubKey(), f.payer.PubKey()),
		NewMintToInstruction(f.mint.PubKey(), f.alice.PubKey(), f.payer.PubKey(), 100),
	}, f.payer, f.mint, f.alice, f.bob)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return f
}

func (f *tokenFixture) balance(t *testing.T, addr solana.PublicKey) uint64 {
	t.Helper()
	acc, err := f.ledger.Account(addr)
	if err != nil {
		t.Fatalf("load %s: %v", addr, err)
	}
	decoded, err := DecodeAccount(acc.Data)
	if err != nil {
		t.Fatalf("decode %s: %v", addr, err)
	}
	return decoded.Amount
}

func TestSetupChargesRent(t *testing.T) {
	f := newTokenFixture(t)
	payer, err := f.ledger.Account(f.payer.PubKey())
	if err != nil {
		t.Fatalf("load payer: %v", err)
	}
	rent := types.Rent{LamportsPerByte: 1}
	want := uint64(testLamports) - rent.MinimumBalance(MintSize) - 2*rent.MinimumBalance(AccountSize)
	if payer.Lamports != want {
		t.Fatalf("expected payer lamports %d, got %d", want, payer.Lamports)
	}
	mintAcc, _ := f.ledger.Account(f.mint.PubKey())
	mint, err := DecodeMint(mintAcc.Data)
	if err != nil || mint.Supply != 100 || mint.Decimals != 6 {
		t.Fatalf("unexpected mint: %+v %v", mint, err)
	}
}

func TestTransfer(t *testing.T) {
	f := newTokenFixture(t)
	if err := submit(t, f.ledger, []types.Instruction{
		NewTransferInstruction(f.alice.PubKey(), f.bob.PubKey(), f.payer.PubKey(), 40),
	}, f.payer); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := f.balance(t, f.alice.PubKey()); got != 60 {
		t.Fatalf("expected alice 60, got %d", got)
	}
	if got := f.balance(t, f.bob.PubKey()); got != 40 {
		t.Fatalf("expected bob 40, got %d", got)
	}
}

func TestTransferFailures(t *testing.T) {
	f := newTokenFixture(t)
	err := submit(t, f.ledger, []types.Instruction{
		NewTransferInstruction(f.alice.PubKey(), f.bob.PubKey(), f.bob.PubKey(), 1),
	}, f.bob)
	if !errors.Is(err, ErrAuthorityMismatch) {
		t.Fatalf("expected ErrAuthorityMismatch, got %v", err)
	}
	err = submit(t, f.ledger, []types.Instruction{
		NewTransferInstruction(f.alice.PubKey(), f.bob.PubKey(), f.payer.PubKey(), 101),
	}, f.payer)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := f.balance(t, f.alice.PubKey()); got != 100 {
		t.Fatalf("failed transfers must not move funds, alice has %d", got)
	}
}

func TestTransferRejectsMintMismatch(t *testing.T) {
	f := newTokenFixture(t)
	otherMint := newKey(t)
	carol := newKey(t)
	if err := submit(t, f.ledger, []types.Instruction{
		NewInitializeMintInstruction(otherMint.PubKey(), f.payer.PubKey(), f.payer.PubKey(), 0),
		NewInitializeAccountInstruction(carol.PubKey(), otherMint.PubKey(), carol.PubKey(), f.payer.PubKey()),
	}, f.payer, otherMint, carol); err != nil {
		t.Fatalf("setup second mint: %v", err)
	}
	err := submit(t, f.ledger, []types.Instruction{
		NewTransferInstruction(f.alice.PubKey(), carol.PubKey(), f.payer.PubKey(), 1),
	}, f.payer)
	if !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("expected ErrMintMismatch, got %v", err)
	}
}

func TestSetAuthorityAndClose(t *testing.T) {
	f := newTokenFixture(t)
	err := submit(t, f.ledger, []types.Instruction{
		NewCloseAccountInstruction(f.alice.PubKey(), f.payer.PubKey(), f.payer.PubKey()),
	}, f.payer)
	if !errors.Is(err, ErrNonZeroBalance) {
		t.Fatalf("expected ErrNonZeroBalance, got %v", err)
	}

	if err := submit(t, f.ledger, []types.Instruction{
		NewSetAuthorityInstruction(f.bob.PubKey(), f.bob.PubKey(), f.alice.PubKey()),
	}, f.bob); err != nil {
		t.Fatalf("set authority: %v", err)
	}
	before, _ := f.ledger.Account(f.payer.PubKey())
	closed, _ := f.ledger.Account(f.bob.PubKey())
	if err := submit(t, f.ledger, []types.Instruction{
		NewCloseAccountInstruction(f.bob.PubKey(), f.payer.PubKey(), f.alice.PubKey()),
	}, f.alice); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.ledger.Account(f.bob.PubKey()); !errors.Is(err, state.ErrAccountNotFound) {
		t.Fatalf("closed account still present: %v", err)
	}
	after, _ := f.ledger.Account(f.payer.PubKey())
	if after.Lamports != before.Lamports+closed.Lamports {
		t.Fatalf("expected rent refund of %d, payer went %d -> %d", closed.Lamports, before.Lamports, after.Lamports)
	}
}

func TestInitializeAccountTwiceFails(t *testing.T) {
	f := newTokenFixture(t)
	err := submit(t, f.ledger, []types.Instruction{
		NewInitializeAccountInstruction(f.alice.PubKey(), f.mint.PubKey(), f.alice.PubKey(), f.payer.PubKey()),
	}, f.payer, f.alice)
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}
