package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"tokenescrow/core/events"
	"tokenescrow/core/state"
	"tokenescrow/core/types"
	"tokenescrow/native/escrow"
	"tokenescrow/native/token"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	ix, err := Open(dsn)
	if err != nil {
		t.Fatalf("open indexer: %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func sampleRecord(initializer solana.PublicKey, deposit uint64) *escrow.EscrowRecord {
	return &escrow.EscrowRecord{
		Initializer:                    initializer,
		InitializerDepositTokenAccount: solana.NewWallet().PublicKey(),
		InitializerReceiveTokenAccount: solana.NewWallet().PublicKey(),
		CustodyTokenAccount:            solana.NewWallet().PublicKey(),
		DepositAmount:                  deposit,
		TakerAmount:                    deposit / 2,
		BumpSeed:                       253,
	}
}

func TestEventsMaintainOpenEscrows(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	at := time.Unix(1_700_000_000, 0)

	first, second := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	firstRec := sampleRecord(alice, 1000)
	ix.Emit(events.Wrap(escrow.NewInitializedEvent(first, firstRec, mint, at)))
	ix.Emit(events.Wrap(escrow.NewInitializedEvent(second, sampleRecord(bob, 40), mint, at)))

	rows, err := ix.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 open escrows, got %d", len(rows))
	}
	mine, err := ix.List(ctx, Filter{Initializer: alice.String()})
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected one escrow for alice, got %d %v", len(mine), err)
	}
	if mine[0].DepositAmount != 1000 || mine[0].TakerAmount != 500 || mine[0].DepositMint != mint.String() || mine[0].OpenedAt != at.Unix() {
		t.Fatalf("unexpected row: %+v", mine[0])
	}

	ix.Emit(events.Wrap(escrow.NewExchangedEvent(first, firstRec, bob, at)))
	if _, err := ix.Get(ctx, first.String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("exchanged escrow should be removed, got %v", err)
	}
	if _, err := ix.Get(ctx, second.String()); err != nil {
		t.Fatalf("unrelated escrow removed: %v", err)
	}
}

func TestApplyRejectsMalformedEvent(t *testing.T) {
	ix := newTestIndexer(t)
	err := ix.Apply(context.Background(), &types.Event{Type: escrow.EventTypeEscrowInitialized, Attributes: map[string]string{"escrow": "x"}})
	if err == nil {
		t.Fatalf("expected malformed event to fail")
	}
}

type fakeSource struct {
	accounts map[solana.PublicKey]*types.Account
}

func (f *fakeSource) Account(addr solana.PublicKey) (*types.Account, error) {
	acc, ok := f.accounts[addr]
	if !ok {
		return nil, state.ErrAccountNotFound
	}
	return acc, nil
}

func (f *fakeSource) ProgramAccounts(owner solana.PublicKey) ([]types.KeyedAccount, error) {
	var out []types.KeyedAccount
	for addr, acc := range f.accounts {
		if acc.Owner.Equals(owner) {
			out = append(out, types.KeyedAccount{Address: addr, Account: acc})
		}
	}
	return out, nil
}

func TestRebuildFromLedgerScan(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()
	rec := sampleRecord(solana.NewWallet().PublicKey(), 300)
	recordAddr := solana.NewWallet().PublicKey()
	custody := &token.Account{Mint: mint, Owner: rec.CustodyTokenAccount, Amount: 300}

	src := &fakeSource{accounts: map[solana.PublicKey]*types.Account{
		recordAddr:              {Owner: escrow.DefaultProgramID, Data: rec.Encode()},
		rec.CustodyTokenAccount: {Owner: token.ProgramID, Data: custody.Encode()},
		// Garbage owned by the program is ignored.
		solana.NewWallet().PublicKey(): {Owner: escrow.DefaultProgramID, Data: []byte{1, 2, 3}},
	}}

	// A stale row from a previous run must disappear.
	ix.Emit(events.Wrap(escrow.NewInitializedEvent(solana.NewWallet().PublicKey(), sampleRecord(rec.Initializer, 5), mint, time.Now())))

	n, err := ix.Rebuild(ctx, src, escrow.DefaultProgramID)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 escrow after rebuild, got %d", n)
	}
	row, err := ix.Get(ctx, recordAddr.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.DepositMint != mint.String() || row.DepositAmount != 300 || row.BumpSeed != 253 {
		t.Fatalf("unexpected row: %+v", row)
	}
	rows, _ := ix.List(ctx, Filter{})
	if len(rows) != 1 {
		t.Fatalf("stale rows survived rebuild: %d", len(rows))
	}
}

func TestAmountsAboveSignedRange(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()
	rec := sampleRecord(solana.NewWallet().PublicKey(), math.MaxUint64)
	rec.TakerAmount = 1 << 63
	recordAddr := solana.NewWallet().PublicKey()

	evt := escrow.NewInitializedEvent(recordAddr, rec, mint, time.Unix(1_700_000_000, 0))
	if err := ix.Apply(ctx, evt); err != nil {
		t.Fatalf("apply: %v", err)
	}
	rows, err := ix.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || uint64(rows[0].DepositAmount) != math.MaxUint64 || uint64(rows[0].TakerAmount) != 1<<63 {
		t.Fatalf("amounts did not survive storage: %+v", rows)
	}

	custody := &token.Account{Mint: mint, Owner: rec.CustodyTokenAccount, Amount: math.MaxUint64}
	src := &fakeSource{accounts: map[solana.PublicKey]*types.Account{
		recordAddr:              {Owner: escrow.DefaultProgramID, Data: rec.Encode()},
		rec.CustodyTokenAccount: {Owner: token.ProgramID, Data: custody.Encode()},
	}}
	n, err := ix.Rebuild(ctx, src, escrow.DefaultProgramID)
	if err != nil || n != 1 {
		t.Fatalf("rebuild: n=%d err=%v", n, err)
	}
	row, err := ix.Get(ctx, recordAddr.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if uint64(row.DepositAmount) != math.MaxUint64 || uint64(row.TakerAmount) != 1<<63 {
		t.Fatalf("rebuilt amounts wrong: %+v", row)
	}
}

func TestAmountScan(t *testing.T) {
	cases := []struct {
		src     interface{}
		want    Amount
		wantErr bool
	}{
		{src: "18446744073709551615", want: math.MaxUint64},
		{src: []byte("42"), want: 42},
		{src: int64(7), want: 7},
		{src: nil, want: 0},
		{src: int64(-1), wantErr: true},
		{src: "18446744073709551616", wantErr: true},
		{src: 1.5, wantErr: true},
	}
	for _, tc := range cases {
		var got Amount
		err := got.Scan(tc.src)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("scan %v: expected error, got %d", tc.src, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("scan %v: got %d, %v", tc.src, got, err)
		}
	}
	value, err := Amount(math.MaxUint64).Value()
	if err != nil || value != "18446744073709551615" {
		t.Fatalf("value: %v, %v", value, err)
	}
}
