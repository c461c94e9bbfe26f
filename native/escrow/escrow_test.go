package escrow

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/events"
	"tokenescrow/core/ledger"
	"tokenescrow/core/state"
	"tokenescrow/core/types"
	"tokenescrow/crypto"
	"tokenescrow/native/common"
	"tokenescrow/native/token"
	"tokenescrow/storage"
)

const startingLamports = 1_000_000

var testRent = types.Rent{LamportsPerByte: 1}

type party struct {
	key     *crypto.PrivateKey
	deposit solana.PublicKey // holds mint A
	receive solana.PublicKey // holds mint B
}

type harness struct {
	t        *testing.T
	mgr      *state.Manager
	ledger   *ledger.Ledger
	engine   *Engine
	emitter  *recordingEmitter
	mintA    solana.PublicKey
	mintB    solana.PublicKey
	alice    party // initializer
	bob      party // taker
	programs solana.PublicKey
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt.Event())
	r.mu.Unlock()
}

func (r *recordingEmitter) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Type
	}
	return out
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func newAddress(t *testing.T) solana.PublicKey {
	return newKey(t).PubKey()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	l := ledger.New(mgr, testRent)
	engine := NewEngine(DefaultProgramID)
	if err := l.Register(token.NewProgram(), NewProgram(engine)); err != nil {
		t.Fatalf("register programs: %v", err)
	}
	emitter := &recordingEmitter{}
	l.SetEmitter(emitter)
	l.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })

	h := &harness{
		t:        t,
		mgr:      mgr,
		ledger:   l,
		engine:   engine,
		emitter:  emitter,
		mintA:    newAddress(t),
		mintB:    newAddress(t),
		programs: DefaultProgramID,
	}
	h.putMint(h.mintA)
	h.putMint(h.mintB)
	h.alice = h.newParty(1000, 0)
	h.bob = h.newParty(0, 500)
	return h
}

func (h *harness) put(addr solana.PublicKey, acc *types.Account) {
	h.t.Helper()
	if err := h.mgr.PutAccount(addr, acc); err != nil {
		h.t.Fatalf("put %s: %v", addr, err)
	}
}

func (h *harness) putMint(addr solana.PublicKey) {
	mint := &token.Mint{Decimals: 0, Supply: 1_000_000}
	h.put(addr, &types.Account{Owner: token.ProgramID, Data: mint.Encode()})
}

func (h *harness) putTokenAccount(mint, owner solana.PublicKey, amount uint64) solana.PublicKey {
	addr := newAddress(h.t)
	acc := &token.Account{Mint: mint, Owner: owner, Amount: amount}
	h.put(addr, &types.Account{Owner: token.ProgramID, Data: acc.Encode()})
	return addr
}

func (h *harness) newParty(amountA, amountB uint64) party {
	key := newKey(h.t)
	h.put(key.PubKey(), &types.Account{Owner: solana.SystemProgramID, Lamports: startingLamports})
	return party{
		key:     key,
		deposit: h.putTokenAccount(h.mintA, key.PubKey(), amountA),
		receive: h.putTokenAccount(h.mintB, key.PubKey(), amountB),
	}
}

func (h *harness) submit(ix types.Instruction, signers ...types.KeySigner) error {
	h.t.Helper()
	tx := &types.Transaction{Instructions: []types.Instruction{ix}}
	if err := tx.Sign(signers...); err != nil {
		h.t.Fatalf("sign: %v", err)
	}
	_, err := h.ledger.Submit(context.Background(), tx)
	return err
}

func (h *harness) initializeIx(record solana.PublicKey, deposit, taker uint64) types.Instruction {
	h.t.Helper()
	ix, err := BuildInitialize(h.programs, h.alice.key.PubKey(), h.alice.deposit, h.mintA, h.alice.receive, record, deposit, taker)
	if err != nil {
		h.t.Fatalf("build initialize: %v", err)
	}
	return ix
}

// open initializes an escrow with the default scenario amounts.
func (h *harness) open(deposit, taker uint64) (solana.PublicKey, *EscrowRecord) {
	h.t.Helper()
	record := newAddress(h.t)
	if err := h.submit(h.initializeIx(record, deposit, taker), h.alice.key); err != nil {
		h.t.Fatalf("initialize: %v", err)
	}
	return record, h.record(record)
}

func (h *harness) record(addr solana.PublicKey) *EscrowRecord {
	h.t.Helper()
	acc, err := h.ledger.Account(addr)
	if err != nil {
		h.t.Fatalf("load record: %v", err)
	}
	rec, err := DecodeRecord(acc.Data)
	if err != nil {
		h.t.Fatalf("decode record: %v", err)
	}
	return rec
}

func (h *harness) balance(addr solana.PublicKey) uint64 {
	h.t.Helper()
	acc, err := h.ledger.Account(addr)
	if err != nil {
		h.t.Fatalf("load token account %s: %v", addr, err)
	}
	decoded, err := token.DecodeAccount(acc.Data)
	if err != nil {
		h.t.Fatalf("decode token account: %v", err)
	}
	return decoded.Amount
}

func (h *harness) lamports(addr solana.PublicKey) uint64 {
	h.t.Helper()
	acc, err := h.ledger.Account(addr)
	if err != nil {
		h.t.Fatalf("load account %s: %v", addr, err)
	}
	return acc.Lamports
}

func (h *harness) requireGone(addr solana.PublicKey, what string) {
	h.t.Helper()
	if _, err := h.ledger.Account(addr); !errors.Is(err, state.ErrAccountNotFound) {
		h.t.Fatalf("expected %s to be closed, got %v", what, err)
	}
}

func (h *harness) exchangeIx(record solana.PublicKey, rec *EscrowRecord, taker party) types.Instruction {
	return BuildExchange(h.programs, record, rec, taker.key.PubKey(), taker.receive, taker.deposit)
}

func TestInitializeThenExchange(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(1000, 500)

	if rec.DepositAmount != 1000 || rec.TakerAmount != 500 || !rec.Initializer.Equals(h.alice.key.PubKey()) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if got := h.balance(rec.CustodyTokenAccount); got != 1000 {
		t.Fatalf("custody should hold 1000, got %d", got)
	}
	if got := h.balance(h.alice.deposit); got != 0 {
		t.Fatalf("initializer deposit should be drained, got %d", got)
	}
	custody, _ := h.ledger.Account(rec.CustodyTokenAccount)
	owner, _ := token.DecodeAccount(custody.Data)
	if !owner.Owner.Equals(rec.CustodyTokenAccount) {
		t.Fatalf("custody authority should be the derived address, got %s", owner.Owner)
	}
	wantRent := testRent.MinimumBalance(token.AccountSize) + testRent.MinimumBalance(RecordSize)
	if got := h.lamports(h.alice.key.PubKey()); got != startingLamports-wantRent {
		t.Fatalf("expected rent of %d charged, lamports now %d", wantRent, got)
	}

	if err := h.submit(h.exchangeIx(record, rec, h.bob), h.bob.key); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if got := h.balance(h.bob.deposit); got != 1000 {
		t.Fatalf("taker should receive 1000 of A, got %d", got)
	}
	if got := h.balance(h.alice.receive); got != 500 {
		t.Fatalf("initializer should receive 500 of B, got %d", got)
	}
	if got := h.balance(h.bob.receive); got != 0 {
		t.Fatalf("taker should have paid 500 of B, has %d", got)
	}
	h.requireGone(rec.CustodyTokenAccount, "custody")
	h.requireGone(record, "record")
	if got := h.lamports(h.alice.key.PubKey()); got != startingLamports {
		t.Fatalf("rent should be refunded to initializer, lamports %d", got)
	}

	want := []string{EventTypeEscrowInitialized, EventTypeEscrowExchanged}
	got := h.emitter.eventTypes()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected events %v", got)
	}
	if h.emitter.events[1].Attributes["taker"] != h.bob.key.PubKey().String() {
		t.Fatalf("exchange event missing taker: %v", h.emitter.events[1].Attributes)
	}
}

func TestCancelRestoresDeposit(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(400, 100)
	if got := h.balance(h.alice.deposit); got != 600 {
		t.Fatalf("expected 600 left after deposit, got %d", got)
	}
	if err := h.submit(BuildCancel(h.programs, record, rec), h.alice.key); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.balance(h.alice.deposit); got != 1000 {
		t.Fatalf("deposit should be restored to 1000, got %d", got)
	}
	h.requireGone(rec.CustodyTokenAccount, "custody")
	h.requireGone(record, "record")
	if got := h.lamports(h.alice.key.PubKey()); got != startingLamports {
		t.Fatalf("rent should be refunded, lamports %d", got)
	}
	if got := h.emitter.eventTypes(); got[len(got)-1] != EventTypeEscrowCancelled {
		t.Fatalf("expected cancelled event, got %v", got)
	}
}

func TestInitializeRejections(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name    string
		build   func() (types.Instruction, []types.KeySigner)
		wantErr error
	}{
		{
			name: "zero deposit",
			build: func() (types.Instruction, []types.KeySigner) {
				return h.initializeIx(newAddress(t), 0, 10), []types.KeySigner{h.alice.key}
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "zero taker amount",
			build: func() (types.Instruction, []types.KeySigner) {
				return h.initializeIx(newAddress(t), 10, 0), []types.KeySigner{h.alice.key}
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "insufficient deposit",
			build: func() (types.Instruction, []types.KeySigner) {
				return h.initializeIx(newAddress(t), 1001, 10), []types.KeySigner{h.alice.key}
			},
			wantErr: ErrInsufficientBalance,
		},
		{
			name: "initializer did not sign",
			build: func() (types.Instruction, []types.KeySigner) {
				ix := h.initializeIx(newAddress(t), 10, 10)
				ix.Accounts[0].IsSigner = false
				return ix, nil
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "wrong custody address",
			build: func() (types.Instruction, []types.KeySigner) {
				ix := h.initializeIx(newAddress(t), 10, 10)
				ix.Accounts[2].PublicKey = newAddress(t)
				return ix, []types.KeySigner{h.alice.key}
			},
			wantErr: ErrAccountMismatch,
		},
		{
			name: "deposit account of another owner",
			build: func() (types.Instruction, []types.KeySigner) {
				ix := h.initializeIx(newAddress(t), 10, 10)
				ix.Accounts[1].PublicKey = h.bob.deposit
				return ix, []types.KeySigner{h.alice.key}
			},
			wantErr: ErrAccountMismatch,
		},
		{
			name: "deposit mint mismatch",
			build: func() (types.Instruction, []types.KeySigner) {
				ix := h.initializeIx(newAddress(t), 10, 10)
				ix.Accounts[3].PublicKey = h.mintB
				return ix, []types.KeySigner{h.alice.key}
			},
			wantErr: ErrAccountMismatch,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ix, signers := tc.build()
			if err := h.submit(ix, signers...); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got := h.balance(h.alice.deposit); got != 1000 {
				t.Fatalf("rejected initialize moved funds: deposit %d", got)
			}
			if got := h.lamports(h.alice.key.PubKey()); got != startingLamports {
				t.Fatalf("rejected initialize charged rent: %d", got)
			}
		})
	}
}

func TestInitializeRejectsReusedRecord(t *testing.T) {
	h := newHarness(t)
	record, _ := h.open(100, 10)
	if err := h.submit(h.initializeIx(record, 100, 10), h.alice.key); !errors.Is(err, ErrAccountMismatch) {
		t.Fatalf("expected ErrAccountMismatch for reused record, got %v", err)
	}
	if got := h.balance(h.alice.deposit); got != 900 {
		t.Fatalf("second initialize must not move funds, deposit %d", got)
	}
}

func TestInitializeRequiresRentLamports(t *testing.T) {
	h := newHarness(t)
	h.put(h.alice.key.PubKey(), &types.Account{Owner: solana.SystemProgramID, Lamports: 10})
	if err := h.submit(h.initializeIx(newAddress(t), 100, 10), h.alice.key); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCancelByOtherPartyIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(1000, 500)
	ix := NewCancelInstruction(h.programs, CancelAccounts{
		Initializer:                    h.bob.key.PubKey(),
		InitializerDepositTokenAccount: rec.InitializerDepositTokenAccount,
		CustodyTokenAccount:            rec.CustodyTokenAccount,
		EscrowRecord:                   record,
		TokenProgram:                   token.ProgramID,
	})
	if err := h.submit(ix, h.bob.key); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := h.balance(rec.CustodyTokenAccount); got != 1000 {
		t.Fatalf("custody must be untouched, holds %d", got)
	}
}

func TestExchangeRejections(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(1000, 500)
	poor := h.newParty(0, 499)

	cases := []struct {
		name    string
		build   func() (types.Instruction, types.KeySigner)
		wantErr error
	}{
		{
			name: "taker cannot pay",
			build: func() (types.Instruction, types.KeySigner) {
				return h.exchangeIx(record, rec, poor), poor.key
			},
			wantErr: ErrInsufficientBalance,
		},
		{
			name: "taker receive account of wrong mint",
			build: func() (types.Instruction, types.KeySigner) {
				ix := BuildExchange(h.programs, record, rec, h.bob.key.PubKey(), h.bob.receive, h.bob.receive)
				return ix, h.bob.key
			},
			wantErr: ErrAccountMismatch,
		},
		{
			name: "taker receive is custody",
			build: func() (types.Instruction, types.KeySigner) {
				ix := BuildExchange(h.programs, record, rec, h.bob.key.PubKey(), h.bob.receive, rec.CustodyTokenAccount)
				return ix, h.bob.key
			},
			wantErr: ErrAccountMismatch,
		},
		{
			name: "custody not matching record",
			build: func() (types.Instruction, types.KeySigner) {
				ix := h.exchangeIx(record, rec, h.bob)
				ix.Accounts[3].PublicKey = h.alice.deposit
				return ix, h.bob.key
			},
			wantErr: ErrAccountMismatch,
		},
		{
			name: "initializer receive account swapped",
			build: func() (types.Instruction, types.KeySigner) {
				ix := h.exchangeIx(record, rec, h.bob)
				ix.Accounts[4].PublicKey = h.bob.receive
				return ix, h.bob.key
			},
			wantErr: ErrAccountMismatch,
		},
		{
			name: "taker asks for a bigger deposit",
			build: func() (types.Instruction, types.KeySigner) {
				accts := ExchangeAccounts{
					Taker: h.bob.key.PubKey(), TakerDepositTokenAccount: h.bob.receive, TakerReceiveTokenAccount: h.bob.deposit,
					CustodyTokenAccount: rec.CustodyTokenAccount, InitializerReceiveTokenAccount: rec.InitializerReceiveTokenAccount,
					Initializer: rec.Initializer, EscrowRecord: record, TokenProgram: token.ProgramID,
				}
				return NewExchangeInstruction(h.programs, accts, ExchangeArgs{ExpectedDepositAmount: 2000, ExpectedTakerAmount: 500}), h.bob.key
			},
			wantErr: ErrUnexpectedState,
		},
		{
			name: "record demands more than taker agreed",
			build: func() (types.Instruction, types.KeySigner) {
				accts := ExchangeAccounts{
					Taker: h.bob.key.PubKey(), TakerDepositTokenAccount: h.bob.receive, TakerReceiveTokenAccount: h.bob.deposit,
					CustodyTokenAccount: rec.CustodyTokenAccount, InitializerReceiveTokenAccount: rec.InitializerReceiveTokenAccount,
					Initializer: rec.Initializer, EscrowRecord: record, TokenProgram: token.ProgramID,
				}
				return NewExchangeInstruction(h.programs, accts, ExchangeArgs{ExpectedDepositAmount: 1000, ExpectedTakerAmount: 400}), h.bob.key
			},
			wantErr: ErrUnexpectedState,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ix, signer := tc.build()
			if err := h.submit(ix, signer); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got := h.balance(rec.CustodyTokenAccount); got != 1000 {
				t.Fatalf("custody must be untouched, holds %d", got)
			}
			if got := h.balance(h.alice.receive); got != 0 {
				t.Fatalf("initializer must not be paid, holds %d", got)
			}
		})
	}
}

func TestExchangeTwiceFailsCleanly(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(1000, 500)
	if err := h.submit(h.exchangeIx(record, rec, h.bob), h.bob.key); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	other := h.newParty(0, 500)
	if err := h.submit(h.exchangeIx(record, rec, other), other.key); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if got := h.balance(other.receive); got != 500 {
		t.Fatalf("second taker must keep funds, holds %d", got)
	}
}

func TestBatchedExchangeAndCancel(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(1000, 500)

	exchange := &types.Transaction{Instructions: []types.Instruction{h.exchangeIx(record, rec, h.bob)}}
	cancel := &types.Transaction{Instructions: []types.Instruction{BuildCancel(h.programs, record, rec)}}
	if err := exchange.Sign(h.bob.key); err != nil {
		t.Fatalf("sign exchange: %v", err)
	}
	if err := cancel.Sign(h.alice.key); err != nil {
		t.Fatalf("sign cancel: %v", err)
	}
	results := h.ledger.SubmitBatch(context.Background(), []*types.Transaction{exchange, cancel})
	if results[0].Err != nil {
		t.Fatalf("exchange: %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, ErrRecordNotFound) {
		t.Fatalf("expected cancel to find no record, got %v", results[1].Err)
	}
	if got := h.balance(h.alice.deposit); got != 0 {
		t.Fatalf("cancel after exchange must not refund, deposit %d", got)
	}
}

func TestExchangeAndCancelInOneTransactionRollsBack(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(1000, 500)
	tx := &types.Transaction{Instructions: []types.Instruction{
		BuildCancel(h.programs, record, rec),
		h.exchangeIx(record, rec, h.bob),
	}}
	if err := tx.Sign(h.alice.key, h.bob.key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := h.ledger.Submit(context.Background(), tx); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if got := h.balance(rec.CustodyTokenAccount); got != 1000 {
		t.Fatalf("rolled back transaction must leave custody intact, holds %d", got)
	}
	if got := h.balance(h.alice.deposit); got != 0 {
		t.Fatalf("rolled back cancel must not refund, deposit %d", got)
	}
}

func TestConcurrentExchangesSettleOnce(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(1000, 500)
	takers := []party{h.bob, h.newParty(0, 500), h.newParty(0, 500), h.newParty(0, 500)}

	var wg sync.WaitGroup
	errs := make([]error, len(takers))
	for i, taker := range takers {
		tx := &types.Transaction{Instructions: []types.Instruction{h.exchangeIx(record, rec, taker)}}
		if err := tx.Sign(taker.key); err != nil {
			t.Fatalf("sign: %v", err)
		}
		wg.Add(1)
		go func(i int, tx *types.Transaction) {
			defer wg.Done()
			_, errs[i] = h.ledger.Submit(context.Background(), tx)
		}(i, tx)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrRecordNotFound):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one exchange to settle, got %d", winners)
	}
	if got := h.balance(h.alice.receive); got != 500 {
		t.Fatalf("initializer must be paid exactly once, holds %d", got)
	}
}

func TestCustodyDerivationIsDeterministic(t *testing.T) {
	record := newAddress(t)
	first, bump, err := DeriveCustody(DefaultProgramID, record)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, bump2, err := DeriveCustody(DefaultProgramID, record)
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if !first.Equals(second) || bump != bump2 {
		t.Fatalf("derivation not deterministic: %s/%d vs %s/%d", first, bump, second, bump2)
	}
	again, err := crypto.CreateProgramAddress(custodySeeds(record, bump), DefaultProgramID)
	if err != nil || !again.Equals(first) {
		t.Fatalf("stored bump must reproduce custody: %s %v", again, err)
	}
	if crypto.IsOnCurve(first[:]) {
		t.Fatalf("custody address must be off curve")
	}

	h := newHarness(t)
	addr, rec := h.open(10, 10)
	want, wantBump, _ := DeriveCustody(DefaultProgramID, addr)
	if !rec.CustodyTokenAccount.Equals(want) || rec.BumpSeed != wantBump {
		t.Fatalf("record custody %s/%d, derived %s/%d", rec.CustodyTokenAccount, rec.BumpSeed, want, wantBump)
	}
}

func TestDerivationExhaustedAbortsInitialize(t *testing.T) {
	h := newHarness(t)
	ix := h.initializeIx(newAddress(t), 10, 10)

	original := findProgramAddress
	findProgramAddress = func([][]byte, solana.PublicKey) (solana.PublicKey, uint8, error) {
		return solana.PublicKey{}, 0, crypto.ErrDerivationExhausted
	}
	t.Cleanup(func() { findProgramAddress = original })

	err := h.submit(ix, h.alice.key)
	if !errors.Is(err, ErrDerivationExhausted) {
		t.Fatalf("expected ErrDerivationExhausted, got %v", err)
	}
	if ErrorKind(err) != "DerivationExhausted" {
		t.Fatalf("unexpected kind %q", ErrorKind(err))
	}
}

func TestPausedModuleRejectsTransitions(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(100, 10)
	pauses := common.NewPauses(map[string]bool{ModuleName: true})
	h.engine.SetPauses(pauses)

	if err := h.submit(BuildCancel(h.programs, record, rec), h.alice.key); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.Set(ModuleName, false)
	if err := h.submit(BuildCancel(h.programs, record, rec), h.alice.key); err != nil {
		t.Fatalf("cancel after resume: %v", err)
	}
}

func TestCustodyTopUpDoesNotLockEscrow(t *testing.T) {
	settle := map[string]func(h *harness, record solana.PublicKey, rec *EscrowRecord) (solana.PublicKey, error){
		"cancel": func(h *harness, record solana.PublicKey, rec *EscrowRecord) (solana.PublicKey, error) {
			return h.alice.deposit, h.submit(BuildCancel(h.programs, record, rec), h.alice.key)
		},
		"exchange": func(h *harness, record solana.PublicKey, rec *EscrowRecord) (solana.PublicKey, error) {
			return h.bob.deposit, h.submit(h.exchangeIx(record, rec, h.bob), h.bob.key)
		},
	}
	for name, run := range settle {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			record, rec := h.open(1000, 500)
			mallory := h.newParty(5, 0)
			dust := token.NewTransferInstruction(mallory.deposit, rec.CustodyTokenAccount, mallory.key.PubKey(), 1)
			if err := h.submit(dust, mallory.key); err != nil {
				t.Fatalf("transfer into custody: %v", err)
			}
			if got := h.balance(rec.CustodyTokenAccount); got != 1001 {
				t.Fatalf("custody should hold 1001, got %d", got)
			}

			recipient, err := run(h, record, rec)
			if err != nil {
				t.Fatalf("%s after top-up: %v", name, err)
			}
			if got := h.balance(recipient); got != 1001 {
				t.Fatalf("recipient should get the whole custody balance, got %d", got)
			}
			h.requireGone(rec.CustodyTokenAccount, "custody")
			h.requireGone(record, "record")
		})
	}
}

func TestExtremeAmounts(t *testing.T) {
	h := newHarness(t)
	seller := h.newParty(math.MaxUint64, 0)
	buyer := h.newParty(0, 1<<63)

	record := newAddress(t)
	ix, err := BuildInitialize(h.programs, seller.key.PubKey(), seller.deposit, h.mintA, seller.receive, record, math.MaxUint64, 1<<63)
	if err != nil {
		t.Fatalf("build initialize: %v", err)
	}
	if err := h.submit(ix, seller.key); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	rec := h.record(record)
	if rec.DepositAmount != math.MaxUint64 || rec.TakerAmount != 1<<63 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if got := h.balance(rec.CustodyTokenAccount); got != math.MaxUint64 {
		t.Fatalf("custody should hold the full deposit, got %d", got)
	}

	// A receive account that cannot absorb the deposit is rejected up front.
	crowded := h.newParty(1, 1<<63)
	if err := h.submit(h.exchangeIx(record, rec, crowded), crowded.key); !errors.Is(err, ErrUnexpectedState) {
		t.Fatalf("expected ErrUnexpectedState for overflowing receive account, got %v", err)
	}
	if got := h.balance(crowded.receive); got != 1<<63 {
		t.Fatalf("rejected taker must keep funds, holds %d", got)
	}

	if err := h.submit(h.exchangeIx(record, rec, buyer), buyer.key); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if got := h.balance(buyer.deposit); got != math.MaxUint64 {
		t.Fatalf("taker should receive the full deposit, got %d", got)
	}
	if got := h.balance(seller.receive); got != 1<<63 {
		t.Fatalf("initializer should receive 2^63, got %d", got)
	}
	h.requireGone(record, "record")
}

func TestInitializeAcceptsUnfundedTakerAmount(t *testing.T) {
	h := newHarness(t)
	record, rec := h.open(10, math.MaxUint64)
	if rec.TakerAmount != math.MaxUint64 {
		t.Fatalf("unexpected taker amount %d", rec.TakerAmount)
	}
	// No taker can pay, but the initializer can always cancel.
	if err := h.submit(h.exchangeIx(record, rec, h.bob), h.bob.key); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := h.submit(BuildCancel(h.programs, record, rec), h.alice.key); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.balance(h.alice.deposit); got != 1000 {
		t.Fatalf("deposit should be restored, got %d", got)
	}
}
