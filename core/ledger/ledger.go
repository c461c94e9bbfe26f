package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tokenescrow/core/events"
	"tokenescrow/core/state"
	"tokenescrow/core/types"
	"tokenescrow/crypto"
	"tokenescrow/observability"
)

var (
	ErrEmptyTransaction     = errors.New("ledger: transaction has no instructions")
	ErrMissingSignature     = errors.New("ledger: missing required signature")
	ErrInvalidSignature     = errors.New("ledger: invalid signature")
	ErrDuplicateTransaction = errors.New("ledger: transaction already processed")
	ErrUnknownProgram       = errors.New("ledger: unknown program")
	ErrProgramRegistered    = errors.New("ledger: program already registered")
)

// Program executes instructions addressed to its id. Process must leave all
// changes in inv.State; the ledger discards them when any instruction of the
// transaction fails.
type Program interface {
	ProgramID() solana.PublicKey
	Name() string
	Process(ctx context.Context, inv *Invocation) error
}

// Invocation is the execution context handed to a program for one
// instruction.
type Invocation struct {
	Instruction types.Instruction
	State       *state.Tx
	Rent        types.Rent
	TxHash      [32]byte
	Now         time.Time

	events *events.Buffer
}

// IsSigner reports whether pk signed the transaction and is flagged as a
// signer on this instruction.
func (inv *Invocation) IsSigner(pk solana.PublicKey) bool {
	for _, meta := range inv.Instruction.Accounts {
		if meta.IsSigner && meta.PublicKey.Equals(pk) {
			return true
		}
	}
	return false
}

// CallerID returns the program currently executing.
func (inv *Invocation) CallerID() solana.PublicKey {
	return inv.Instruction.ProgramID
}

// Emit buffers an event until the transaction commits.
func (inv *Invocation) Emit(evt events.Event) {
	if inv.events != nil {
		inv.events.Emit(evt)
	}
}

// Ledger applies signed transactions to the account store.
type Ledger struct {
	state    *state.Manager
	rent     types.Rent
	locks    accountLocks
	tracer   trace.Tracer
	logger   *slog.Logger
	nowFn    func() time.Time
	mu       sync.RWMutex
	programs map[solana.PublicKey]Program
	emitter  events.Emitter
}

// New creates a ledger over the provided state manager.
func New(mgr *state.Manager, rent types.Rent) *Ledger {
	return &Ledger{
		state:    mgr,
		rent:     rent,
		tracer:   otel.Tracer("tokenescrow/ledger"),
		logger:   slog.Default().With("component", "ledger"),
		nowFn:    time.Now,
		programs: make(map[solana.PublicKey]Program),
		emitter:  events.NoopEmitter{},
	}
}

// Register adds programs to the dispatch table.
func (l *Ledger) Register(programs ...Program) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range programs {
		id := p.ProgramID()
		if _, exists := l.programs[id]; exists {
			return fmt.Errorf("%w: %s", ErrProgramRegistered, id)
		}
		l.programs[id] = p
	}
	return nil
}

// SetEmitter configures the sink for events of committed transactions.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetLogger overrides the structured logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// SetNowFunc overrides the clock passed to programs. Primarily used in tests.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if now != nil {
		l.nowFn = now
	}
}

func (l *Ledger) State() *state.Manager { return l.state }

func (l *Ledger) Rent() types.Rent { return l.rent }

// Account returns the committed account at addr.
func (l *Ledger) Account(addr solana.PublicKey) (*types.Account, error) {
	return l.state.GetAccount(addr)
}

// ProgramAccounts lists committed accounts owned by program.
func (l *Ledger) ProgramAccounts(program solana.PublicKey) ([]types.KeyedAccount, error) {
	return l.state.ProgramAccounts(program)
}

func (l *Ledger) program(id solana.PublicKey) (Program, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.programs[id]
	return p, ok
}

func (l *Ledger) currentEmitter() events.Emitter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.emitter
}

// Submit verifies and executes tx atomically. The receipt is always returned
// for a non-nil transaction; err carries the failure reason when the
// transaction did not commit.
func (l *Ledger) Submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("ledger: nil transaction")
	}
	start := time.Now()
	receipt, err := l.submit(ctx, tx)
	observability.Ledger().ObserveTransaction(err == nil, time.Since(start))
	if err != nil {
		receipt.Status = types.TxStatusFailed
		receipt.Error = err.Error()
		receipt.Events = nil
		l.logger.Debug("transaction rejected", "tx", solana.Hash(receipt.Hash).String(), "error", err)
		return receipt, err
	}
	return receipt, nil
}

func (l *Ledger) submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt := &types.Receipt{}
	hash, err := tx.Hash()
	if err != nil {
		return receipt, err
	}
	receipt.Hash = hash

	ctx, span := l.tracer.Start(ctx, "ledger.submit",
		trace.WithAttributes(
			attribute.String("tx.hash", solana.Hash(hash).String()),
			attribute.Int("tx.instructions", len(tx.Instructions)),
		))
	defer span.End()

	if err := l.verify(tx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return receipt, err
	}

	release := l.locks.acquire(tx.AccountKeys())
	defer release()

	seen, err := l.state.HasTransaction(hash)
	if err != nil {
		return receipt, err
	}
	if seen {
		return receipt, ErrDuplicateTransaction
	}

	overlay := l.state.Begin(nil)
	buffer := &events.Buffer{}
	now := l.nowFn()
	for i, ix := range tx.Instructions {
		if err := ctx.Err(); err != nil {
			overlay.Discard()
			return receipt, err
		}
		program, ok := l.program(ix.ProgramID)
		if !ok {
			overlay.Discard()
			return receipt, fmt.Errorf("instruction %d: %w: %s", i, ErrUnknownProgram, ix.ProgramID)
		}
		overlay.Restrict(writableSet(ix))
		inv := &Invocation{
			Instruction: ix,
			State:       overlay,
			Rent:        l.rent,
			TxHash:      hash,
			Now:         now,
			events:      buffer,
		}
		err := program.Process(ctx, inv)
		observability.Ledger().ObserveInstruction(program.Name(), err)
		if err != nil {
			overlay.Discard()
			span.SetStatus(codes.Error, err.Error())
			return receipt, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	overlay.MarkProcessed(hash)
	if err := overlay.Commit(); err != nil {
		return receipt, err
	}

	receipt.Status = types.TxStatusCommitted
	emitter := l.currentEmitter()
	for _, evt := range buffer.Events() {
		if payload := evt.Event(); payload != nil {
			receipt.Events = append(receipt.Events, *payload)
		}
		emitter.Emit(evt)
	}
	l.logger.Info("transaction committed",
		"tx", solana.Hash(hash).String(),
		"instructions", len(tx.Instructions),
		"events", len(receipt.Events))
	return receipt, nil
}

func (l *Ledger) verify(tx *types.Transaction) error {
	if len(tx.Instructions) == 0 {
		return ErrEmptyTransaction
	}
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	for _, signer := range tx.Signers() {
		var entry *types.SignatureEntry
		for i := range tx.Signatures {
			if tx.Signatures[i].Signer.Equals(signer) {
				entry = &tx.Signatures[i]
				break
			}
		}
		if entry == nil {
			return fmt.Errorf("%w: %s", ErrMissingSignature, signer)
		}
		if !crypto.VerifySignature(signer, msg, entry.Signature) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, signer)
		}
	}
	return nil
}

func writableSet(ix types.Instruction) map[solana.PublicKey]bool {
	out := make(map[solana.PublicKey]bool, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		if meta.IsWritable {
			out[meta.PublicKey] = true
		}
	}
	return out
}

// BatchResult pairs a receipt with its failure reason.
type BatchResult struct {
	Receipt *types.Receipt
	Err     error
}

// SubmitBatch executes transactions strictly in order. Each transaction is
// atomic on its own; a failure does not stop the remaining ones.
func (l *Ledger) SubmitBatch(ctx context.Context, txs []*types.Transaction) []BatchResult {
	results := make([]BatchResult, len(txs))
	for i, tx := range txs {
		receipt, err := l.Submit(ctx, tx)
		results[i] = BatchResult{Receipt: receipt, Err: err}
	}
	return results
}
