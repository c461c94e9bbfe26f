package state

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/types"
	"tokenescrow/storage"
)

var (
	ErrAccountNotFound      = errors.New("state: account not found")
	ErrAccountNotWritable   = errors.New("state: account not declared writable")
	ErrInsufficientLamports = errors.New("state: insufficient lamports")
	ErrLamportOverflow      = errors.New("state: lamport balance overflow")
	ErrTxClosed             = errors.New("state: transaction already committed or discarded")
)

var (
	accountPrefix = []byte("acct:")
	txPrefix      = []byte("tx:")
)

func accountKey(addr solana.PublicKey) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

func txKey(hash [32]byte) []byte {
	buf := make([]byte, len(txPrefix)+len(hash))
	copy(buf, txPrefix)
	copy(buf[len(txPrefix):], hash[:])
	return buf
}

type storedAccount struct {
	Owner    [32]byte
	Lamports uint64
	Data     []byte
}

func encodeAccount(acc *types.Account) ([]byte, error) {
	return rlp.EncodeToBytes(storedAccount{Owner: [32]byte(acc.Owner), Lamports: acc.Lamports, Data: acc.Data})
}

func decodeAccount(raw []byte) (*types.Account, error) {
	var stored storedAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return &types.Account{Owner: solana.PublicKey(stored.Owner), Lamports: stored.Lamports, Data: stored.Data}, nil
}

// Manager is the keyed account store. All mutation during instruction
// execution goes through a Tx obtained from Begin.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager on top of the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// GetAccount loads the committed account stored at addr.
func (m *Manager) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeAccount(raw)
}

// PutAccount writes an account directly, bypassing the transactional overlay.
// It is intended for genesis initialisation.
func (m *Manager) PutAccount(addr solana.PublicKey, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	encoded, err := encodeAccount(acc)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// ProgramAccounts returns every committed account owned by the given program,
// ordered by address.
func (m *Manager) ProgramAccounts(owner solana.PublicKey) ([]types.KeyedAccount, error) {
	out := make([]types.KeyedAccount, 0)
	var decodeErr error
	err := m.db.Iterate(accountPrefix, func(key, value []byte) bool {
		acc, err := decodeAccount(value)
		if err != nil {
			decodeErr = err
			return false
		}
		if !acc.Owner.Equals(owner) {
			return true
		}
		out = append(out, types.KeyedAccount{
			Address: solana.PublicKeyFromBytes(key[len(accountPrefix):]),
			Account: acc,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// HasTransaction reports whether a transaction hash was committed before.
func (m *Manager) HasTransaction(hash [32]byte) (bool, error) {
	return m.db.Has(txKey(hash))
}

// Begin opens an overlay. Writes are restricted to the addresses flagged true
// in writable; a nil map leaves writes unrestricted.
func (m *Manager) Begin(writable map[solana.PublicKey]bool) *Tx {
	return &Tx{
		m:        m,
		writable: writable,
		dirty:    make(map[solana.PublicKey]*types.Account),
	}
}

// Restrict replaces the writable set, letting the caller narrow writes to a
// single instruction's declared accounts.
func (t *Tx) Restrict(writable map[solana.PublicKey]bool) {
	t.writable = writable
}

// Tx buffers account mutations until Commit writes them as one batch.
//
// Tx is not safe for concurrent use.
type Tx struct {
	m        *Manager
	writable map[solana.PublicKey]bool
	dirty    map[solana.PublicKey]*types.Account // nil value marks a deletion
	txHashes [][32]byte
	closed   bool
}

func (t *Tx) checkWritable(addr solana.PublicKey) error {
	if t.closed {
		return ErrTxClosed
	}
	if t.writable == nil {
		return nil
	}
	if !t.writable[addr] {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, addr)
	}
	return nil
}

// GetAccount returns a copy of the current account view.
func (t *Tx) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	if acc, ok := t.dirty[addr]; ok {
		if acc == nil {
			return nil, ErrAccountNotFound
		}
		return acc.Clone(), nil
	}
	return t.m.GetAccount(addr)
}

// AccountExists reports whether addr currently holds an account.
func (t *Tx) AccountExists(addr solana.PublicKey) (bool, error) {
	_, err := t.GetAccount(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

// PutAccount stages a write.
func (t *Tx) PutAccount(addr solana.PublicKey, acc *types.Account) error {
	if err := t.checkWritable(addr); err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	t.dirty[addr] = acc.Clone()
	return nil
}

// DeleteAccount stages the removal of addr.
func (t *Tx) DeleteAccount(addr solana.PublicKey) error {
	if err := t.checkWritable(addr); err != nil {
		return err
	}
	t.dirty[addr] = nil
	return nil
}

// DebitLamports removes lamports from an existing account.
func (t *Tx) DebitLamports(addr solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	acc, err := t.GetAccount(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: %s holds no lamports", ErrInsufficientLamports, addr)
	}
	if err != nil {
		return err
	}
	if acc.Lamports < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientLamports, addr, acc.Lamports, amount)
	}
	acc.Lamports -= amount
	return t.PutAccount(addr, acc)
}

// CreditLamports adds lamports to addr, creating a system account when none
// exists.
func (t *Tx) CreditLamports(addr solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	acc, err := t.GetAccount(addr)
	if errors.Is(err, ErrAccountNotFound) {
		acc = &types.Account{Owner: solana.SystemProgramID}
	} else if err != nil {
		return err
	}
	if acc.Lamports > math.MaxUint64-amount {
		return ErrLamportOverflow
	}
	acc.Lamports += amount
	return t.PutAccount(addr, acc)
}

// MarkProcessed records a transaction hash so the ledger can reject replays.
func (t *Tx) MarkProcessed(hash [32]byte) {
	t.txHashes = append(t.txHashes, hash)
}

// Dirty lists the addresses staged for write or deletion, in address order.
func (t *Tx) Dirty() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(t.dirty))
	for addr := range t.dirty {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i][:]) < string(out[j][:])
	})
	return out
}

// Commit writes every staged change in a single atomic batch.
func (t *Tx) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	batch := t.m.db.NewBatch()
	for _, addr := range t.Dirty() {
		acc := t.dirty[addr]
		if acc == nil {
			batch.Delete(accountKey(addr))
			continue
		}
		encoded, err := encodeAccount(acc)
		if err != nil {
			return err
		}
		batch.Put(accountKey(addr), encoded)
	}
	for _, hash := range t.txHashes {
		batch.Put(txKey(hash), []byte{1})
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	t.closed = true
	return nil
}

// Discard drops all staged changes.
func (t *Tx) Discard() {
	t.dirty = nil
	t.txHashes = nil
	t.closed = true
}
