package types

import "github.com/gagliardetto/solana-go"

// AccountStorageOverhead is the per-account bookkeeping size charged on top of
// the data length when computing rent.
const AccountStorageOverhead = 128

// Account is the ledger's unit of state. Owner is the program allowed to
// mutate Data; wallets are owned by the system program and hold only lamports.
type Account struct {
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{
		Owner:    a.Owner,
		Lamports: a.Lamports,
		Data:     append([]byte(nil), a.Data...),
	}
}

// KeyedAccount pairs an account with its address.
type KeyedAccount struct {
	Address solana.PublicKey
	Account *Account
}

// Rent captures the storage deposit schedule. A zero LamportsPerByte disables
// rent entirely.
type Rent struct {
	LamportsPerByte uint64
}

// MinimumBalance returns the deposit required to keep an account of the given
// data size alive.
func (r Rent) MinimumBalance(size int) uint64 {
	if r.LamportsPerByte == 0 || size < 0 {
		return 0
	}
	return uint64(AccountStorageOverhead+size) * r.LamportsPerByte
}
