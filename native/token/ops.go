package token

import (
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/ledger"
	"tokenescrow/core/state"
	"tokenescrow/core/types"
)

// LoadMint reads the mint stored at addr.
func LoadMint(st *state.Tx, addr solana.PublicKey) (*Mint, error) {
	acc, err := loadOwned(st, addr)
	if err != nil {
		return nil, err
	}
	return DecodeMint(acc.Data)
}

// LoadAccount reads the token account stored at addr.
func LoadAccount(st *state.Tx, addr solana.PublicKey) (*Account, error) {
	acc, err := loadOwned(st, addr)
	if err != nil {
		return nil, err
	}
	return DecodeAccount(acc.Data)
}

func loadOwned(st *state.Tx, addr solana.PublicKey) (*types.Account, error) {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(ProgramID) {
		return nil, fmt.Errorf("%w: %s", ErrNotTokenAccount, addr)
	}
	return acc, nil
}

func storeData(st *state.Tx, addr solana.PublicKey, data []byte) error {
	acc, err := loadOwned(st, addr)
	if err != nil {
		return err
	}
	acc.Data = data
	return st.PutAccount(addr, acc)
}

// create allocates a token-program account at address.Key, funding its rent
// from payer.
func create(inv *ledger.Invocation, address Authority, payer solana.PublicKey, data []byte) error {
	if err := address.verify(inv, address.Key); err != nil {
		return err
	}
	exists, err := inv.State.AccountExists(address.Key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, address.Key)
	}
	rent := inv.Rent.MinimumBalance(len(data))
	if rent > 0 {
		if !inv.IsSigner(payer) {
			return fmt.Errorf("%w: payer %s did not sign", ErrAuthorityMismatch, payer)
		}
		if err := inv.State.DebitLamports(payer, rent); err != nil {
			return err
		}
	}
	return inv.State.PutAccount(address.Key, &types.Account{
		Owner:    ProgramID,
		Lamports: rent,
		Data:     data,
	})
}

// InitializeMint creates a mint at address.
func InitializeMint(inv *ledger.Invocation, address Authority, payer solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey) error {
	mint := &Mint{Decimals: decimals, MintAuthority: mintAuthority}
	return create(inv, address, payer, mint.Encode())
}

// InitializeAccount creates an empty token account for mint at address,
// controlled by owner.
func InitializeAccount(inv *ledger.Invocation, address Authority, payer, mint, owner solana.PublicKey) error {
	if _, err := LoadMint(inv.State, mint); err != nil {
		return fmt.Errorf("load mint: %w", err)
	}
	account := &Account{Mint: mint, Owner: owner}
	return create(inv, address, payer, account.Encode())
}

// Transfer moves amount between two accounts of the same mint. auth must
// control source.
func Transfer(inv *ledger.Invocation, source, destination solana.PublicKey, auth Authority, amount uint64) error {
	src, err := LoadAccount(inv.State, source)
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}
	dst, err := LoadAccount(inv.State, destination)
	if err != nil {
		return fmt.Errorf("load destination: %w", err)
	}
	if !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("%w: %s vs %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if err := auth.verify(inv, src.Owner); err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if source.Equals(destination) {
		return nil
	}
	if dst.Amount > math.MaxUint64-amount {
		return ErrAmountOverflow
	}
	src.Amount -= amount
	dst.Amount += amount
	if err := storeData(inv.State, source, src.Encode()); err != nil {
		return err
	}
	return storeData(inv.State, destination, dst.Encode())
}

// SetOwner hands control of a token account to newOwner.
func SetOwner(inv *ledger.Invocation, account solana.PublicKey, auth Authority, newOwner solana.PublicKey) error {
	acc, err := LoadAccount(inv.State, account)
	if err != nil {
		return err
	}
	if err := auth.verify(inv, acc.Owner); err != nil {
		return err
	}
	acc.Owner = newOwner
	return storeData(inv.State, account, acc.Encode())
}

// MintTo creates amount new tokens in destination.
func MintTo(inv *ledger.Invocation, mintAddr, destination solana.PublicKey, auth Authority, amount uint64) error {
	mint, err := LoadMint(inv.State, mintAddr)
	if err != nil {
		return fmt.Errorf("load mint: %w", err)
	}
	dst, err := LoadAccount(inv.State, destination)
	if err != nil {
		return fmt.Errorf("load destination: %w", err)
	}
	if !dst.Mint.Equals(mintAddr) {
		return fmt.Errorf("%w: %s vs %s", ErrMintMismatch, dst.Mint, mintAddr)
	}
	if err := auth.verify(inv, mint.MintAuthority); err != nil {
		return err
	}
	if mint.Supply > math.MaxUint64-amount || dst.Amount > math.MaxUint64-amount {
		return ErrAmountOverflow
	}
	mint.Supply += amount
	dst.Amount += amount
	if err := storeData(inv.State, mintAddr, mint.Encode()); err != nil {
		return err
	}
	return storeData(inv.State, destination, dst.Encode())
}

// CloseAccount deletes an empty token account and sends its lamports to
// destination.
func CloseAccount(inv *ledger.Invocation, account, destination solana.PublicKey, auth Authority) error {
	raw, err := loadOwned(inv.State, account)
	if err != nil {
		return err
	}
	acc, err := DecodeAccount(raw.Data)
	if err != nil {
		return err
	}
	if err := auth.verify(inv, acc.Owner); err != nil {
		return err
	}
	if acc.Amount != 0 {
		return fmt.Errorf("%w: %d remaining", ErrNonZeroBalance, acc.Amount)
	}
	if account.Equals(destination) {
		return fmt.Errorf("%w: destination equals closed account", ErrInvalidInstruction)
	}
	if err := inv.State.DeleteAccount(account); err != nil {
		return err
	}
	return inv.State.CreditLamports(destination, raw.Lamports)
}

// IsNotFound reports whether err stems from a missing account.
func IsNotFound(err error) bool {
	return errors.Is(err, state.ErrAccountNotFound)
}
