package token

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the address of the token program.
var ProgramID = solana.TokenProgramID

const (
	kindMint    uint8 = 1
	kindAccount uint8 = 2

	// MintSize is the encoded length of a mint: kind, decimals, supply, authority.
	MintSize = 1 + 1 + 8 + 32
	// AccountSize is the encoded length of a token account: kind, mint, owner, amount.
	AccountSize = 1 + 32 + 32 + 8
)

var (
	ErrInvalidAccountData = errors.New("token: invalid account data")
	ErrNotTokenAccount    = errors.New("token: account is not owned by the token program")
	ErrAlreadyInitialized = errors.New("token: account already initialized")
	ErrInsufficientFunds  = errors.New("token: insufficient funds")
	ErrAuthorityMismatch  = errors.New("token: authority mismatch")
	ErrMintMismatch       = errors.New("token: mint mismatch")
	ErrNonZeroBalance     = errors.New("token: cannot close account with non-zero balance")
	ErrAmountOverflow     = errors.New("token: amount overflow")
	ErrInvalidInstruction = errors.New("token: invalid instruction")
)

// Mint describes a token type.
type Mint struct {
	Decimals      uint8
	Supply        uint64
	MintAuthority solana.PublicKey
}

// Account is a balance of one mint controlled by Owner.
type Account struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

type mintLayout struct {
	Kind          uint8
	Decimals      uint8
	Supply        uint64
	MintAuthority [32]byte
}

type accountLayout struct {
	Kind   uint8
	Mint   [32]byte
	Owner  [32]byte
	Amount uint64
}

func encode(v interface{}) []byte {
	buf := new(bytes.Buffer)
	// Fixed-size layouts cannot fail to encode into a buffer.
	_ = bin.NewBorshEncoder(buf).Encode(v)
	return buf.Bytes()
}

// Encode serialises the mint layout.
func (m *Mint) Encode() []byte {
	return encode(mintLayout{
		Kind:          kindMint,
		Decimals:      m.Decimals,
		Supply:        m.Supply,
		MintAuthority: [32]byte(m.MintAuthority),
	})
}

// DecodeMint parses mint account data.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize || data[0] != kindMint {
		return nil, fmt.Errorf("%w: not a mint", ErrInvalidAccountData)
	}
	var layout mintLayout
	if err := bin.NewBorshDecoder(data).Decode(&layout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return &Mint{
		Decimals:      layout.Decimals,
		Supply:        layout.Supply,
		MintAuthority: solana.PublicKey(layout.MintAuthority),
	}, nil
}

// Encode serialises the token account layout.
func (a *Account) Encode() []byte {
	return encode(accountLayout{
		Kind:   kindAccount,
		Mint:   [32]byte(a.Mint),
		Owner:  [32]byte(a.Owner),
		Amount: a.Amount,
	})
}

// DecodeAccount parses token account data.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize || data[0] != kindAccount {
		return nil, fmt.Errorf("%w: not a token account", ErrInvalidAccountData)
	}
	var layout accountLayout
	if err := bin.NewBorshDecoder(data).Decode(&layout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return &Account{
		Mint:   solana.PublicKey(layout.Mint),
		Owner:  solana.PublicKey(layout.Owner),
		Amount: layout.Amount,
	}, nil
}
