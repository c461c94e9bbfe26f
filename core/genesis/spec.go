package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/crypto"
)

// GenesisSpec describes the initial ledger contents: funded wallets, token
// mints and token accounts.
type GenesisSpec struct {
	Accounts      []AccountSpec      `json:"accounts"`
	Mints         []MintSpec         `json:"mints"`
	TokenAccounts []TokenAccountSpec `json:"tokenAccounts"`
}

type AccountSpec struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

type MintSpec struct {
	Address       string `json:"address"`
	Decimals      uint8  `json:"decimals"`
	MintAuthority string `json:"mintAuthority"`
}

type TokenAccountSpec struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

// LoadGenesisSpec reads and validates a JSON genesis file. Unknown fields
// are rejected.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// Validate checks addresses and cross references between mints and token
// accounts.
func (s *GenesisSpec) Validate() error {
	seen := make(map[solana.PublicKey]string)
	claim := func(raw, what string) (solana.PublicKey, error) {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return addr, fmt.Errorf("%s: %w", what, err)
		}
		if prev, dup := seen[addr]; dup {
			return addr, fmt.Errorf("%s %s already declared as %s", what, addr, prev)
		}
		seen[addr] = what
		return addr, nil
	}
	for i, acc := range s.Accounts {
		if _, err := claim(acc.Address, fmt.Sprintf("accounts[%d]", i)); err != nil {
			return err
		}
	}
	mints := make(map[solana.PublicKey]struct{}, len(s.Mints))
	for i, mint := range s.Mints {
		addr, err := claim(mint.Address, fmt.Sprintf("mints[%d]", i))
		if err != nil {
			return err
		}
		if _, err := crypto.DecodeAddress(mint.MintAuthority); err != nil {
			return fmt.Errorf("mints[%d].mintAuthority: %w", i, err)
		}
		mints[addr] = struct{}{}
	}
	for i, ta := range s.TokenAccounts {
		if _, err := claim(ta.Address, fmt.Sprintf("tokenAccounts[%d]", i)); err != nil {
			return err
		}
		mint, err := crypto.DecodeAddress(ta.Mint)
		if err != nil {
			return fmt.Errorf("tokenAccounts[%d].mint: %w", i, err)
		}
		if _, ok := mints[mint]; !ok {
			return fmt.Errorf("tokenAccounts[%d] references undeclared mint %s", i, mint)
		}
		if _, err := crypto.DecodeAddress(ta.Owner); err != nil {
			return fmt.Errorf("tokenAccounts[%d].owner: %w", i, err)
		}
	}
	return nil
}
