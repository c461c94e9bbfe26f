package genesis

import (
	"encoding/json"
	"fmt"
	"math"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/state"
	"tokenescrow/core/types"
	"tokenescrow/native/token"
)

// Apply writes the genesis accounts in one atomic commit. It is idempotent:
// the spec hash is recorded like a transaction and a second call with the
// same spec is a no-op. It reports whether anything was written.
func Apply(spec *GenesisSpec, mgr *state.Manager, rent types.Rent) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if mgr == nil {
		return false, fmt.Errorf("state manager must not be nil")
	}
	if err := spec.Validate(); err != nil {
		return false, err
	}
	encoded, err := json.Marshal(spec)
	if err != nil {
		return false, err
	}
	marker := ethcrypto.Keccak256Hash([]byte("genesis"), encoded)
	applied, err := mgr.HasTransaction(marker)
	if err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}

	tx := mgr.Begin(nil)
	for _, acc := range spec.Accounts {
		addr := solana.MustPublicKeyFromBase58(acc.Address)
		if err := tx.PutAccount(addr, &types.Account{Owner: solana.SystemProgramID, Lamports: acc.Lamports}); err != nil {
			tx.Discard()
			return false, err
		}
	}

	supply := make(map[string]uint64, len(spec.Mints))
	for _, ta := range spec.TokenAccounts {
		if supply[ta.Mint] > math.MaxUint64-ta.Amount {
			tx.Discard()
			return false, fmt.Errorf("mint %s supply overflows", ta.Mint)
		}
		supply[ta.Mint] += ta.Amount
		account := &token.Account{
			Mint:   solana.MustPublicKeyFromBase58(ta.Mint),
			Owner:  solana.MustPublicKeyFromBase58(ta.Owner),
			Amount: ta.Amount,
		}
		data := account.Encode()
		if err := tx.PutAccount(solana.MustPublicKeyFromBase58(ta.Address), &types.Account{
			Owner:    token.ProgramID,
			Lamports: rent.MinimumBalance(len(data)),
			Data:     data,
		}); err != nil {
			tx.Discard()
			return false, err
		}
	}
	for _, m := range spec.Mints {
		mint := &token.Mint{
			Decimals:      m.Decimals,
			Supply:        supply[m.Address],
			MintAuthority: solana.MustPublicKeyFromBase58(m.MintAuthority),
		}
		data := mint.Encode()
		if err := tx.PutAccount(solana.MustPublicKeyFromBase58(m.Address), &types.Account{
			Owner:    token.ProgramID,
			Lamports: rent.MinimumBalance(len(data)),
			Data:     data,
		}); err != nil {
			tx.Discard()
			return false, err
		}
	}
	tx.MarkProcessed(marker)
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
