package token

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/ledger"
	"tokenescrow/crypto"
)

// Authority proves the right to act for Key. A signer authority carries no
// seeds; a program authority carries the full seed list, bump included, that
// derives Key from the calling program.
type Authority struct {
	Key   solana.PublicKey
	Seeds [][]byte
}

// Signer returns an authority satisfied by a transaction signature.
func Signer(pk solana.PublicKey) Authority {
	return Authority{Key: pk}
}

// ProgramSigner returns an authority for the address derived from seeds under
// program.
func ProgramSigner(program solana.PublicKey, seeds ...[]byte) (Authority, error) {
	key, err := crypto.CreateProgramAddress(seeds, program)
	if err != nil {
		return Authority{}, err
	}
	return Authority{Key: key, Seeds: seeds}, nil
}

// verify checks that auth may act as expected within inv. Program authorities
// are re-derived against the calling program, so a program can only sign for
// its own addresses.
func (auth Authority) verify(inv *ledger.Invocation, expected solana.PublicKey) error {
	if !auth.Key.Equals(expected) {
		return fmt.Errorf("%w: expected %s, got %s", ErrAuthorityMismatch, expected, auth.Key)
	}
	if len(auth.Seeds) == 0 {
		if !inv.IsSigner(auth.Key) {
			return fmt.Errorf("%w: %s did not sign", ErrAuthorityMismatch, auth.Key)
		}
		return nil
	}
	derived, err := crypto.CreateProgramAddress(auth.Seeds, inv.CallerID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorityMismatch, err)
	}
	if !derived.Equals(auth.Key) {
		return fmt.Errorf("%w: seeds do not derive %s", ErrAuthorityMismatch, auth.Key)
	}
	return nil
}
