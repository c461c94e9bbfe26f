package crypto

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// PrivateKey wraps a 64-byte ed25519 keypair in the layout used by Solana
// keygen files (32-byte seed followed by the public key).
type PrivateKey struct {
	solana.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw 64-byte keypair.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.PrivateKey...)
}

// PubKey returns the public half of the keypair, which doubles as the
// account address.
func (k *PrivateKey) PubKey() solana.PublicKey {
	return k.PrivateKey.PublicKey()
}

// Sign produces an ed25519 signature over the supplied message.
func (k *PrivateKey) Sign(message []byte) (solana.Signature, error) {
	return k.PrivateKey.Sign(message)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	key := solana.PrivateKey(append([]byte(nil), b...))
	// Reject keypairs whose public half does not match the seed.
	derived := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !key.PublicKey().Equals(solana.PublicKeyFromBytes(derived[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("crypto: keypair public key does not match seed")
	}
	return &PrivateKey{key}, nil
}

// DecodeAddress parses a base58 encoded account address.
func DecodeAddress(addr string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return solana.PublicKey{}, fmt.Errorf("crypto: address required")
	}
	pk, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid base58 address: %w", err)
	}
	return pk, nil
}

// MustDecodeAddress is DecodeAddress for constants; it panics on malformed input.
func MustDecodeAddress(addr string) solana.PublicKey {
	pk, err := DecodeAddress(addr)
	if err != nil {
		panic(err)
	}
	return pk
}

// VerifySignature reports whether sig is a valid signature of message by pub.
func VerifySignature(pub solana.PublicKey, message []byte, sig solana.Signature) bool {
	return sig.Verify(pub, message)
}
