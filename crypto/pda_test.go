package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
)

var testProgramID = solana.MustPublicKeyFromBase58("BVn1pCovTMx6UHEVcCjXJN1h4E7KA8G6EyZtydaSzpu8")

func TestFindProgramAddressMatchesReference(t *testing.T) {
	for i := 0; i < 32; i++ {
		key, err := GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		record := key.PubKey()
		seeds := [][]byte{[]byte("escrow"), record[:]}

		addr, bump, err := FindProgramAddress(seeds, testProgramID)
		if err != nil {
			t.Fatalf("find program address: %v", err)
		}
		refAddr, refBump, err := solana.FindProgramAddress(seeds, testProgramID)
		if err != nil {
			t.Fatalf("reference derivation: %v", err)
		}
		if !addr.Equals(refAddr) || bump != refBump {
			t.Fatalf("derivation mismatch: got %s/%d want %s/%d", addr, bump, refAddr, refBump)
		}
		if IsOnCurve(addr[:]) {
			t.Fatalf("derived address %s lies on curve", addr)
		}
	}
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	seeds := [][]byte{[]byte("escrow"), bytes.Repeat([]byte{0x42}, 32)}
	first, firstBump, err := FindProgramAddress(seeds, testProgramID)
	if err != nil {
		t.Fatalf("first derivation: %v", err)
	}
	second, secondBump, err := FindProgramAddress(seeds, testProgramID)
	if err != nil {
		t.Fatalf("second derivation: %v", err)
	}
	if !first.Equals(second) || firstBump != secondBump {
		t.Fatalf("derivation not deterministic")
	}

	rederived, err := CreateProgramAddress(append(seeds, []byte{firstBump}), testProgramID)
	if err != nil {
		t.Fatalf("re-derive with stored bump: %v", err)
	}
	if !rederived.Equals(first) {
		t.Fatalf("re-derived address %s differs from %s", rederived, first)
	}
}

func TestFindProgramAddressDependsOnProgram(t *testing.T) {
	seeds := [][]byte{[]byte("escrow"), bytes.Repeat([]byte{0x07}, 32)}
	a, _, err := FindProgramAddress(seeds, testProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, _, err := FindProgramAddress(seeds, solana.TokenProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a.Equals(b) {
		t.Fatalf("expected distinct addresses for distinct programs")
	}
}

func TestCreateProgramAddressSeedLimits(t *testing.T) {
	if _, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, testProgramID); !errors.Is(err, ErrMaxSeedLengthExceeded) {
		t.Fatalf("expected ErrMaxSeedLengthExceeded, got %v", err)
	}
	seeds := make([][]byte, MaxSeeds+1)
	if _, err := CreateProgramAddress(seeds, testProgramID); !errors.Is(err, ErrTooManySeeds) {
		t.Fatalf("expected ErrTooManySeeds, got %v", err)
	}
	if _, _, err := FindProgramAddress(make([][]byte, MaxSeeds), testProgramID); !errors.Is(err, ErrTooManySeeds) {
		t.Fatalf("expected ErrTooManySeeds when no room for bump, got %v", err)
	}
}

func TestIsOnCurve(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub := key.PubKey()
	if !IsOnCurve(pub[:]) {
		t.Fatalf("wallet public key should be on curve")
	}
	if IsOnCurve([]byte{1, 2, 3}) {
		t.Fatalf("short input must not be reported on curve")
	}
}
