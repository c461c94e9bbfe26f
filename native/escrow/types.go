package escrow

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"tokenescrow/crypto"
)

// Seed is the static prefix of the custody address derivation.
const Seed = "escrow"

// RecordSize is the encoded length of an EscrowRecord including its
// discriminator.
const RecordSize = 8 + 4*32 + 8 + 8 + 1

// DefaultProgramID is the address the escrow program is deployed at unless
// configured otherwise.
var DefaultProgramID = crypto.MustDecodeAddress("BVn1pCovTMx6UHEVcCjXJN1h4E7KA8G6EyZtydaSzpu8")

var recordDiscriminator = discriminator("account", "EscrowAccount")

// discriminator returns the 8-byte tag that prefixes accounts and
// instructions of the given namespace.
func discriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// EscrowRecord is the persisted state of one open escrow. It never changes
// between Initialize and its terminating Exchange or Cancel.
type EscrowRecord struct {
	Initializer                    solana.PublicKey
	InitializerDepositTokenAccount solana.PublicKey
	InitializerReceiveTokenAccount solana.PublicKey
	CustodyTokenAccount            solana.PublicKey
	DepositAmount                  uint64
	TakerAmount                    uint64
	BumpSeed                       uint8
}

type recordLayout struct {
	Discriminator                  [8]byte
	Initializer                    [32]byte
	InitializerDepositTokenAccount [32]byte
	InitializerReceiveTokenAccount [32]byte
	CustodyTokenAccount            [32]byte
	DepositAmount                  uint64
	TakerAmount                    uint64
	BumpSeed                       uint8
}

// Encode serialises the record in field order after the discriminator.
func (r *EscrowRecord) Encode() []byte {
	buf := new(bytes.Buffer)
	_ = bin.NewBorshEncoder(buf).Encode(recordLayout{
		Discriminator:                  recordDiscriminator,
		Initializer:                    [32]byte(r.Initializer),
		InitializerDepositTokenAccount: [32]byte(r.InitializerDepositTokenAccount),
		InitializerReceiveTokenAccount: [32]byte(r.InitializerReceiveTokenAccount),
		CustodyTokenAccount:            [32]byte(r.CustodyTokenAccount),
		DepositAmount:                  r.DepositAmount,
		TakerAmount:                    r.TakerAmount,
		BumpSeed:                       r.BumpSeed,
	})
	return buf.Bytes()
}

// DecodeRecord parses escrow record account data.
func DecodeRecord(data []byte) (*EscrowRecord, error) {
	if len(data) != RecordSize {
		return nil, fmt.Errorf("%w: record is %d bytes, want %d", ErrAccountMismatch, len(data), RecordSize)
	}
	var layout recordLayout
	if err := bin.NewBorshDecoder(data).Decode(&layout); err != nil {
		return nil, fmt.Errorf("%w: decode record: %v", ErrAccountMismatch, err)
	}
	if layout.Discriminator != recordDiscriminator {
		return nil, fmt.Errorf("%w: not an escrow record", ErrAccountMismatch)
	}
	return &EscrowRecord{
		Initializer:                    solana.PublicKey(layout.Initializer),
		InitializerDepositTokenAccount: solana.PublicKey(layout.InitializerDepositTokenAccount),
		InitializerReceiveTokenAccount: solana.PublicKey(layout.InitializerReceiveTokenAccount),
		CustodyTokenAccount:            solana.PublicKey(layout.CustodyTokenAccount),
		DepositAmount:                  layout.DepositAmount,
		TakerAmount:                    layout.TakerAmount,
		BumpSeed:                       layout.BumpSeed,
	}, nil
}
