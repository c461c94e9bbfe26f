package types

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AccountMeta names an account touched by an instruction and the access it
// requires.
type AccountMeta struct {
	PublicKey  solana.PublicKey `json:"pubkey"`
	IsSigner   bool             `json:"isSigner"`
	IsWritable bool             `json:"isWritable"`
}

// Meta returns a read-only, non-signing meta for the key.
func Meta(pk solana.PublicKey) AccountMeta { return AccountMeta{PublicKey: pk} }

// Writable marks the account as writable.
func (m AccountMeta) Writable() AccountMeta {
	m.IsWritable = true
	return m
}

// Signer marks the account as a required signer.
func (m AccountMeta) Signer() AccountMeta {
	m.IsSigner = true
	return m
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID solana.PublicKey `json:"programId"`
	Accounts  []AccountMeta    `json:"accounts"`
	Data      []byte           `json:"data"`
}

// SignatureEntry binds a signature to the signer that produced it.
type SignatureEntry struct {
	Signer    solana.PublicKey `json:"signer"`
	Signature solana.Signature `json:"signature"`
}

// Transaction groups instructions that are applied atomically. Nonce lets a
// client submit otherwise identical instruction sets more than once.
type Transaction struct {
	Nonce        uint64           `json:"nonce"`
	Instructions []Instruction    `json:"instructions"`
	Signatures   []SignatureEntry `json:"signatures"`
}

// KeySigner is anything able to sign a transaction message.
type KeySigner interface {
	PubKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

type wireMeta struct {
	PublicKey  [32]byte
	IsSigner   bool
	IsWritable bool
}

type wireInstruction struct {
	ProgramID [32]byte
	Accounts  []wireMeta
	Data      []byte
}

type wireMessage struct {
	Nonce        uint64
	Instructions []wireInstruction
}

// Message returns the Borsh encoded bytes covered by signatures.
func (tx *Transaction) Message() ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction")
	}
	msg := wireMessage{Nonce: tx.Nonce, Instructions: make([]wireInstruction, len(tx.Instructions))}
	for i, ix := range tx.Instructions {
		wi := wireInstruction{
			ProgramID: [32]byte(ix.ProgramID),
			Accounts:  make([]wireMeta, len(ix.Accounts)),
			Data:      ix.Data,
		}
		if wi.Data == nil {
			wi.Data = []byte{}
		}
		for j, meta := range ix.Accounts {
			wi.Accounts[j] = wireMeta{PublicKey: [32]byte(meta.PublicKey), IsSigner: meta.IsSigner, IsWritable: meta.IsWritable}
		}
		msg.Instructions[i] = wi
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return buf.Bytes(), nil
}

// Hash returns the keccak256 digest of the message, used as the transaction id.
func (tx *Transaction) Hash() ([32]byte, error) {
	msg, err := tx.Message()
	if err != nil {
		return [32]byte{}, err
	}
	return ethcrypto.Keccak256Hash(msg), nil
}

// Signers lists required signers in order of first appearance.
func (tx *Transaction) Signers() []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	out := make([]solana.PublicKey, 0)
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if !meta.IsSigner {
				continue
			}
			if _, ok := seen[meta.PublicKey]; ok {
				continue
			}
			seen[meta.PublicKey] = struct{}{}
			out = append(out, meta.PublicKey)
		}
	}
	return out
}

// AccountKeys returns every referenced account (including program ids) with
// its merged writable flag.
func (tx *Transaction) AccountKeys() map[solana.PublicKey]bool {
	keys := make(map[solana.PublicKey]bool)
	for _, ix := range tx.Instructions {
		if _, ok := keys[ix.ProgramID]; !ok {
			keys[ix.ProgramID] = false
		}
		for _, meta := range ix.Accounts {
			keys[meta.PublicKey] = keys[meta.PublicKey] || meta.IsWritable
		}
	}
	return keys
}

// Sign signs the message with every supplied key, replacing any previous
// signature by the same signer.
func (tx *Transaction) Sign(signers ...KeySigner) error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	for _, signer := range signers {
		sig, err := signer.Sign(msg)
		if err != nil {
			return fmt.Errorf("sign as %s: %w", signer.PubKey(), err)
		}
		entry := SignatureEntry{Signer: signer.PubKey(), Signature: sig}
		replaced := false
		for i := range tx.Signatures {
			if tx.Signatures[i].Signer.Equals(entry.Signer) {
				tx.Signatures[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			tx.Signatures = append(tx.Signatures, entry)
		}
	}
	return nil
}

// TxStatus is the terminal outcome of a submitted transaction.
type TxStatus uint8

const (
	TxStatusFailed TxStatus = iota
	TxStatusCommitted
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusCommitted:
		return "committed"
	default:
		return "failed"
	}
}

// Receipt reports the result of a transaction. Events are only populated for
// committed transactions.
type Receipt struct {
	Hash   [32]byte
	Status TxStatus
	Error  string
	Events []Event
}
