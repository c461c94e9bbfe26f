package escrow

import (
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/types"
)

const (
	EventTypeEscrowInitialized = "escrow.initialized"
	EventTypeEscrowExchanged   = "escrow.exchanged"
	EventTypeEscrowCancelled   = "escrow.cancelled"
)

// NewInitializedEvent returns the payload emitted when a record is opened.
// depositMint is carried so read models can list offers without extra lookups.
func NewInitializedEvent(addr solana.PublicKey, rec *EscrowRecord, depositMint solana.PublicKey, at time.Time) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowInitialized, addr, rec, at)
	evt.Attributes["depositMint"] = depositMint.String()
	return evt
}

// NewExchangedEvent returns the payload emitted when a taker settles a record.
func NewExchangedEvent(addr solana.PublicKey, rec *EscrowRecord, taker solana.PublicKey, at time.Time) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowExchanged, addr, rec, at)
	evt.Attributes["taker"] = taker.String()
	return evt
}

func NewCancelledEvent(addr solana.PublicKey, rec *EscrowRecord, at time.Time) *types.Event {
	return newEscrowEvent(EventTypeEscrowCancelled, addr, rec, at)
}

func newEscrowEvent(eventType string, addr solana.PublicKey, rec *EscrowRecord, at time.Time) *types.Event {
	attrs := map[string]string{"escrow": addr.String()}
	if !at.IsZero() {
		attrs["timestamp"] = strconv.FormatInt(at.Unix(), 10)
	}
	if rec == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["initializer"] = rec.Initializer.String()
	attrs["initializerDepositTokenAccount"] = rec.InitializerDepositTokenAccount.String()
	attrs["initializerReceiveTokenAccount"] = rec.InitializerReceiveTokenAccount.String()
	attrs["custodyTokenAccount"] = rec.CustodyTokenAccount.String()
	attrs["depositAmount"] = strconv.FormatUint(rec.DepositAmount, 10)
	attrs["takerAmount"] = strconv.FormatUint(rec.TakerAmount, 10)
	attrs["bumpSeed"] = strconv.FormatUint(uint64(rec.BumpSeed), 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
