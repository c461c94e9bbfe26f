package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/types"
	"tokenescrow/crypto"
	"tokenescrow/native/escrow"
)

// InitializeParams describes a new escrow offer.
type InitializeParams struct {
	ProgramID           solana.PublicKey
	Record              solana.PublicKey
	DepositTokenAccount solana.PublicKey
	DepositMint         solana.PublicKey
	ReceiveTokenAccount solana.PublicKey
	DepositAmount       uint64
	TakerAmount         uint64
}

// ExchangeParams identifies the taker's side of a trade.
type ExchangeParams struct {
	ProgramID           solana.PublicKey
	Record              solana.PublicKey
	DepositTokenAccount solana.PublicKey
	ReceiveTokenAccount solana.PublicKey
}

// Initialize builds, signs and submits initialize_escrow for the key owner.
func (c *Client) Initialize(ctx context.Context, key *crypto.PrivateKey, p InitializeParams) (*Receipt, error) {
	if key == nil {
		return nil, fmt.Errorf("client: signing key required")
	}
	ix, err := escrow.BuildInitialize(p.ProgramID, key.PubKey(), p.DepositTokenAccount, p.DepositMint, p.ReceiveTokenAccount, p.Record, p.DepositAmount, p.TakerAmount)
	if err != nil {
		return nil, fmt.Errorf("client: build initialize: %w", err)
	}
	return c.signAndSubmit(ctx, ix, key)
}

// Exchange fetches the record, then builds, signs and submits an exchange
// that expects exactly the terms observed.
func (c *Client) Exchange(ctx context.Context, key *crypto.PrivateKey, p ExchangeParams) (*Receipt, error) {
	if key == nil {
		return nil, fmt.Errorf("client: signing key required")
	}
	rec, err := c.record(ctx, p.Record)
	if err != nil {
		return nil, err
	}
	ix := escrow.BuildExchange(p.ProgramID, p.Record, rec, key.PubKey(), p.DepositTokenAccount, p.ReceiveTokenAccount)
	return c.signAndSubmit(ctx, ix, key)
}

// Cancel fetches the record, then builds, signs and submits a cancel.
func (c *Client) Cancel(ctx context.Context, key *crypto.PrivateKey, programID, record solana.PublicKey) (*Receipt, error) {
	if key == nil {
		return nil, fmt.Errorf("client: signing key required")
	}
	rec, err := c.record(ctx, record)
	if err != nil {
		return nil, err
	}
	return c.signAndSubmit(ctx, escrow.BuildCancel(programID, record, rec), key)
}

func (c *Client) record(ctx context.Context, addr solana.PublicKey) (*escrow.EscrowRecord, error) {
	view, err := c.Escrow(ctx, addr.String())
	if err != nil {
		return nil, err
	}
	return view.Record()
}

func (c *Client) signAndSubmit(ctx context.Context, ix types.Instruction, signers ...types.KeySigner) (*Receipt, error) {
	tx := &types.Transaction{
		Nonce:        uint64(time.Now().UnixNano()),
		Instructions: []types.Instruction{ix},
	}
	if err := tx.Sign(signers...); err != nil {
		return nil, fmt.Errorf("client: sign transaction: %w", err)
	}
	return c.Submit(ctx, tx)
}

// Record converts the RPC view back into the on-ledger record.
func (e *Escrow) Record() (*escrow.EscrowRecord, error) {
	rec := &escrow.EscrowRecord{
		DepositAmount: e.DepositAmount,
		TakerAmount:   e.TakerAmount,
		BumpSeed:      e.BumpSeed,
	}
	var err error
	decode := func(raw string, dst *solana.PublicKey) {
		if err != nil {
			return
		}
		*dst, err = crypto.DecodeAddress(raw)
	}
	decode(e.Initializer, &rec.Initializer)
	decode(e.InitializerDepositTokenAccount, &rec.InitializerDepositTokenAccount)
	decode(e.InitializerReceiveTokenAccount, &rec.InitializerReceiveTokenAccount)
	decode(e.CustodyTokenAccount, &rec.CustodyTokenAccount)
	if err != nil {
		return nil, fmt.Errorf("client: escrow %s: %w", e.Address, err)
	}
	return rec, nil
}
