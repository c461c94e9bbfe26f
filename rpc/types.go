package rpc

import (
	"encoding/base64"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/types"
	"tokenescrow/indexer"
	"tokenescrow/native/escrow"
	"tokenescrow/native/token"
)

// ReceiptResult reports the outcome of a submitted transaction.
type ReceiptResult struct {
	Hash   string        `json:"hash"`
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
	Kind   string        `json:"kind,omitempty"`
	Events []types.Event `json:"events"`
}

// BatchEntry is one element of an escrow_sendBatch response.
type BatchEntry struct {
	Receipt *ReceiptResult `json:"receipt"`
	Error   *RPCError      `json:"error,omitempty"`
}

type AccountResult struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     string `json:"data"`
}

type TokenAccountResult struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

// EscrowResult is the decoded escrow record plus the mint held in custody.
type EscrowResult struct {
	Address                        string `json:"address"`
	Initializer                    string `json:"initializer"`
	InitializerDepositTokenAccount string `json:"initializerDepositTokenAccount"`
	InitializerReceiveTokenAccount string `json:"initializerReceiveTokenAccount"`
	CustodyTokenAccount            string `json:"custodyTokenAccount"`
	DepositMint                    string `json:"depositMint,omitempty"`
	DepositAmount                  uint64 `json:"depositAmount"`
	TakerAmount                    uint64 `json:"takerAmount"`
	BumpSeed                       uint8  `json:"bumpSeed"`
	OpenedAt                       int64  `json:"openedAt,omitempty"`
}

type CustodyResult struct {
	Record  string `json:"record"`
	Custody string `json:"custody"`
	Bump    uint8  `json:"bump"`
}

// ListOpenParams filters escrow_listOpen.
type ListOpenParams struct {
	Initializer string `json:"initializer,omitempty"`
	DepositMint string `json:"depositMint,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

func receiptResult(r *types.Receipt, err error) *ReceiptResult {
	if r == nil {
		return nil
	}
	out := &ReceiptResult{
		Hash:   solana.Hash(r.Hash).String(),
		Status: r.Status.String(),
		Error:  r.Error,
		Events: r.Events,
	}
	if out.Events == nil {
		out.Events = []types.Event{}
	}
	if err != nil {
		out.Kind = errorKind(err)
	}
	return out
}

func accountResult(addr solana.PublicKey, acc *types.Account) AccountResult {
	return AccountResult{
		Address:  addr.String(),
		Owner:    acc.Owner.String(),
		Lamports: acc.Lamports,
		Data:     base64.StdEncoding.EncodeToString(acc.Data),
	}
}

func tokenAccountResult(addr solana.PublicKey, acc *token.Account) TokenAccountResult {
	return TokenAccountResult{
		Address: addr.String(),
		Mint:    acc.Mint.String(),
		Owner:   acc.Owner.String(),
		Amount:  acc.Amount,
	}
}

func escrowResult(addr solana.PublicKey, rec *escrow.EscrowRecord) EscrowResult {
	return EscrowResult{
		Address:                        addr.String(),
		Initializer:                    rec.Initializer.String(),
		InitializerDepositTokenAccount: rec.InitializerDepositTokenAccount.String(),
		InitializerReceiveTokenAccount: rec.InitializerReceiveTokenAccount.String(),
		CustodyTokenAccount:            rec.CustodyTokenAccount.String(),
		DepositAmount:                  rec.DepositAmount,
		TakerAmount:                    rec.TakerAmount,
		BumpSeed:                       rec.BumpSeed,
	}
}

func escrowResultFromRow(row indexer.OpenEscrow) EscrowResult {
	return EscrowResult{
		Address:                        row.Address,
		Initializer:                    row.Initializer,
		InitializerDepositTokenAccount: row.InitializerDepositTokenAccount,
		InitializerReceiveTokenAccount: row.InitializerReceiveTokenAccount,
		CustodyTokenAccount:            row.CustodyTokenAccount,
		DepositMint:                    row.DepositMint,
		DepositAmount:                  uint64(row.DepositAmount),
		TakerAmount:                    uint64(row.TakerAmount),
		BumpSeed:                       row.BumpSeed,
		OpenedAt:                       row.OpenedAt,
	}
}
