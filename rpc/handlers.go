package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/state"
	"tokenescrow/core/types"
	"tokenescrow/crypto"
	"tokenescrow/indexer"
	"tokenescrow/native/escrow"
	"tokenescrow/native/token"
)

const maxBatchSize = 64

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "transaction parameter required", nil)
		return
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction format", err.Error())
		return
	}

	receipt, err := s.ledger.Submit(r.Context(), &tx)
	result := receiptResult(receipt, err)
	if err != nil {
		status, code, kind := classify(err)
		s.logger.Info("transaction rejected",
			"request_id", RequestID(r.Context()),
			"kind", kind,
			"error", err)
		data := ErrorData{Kind: kind, Detail: err.Error()}
		if result != nil {
			data.Hash = result.Hash
		}
		writeError(w, status, req.ID, code, "transaction failed", data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleSendBatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "transaction list required", nil)
		return
	}
	var txs []*types.Transaction
	if err := json.Unmarshal(req.Params[0], &txs); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction list", err.Error())
		return
	}
	if len(txs) == 0 || len(txs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("batch must hold between 1 and %d transactions", maxBatchSize), len(txs))
		return
	}
	for i, tx := range txs {
		if tx == nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("transaction %d is null", i), nil)
			return
		}
	}

	results := s.ledger.SubmitBatch(r.Context(), txs)
	out := make([]BatchEntry, len(results))
	for i, res := range results {
		out[i] = BatchEntry{Receipt: receiptResult(res.Receipt, res.Err)}
		if res.Err != nil {
			_, code, kind := classify(res.Err)
			out[i].Error = &RPCError{Code: code, Message: "transaction failed", Data: ErrorData{Kind: kind, Detail: res.Err.Error()}}
		}
	}
	writeResult(w, req.ID, out)
}

func parseAddressParam(req *RPCRequest) (solana.PublicKey, error) {
	if len(req.Params) != 1 {
		return solana.PublicKey{}, fmt.Errorf("address parameter required")
	}
	var raw string
	if err := json.Unmarshal(req.Params[0], &raw); err != nil {
		return solana.PublicKey{}, fmt.Errorf("address must be a string")
	}
	return crypto.DecodeAddress(raw)
}

// loadAccount writes the error response itself and returns nil when the
// account cannot be served.
func (s *Server) loadAccount(w http.ResponseWriter, req *RPCRequest, addr solana.PublicKey) *types.Account {
	acc, err := s.ledger.Account(addr)
	if errors.Is(err, state.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "account not found", addr.String())
		return nil
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return nil
	}
	return acc
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	acc := s.loadAccount(w, req, addr)
	if acc == nil {
		return
	}
	writeResult(w, req.ID, accountResult(addr, acc))
}

func (s *Server) handleGetTokenAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	acc := s.loadAccount(w, req, addr)
	if acc == nil {
		return
	}
	if !acc.Owner.Equals(token.ProgramID) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "account is not owned by the token program", acc.Owner.String())
		return
	}
	decoded, err := token.DecodeAccount(acc.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "account is not a token account", err.Error())
		return
	}
	writeResult(w, req.ID, tokenAccountResult(addr, decoded))
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	acc, err := s.ledger.Account(addr)
	if errors.Is(err, state.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "escrow not found", ErrorData{Kind: "RecordNotFound"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load escrow", err.Error())
		return
	}
	if !acc.Owner.Equals(s.programID) {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowRejected, "account is not an escrow record", ErrorData{Kind: "AccountMismatch"})
		return
	}
	rec, err := escrow.DecodeRecord(acc.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowRejected, "account is not an escrow record", ErrorData{Kind: "AccountMismatch", Detail: err.Error()})
		return
	}
	result := escrowResult(addr, rec)
	if custody, err := s.ledger.Account(rec.CustodyTokenAccount); err == nil {
		if held, err := token.DecodeAccount(custody.Data); err == nil {
			result.DepositMint = held.Mint.String()
		}
	}
	if s.indexer != nil {
		if row, err := s.indexer.Get(r.Context(), addr.String()); err == nil {
			result.OpenedAt = row.OpenedAt
		}
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleListOpen(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ListOpenParams
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at most one filter object expected", nil)
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid filter", err.Error())
			return
		}
	}
	filter := indexer.Filter{
		Initializer: strings.TrimSpace(params.Initializer),
		DepositMint: strings.TrimSpace(params.DepositMint),
		Limit:       params.Limit,
	}

	var rows []indexer.OpenEscrow
	var err error
	if s.indexer != nil {
		rows, err = s.indexer.List(r.Context(), filter)
	} else {
		rows, err = s.scanOpen(filter)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list escrows", err.Error())
		return
	}
	out := make([]EscrowResult, len(rows))
	for i, row := range rows {
		out[i] = escrowResultFromRow(row)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) scanOpen(filter indexer.Filter) ([]indexer.OpenEscrow, error) {
	rows, err := indexer.Scan(s.ledger, s.programID)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		if filter.Initializer != "" && row.Initializer != filter.Initializer {
			continue
		}
		if filter.DepositMint != "" && row.DepositMint != filter.DepositMint {
			continue
		}
		out = append(out, row)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Server) handleDeriveCustody(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	record, err := parseAddressParam(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	custody, bump, err := escrow.DeriveCustody(s.programID, record)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, req.ID, codeEscrowRejected, "custody derivation failed", ErrorData{Kind: escrow.ErrorKind(err), Detail: err.Error()})
		return
	}
	writeResult(w, req.ID, CustodyResult{Record: record.String(), Custody: custody.String(), Bump: bump})
}
