package rpc

import (
	"errors"
	"net/http"

	"tokenescrow/core/ledger"
	"tokenescrow/core/state"
	"tokenescrow/native/escrow"
	"tokenescrow/native/token"
)

// ErrorData is attached to JSON-RPC errors raised by transaction execution.
type ErrorData struct {
	Kind   string `json:"kind"`
	Hash   string `json:"hash,omitempty"`
	Detail string `json:"detail,omitempty"`
}

var hostKinds = []struct {
	err  error
	kind string
}{
	{ledger.ErrDuplicateTransaction, "DuplicateTransaction"},
	{ledger.ErrEmptyTransaction, "EmptyTransaction"},
	{ledger.ErrMissingSignature, "MissingSignature"},
	{ledger.ErrInvalidSignature, "InvalidSignature"},
	{ledger.ErrUnknownProgram, "UnknownProgram"},
	{state.ErrAccountNotWritable, "AccountNotWritable"},
	{state.ErrInsufficientLamports, "InsufficientBalance"},
	{token.ErrInsufficientFunds, "InsufficientFunds"},
	{token.ErrAuthorityMismatch, "AuthorityMismatch"},
	{token.ErrMintMismatch, "MintMismatch"},
	{token.ErrNonZeroBalance, "NonZeroBalance"},
	{token.ErrAlreadyInitialized, "AlreadyInitialized"},
	{token.ErrNotTokenAccount, "AccountMismatch"},
	{token.ErrInvalidAccountData, "AccountMismatch"},
	{token.ErrInvalidInstruction, "InvalidInstruction"},
	{token.ErrAmountOverflow, "InvalidAmount"},
}

// errorKind names the failure class of a transaction error. Escrow kinds
// win over the host and token kinds they may wrap.
func errorKind(err error) string {
	if kind := escrow.ErrorKind(err); kind != "Internal" {
		return kind
	}
	for _, candidate := range hostKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return "Internal"
}

// classify maps a transaction error to an HTTP status and JSON-RPC code.
func classify(err error) (status int, code int, kind string) {
	kind = errorKind(err)
	switch kind {
	case "DuplicateTransaction":
		return http.StatusConflict, codeDuplicateTx, kind
	case "EmptyTransaction", "MissingSignature", "InvalidSignature", "UnknownProgram", "AccountNotWritable":
		return http.StatusBadRequest, codeInvalidTransaction, kind
	case "ModulePaused":
		return http.StatusServiceUnavailable, codeModulePaused, kind
	case "Internal":
		return http.StatusInternalServerError, codeServerError, kind
	default:
		return http.StatusUnprocessableEntity, codeEscrowRejected, kind
	}
}
