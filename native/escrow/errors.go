package escrow

import (
	"errors"

	"tokenescrow/crypto"
	"tokenescrow/native/common"
)

var (
	ErrInvalidAmount       = errors.New("escrow: invalid amount")
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	ErrAccountMismatch     = errors.New("escrow: account mismatch")
	ErrUnauthorized        = errors.New("escrow: unauthorized")
	ErrRecordNotFound      = errors.New("escrow: record not found")
	ErrUnexpectedState     = errors.New("escrow: unexpected escrow state")
	ErrInvalidInstruction  = errors.New("escrow: invalid instruction")

	ErrDerivationExhausted = crypto.ErrDerivationExhausted
	ErrModulePaused        = common.ErrModulePaused
)

// ErrorKind names the failure class of err for clients. Unknown errors map to
// "Internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrAccountMismatch):
		return "AccountMismatch"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrRecordNotFound):
		return "RecordNotFound"
	case errors.Is(err, ErrDerivationExhausted):
		return "DerivationExhausted"
	case errors.Is(err, ErrUnexpectedState):
		return "UnexpectedState"
	case errors.Is(err, ErrModulePaused):
		return "ModulePaused"
	case errors.Is(err, ErrInvalidInstruction):
		return "InvalidInstruction"
	default:
		return "Internal"
	}
}
