package escrow

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/ledger"
)

// Program adapts the engine to the ledger's dispatch interface.
type Program struct {
	engine *Engine
}

// NewProgram wraps engine for registration with the ledger.
func NewProgram(engine *Engine) *Program {
	return &Program{engine: engine}
}

func (p *Program) ProgramID() solana.PublicKey { return p.engine.ProgramID() }

func (p *Program) Name() string { return ModuleName }

func (p *Program) Process(_ context.Context, inv *ledger.Invocation) error {
	decoded, err := DecodeInstruction(inv.Instruction)
	if err != nil {
		return err
	}
	switch ix := decoded.(type) {
	case *InitializeInstruction:
		_, err = p.engine.Initialize(inv, ix.Accounts, ix.Args)
	case *ExchangeInstruction:
		_, err = p.engine.Exchange(inv, ix.Accounts, ix.Args)
	case *CancelInstruction:
		_, err = p.engine.Cancel(inv, ix.Accounts)
	default:
		err = fmt.Errorf("%w: unsupported instruction %T", ErrInvalidInstruction, decoded)
	}
	return err
}
