package token

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/ledger"
)

// Program dispatches token instructions submitted directly to the ledger.
type Program struct{}

func NewProgram() *Program { return &Program{} }

func (*Program) ProgramID() solana.PublicKey { return ProgramID }

func (*Program) Name() string { return "token" }

func (*Program) Process(_ context.Context, inv *ledger.Invocation) error {
	ix := inv.Instruction
	if len(ix.Data) == 0 {
		return fmt.Errorf("%w: empty data", ErrInvalidInstruction)
	}
	accounts := ix.Accounts
	need := func(n int) error {
		if len(accounts) < n {
			return fmt.Errorf("%w: expected %d accounts, got %d", ErrInvalidInstruction, n, len(accounts))
		}
		return nil
	}
	switch ix.Data[0] {
	case InstructionInitializeMint:
		if err := need(2); err != nil {
			return err
		}
		var args initializeMintArgs
		if err := decodeArgs(ix.Data, &args); err != nil {
			return err
		}
		return InitializeMint(inv, Signer(accounts[0].PublicKey), accounts[1].PublicKey, args.Decimals, solana.PublicKey(args.MintAuthority))
	case InstructionInitializeAccount:
		if err := need(4); err != nil {
			return err
		}
		return InitializeAccount(inv, Signer(accounts[0].PublicKey), accounts[3].PublicKey, accounts[1].PublicKey, accounts[2].PublicKey)
	case InstructionTransfer:
		if err := need(3); err != nil {
			return err
		}
		var args amountArgs
		if err := decodeArgs(ix.Data, &args); err != nil {
			return err
		}
		return Transfer(inv, accounts[0].PublicKey, accounts[1].PublicKey, Signer(accounts[2].PublicKey), args.Amount)
	case InstructionSetAuthority:
		if err := need(2); err != nil {
			return err
		}
		var args setAuthorityArgs
		if err := decodeArgs(ix.Data, &args); err != nil {
			return err
		}
		return SetOwner(inv, accounts[0].PublicKey, Signer(accounts[1].PublicKey), solana.PublicKey(args.NewOwner))
	case InstructionMintTo:
		if err := need(3); err != nil {
			return err
		}
		var args amountArgs
		if err := decodeArgs(ix.Data, &args); err != nil {
			return err
		}
		return MintTo(inv, accounts[0].PublicKey, accounts[1].PublicKey, Signer(accounts[2].PublicKey), args.Amount)
	case InstructionCloseAccount:
		if err := need(3); err != nil {
			return err
		}
		return CloseAccount(inv, accounts[0].PublicKey, accounts[1].PublicKey, Signer(accounts[2].PublicKey))
	default:
		return fmt.Errorf("%w: unknown tag %d", ErrInvalidInstruction, ix.Data[0])
	}
}
