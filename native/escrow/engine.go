package escrow

import (
	"github.com/gagliardetto/solana-go"

	"tokenescrow/core/events"
	"tokenescrow/core/ledger"
	"tokenescrow/core/types"
	"tokenescrow/native/common"
	"tokenescrow/native/token"
)

// ModuleName is the pause-guard key of the escrow program.
const ModuleName = "escrow"

// Engine implements the escrow state machine. Every transition validates all
// preconditions before it moves any funds, so a rejected instruction leaves
// the ledger untouched even before the host discards the overlay.
type Engine struct {
	programID solana.PublicKey
	pauses    common.PauseView
}

// NewEngine creates an engine for the program deployed at programID.
func NewEngine(programID solana.PublicKey) *Engine {
	return &Engine{programID: programID}
}

func (e *Engine) ProgramID() solana.PublicKey { return e.programID }

// SetPauses configures the pause view consulted before every transition.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func emit(inv *ledger.Invocation, evt *types.Event) {
	inv.Emit(events.Wrap(evt))
}

// Initialize opens an escrow: it creates the custody account at the derived
// address, moves the deposit into it, hands custody authority to the program
// and writes the record.
func (e *Engine) Initialize(inv *ledger.Invocation, accts InitializeAccounts, args InitializeArgs) (*EscrowRecord, error) {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	plan, err := validateInitialize(inv, e.programID, accts, args)
	if err != nil {
		return nil, err
	}
	rec := plan.record

	if err := token.InitializeAccount(inv, plan.custody, accts.Initializer, accts.DepositMint, accts.Initializer); err != nil {
		return nil, err
	}
	if err := token.Transfer(inv, accts.InitializerDepositTokenAccount, rec.CustodyTokenAccount, token.Signer(accts.Initializer), rec.DepositAmount); err != nil {
		return nil, err
	}
	if err := token.SetOwner(inv, rec.CustodyTokenAccount, token.Signer(accts.Initializer), plan.custody.Key); err != nil {
		return nil, err
	}

	data := rec.Encode()
	rent := inv.Rent.MinimumBalance(len(data))
	if err := inv.State.DebitLamports(accts.Initializer, rent); err != nil {
		return nil, err
	}
	if err := inv.State.PutAccount(accts.EscrowRecord, &types.Account{Owner: e.programID, Lamports: rent, Data: data}); err != nil {
		return nil, err
	}
	emit(inv, NewInitializedEvent(accts.EscrowRecord, &rec, accts.DepositMint, inv.Now))
	return &rec, nil
}

// Exchange settles an open escrow: the taker pays the initializer, custody
// releases its whole balance to the taker, and custody and record are closed
// with their rent returned to the initializer.
//
// ExpectedDepositAmount and ExpectedTakerAmount are the terms the taker saw.
// The exchange fails with ErrUnexpectedState when the record offers less than
// ExpectedDepositAmount or asks more than ExpectedTakerAmount. A zero value
// skips that comparison.
func (e *Engine) Exchange(inv *ledger.Invocation, accts ExchangeAccounts, args ExchangeArgs) (*EscrowRecord, error) {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	plan, err := validateExchange(inv, e.programID, accts, args)
	if err != nil {
		return nil, err
	}
	rec := plan.record

	if err := token.Transfer(inv, accts.TakerDepositTokenAccount, rec.InitializerReceiveTokenAccount, token.Signer(accts.Taker), rec.TakerAmount); err != nil {
		return nil, err
	}
	if err := token.Transfer(inv, rec.CustodyTokenAccount, accts.TakerReceiveTokenAccount, plan.custody, plan.released()); err != nil {
		return nil, err
	}
	if err := e.close(inv, plan); err != nil {
		return nil, err
	}
	emit(inv, NewExchangedEvent(plan.address, rec, accts.Taker, inv.Now))
	return rec, nil
}

// Cancel returns the custody balance to the initializer's deposit account and
// closes the escrow.
func (e *Engine) Cancel(inv *ledger.Invocation, accts CancelAccounts) (*EscrowRecord, error) {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	plan, err := validateCancel(inv, e.programID, accts)
	if err != nil {
		return nil, err
	}
	rec := plan.record

	if err := token.Transfer(inv, rec.CustodyTokenAccount, rec.InitializerDepositTokenAccount, plan.custody, plan.released()); err != nil {
		return nil, err
	}
	if err := e.close(inv, plan); err != nil {
		return nil, err
	}
	emit(inv, NewCancelledEvent(plan.address, rec, inv.Now))
	return rec, nil
}

// close deletes the drained custody account and the record, crediting both
// rent deposits to the initializer.
func (e *Engine) close(inv *ledger.Invocation, plan *settlePlan) error {
	rec := plan.record
	if err := token.CloseAccount(inv, rec.CustodyTokenAccount, rec.Initializer, plan.custody); err != nil {
		return err
	}
	raw, err := inv.State.GetAccount(plan.address)
	if err != nil {
		return err
	}
	if err := inv.State.DeleteAccount(plan.address); err != nil {
		return err
	}
	return inv.State.CreditLamports(rec.Initializer, raw.Lamports)
}
