package ledger

import (
	"context"
	"errors"

	"github.com/iliyamo/pharmatrace/internal/apperror"
)

// Revert reasons understood by the gateway. Backends report contract
// rejections with one of these names when they can.
const (
	ReasonBatchNotFound            = "BatchNotFound"
	ReasonBatchAlreadyExists       = "BatchAlreadyExists"
	ReasonStakeholderNotFound      = "StakeholderNotFound"
	ReasonStakeholderAlreadyExists = "StakeholderAlreadyExists"
	ReasonNotCurrentHolder         = "NotCurrentHolder"
	ReasonInvalidTransition        = "InvalidStatusTransition"
	ReasonBatchRecalled            = "BatchAlreadyRecalled"
)

var reasonCodes = map[string]apperror.Code{
	ReasonBatchNotFound:            apperror.CodeBatchNotFound,
	ReasonBatchAlreadyExists:       apperror.CodeBatchAlreadyExists,
	ReasonStakeholderNotFound:      apperror.CodeStakeholderNotFound,
	ReasonStakeholderAlreadyExists: apperror.CodeStakeholderAlreadyExists,
	ReasonNotCurrentHolder:         apperror.CodeTransferNotAllowed,
	ReasonInvalidTransition:        apperror.CodeInvalidTransition,
	ReasonBatchRecalled:            apperror.CodeBatchRecalled,
}

// Revert is a rejected ledger execution.
type Revert struct {
	Reason string
}

func (r *Revert) Error() string {
	if r.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + r.Reason
}

// Pending reports a transaction that reached the node but whose result could
// not be observed. The ledger may still commit it.
type Pending struct {
	TxHash string
	Err    error
}

func (p *Pending) Error() string {
	return "transaction " + p.TxHash + " submitted, outcome unknown: " + p.Err.Error()
}

func (p *Pending) Unwrap() error { return p.Err }

// ErrInsufficientFunds is wrapped by backends when the signer cannot pay fees.
var ErrInsufficientFunds = errors.New("insufficient funds for gas")

// classify maps a backend error onto the taxonomy. A submitted transaction
// whose result was lost, or a mutating call that ends through its context, is
// reported as an unknown outcome, never as a failure.
func classify(err error, mutating bool) error {
	if err == nil {
		return nil
	}
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return err
	}
	var rv *Revert
	if errors.As(err, &rv) {
		if code, ok := reasonCodes[rv.Reason]; ok {
			return apperror.Wrap(code, codeMessage(code), err)
		}
		return apperror.Wrap(apperror.CodeExecutionReverted, "ledger rejected the call", err)
	}
	var pending *Pending
	if errors.As(err, &pending) {
		return apperror.Wrap(apperror.CodeLedgerOutcomeUnknown, "transaction submitted; it may still commit", err)
	}
	if errors.Is(err, ErrInsufficientFunds) {
		return apperror.Wrap(apperror.CodeInsufficientFunds, "ledger signer cannot pay fees", err)
	}
	if mutating && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return apperror.Wrap(apperror.CodeLedgerOutcomeUnknown, "ledger call did not confirm in time; it may still commit", err)
	}
	return apperror.Wrap(apperror.CodeLedgerUnavailable, "ledger unavailable", err)
}

func codeMessage(code apperror.Code) string {
	switch code {
	case apperror.CodeBatchNotFound:
		return "batch not found"
	case apperror.CodeBatchAlreadyExists:
		return "batch number already used"
	case apperror.CodeStakeholderNotFound:
		return "stakeholder not found"
	case apperror.CodeStakeholderAlreadyExists:
		return "stakeholder already registered"
	case apperror.CodeTransferNotAllowed:
		return "actor is not allowed to move this batch"
	case apperror.CodeInvalidTransition:
		return "invalid status transition"
	case apperror.CodeBatchRecalled:
		return "batch has been recalled"
	}
	return string(code)
}
