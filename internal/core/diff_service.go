package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoAttachment is returned when a draft has no document to compare
	// against. This is a precondition failure, not a zero-difference result.
	ErrNoAttachment = errors.New("draft record has no attachment")

	// ErrComparatorUntrusted marks a comparator result whose own arithmetic
	// does not hold up. The whole pass is rejected.
	ErrComparatorUntrusted = errors.New("comparator result failed consistency check")
)

// DiffEngine invokes the comparator collaborator and enforces the internal
// consistency of its output before anything downstream trusts it.
type DiffEngine struct {
	comparator InvoiceComparator
	log        *logrus.Logger
}

func NewDiffEngine(comparator InvoiceComparator, log *logrus.Logger) *DiffEngine {
	return &DiffEngine{comparator: comparator, log: log}
}

// Analyze obtains a ComparisonResult for (draft, doc) and validates it.
// The returned result has TotalDifference, IsValid and CanAutoFix recomputed
// by the engine and every malformed correction action removed.
func (e *DiffEngine) Analyze(ctx context.Context, draft *DraftRecord, doc *ExtractedDocument) (*ComparisonResult, error) {
	if draft == nil || doc == nil {
		return nil, errors.New("analyze requires both a draft record and an extracted document")
	}
	if len(draft.Attachments) == 0 {
		return nil, ErrNoAttachment
	}

	result, err := e.comparator.Compare(ctx, draft, doc)
	if err != nil {
		return nil, fmt.Errorf("comparator: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: nil result", ErrComparatorUntrusted)
	}

	result.Normalize()
	if err := e.validate(draft, doc, result); err != nil {
		return nil, err
	}
	return result, nil
}

// validate applies the core-owned trust rules to a comparator result, fixing
// up the fields whose correctness the state machine depends on.
func (e *DiffEngine) validate(draft *DraftRecord, doc *ExtractedDocument, result *ComparisonResult) error {
	// The comparator must agree with the engine about the headline figure to
	// the cent, or nothing else it says can be trusted.
	expected := doc.Total().Sub(draft.AmountTotal)
	reported, err := ParseAmount(result.TotalDifference)
	if err != nil {
		return fmt.Errorf("%w: unparseable total_difference %q", ErrComparatorUntrusted, result.TotalDifference)
	}
	if !WithinTolerance(reported, expected, CentTolerance) {
		return fmt.Errorf("%w: total_difference %s, engine computed %s",
			ErrComparatorUntrusted, reported, expected)
	}
	result.TotalDifference = expected.StringFixed(2)

	// The tolerance policy is owned by the engine, not the comparator.
	result.IsValid = WithinTolerance(expected, decimal.Zero, MoneyTolerance)

	result.CorrectionsNeeded = e.sanitizeActions(draft, result.CorrectionsNeeded)
	result.CanAutoFix = len(result.ManualCorrections()) == 0
	return nil
}

// sanitizeActions drops every action that fails its shape check or targets a
// nonexistent line, and enforces the approval invariant on create actions.
// Dropped actions are logged as data-quality warnings, never applied.
func (e *DiffEngine) sanitizeActions(draft *DraftRecord, actions []CorrectionAction) []CorrectionAction {
	kept := make([]CorrectionAction, 0, len(actions))
	for i, a := range actions {
		// A comparator may flag an unmatched line as "manual"; fold it into
		// the create variant so the partition below is total.
		if a.Action == ActionManual {
			a.Action = ActionCreate
			a.RequiresUserApproval = true
		}

		if err := a.ValidateShape(); err != nil {
			e.warnAction(i, a, err.Error())
			continue
		}

		switch a.Action {
		case ActionUpdate, ActionDelete:
			if !draft.HasLine(*a.LineID) {
				e.warnAction(i, a, fmt.Sprintf("target line %d not on draft", *a.LineID))
				continue
			}
			if a.RequiresUserApproval {
				// Approval is only meaningful on create; anything else gated
				// on it would escape both correction sets.
				e.warnAction(i, a, "approval flag on non-create action")
				continue
			}
		case ActionCreate:
			// Adding a line is always a human decision. Whether a create with
			// an exact supplier-code match could skip approval is unresolved;
			// until real data says otherwise the invariant holds everywhere.
			if !a.RequiresUserApproval {
				e.warnAction(i, a, "create action forced to manual approval")
				a.RequiresUserApproval = true
			}
		}

		kept = append(kept, a)
	}
	return kept
}

func (e *DiffEngine) warnAction(idx int, a CorrectionAction, reason string) {
	if e.log == nil {
		return
	}
	e.log.WithFields(logrus.Fields{
		"action": string(a.Action),
		"index":  idx,
		"reason": strings.TrimSpace(a.Reason),
	}).Warnf("dropping or adjusting correction action: %s", reason)
}

// Normalize trims collaborator formatting noise off a comparison result.
func (r *ComparisonResult) Normalize() {
	r.TotalDifference = strings.TrimSpace(r.TotalDifference)
	if r.TotalDifference == "" || strings.EqualFold(r.TotalDifference, "null") {
		r.TotalDifference = "0"
	}
	for i := range r.CorrectionsNeeded {
		r.CorrectionsNeeded[i].Reason = strings.TrimSpace(r.CorrectionsNeeded[i].Reason)
	}
}
