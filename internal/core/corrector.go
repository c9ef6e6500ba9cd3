package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CorrectionResult reports exactly what one apply batch did to the ledger.
// NewTotal is re-read from the store after mutation, never computed
// in-process, so it reflects the store's own derived-field logic.
type CorrectionResult struct {
	UpdatedLines        int             `json:"updated_lines"`
	DeletedLines        int             `json:"deleted_lines"`
	CreatedLines        int             `json:"created_lines"`
	DeletedIDs          []int           `json:"deleted_ids,omitempty"`
	CreatedIDs          []int           `json:"created_ids,omitempty"`
	NewTotal            decimal.Decimal `json:"new_total"`
	RemainingDifference decimal.Decimal `json:"remaining_difference"`
	Errors              []string        `json:"errors,omitempty"`
}

// Applied returns how many actions succeeded.
func (r *CorrectionResult) Applied() int {
	return r.UpdatedLines + r.DeletedLines + r.CreatedLines
}

// Corrector applies an auto-correction batch against a draft record.
type Corrector struct {
	store LedgerStore
	log   *logrus.Logger
}

func NewCorrector(store LedgerStore, log *logrus.Logger) *Corrector {
	return &Corrector{store: store, log: log}
}

// Apply runs the batch in a fixed order: deletions, then updates, then
// creations. Deleting first avoids stale-reference errors when a deleted
// line's id is reused downstream by a naive id generator.
//
// Each action is applied independently: a failure is recorded in Errors and
// does not abort the remaining actions. A single bad correction should not
// block nine good ones.
func (c *Corrector) Apply(ctx context.Context, draft *DraftRecord, doc *ExtractedDocument, actions []CorrectionAction) (*CorrectionResult, error) {
	if draft == nil {
		return nil, fmt.Errorf("apply requires a draft record")
	}

	result := &CorrectionResult{}

	var deletes, updates, creates []CorrectionAction
	for _, a := range actions {
		if a.RequiresUserApproval {
			// Only the auto subset belongs here; an approval-gated action in
			// the batch is a caller bug, skipped and surfaced.
			c.warn(a, "approval-gated action passed to auto apply, skipped")
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s action skipped: requires user approval", a.Action))
			continue
		}
		switch a.Action {
		case ActionDelete:
			deletes = append(deletes, a)
		case ActionUpdate:
			updates = append(updates, a)
		case ActionCreate:
			creates = append(creates, a)
		default:
			result.Errors = append(result.Errors,
				fmt.Sprintf("unsupported action %q skipped", a.Action))
		}
	}

	for _, a := range deletes {
		if err := c.store.DeleteLine(ctx, draft.ID, *a.LineID); err != nil {
			c.record(result, a, err)
			continue
		}
		result.DeletedLines++
		result.DeletedIDs = append(result.DeletedIDs, *a.LineID)
	}

	for _, a := range updates {
		changes, err := a.ToLineUpdate()
		if err != nil {
			c.record(result, a, err)
			continue
		}
		if err := c.store.UpdateLine(ctx, draft.ID, *a.LineID, *changes); err != nil {
			c.record(result, a, err)
			continue
		}
		result.UpdatedLines++
	}

	for _, a := range creates {
		line, err := a.ToLineCreate(nil)
		if err != nil {
			c.record(result, a, err)
			continue
		}
		id, err := c.store.CreateLine(ctx, draft.ID, *line)
		if err != nil {
			c.record(result, a, err)
			continue
		}
		result.CreatedLines++
		result.CreatedIDs = append(result.CreatedIDs, id)
	}

	// Reconcile the invoice date from the authoritative document when the
	// draft has none or disagrees.
	if doc != nil {
		if date := doc.Date(); date != nil {
			if draft.InvoiceDate == nil || !draft.InvoiceDate.Equal(*date) {
				if err := c.store.SetInvoiceDate(ctx, draft.ID, *date); err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("set invoice date: %v", err))
				}
			}
		}
	}

	// Read back, never trust in-process arithmetic for the new total.
	fresh, err := c.store.GetDraft(ctx, draft.ID)
	if err != nil {
		return nil, fmt.Errorf("read back draft %d after apply: %w", draft.ID, err)
	}
	result.NewTotal = fresh.AmountTotal
	if doc != nil {
		result.RemainingDifference = result.NewTotal.Sub(doc.Total())
	}

	return result, nil
}

func (c *Corrector) record(result *CorrectionResult, a CorrectionAction, err error) {
	msg := fmt.Sprintf("%s action failed: %v", a.Action, err)
	if a.LineID != nil {
		msg = fmt.Sprintf("%s action on line %d failed: %v", a.Action, *a.LineID, err)
	}
	result.Errors = append(result.Errors, msg)
	c.warn(a, msg)
}

func (c *Corrector) warn(a CorrectionAction, msg string) {
	if c.log == nil {
		return
	}
	fields := logrus.Fields{"action": string(a.Action)}
	if a.LineID != nil {
		fields["line_id"] = *a.LineID
	}
	c.log.WithFields(fields).Warn(msg)
}
