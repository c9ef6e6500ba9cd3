package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type DifferenceType string

const (
	DiffMissingProduct   DifferenceType = "missing_product"
	DiffExtraProduct     DifferenceType = "extra_product"
	DiffPriceMismatch    DifferenceType = "price_mismatch"
	DiffQuantityMismatch DifferenceType = "quantity_mismatch"
	DiffTotalMismatch    DifferenceType = "total_mismatch"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Difference is one discrepancy detected between the draft record and the
// extracted document.
type Difference struct {
	Type        DifferenceType `json:"type" jsonschema_description:"The kind of discrepancy: missing_product, extra_product, price_mismatch, quantity_mismatch or total_mismatch"`
	Severity    Severity       `json:"severity" jsonschema_description:"How serious the discrepancy is: critical, warning or info"`
	LineID      *int           `json:"line_id,omitempty" jsonschema_description:"The id of the draft invoice line this discrepancy refers to, if any"`
	Description string         `json:"description" jsonschema_description:"A human-readable description of the discrepancy"`
	Expected    *string        `json:"expected,omitempty" jsonschema_description:"The value the supplier document shows, as a string"`
	Actual      *string        `json:"actual,omitempty" jsonschema_description:"The value the draft invoice currently holds, as a string"`
	Impact      *string        `json:"impact,omitempty" jsonschema_description:"The signed monetary impact of the discrepancy as a decimal string, if quantifiable"`
}

type ActionType string

const (
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
	ActionCreate ActionType = "create"
	ActionManual ActionType = "manual"
)

// LineChanges is the field-level payload of an update action. All amounts are
// decimal strings; absent fields are left untouched on the draft line.
type LineChanges struct {
	Description *string `json:"description,omitempty" jsonschema_description:"New description for the line"`
	Quantity    *string `json:"quantity,omitempty" jsonschema_description:"New quantity as a decimal string"`
	UnitPrice   *string `json:"unit_price,omitempty" jsonschema_description:"New unit price as a decimal string"`
	Discount    *string `json:"discount,omitempty" jsonschema_description:"New discount as a fraction string, e.g. '0.10' for 10%"`
}

// NewLinePayload is the payload of a create action that already carries a
// matched ledger product.
type NewLinePayload struct {
	ProductID   *int    `json:"product_id,omitempty" jsonschema_description:"The matched ledger product id, if the product could be identified"`
	Description string  `json:"description" jsonschema_description:"Description for the new line"`
	Quantity    string  `json:"quantity" jsonschema_description:"Quantity as a decimal string"`
	UnitPrice   string  `json:"unit_price" jsonschema_description:"Unit price as a decimal string"`
	TaxRate     *string `json:"tax_rate,omitempty" jsonschema_description:"Tax rate percentage string, if known"`
}

// CorrectionAction is a proposed remedy for one discrepancy. The action tag
// decides which payload is legal: update needs LineID+Changes, delete needs
// LineID, create needs NewLine or ParsedLine. ValidateShape enforces this.
type CorrectionAction struct {
	Action               ActionType     `json:"action" jsonschema_description:"What to do: update, delete, create or manual"`
	LineID               *int           `json:"line_id,omitempty" jsonschema_description:"The draft invoice line id this action targets (required for update and delete)"`
	Changes              *LineChanges   `json:"changes,omitempty" jsonschema_description:"Field-level changes for an update action"`
	NewLine              *NewLinePayload `json:"new_line,omitempty" jsonschema_description:"Payload for a create action whose product was matched in the ledger"`
	ParsedLine           *ExtractedLine `json:"parsed_line,omitempty" jsonschema_description:"The originating extracted line for a create action whose product could not be matched"`
	Reason               string         `json:"reason" jsonschema_description:"Why this correction is proposed"`
	RequiresUserApproval bool           `json:"requires_user_approval" jsonschema_description:"True when the correction must not be applied without a human decision"`
}

// ValidateShape checks that the action carries exactly the payload its tag
// requires. A malformed action is dropped by the diff engine, not applied.
func (a CorrectionAction) ValidateShape() error {
	switch a.Action {
	case ActionUpdate:
		if a.LineID == nil {
			return errors.New("update action missing line_id")
		}
		if a.Changes == nil {
			return errors.New("update action missing changes payload")
		}
	case ActionDelete:
		if a.LineID == nil {
			return errors.New("delete action missing line_id")
		}
	case ActionCreate, ActionManual:
		if a.NewLine == nil && a.ParsedLine == nil {
			return fmt.Errorf("%s action missing new_line/parsed_line payload", a.Action)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Action)
	}
	return nil
}

// LineUpdate is the parsed, typed form of an update action's changes, ready
// for the ledger store.
type LineUpdate struct {
	Description *string
	Quantity    *decimal.Decimal
	UnitPrice   *decimal.Decimal
	Discount    *decimal.Decimal
}

// LineCreate is the parsed, typed form of a create action's payload.
type LineCreate struct {
	ProductID   *int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     *decimal.Decimal
}

// ToLineUpdate parses the update payload. Fails when the action is not an
// update or an amount does not parse.
func (a CorrectionAction) ToLineUpdate() (*LineUpdate, error) {
	if a.Action != ActionUpdate || a.Changes == nil {
		return nil, fmt.Errorf("action %q has no update payload", a.Action)
	}
	u := &LineUpdate{Description: a.Changes.Description}
	var err error
	if u.Quantity, err = parseOptAmount("quantity", a.Changes.Quantity); err != nil {
		return nil, err
	}
	if u.UnitPrice, err = parseOptAmount("unit_price", a.Changes.UnitPrice); err != nil {
		return nil, err
	}
	if u.Discount, err = parseOptAmount("discount", a.Changes.Discount); err != nil {
		return nil, err
	}
	return u, nil
}

// ToLineCreate parses the create payload, preferring the matched NewLine over
// the raw ParsedLine. selectedProductID overrides the payload's product when
// the operator picked one in the resolver.
func (a CorrectionAction) ToLineCreate(selectedProductID *int) (*LineCreate, error) {
	if a.Action != ActionCreate && a.Action != ActionManual {
		return nil, fmt.Errorf("action %q has no create payload", a.Action)
	}

	c := &LineCreate{}
	switch {
	case a.NewLine != nil:
		c.ProductID = a.NewLine.ProductID
		c.Description = a.NewLine.Description
		var err error
		if c.Quantity, err = ParseAmount(a.NewLine.Quantity); err != nil {
			return nil, fmt.Errorf("create action: invalid quantity %q: %w", a.NewLine.Quantity, err)
		}
		if c.UnitPrice, err = ParseAmount(a.NewLine.UnitPrice); err != nil {
			return nil, fmt.Errorf("create action: invalid unit price %q: %w", a.NewLine.UnitPrice, err)
		}
		if c.TaxRate, err = parseOptAmount("tax_rate", a.NewLine.TaxRate); err != nil {
			return nil, err
		}
	case a.ParsedLine != nil:
		c.Description = a.ParsedLine.Description
		var err error
		if c.Quantity, err = ParseAmount(a.ParsedLine.Quantity); err != nil {
			return nil, fmt.Errorf("create action: invalid quantity %q: %w", a.ParsedLine.Quantity, err)
		}
		if c.UnitPrice, err = ParseAmount(a.ParsedLine.UnitPrice); err != nil {
			return nil, fmt.Errorf("create action: invalid unit price %q: %w", a.ParsedLine.UnitPrice, err)
		}
		if c.TaxRate, err = parseOptAmount("tax_rate", a.ParsedLine.TaxRate); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("create action carries neither new_line nor parsed_line")
	}

	if selectedProductID != nil {
		c.ProductID = selectedProductID
	}
	return c, nil
}

func parseOptAmount(field string, s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	v, err := ParseAmount(*s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, *s, err)
	}
	return &v, nil
}

// ComparisonResult is the comparator's verdict on one (draft, extraction)
// pair, after core-side validation. Produced fresh on every analysis pass;
// never merged with a prior result.
type ComparisonResult struct {
	IsValid           bool               `json:"is_valid" jsonschema_description:"True when the draft matches the supplier document within tolerance"`
	TotalDifference   string             `json:"total_difference" jsonschema_description:"Extracted total minus draft total, as a signed decimal string"`
	Differences       []Difference       `json:"differences" jsonschema_description:"All detected discrepancies, in line order"`
	CorrectionsNeeded []CorrectionAction `json:"corrections_needed" jsonschema_description:"Proposed corrections, one per fixable discrepancy"`
	CanAutoFix        bool               `json:"can_auto_fix" jsonschema_description:"True when every proposed correction can be applied without human review"`
}

// TotalDifferenceAmount returns the parsed total difference. Only meaningful
// after the diff engine has validated (and recomputed) the result.
func (r *ComparisonResult) TotalDifferenceAmount() decimal.Decimal {
	v, _ := ParseAmount(r.TotalDifference)
	return v
}

// AutoCorrections returns the subset safe to apply without human review.
func (r *ComparisonResult) AutoCorrections() []CorrectionAction {
	var out []CorrectionAction
	for _, a := range r.CorrectionsNeeded {
		if !a.RequiresUserApproval {
			out = append(out, a)
		}
	}
	return out
}

// ManualCorrections returns the create actions that need a human product
// decision. After validation these are exactly the approval-gated actions.
func (r *ComparisonResult) ManualCorrections() []CorrectionAction {
	var out []CorrectionAction
	for _, a := range r.CorrectionsNeeded {
		if a.Action == ActionCreate && a.RequiresUserApproval {
			out = append(out, a)
		}
	}
	return out
}
