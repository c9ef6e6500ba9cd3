package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrExtractionInvalid marks an extraction whose internal arithmetic is
// inconsistent. The whole extraction is rejected; the engine never fixes an
// inconsistent extraction silently.
var ErrExtractionInvalid = errors.New("extraction invalid")

// Normalize cleans up collaborator output, dealing with common formatting
// issues before validation.
func (e *ExtractedDocument) Normalize() {
	e.SupplierName = strings.TrimSpace(e.SupplierName)
	e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	e.TotalAmount = strings.TrimSpace(e.TotalAmount)

	if e.DocumentDate != nil {
		d := strings.TrimSpace(*e.DocumentDate)
		if d == "" || strings.EqualFold(d, "null") {
			e.DocumentDate = nil
		} else {
			e.DocumentDate = &d
		}
	}

	for i := range e.Lines {
		line := &e.Lines[i]
		line.Description = strings.TrimSpace(line.Description)
		line.Quantity = strings.TrimSpace(line.Quantity)
		line.UnitPrice = strings.TrimSpace(line.UnitPrice)
		line.Subtotal = strings.TrimSpace(line.Subtotal)
		if line.ProductCode != nil && strings.TrimSpace(*line.ProductCode) == "" {
			line.ProductCode = nil
		}
	}
}

// Validate enforces the extraction contract: the total must be present and
// non-negative, and every line's subtotal must be consistent with its own
// quantity and unit price within RoundingTolerance. Any violation rejects
// the whole extraction with ErrExtractionInvalid.
func (e *ExtractedDocument) Validate() error {
	if e.TotalAmount == "" {
		return fmt.Errorf("%w: total amount missing", ErrExtractionInvalid)
	}

	total, err := decimal.NewFromString(e.TotalAmount)
	if err != nil {
		return fmt.Errorf("%w: unparseable total amount %q", ErrExtractionInvalid, e.TotalAmount)
	}
	if total.IsNegative() {
		return fmt.Errorf("%w: negative total amount %s", ErrExtractionInvalid, total)
	}

	for i, line := range e.Lines {
		qty, err := ParseAmount(line.Quantity)
		if err != nil {
			return fmt.Errorf("%w: line %d: unparseable quantity %q", ErrExtractionInvalid, i+1, line.Quantity)
		}
		price, err := ParseAmount(line.UnitPrice)
		if err != nil {
			return fmt.Errorf("%w: line %d: unparseable unit price %q", ErrExtractionInvalid, i+1, line.UnitPrice)
		}
		subtotal, err := ParseAmount(line.Subtotal)
		if err != nil {
			return fmt.Errorf("%w: line %d: unparseable subtotal %q", ErrExtractionInvalid, i+1, line.Subtotal)
		}

		expected := qty.Mul(price)
		if !WithinTolerance(subtotal, expected, RoundingTolerance) {
			return fmt.Errorf("%w: line %d (%s): subtotal %s inconsistent with %s x %s = %s",
				ErrExtractionInvalid, i+1, line.Description, subtotal, qty, price, expected)
		}
	}

	return nil
}
