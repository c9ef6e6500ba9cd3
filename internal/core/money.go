package core

import "github.com/shopspring/decimal"

var (
	// MoneyTolerance is the maximum absolute difference between the draft total
	// and the extracted total that still counts as a match (0.02 currency units).
	MoneyTolerance = decimal.NewFromFloat(0.02)

	// RoundingTolerance bounds per-line arithmetic drift: a stored subtotal may
	// differ from quantity * unitPrice * (1 - discount) by at most this much.
	RoundingTolerance = decimal.NewFromFloat(0.01)

	// CentTolerance is the cross-check tolerance applied to figures the
	// comparator reports about itself (e.g. its own totalDifference).
	CentTolerance = decimal.NewFromFloat(0.01)
)

// WithinTolerance reports whether |a - b| <= tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// ParseAmount parses a monetary string from a collaborator, treating empty and
// "null" as zero. Collaborator output is untrusted; real parse failures are
// returned, not swallowed.
func ParseAmount(s string) (decimal.Decimal, error) {
	switch s {
	case "", "null", "NULL":
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
