package core_test

import (
	"errors"
	"testing"

	"invoice-reconciler/internal/core"
)

func TestExtractedDocument_Validate(t *testing.T) {
	tests := []struct {
		name      string
		total     string
		lines     []core.ExtractedLine
		expectErr bool
	}{
		{
			name:  "consistent document",
			total: "100.00",
			lines: []core.ExtractedLine{
				{Description: "Widget A", Quantity: "2", UnitPrice: "30.00", Subtotal: "60.00"},
				{Description: "Widget B", Quantity: "4", UnitPrice: "10.00", Subtotal: "40.00"},
			},
			expectErr: false,
		},
		{
			name:  "subtotal within rounding tolerance",
			total: "10.00",
			lines: []core.ExtractedLine{
				{Description: "Bulk item", Quantity: "3", UnitPrice: "3.333", Subtotal: "10.00"},
			},
			expectErr: false,
		},
		{
			name:      "missing total",
			total:     "",
			expectErr: true,
		},
		{
			name:      "negative total",
			total:     "-5.00",
			expectErr: true,
		},
		{
			name:      "unparseable total",
			total:     "ten euros",
			expectErr: true,
		},
		{
			name:  "line arithmetic broken",
			total: "100.00",
			lines: []core.ExtractedLine{
				{Description: "Widget A", Quantity: "2", UnitPrice: "30.00", Subtotal: "70.00"},
			},
			expectErr: true,
		},
		{
			name:  "unparseable line quantity",
			total: "100.00",
			lines: []core.ExtractedLine{
				{Description: "Widget A", Quantity: "two", UnitPrice: "30.00", Subtotal: "60.00"},
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &core.ExtractedDocument{
				SupplierName: "Acme",
				TotalAmount:  tt.total,
				Currency:     "EUR",
				Lines:        tt.lines,
			}
			doc.Normalize()
			err := doc.Validate()

			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, core.ErrExtractionInvalid) {
					t.Errorf("expected ErrExtractionInvalid, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestExtractedDocument_NormalizeDropsBlankDate(t *testing.T) {
	nullDate := " null "
	doc := &core.ExtractedDocument{TotalAmount: "1.00", DocumentDate: &nullDate}
	doc.Normalize()
	if doc.DocumentDate != nil {
		t.Errorf("expected null date to be dropped, got %q", *doc.DocumentDate)
	}
	if doc.Date() != nil {
		t.Error("expected nil parsed date")
	}
}

func TestExtractedDocument_Date(t *testing.T) {
	d := "2025-03-14"
	doc := &core.ExtractedDocument{TotalAmount: "1.00", DocumentDate: &d}
	got := doc.Date()
	if got == nil {
		t.Fatal("expected parsed date")
	}
	if got.Format("2006-01-02") != d {
		t.Errorf("got %s, want %s", got.Format("2006-01-02"), d)
	}
}
