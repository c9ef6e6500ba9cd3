package core_test

import (
	"context"
	"fmt"
	"time"

	"invoice-reconciler/internal/core"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

// fakeStore is an in-memory LedgerStore. Line totals are subtotal (no tax)
// and the invoice total is the sum of line totals, recomputed on mutation.
// Enough to observe ordering and read-back behavior.
type fakeStore struct {
	draft  *core.DraftRecord
	nextID int
	ops    []string

	failUpdate map[int]error
	failDelete map[int]error
	failCreate error
}

func newFakeStore(draft *core.DraftRecord) *fakeStore {
	maxID := 0
	for _, l := range draft.Lines {
		if l.ID > maxID {
			maxID = l.ID
		}
	}
	s := &fakeStore{draft: draft, nextID: maxID + 1}
	s.recompute()
	return s
}

func (s *fakeStore) recompute() {
	total := decimal.Zero
	untaxed := decimal.Zero
	for i := range s.draft.Lines {
		l := &s.draft.Lines[i]
		l.Subtotal = l.ExpectedSubtotal()
		l.Total = l.Subtotal
		untaxed = untaxed.Add(l.Subtotal)
		total = total.Add(l.Total)
	}
	s.draft.AmountUntaxed = untaxed
	s.draft.AmountTotal = total
}

func (s *fakeStore) GetDraft(ctx context.Context, id int) (*core.DraftRecord, error) {
	if id != s.draft.ID {
		return nil, fmt.Errorf("draft %d not found", id)
	}
	copied := *s.draft
	copied.Lines = append([]core.LineItem(nil), s.draft.Lines...)
	return &copied, nil
}

func (s *fakeStore) UpdateLine(ctx context.Context, draftID, lineID int, changes core.LineUpdate) error {
	if err := s.failUpdate[lineID]; err != nil {
		s.ops = append(s.ops, fmt.Sprintf("update-fail:%d", lineID))
		return err
	}
	line := s.draft.LineByID(lineID)
	if line == nil {
		return fmt.Errorf("line %d not found", lineID)
	}
	if changes.Description != nil {
		line.Description = *changes.Description
	}
	if changes.Quantity != nil {
		line.Quantity = *changes.Quantity
	}
	if changes.UnitPrice != nil {
		line.UnitPrice = *changes.UnitPrice
	}
	if changes.Discount != nil {
		line.Discount = *changes.Discount
	}
	s.recompute()
	s.ops = append(s.ops, fmt.Sprintf("update:%d", lineID))
	return nil
}

func (s *fakeStore) DeleteLine(ctx context.Context, draftID, lineID int) error {
	if err := s.failDelete[lineID]; err != nil {
		s.ops = append(s.ops, fmt.Sprintf("delete-fail:%d", lineID))
		return err
	}
	for i := range s.draft.Lines {
		if s.draft.Lines[i].ID == lineID {
			s.draft.Lines = append(s.draft.Lines[:i], s.draft.Lines[i+1:]...)
			s.recompute()
			s.ops = append(s.ops, fmt.Sprintf("delete:%d", lineID))
			return nil
		}
	}
	return fmt.Errorf("line %d not found", lineID)
}

func (s *fakeStore) CreateLine(ctx context.Context, draftID int, line core.LineCreate) (int, error) {
	if s.failCreate != nil {
		s.ops = append(s.ops, "create-fail")
		return 0, s.failCreate
	}
	id := s.nextID
	s.nextID++
	s.draft.Lines = append(s.draft.Lines, core.LineItem{
		ID:          id,
		ProductID:   line.ProductID,
		Description: line.Description,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
	})
	s.recompute()
	s.ops = append(s.ops, fmt.Sprintf("create:%d", id))
	return id, nil
}

func (s *fakeStore) SetInvoiceDate(ctx context.Context, draftID int, date time.Time) error {
	s.draft.InvoiceDate = &date
	s.ops = append(s.ops, "set-date")
	return nil
}

// fakeComparator returns a canned result or error.
type fakeComparator struct {
	result *core.ComparisonResult
	err    error
}

func (c *fakeComparator) Compare(ctx context.Context, draft *core.DraftRecord, doc *core.ExtractedDocument) (*core.ComparisonResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

// fakeCatalog answers searches from a term map.
type fakeCatalog struct {
	results map[string][]core.Product
	err     error
}

func (c *fakeCatalog) SearchProducts(ctx context.Context, partnerID int, term string) ([]core.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.results[term], nil
}

// testDraft builds a two-line draft worth 100.00 with one attachment.
func testDraft() *core.DraftRecord {
	return &core.DraftRecord{
		ID:          7,
		Name:        "DRAFT/2025/0007",
		PartnerID:   3,
		PartnerName: "Acme Supplies GmbH",
		Currency:    "EUR",
		State:       core.RecordStateDraft,
		Lines: []core.LineItem{
			{ID: 1, Description: "Widget A", Quantity: dec("2"), UnitPrice: dec("30.00"),
				Subtotal: dec("60.00"), Total: dec("60.00")},
			{ID: 2, Description: "Widget B", Quantity: dec("4"), UnitPrice: dec("10.00"),
				Subtotal: dec("40.00"), Total: dec("40.00")},
		},
		AmountUntaxed: dec("100.00"),
		AmountTotal:   dec("100.00"),
		Attachments: []core.Attachment{
			{ID: 1, Filename: "invoice.pdf", MimeType: "application/pdf", Data: []byte("%PDF-")},
		},
	}
}

// testDoc builds an extraction matching testDraft at the given total.
func testDoc(total string) *core.ExtractedDocument {
	return &core.ExtractedDocument{
		SupplierName: "Acme Supplies GmbH",
		TotalAmount:  total,
		Currency:     "EUR",
		Lines: []core.ExtractedLine{
			{Description: "Widget A", Quantity: "2", UnitPrice: "30.00", Subtotal: "60.00"},
			{Description: "Widget B", Quantity: "4", UnitPrice: "10.00", Subtotal: "40.00"},
		},
	}
}
