package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"invoice-reconciler/internal/core"
)

func TestCorrector_AppliesInDeleteUpdateCreateOrder(t *testing.T) {
	store := newFakeStore(testDraft())
	corrector := core.NewCorrector(store, nil)

	actions := []core.CorrectionAction{
		{Action: core.ActionCreate,
			NewLine: &core.NewLinePayload{Description: "Widget C", Quantity: "1", UnitPrice: "5.00"}},
		{Action: core.ActionUpdate, LineID: intp(1),
			Changes: &core.LineChanges{UnitPrice: strp("25.00")}},
		{Action: core.ActionDelete, LineID: intp(2)},
	}

	result, err := corrector.Apply(context.Background(), testDraft(), testDoc("55.00"), actions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"delete:2", "update:1", "create:3"}
	if len(store.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", store.ops, want)
	}
	for i := range want {
		if store.ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", store.ops, want)
		}
	}

	if result.DeletedLines != 1 || result.UpdatedLines != 1 || result.CreatedLines != 1 {
		t.Errorf("counts = %d/%d/%d deleted/updated/created, want 1/1/1",
			result.DeletedLines, result.UpdatedLines, result.CreatedLines)
	}
	// 2 * 25.00 + 1 * 5.00, read back from the store after all mutations.
	if !result.NewTotal.Equal(dec("55.00")) {
		t.Errorf("NewTotal = %s, want 55.00", result.NewTotal)
	}
	if !result.RemainingDifference.IsZero() {
		t.Errorf("RemainingDifference = %s, want 0", result.RemainingDifference)
	}
}

// One failing update out of three actions: the other two still land, the
// failure is reported, and the totals reflect what actually happened.
func TestCorrector_PartialFailure(t *testing.T) {
	store := newFakeStore(testDraft())
	store.failUpdate = map[int]error{2: errors.New("deadlock detected")}
	corrector := core.NewCorrector(store, nil)

	actions := []core.CorrectionAction{
		{Action: core.ActionUpdate, LineID: intp(1),
			Changes: &core.LineChanges{UnitPrice: strp("35.00")}},
		{Action: core.ActionUpdate, LineID: intp(2),
			Changes: &core.LineChanges{Quantity: strp("5")}},
		{Action: core.ActionCreate,
			NewLine: &core.NewLinePayload{Description: "Widget C", Quantity: "1", UnitPrice: "10.00"}},
	}

	result, err := corrector.Apply(context.Background(), testDraft(), testDoc("120.00"), actions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Applied() != 2 {
		t.Errorf("Applied() = %d, want 2", result.Applied())
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "line 2") {
		t.Errorf("error does not name the failed line: %q", result.Errors[0])
	}
	// 2 * 35.00 + 4 * 10.00 (unchanged) + 1 * 10.00.
	if !result.NewTotal.Equal(dec("120.00")) {
		t.Errorf("NewTotal = %s, want 120.00", result.NewTotal)
	}
}

func TestCorrector_SkipsApprovalGatedActions(t *testing.T) {
	store := newFakeStore(testDraft())
	corrector := core.NewCorrector(store, nil)

	actions := []core.CorrectionAction{
		{Action: core.ActionCreate, RequiresUserApproval: true,
			NewLine: &core.NewLinePayload{Description: "Widget C", Quantity: "1", UnitPrice: "5.00"}},
	}

	result, err := corrector.Apply(context.Background(), testDraft(), testDoc("100.00"), actions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied() != 0 {
		t.Errorf("Applied() = %d, want 0", result.Applied())
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "approval") {
		t.Errorf("Errors = %v, want one approval-skip entry", result.Errors)
	}
	if len(store.ops) != 0 {
		t.Errorf("store was touched: %v", store.ops)
	}
}

// An empty batch is a no-op: the total read back equals the draft's current
// total and nothing is recorded.
func TestCorrector_EmptyBatchIdempotent(t *testing.T) {
	store := newFakeStore(testDraft())
	corrector := core.NewCorrector(store, nil)

	result, err := corrector.Apply(context.Background(), testDraft(), testDoc("100.00"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied() != 0 || len(result.Errors) != 0 {
		t.Errorf("applied %d with errors %v, want clean no-op", result.Applied(), result.Errors)
	}
	if !result.NewTotal.Equal(dec("100.00")) {
		t.Errorf("NewTotal = %s, want 100.00", result.NewTotal)
	}
	if !result.RemainingDifference.IsZero() {
		t.Errorf("RemainingDifference = %s, want 0", result.RemainingDifference)
	}
}

func TestCorrector_SetsMissingInvoiceDate(t *testing.T) {
	store := newFakeStore(testDraft())
	corrector := core.NewCorrector(store, nil)

	doc := testDoc("100.00")
	doc.DocumentDate = strp("2025-03-14")

	if _, err := corrector.Apply(context.Background(), testDraft(), doc, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.draft.InvoiceDate == nil {
		t.Fatal("invoice date not set from document")
	}
	if got := store.draft.InvoiceDate.Format("2006-01-02"); got != "2025-03-14" {
		t.Errorf("invoice date = %s, want 2025-03-14", got)
	}
}
