package core_test

import (
	"errors"
	"testing"

	"invoice-reconciler/internal/core"
)

func sessionAtReview(t *testing.T, result *core.ComparisonResult) *core.ValidationState {
	t.Helper()
	state := core.NewSession(7)
	if err := state.BeginAnalysis(); err != nil {
		t.Fatalf("begin analysis: %v", err)
	}
	if err := state.CompleteAnalysis(testDraft(), testDoc("100.00"), result); err != nil {
		t.Fatalf("complete analysis: %v", err)
	}
	return state
}

func TestSession_HappyPath(t *testing.T) {
	state := core.NewSession(7)
	if state.Step != core.StepSelect {
		t.Fatalf("new session at %s, want select", state.Step)
	}
	if state.SessionID == "" {
		t.Fatal("session id not assigned")
	}

	if err := state.BeginAnalysis(); err != nil {
		t.Fatalf("begin analysis: %v", err)
	}
	if state.Step != core.StepAnalyzing || state.Iterations != 1 {
		t.Fatalf("after begin: step=%s iterations=%d, want analyzing/1", state.Step, state.Iterations)
	}

	result := &core.ComparisonResult{IsValid: true, TotalDifference: "0.00", CanAutoFix: true}
	if err := state.CompleteAnalysis(testDraft(), testDoc("100.00"), result); err != nil {
		t.Fatalf("complete analysis: %v", err)
	}
	if state.Step != core.StepReview {
		t.Fatalf("after analysis at %s, want review", state.Step)
	}

	next, err := state.RouteFromReview()
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if next != core.StepCorrecting {
		t.Fatalf("routed to %s, want correcting", next)
	}
	if err := state.BeginCorrecting(); err != nil {
		t.Fatalf("begin correcting: %v", err)
	}
	if err := state.CompleteCorrection(&core.CorrectionResult{UpdatedLines: 1}); err != nil {
		t.Fatalf("complete correction: %v", err)
	}
	if state.Step != core.StepCompleted {
		t.Errorf("final step %s, want completed", state.Step)
	}
}

func TestSession_RoutesToResolverOnManualCorrections(t *testing.T) {
	result := &core.ComparisonResult{
		TotalDifference: "20.00",
		CorrectionsNeeded: []core.CorrectionAction{
			missingCreate("Hex bolts [HB-2040]", ""),
		},
	}
	state := sessionAtReview(t, result)

	next, err := state.RouteFromReview()
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if next != core.StepManageMissingProducts {
		t.Fatalf("routed to %s, want manage_missing_products", next)
	}

	// Apply is blocked while the manual item is outstanding.
	if err := state.BeginCorrecting(); !errors.Is(err, core.ErrManualOutstanding) {
		t.Errorf("begin correcting = %v, want ErrManualOutstanding", err)
	}

	items := []core.MissingProductCorrection{{Status: core.ItemPending}}
	if err := state.EnterMissingProducts(items); err != nil {
		t.Fatalf("enter missing products: %v", err)
	}
	if state.Step != core.StepManageMissingProducts {
		t.Errorf("step = %s, want manage_missing_products", state.Step)
	}
	if state.ResolverComplete() {
		t.Error("resolver reported complete with a pending item")
	}

	state.MissingProducts[0].Status = core.ItemAdded
	if !state.ResolverComplete() {
		t.Error("resolver not complete with every item added")
	}
}

func TestSession_GoToStep(t *testing.T) {
	result := &core.ComparisonResult{IsValid: true, TotalDifference: "0.00", CanAutoFix: true}
	state := sessionAtReview(t, result)

	// Backward navigation is allowed.
	if err := state.GoToStep(core.StepSelect); err != nil {
		t.Fatalf("backward jump: %v", err)
	}
	if state.Step != core.StepSelect {
		t.Fatalf("step = %s, want select", state.Step)
	}

	// Forward past the current step is not.
	if err := state.GoToStep(core.StepCorrecting); !errors.Is(err, core.ErrForwardJump) {
		t.Errorf("forward jump = %v, want ErrForwardJump", err)
	}
	if state.Step != core.StepSelect {
		t.Errorf("rejected jump moved the session to %s", state.Step)
	}

	// Staying put is fine.
	if err := state.GoToStep(core.StepSelect); err != nil {
		t.Errorf("same-step jump: %v", err)
	}
}

func TestSession_AnalysisPassLimit(t *testing.T) {
	state := core.NewSession(7)
	result := &core.ComparisonResult{IsValid: true, TotalDifference: "0.00", CanAutoFix: true}

	for i := 0; i < core.MaxAnalysisPasses; i++ {
		if err := state.BeginAnalysis(); err != nil {
			t.Fatalf("pass %d: %v", i+1, err)
		}
		if err := state.CompleteAnalysis(testDraft(), testDoc("100.00"), result); err != nil {
			t.Fatalf("pass %d complete: %v", i+1, err)
		}
	}

	if err := state.BeginAnalysis(); !errors.Is(err, core.ErrTooManyPasses) {
		t.Errorf("pass %d = %v, want ErrTooManyPasses", core.MaxAnalysisPasses+1, err)
	}
	if state.Iterations != core.MaxAnalysisPasses {
		t.Errorf("iterations = %d, want %d", state.Iterations, core.MaxAnalysisPasses)
	}
}

// A fresh pass replaces the previous results; nothing is merged.
func TestSession_BeginAnalysisClearsPriorPass(t *testing.T) {
	result := &core.ComparisonResult{IsValid: true, TotalDifference: "0.00", CanAutoFix: true}
	state := sessionAtReview(t, result)
	state.MissingProducts = []core.MissingProductCorrection{{Status: core.ItemAdded}}
	state.Correction = &core.CorrectionResult{UpdatedLines: 1}
	state.ErrorMessage = "stale"

	if err := state.BeginAnalysis(); err != nil {
		t.Fatalf("begin analysis: %v", err)
	}
	if state.Extraction != nil || state.Comparison != nil || state.Correction != nil ||
		state.MissingProducts != nil || state.ErrorMessage != "" {
		t.Error("previous pass results survived a new analysis pass")
	}
	if state.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", state.Iterations)
	}
}

func TestSession_BeginAnalysisGuards(t *testing.T) {
	state := core.NewSession(0)
	if err := state.BeginAnalysis(); !errors.Is(err, core.ErrNoDraftSelected) {
		t.Errorf("no draft = %v, want ErrNoDraftSelected", err)
	}

	state = core.NewSession(7)
	if err := state.BeginAnalysis(); err != nil {
		t.Fatal(err)
	}
	// Analyzing is not a legal source step for another analysis.
	if err := state.BeginAnalysis(); err == nil {
		t.Error("expected error starting analysis from analyzing")
	}
}

func TestSession_CompleteCorrectionOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		result   *core.CorrectionResult
		wantStep core.Step
		wantMsg  bool
	}{
		{"clean apply", &core.CorrectionResult{UpdatedLines: 2}, core.StepCompleted, false},
		{"nothing to apply", &core.CorrectionResult{}, core.StepCompleted, false},
		{"partial failure", &core.CorrectionResult{UpdatedLines: 2,
			Errors: []string{"update action on line 2 failed: deadlock detected"}}, core.StepCompleted, true},
		{"total failure", &core.CorrectionResult{
			Errors: []string{"update action on line 1 failed: connection reset"}}, core.StepError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := sessionAtReview(t, &core.ComparisonResult{TotalDifference: "0.00", CanAutoFix: true})
			if err := state.BeginCorrecting(); err != nil {
				t.Fatalf("begin correcting: %v", err)
			}
			if err := state.CompleteCorrection(tt.result); err != nil {
				t.Fatalf("complete correction: %v", err)
			}
			if state.Step != tt.wantStep {
				t.Errorf("step = %s, want %s", state.Step, tt.wantStep)
			}
			if (state.ErrorMessage != "") != tt.wantMsg {
				t.Errorf("ErrorMessage = %q, want present=%v", state.ErrorMessage, tt.wantMsg)
			}
			if state.Correction == nil {
				t.Error("correction result not recorded")
			}
		})
	}
}

func TestSession_FailAndRetry(t *testing.T) {
	state := core.NewSession(7)
	if err := state.BeginAnalysis(); err != nil {
		t.Fatal(err)
	}
	state.Fail("extraction: request timed out")

	if state.Step != core.StepError {
		t.Fatalf("step = %s, want error", state.Step)
	}
	if state.ErrorMessage == "" {
		t.Fatal("error message not recorded")
	}

	// The error state is retryable.
	if err := state.BeginAnalysis(); err != nil {
		t.Fatalf("retry from error: %v", err)
	}
	if state.Step != core.StepAnalyzing || state.ErrorMessage != "" {
		t.Errorf("retry left step=%s msg=%q", state.Step, state.ErrorMessage)
	}
	if state.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", state.Iterations)
	}
}

func TestStep_TextRoundTrip(t *testing.T) {
	for _, s := range []core.Step{core.StepSelect, core.StepAnalyzing, core.StepReview,
		core.StepManageMissingProducts, core.StepCorrecting, core.StepCompleted, core.StepError} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("marshal %s: %v", s, err)
		}
		var back core.Step
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %q: %v", b, err)
		}
		if back != s {
			t.Errorf("round trip %s came back as %s", s, back)
		}
	}

	var bad core.Step
	if err := bad.UnmarshalText([]byte("warp")); err == nil {
		t.Error("expected error for unknown step name")
	}
}
