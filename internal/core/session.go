package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Step is one state of the validation workflow. Ordinals follow the fixed
// sequence; the state machine is a monotonically-advancing pointer with a
// rewind allowance, never a free graph.
type Step int

const (
	StepSelect Step = iota
	StepAnalyzing
	StepReview
	StepManageMissingProducts
	StepCorrecting
	StepCompleted
	StepError
)

var stepNames = map[Step]string{
	StepSelect:                "select",
	StepAnalyzing:             "analyzing",
	StepReview:                "review",
	StepManageMissingProducts: "manage_missing_products",
	StepCorrecting:            "correcting",
	StepCompleted:             "completed",
	StepError:                 "error",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// ParseStep resolves a step name. Unknown names are an error.
func ParseStep(name string) (Step, error) {
	for s, n := range stepNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", name)
}

// MarshalText serializes the step by name for session snapshots.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	v, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MaxAnalysisPasses bounds the automatic re-analysis loop triggered by the
// missing-product resolver, guaranteeing termination.
const MaxAnalysisPasses = 5

var (
	// ErrForwardJump rejects navigation past the current step.
	ErrForwardJump = errors.New("cannot jump forward past the current step")

	// ErrTooManyPasses is returned when a session would exceed
	// MaxAnalysisPasses analysis cycles.
	ErrTooManyPasses = fmt.Errorf("analysis pass limit (%d) reached", MaxAnalysisPasses)

	// ErrNoDraftSelected guards transitions that need a selected record.
	ErrNoDraftSelected = errors.New("no draft record selected")

	// ErrManualOutstanding rejects auto-correction while manual items are
	// still unresolved.
	ErrManualOutstanding = errors.New("missing-product items still outstanding")
)

// ValidationState is the single source of truth for one validation session.
// It is fully replaced on every transition; analysis results are never
// merged with a prior pass, which is what makes back-navigation safe.
type ValidationState struct {
	SessionID       string                     `json:"session_id"`
	Step            Step                       `json:"step"`
	DraftID         int                        `json:"draft_id"`
	Draft           *DraftRecord               `json:"draft,omitempty"`
	Extraction      *ExtractedDocument         `json:"extraction,omitempty"`
	Comparison      *ComparisonResult          `json:"comparison,omitempty"`
	Correction      *CorrectionResult          `json:"correction,omitempty"`
	MissingProducts []MissingProductCorrection `json:"missing_products,omitempty"`
	Iterations      int                        `json:"iterations"`
	ErrorMessage    string                     `json:"error_message,omitempty"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// NewSession starts a session at the select step for one draft record.
func NewSession(draftID int) *ValidationState {
	return &ValidationState{
		SessionID: uuid.NewString(),
		Step:      StepSelect,
		DraftID:   draftID,
		UpdatedAt: time.Now().UTC(),
	}
}

func (v *ValidationState) touch() {
	v.UpdatedAt = time.Now().UTC()
}

// BeginAnalysis starts a new analysis pass, discarding every result of the
// previous pass. It enforces the hard pass limit and may be entered from
// select, review, manage_missing_products (resolver re-trigger) or error
// (operator retry).
func (v *ValidationState) BeginAnalysis() error {
	if v.DraftID == 0 {
		return ErrNoDraftSelected
	}
	switch v.Step {
	case StepSelect, StepReview, StepManageMissingProducts, StepError:
	default:
		return fmt.Errorf("cannot start analysis from step %s", v.Step)
	}
	if v.Iterations >= MaxAnalysisPasses {
		return ErrTooManyPasses
	}

	v.Iterations++
	v.Step = StepAnalyzing
	v.Extraction = nil
	v.Comparison = nil
	v.Correction = nil
	v.MissingProducts = nil
	v.ErrorMessage = ""
	v.touch()
	return nil
}

// CompleteAnalysis records a successful extraction+comparison pair and moves
// to review. Only the component owning the analyzing step may signal this.
func (v *ValidationState) CompleteAnalysis(draft *DraftRecord, doc *ExtractedDocument, result *ComparisonResult) error {
	if v.Step != StepAnalyzing {
		return fmt.Errorf("cannot complete analysis from step %s", v.Step)
	}
	v.Draft = draft
	v.Extraction = doc
	v.Comparison = result
	v.Step = StepReview
	v.touch()
	return nil
}

// RouteFromReview returns the next step after review: the resolver when
// manual corrections exist, otherwise straight to correcting. This is the
// single decision point between the two downstream paths.
func (v *ValidationState) RouteFromReview() (Step, error) {
	if v.Step != StepReview {
		return 0, fmt.Errorf("cannot route from step %s", v.Step)
	}
	if v.Comparison == nil {
		return 0, errors.New("no comparison result to route on")
	}
	if len(v.Comparison.ManualCorrections()) > 0 {
		return StepManageMissingProducts, nil
	}
	return StepCorrecting, nil
}

// EnterMissingProducts moves from review to the resolver step with the
// prepared item list.
func (v *ValidationState) EnterMissingProducts(items []MissingProductCorrection) error {
	next, err := v.RouteFromReview()
	if err != nil {
		return err
	}
	if next != StepManageMissingProducts {
		return errors.New("no manual corrections; session routes to correcting")
	}
	v.MissingProducts = items
	v.Step = StepManageMissingProducts
	v.touch()
	return nil
}

// BeginCorrecting moves into the apply step. From review it requires that no
// manual corrections exist; re-entry from correcting itself is allowed so an
// operator can retry an apply that errored at the transport level.
func (v *ValidationState) BeginCorrecting() error {
	switch v.Step {
	case StepReview:
		next, err := v.RouteFromReview()
		if err != nil {
			return err
		}
		if next != StepCorrecting {
			return ErrManualOutstanding
		}
	case StepCorrecting:
	default:
		return fmt.Errorf("cannot start correcting from step %s", v.Step)
	}
	v.Step = StepCorrecting
	v.touch()
	return nil
}

// CompleteCorrection records the apply outcome and lands the session in a
// terminal state. Partial success is completed, not error: when at least one
// action applied (or there was nothing to apply), the per-action failures
// stay visible in the result and in ErrorMessage, but the session finishes.
// Only a batch where every action failed lands in error.
func (v *ValidationState) CompleteCorrection(result *CorrectionResult) error {
	if v.Step != StepCorrecting {
		return fmt.Errorf("cannot complete correction from step %s", v.Step)
	}
	v.Correction = result

	if len(result.Errors) > 0 {
		v.ErrorMessage = result.Errors[0]
		if result.Applied() == 0 {
			v.Step = StepError
			v.touch()
			return nil
		}
	}
	v.Step = StepCompleted
	v.touch()
	return nil
}

// Fail lands the session in the error state with the causing message.
// Errors are never thrown across a state boundary silently.
func (v *ValidationState) Fail(msg string) {
	v.ErrorMessage = msg
	v.Step = StepError
	v.touch()
}

// GoToStep is operator navigation: allowed iff the target's ordinal is less
// than or equal to the current step's ordinal.
func (v *ValidationState) GoToStep(target Step) error {
	if target > v.Step {
		return fmt.Errorf("%w: at %s, requested %s", ErrForwardJump, v.Step, target)
	}
	v.Step = target
	v.touch()
	return nil
}

// ResolverComplete reports whether every missing-product item has been added.
func (v *ValidationState) ResolverComplete() bool {
	return v.Step == StepManageMissingProducts && AllAdded(v.MissingProducts)
}
