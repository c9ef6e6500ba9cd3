package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/ledger"

	"github.com/sirupsen/logrus"
)

// session pairs a live ValidationState with its own lock. One operator per
// invoice at a time is assumed; the lock serializes stray concurrent calls
// against the same session rather than supporting them.
type session struct {
	mu    sync.Mutex
	state *core.ValidationState
}

type appService struct {
	store     Store
	extractor core.DocumentExtractor
	engine    *core.DiffEngine
	corrector *core.Corrector
	resolver  *core.Resolver
	log       *logrus.Logger

	searchTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// NewAppService constructs the application service over the store and the
// collaborator clients.
func NewAppService(
	store Store,
	extractor core.DocumentExtractor,
	comparator core.InvoiceComparator,
	log *logrus.Logger,
	searchTimeout time.Duration,
) ApplicationService {
	return &appService{
		store:         store,
		extractor:     extractor,
		engine:        core.NewDiffEngine(comparator, log),
		corrector:     core.NewCorrector(store, log),
		resolver:      core.NewResolver(store, store, log),
		log:           log,
		searchTimeout: searchTimeout,
		sessions:      make(map[string]*session),
	}
}

func (s *appService) ListDrafts(ctx context.Context) ([]ledger.DraftSummary, error) {
	return s.store.ListDrafts(ctx)
}

func (s *appService) StartSession(ctx context.Context, draftID int) (*core.ValidationState, error) {
	// Fail fast on a nonexistent record before opening anything.
	if _, err := s.store.GetDraft(ctx, draftID); err != nil {
		return nil, err
	}

	state := core.NewSession(draftID)
	s.mu.Lock()
	s.sessions[state.SessionID] = &session{state: state}
	s.mu.Unlock()

	s.persist(ctx, state)
	return state, nil
}

func (s *appService) GetSession(ctx context.Context, sessionID string) (*core.ValidationState, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state, nil
}

func (s *appService) ResumeSession(ctx context.Context, sessionID string) (*core.ValidationState, error) {
	if sess, err := s.lookup(sessionID); err == nil {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.state, nil
	}

	state, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sessionID] = &session{state: state}
	s.mu.Unlock()
	return state, nil
}

func (s *appService) Analyze(ctx context.Context, sessionID string) (*core.ValidationState, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.state.BeginAnalysis(); err != nil {
		return nil, err
	}
	s.persist(ctx, sess.state)

	s.runAnalysis(ctx, sess.state)
	s.persist(ctx, sess.state)
	return sess.state, nil
}

// runAnalysis performs one extraction+comparison pass. Any failure lands the
// session in the error state with the causing message; retries are an
// operator decision, never automatic.
func (s *appService) runAnalysis(ctx context.Context, state *core.ValidationState) {
	draft, err := s.store.GetDraft(ctx, state.DraftID)
	if err != nil {
		state.Fail(fmt.Sprintf("load draft: %v", err))
		return
	}
	if len(draft.Attachments) == 0 {
		state.Fail("draft record has no attachment to compare against")
		return
	}

	att := draft.Attachments[0]
	doc, err := s.extractor.Extract(ctx, att.Data, att.MimeType)
	if err != nil {
		state.Fail(fmt.Sprintf("document extraction: %v", err))
		return
	}

	doc.Normalize()
	if err := doc.Validate(); err != nil {
		state.Fail(err.Error())
		return
	}

	result, err := s.engine.Analyze(ctx, draft, doc)
	if err != nil {
		state.Fail(fmt.Sprintf("comparison: %v", err))
		return
	}

	if err := state.CompleteAnalysis(draft, doc, result); err != nil {
		state.Fail(err.Error())
	}
}

func (s *appService) Proceed(ctx context.Context, sessionID string) (*core.ValidationState, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	next, err := sess.state.RouteFromReview()
	if err != nil {
		return nil, err
	}

	if next == core.StepManageMissingProducts {
		items := s.resolver.BuildItems(sess.state.Comparison)
		searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
		s.resolver.SearchAll(searchCtx, sess.state.Draft.PartnerID, items)
		cancel()
		if err := sess.state.EnterMissingProducts(items); err != nil {
			return nil, err
		}
		s.persist(ctx, sess.state)
		return sess.state, nil
	}

	if err := s.applyLocked(ctx, sess.state); err != nil {
		return nil, err
	}
	s.persist(ctx, sess.state)
	return sess.state, nil
}

func (s *appService) ApplyCorrections(ctx context.Context, sessionID string) (*core.ValidationState, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.applyLocked(ctx, sess.state); err != nil {
		return nil, err
	}
	s.persist(ctx, sess.state)
	return sess.state, nil
}

// applyLocked runs the auto-correction batch and lands the session in a
// terminal state. Caller holds the session lock. A rejected transition is the
// caller's mistake and comes back as an error with the session untouched;
// operational failures during the apply land the session in the error state.
func (s *appService) applyLocked(ctx context.Context, state *core.ValidationState) error {
	if err := state.BeginCorrecting(); err != nil {
		return err
	}

	result, err := s.corrector.Apply(ctx, state.Draft, state.Extraction, state.Comparison.AutoCorrections())
	if err != nil {
		state.Fail(fmt.Sprintf("apply corrections: %v", err))
		return nil
	}
	if err := state.CompleteCorrection(result); err != nil {
		state.Fail(err.Error())
	}
	return nil
}

func (s *appService) SearchMissingProduct(ctx context.Context, sessionID string, item int) (*core.ValidationState, error) {
	sess, state, err := s.missingItem(sessionID, item)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()
	if err := s.resolver.Search(searchCtx, state.Draft.PartnerID, &state.MissingProducts[item]); err != nil {
		return nil, err
	}
	s.persist(ctx, state)
	return state, nil
}

func (s *appService) SelectProduct(ctx context.Context, sessionID string, item, productID int) (*core.ValidationState, error) {
	sess, state, err := s.missingItem(sessionID, item)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if err := s.resolver.Select(&state.MissingProducts[item], productID); err != nil {
		return nil, err
	}
	s.persist(ctx, state)
	return state, nil
}

func (s *appService) MarkAwaitingProductCreation(ctx context.Context, sessionID string, item int) (*core.ValidationState, error) {
	sess, state, err := s.missingItem(sessionID, item)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if err := s.resolver.MarkAwaitingProductCreation(&state.MissingProducts[item]); err != nil {
		return nil, err
	}
	s.persist(ctx, state)
	return state, nil
}

func (s *appService) AddMissingProduct(ctx context.Context, sessionID string, item int) (*core.ValidationState, error) {
	sess, state, err := s.missingItem(sessionID, item)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if err := s.resolver.AddToInvoice(ctx, state.DraftID, &state.MissingProducts[item]); err != nil {
		// Scoped to the item; the session stays where it is and the item
		// carries its own error for display.
		s.persist(ctx, state)
		return state, nil
	}

	// Adding lines changes the total difference and may surface new
	// auto-corrections, so full completion re-triggers the diff engine.
	if state.ResolverComplete() {
		if err := state.BeginAnalysis(); err != nil {
			state.Fail(err.Error())
			s.persist(ctx, state)
			return state, nil
		}
		s.runAnalysis(ctx, state)
	}

	s.persist(ctx, state)
	return state, nil
}

func (s *appService) GoToStep(ctx context.Context, sessionID string, step string) (*core.ValidationState, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	target, err := core.ParseStep(step)
	if err != nil {
		return nil, err
	}
	if err := sess.state.GoToStep(target); err != nil {
		return nil, err
	}
	s.persist(ctx, sess.state)
	return sess.state, nil
}

func (s *appService) Cancel(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	return s.store.DeleteSession(ctx, sessionID)
}

// ── private helpers ───────────────────────────────────────────────────────────

func (s *appService) lookup(sessionID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ledger.ErrNotFound)
	}
	return sess, nil
}

// missingItem locks the session and bounds-checks a resolver item index.
// On success the session lock is held; the caller must release it.
func (s *appService) missingItem(sessionID string, item int) (*session, *core.ValidationState, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}
	sess.mu.Lock()

	state := sess.state
	if state.Step != core.StepManageMissingProducts {
		sess.mu.Unlock()
		return nil, nil, fmt.Errorf("session is at %s, not %s", state.Step, core.StepManageMissingProducts)
	}
	if item < 0 || item >= len(state.MissingProducts) {
		sess.mu.Unlock()
		return nil, nil, fmt.Errorf("missing-product item %d out of range", item)
	}
	return sess, state, nil
}

func (s *appService) persist(ctx context.Context, state *core.ValidationState) {
	if err := s.store.SaveSession(ctx, state); err != nil && s.log != nil {
		s.log.WithFields(logrus.Fields{"session": state.SessionID}).
			Warnf("session snapshot failed: %v", err)
	}
}
