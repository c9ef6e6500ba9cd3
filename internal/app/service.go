package app

import (
	"context"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/ledger"
)

// Store is everything the application service needs from the ledger side:
// the mutation service, the catalog search, the draft picker, and session
// snapshots.
type Store interface {
	core.LedgerStore
	core.CatalogSearcher
	ListDrafts(ctx context.Context) ([]ledger.DraftSummary, error)
	SaveSession(ctx context.Context, state *core.ValidationState) error
	LoadSession(ctx context.Context, sessionID string) (*core.ValidationState, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// ApplicationService is the engine's only contract: the operations of the
// validation workflow. Transport is an integration detail of the adapters.
//
// Operational failures (collaborator errors, timeouts) land the session in
// its error state and are reported through the returned ValidationState;
// the Go error return is reserved for caller mistakes: unknown sessions,
// transitions the state machine rejects, out-of-range item indexes.
type ApplicationService interface {
	ListDrafts(ctx context.Context) ([]ledger.DraftSummary, error)

	// StartSession selects a draft record and opens a session at select.
	StartSession(ctx context.Context, draftID int) (*core.ValidationState, error)
	GetSession(ctx context.Context, sessionID string) (*core.ValidationState, error)

	// ResumeSession restores a snapshotted session after a restart.
	ResumeSession(ctx context.Context, sessionID string) (*core.ValidationState, error)

	// Analyze runs one full extraction+comparison pass.
	Analyze(ctx context.Context, sessionID string) (*core.ValidationState, error)

	// Proceed leaves review: to the missing-product resolver when manual
	// corrections exist, otherwise through the auto-correction apply.
	Proceed(ctx context.Context, sessionID string) (*core.ValidationState, error)

	// ApplyCorrections applies the auto subset and lands the session in a
	// terminal state. Rejected while manual items are outstanding.
	ApplyCorrections(ctx context.Context, sessionID string) (*core.ValidationState, error)

	// Resolver operations, one missing-product item at a time.
	SearchMissingProduct(ctx context.Context, sessionID string, item int) (*core.ValidationState, error)
	SelectProduct(ctx context.Context, sessionID string, item, productID int) (*core.ValidationState, error)
	MarkAwaitingProductCreation(ctx context.Context, sessionID string, item int) (*core.ValidationState, error)
	AddMissingProduct(ctx context.Context, sessionID string, item int) (*core.ValidationState, error)

	// GoToStep is operator navigation, backward only.
	GoToStep(ctx context.Context, sessionID string, step string) (*core.ValidationState, error)

	// Cancel discards the session. Mutations already committed to the
	// ledger stay committed.
	Cancel(ctx context.Context, sessionID string) error
}
