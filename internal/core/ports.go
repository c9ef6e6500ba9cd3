package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Product is one candidate from the catalog search collaborator.
type Product struct {
	ID        int             `json:"id"`
	Code      *string         `json:"code,omitempty"`
	Name      string          `json:"name"`
	ListPrice decimal.Decimal `json:"list_price"`
}

// DocumentExtractor turns raw document bytes into a structured snapshot.
// The engine validates the snapshot; the extractor is not trusted to.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (*ExtractedDocument, error)
}

// InvoiceComparator produces a structured diff between a draft record and an
// extracted document. Its output is untrusted input: the diff engine is the
// trust boundary, independent of which reasoning engine backs this.
type InvoiceComparator interface {
	Compare(ctx context.Context, draft *DraftRecord, doc *ExtractedDocument) (*ComparisonResult, error)
}

// CatalogSearcher looks up candidate products for a search term. An empty
// result is a valid answer, not an error.
type CatalogSearcher interface {
	SearchProducts(ctx context.Context, partnerID int, term string) ([]Product, error)
}

// LedgerStore is the external record store the engine issues mutation
// commands against. Each call is its own atomic request; the engine never
// holds a long-lived lock on a record.
type LedgerStore interface {
	GetDraft(ctx context.Context, id int) (*DraftRecord, error)
	UpdateLine(ctx context.Context, draftID, lineID int, changes LineUpdate) error
	DeleteLine(ctx context.Context, draftID, lineID int) error
	CreateLine(ctx context.Context, draftID int, line LineCreate) (int, error)
	SetInvoiceDate(ctx context.Context, draftID int, date time.Time) error
}
