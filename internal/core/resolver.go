package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ItemStatus tracks one missing-product item through its own lifecycle:
// searching → suggestions_found → awaiting_selection → adding → added, or
// searching → no_suggestions → awaiting_product_creation (re-search allowed).
type ItemStatus string

const (
	ItemPending                 ItemStatus = "pending"
	ItemSearching               ItemStatus = "searching"
	ItemSuggestionsFound        ItemStatus = "suggestions_found"
	ItemAwaitingSelection       ItemStatus = "awaiting_selection"
	ItemNoSuggestions           ItemStatus = "no_suggestions"
	ItemAwaitingProductCreation ItemStatus = "awaiting_product_creation"
	ItemAdding                  ItemStatus = "adding"
	ItemAdded                   ItemStatus = "added"
)

// MissingProductCorrection is a create-type correction awaiting a human
// product decision, enriched with the originating extracted line, the catalog
// candidates, and the operator's eventual selection. It lives until the
// corresponding ledger line is created or the session is cancelled.
type MissingProductCorrection struct {
	Action            CorrectionAction `json:"action"`
	Line              ExtractedLine    `json:"line"`
	Status            ItemStatus       `json:"status"`
	SearchTerm        string           `json:"search_term"`
	SuggestedProducts []Product        `json:"suggested_products,omitempty"`
	SelectedProductID *int             `json:"selected_product_id,omitempty"`
	CreatedLineID     *int             `json:"created_line_id,omitempty"`
	LastError         string           `json:"last_error,omitempty"`
}

// AllAdded is the resolver's completion predicate: true iff every item has
// reached added. Partial completion is a valid, displayable state.
func AllAdded(items []MissingProductCorrection) bool {
	for i := range items {
		if items[i].Status != ItemAdded {
			return false
		}
	}
	return true
}

var (
	// An alphanumeric code in brackets or parentheses, e.g. "[AB-1234]".
	bracketedCode = regexp.MustCompile(`[\[(]\s*([A-Za-z0-9][A-Za-z0-9._/-]{2,})\s*[\])]`)
	// A supplier article code prefix, e.g. "ART-0042 Widget".
	articleCodePrefix = regexp.MustCompile(`^([A-Z]{2,}[-/]?[0-9]{2,}[A-Za-z0-9-]*)\b`)
)

// ExtractSearchTerm derives a catalog search term from an extracted line
// description: a bracketed code wins, then a leading article code, then the
// first colon-delimited token, then the whole trimmed description.
func ExtractSearchTerm(description string) string {
	desc := strings.TrimSpace(description)
	if m := bracketedCode.FindStringSubmatch(desc); m != nil {
		return m[1]
	}
	if m := articleCodePrefix.FindStringSubmatch(desc); m != nil {
		return m[1]
	}
	if i := strings.Index(desc, ":"); i > 0 {
		return strings.TrimSpace(desc[:i])
	}
	return desc
}

// Resolver drives the interactive sub-workflow that turns every
// MissingProductCorrection into an appended ledger line.
type Resolver struct {
	catalog CatalogSearcher
	store   LedgerStore
	log     *logrus.Logger
}

func NewResolver(catalog CatalogSearcher, store LedgerStore, log *logrus.Logger) *Resolver {
	return &Resolver{catalog: catalog, store: store, log: log}
}

// BuildItems creates resolver items from the manual correction set. The
// supplier's product code, when present, beats the description heuristic as
// the initial search term.
func (r *Resolver) BuildItems(result *ComparisonResult) []MissingProductCorrection {
	manual := result.ManualCorrections()
	items := make([]MissingProductCorrection, 0, len(manual))
	for _, a := range manual {
		item := MissingProductCorrection{Action: a, Status: ItemPending}
		if a.ParsedLine != nil {
			item.Line = *a.ParsedLine
		} else if a.NewLine != nil {
			item.Line = ExtractedLine{
				Description: a.NewLine.Description,
				Quantity:    a.NewLine.Quantity,
				UnitPrice:   a.NewLine.UnitPrice,
			}
		}
		if item.Line.ProductCode != nil && *item.Line.ProductCode != "" {
			item.SearchTerm = *item.Line.ProductCode
		} else {
			item.SearchTerm = ExtractSearchTerm(item.Line.Description)
		}
		items = append(items, item)
	}
	return items
}

// SearchAll issues the initial catalog search for every item concurrently.
// Items are independent; a failed search is scoped to its own item.
func (r *Resolver) SearchAll(ctx context.Context, partnerID int, items []MissingProductCorrection) {
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(item *MissingProductCorrection) {
			defer wg.Done()
			_ = r.Search(ctx, partnerID, item)
		}(&items[i])
	}
	wg.Wait()
}

// Search runs (or re-runs) the catalog search for one item. Zero candidates
// is not an error; it routes the operator to external product creation. An
// item that reached added (or has an add in flight) is closed to re-search:
// reopening it would allow a second line for the same correction.
func (r *Resolver) Search(ctx context.Context, partnerID int, item *MissingProductCorrection) error {
	switch item.Status {
	case ItemAdded:
		return errors.New("item already added, cannot re-search")
	case ItemAdding:
		return errors.New("item add in progress, cannot re-search")
	}

	item.Status = ItemSearching
	item.LastError = ""

	products, err := r.catalog.SearchProducts(ctx, partnerID, item.SearchTerm)
	if err != nil {
		item.Status = ItemNoSuggestions
		item.LastError = fmt.Sprintf("catalog search: %v", err)
		if r.log != nil {
			r.log.WithFields(logrus.Fields{"term": item.SearchTerm}).
				Warnf("catalog search failed: %v", err)
		}
		return nil
	}

	item.SuggestedProducts = products
	if len(products) == 0 {
		item.Status = ItemNoSuggestions
		return nil
	}
	// ItemSuggestionsFound is transient; with candidates in hand the item
	// goes straight to waiting on the operator.
	item.Status = ItemAwaitingSelection
	return nil
}

// Select records the operator's product choice for one item.
func (r *Resolver) Select(item *MissingProductCorrection, productID int) error {
	switch item.Status {
	case ItemAwaitingSelection, ItemNoSuggestions, ItemAwaitingProductCreation:
	default:
		return fmt.Errorf("item is %s, cannot select a product", item.Status)
	}

	// A product from the suggestion list is always acceptable; an arbitrary
	// id is allowed too (the operator may have created the product outside).
	item.SelectedProductID = &productID
	item.Status = ItemAwaitingSelection
	return nil
}

// MarkAwaitingProductCreation routes a zero-suggestion item to the external
// product-creation flow. The operator re-searches on return.
func (r *Resolver) MarkAwaitingProductCreation(item *MissingProductCorrection) error {
	if item.Status != ItemNoSuggestions {
		return fmt.Errorf("item is %s, not awaiting external creation", item.Status)
	}
	item.Status = ItemAwaitingProductCreation
	return nil
}

// AddToInvoice creates the ledger line for one resolved item. Each item has a
// single-writer lifecycle: a second add on the same item is rejected while
// one is in flight or after it succeeded.
func (r *Resolver) AddToInvoice(ctx context.Context, draftID int, item *MissingProductCorrection) error {
	switch item.Status {
	case ItemAdded:
		return errors.New("item already added")
	case ItemAdding:
		return errors.New("item add already in progress")
	case ItemAwaitingSelection:
	default:
		return fmt.Errorf("item is %s, not ready to add", item.Status)
	}
	if item.SelectedProductID == nil {
		return errors.New("no product selected for item")
	}

	item.Status = ItemAdding
	line, err := item.Action.ToLineCreate(item.SelectedProductID)
	if err != nil {
		item.Status = ItemAwaitingSelection
		item.LastError = err.Error()
		return err
	}

	id, err := r.store.CreateLine(ctx, draftID, *line)
	if err != nil {
		// Scoped to this item; other items keep going and this one may retry.
		item.Status = ItemAwaitingSelection
		item.LastError = fmt.Sprintf("create line: %v", err)
		return fmt.Errorf("create line for %q: %w", item.Line.Description, err)
	}

	item.CreatedLineID = &id
	item.LastError = ""
	item.Status = ItemAdded
	return nil
}
