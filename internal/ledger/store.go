package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoice-reconciler/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a draft or line does not exist.
	ErrNotFound = errors.New("not found")

	// ErrImmutable is the store's validation rejection for mutations against
	// a posted or cancelled invoice.
	ErrImmutable = errors.New("invoice is not in draft state")
)

// Store is the PostgreSQL-backed ledger mutation service. Each mutation is
// its own transaction: one correction, one added line, one atomic request.
// Derived amounts (line subtotal/total, invoice totals) are recomputed by the
// store inside the same transaction, so read-backs reflect store-side logic.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// DraftSummary is one row of the draft picker.
type DraftSummary struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	PartnerName   string `json:"partner_name"`
	AmountTotal   string `json:"amount_total"`
	State         string `json:"state"`
	HasAttachment bool   `json:"has_attachment"`
}

// ListDrafts returns all draft invoices with attachment presence, newest first.
func (s *Store) ListDrafts(ctx context.Context) ([]DraftSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.name, p.name, d.amount_total::text, d.state,
		       EXISTS(SELECT 1 FROM attachments a WHERE a.invoice_id = d.id)
		FROM draft_invoices d
		JOIN partners p ON p.id = d.partner_id
		WHERE d.state = 'draft'
		ORDER BY d.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var out []DraftSummary
	for rows.Next() {
		var d DraftSummary
		if err := rows.Scan(&d.ID, &d.Name, &d.PartnerName, &d.AmountTotal, &d.State, &d.HasAttachment); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDraft reads a full draft record: header, ordered lines, attachments.
func (s *Store) GetDraft(ctx context.Context, id int) (*core.DraftRecord, error) {
	d := &core.DraftRecord{}
	var state string
	err := s.pool.QueryRow(ctx, `
		SELECT d.id, d.name, d.partner_id, p.name, d.company_id, d.invoice_date,
		       d.currency, d.amount_untaxed, d.amount_tax, d.amount_total, d.state
		FROM draft_invoices d
		JOIN partners p ON p.id = d.partner_id
		WHERE d.id = $1
	`, id).Scan(&d.ID, &d.Name, &d.PartnerID, &d.PartnerName, &d.CompanyID, &d.InvoiceDate,
		&d.Currency, &d.AmountUntaxed, &d.AmountTax, &d.AmountTotal, &state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("draft %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch draft %d: %w", id, err)
	}
	d.State = core.RecordState(state)

	lineRows, err := s.pool.Query(ctx, `
		SELECT l.id, l.product_id, pr.code, l.description, l.quantity, l.unit_price,
		       l.discount, l.subtotal, l.total, l.tax_ids
		FROM invoice_lines l
		LEFT JOIN products pr ON pr.id = l.product_id
		WHERE l.invoice_id = $1
		ORDER BY l.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetch lines for draft %d: %w", id, err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var l core.LineItem
		if err := lineRows.Scan(&l.ID, &l.ProductID, &l.ProductCode, &l.Description, &l.Quantity,
			&l.UnitPrice, &l.Discount, &l.Subtotal, &l.Total, &l.TaxIDs); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		d.Lines = append(d.Lines, l)
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lines: %w", err)
	}

	attRows, err := s.pool.Query(ctx, `
		SELECT id, filename, mime_type, data
		FROM attachments
		WHERE invoice_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetch attachments for draft %d: %w", id, err)
	}
	defer attRows.Close()

	for attRows.Next() {
		var a core.Attachment
		if err := attRows.Scan(&a.ID, &a.Filename, &a.MimeType, &a.Data); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		d.Attachments = append(d.Attachments, a)
	}
	return d, attRows.Err()
}

// UpdateLine applies field-level changes to one line, then recomputes the
// line's derived amounts and the invoice totals in the same transaction.
func (s *Store) UpdateLine(ctx context.Context, draftID, lineID int, changes core.LineUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.lockDraft(ctx, tx, draftID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE invoice_lines
		SET description = COALESCE($3, description),
		    quantity    = COALESCE($4, quantity),
		    unit_price  = COALESCE($5, unit_price),
		    discount    = COALESCE($6, discount)
		WHERE id = $2 AND invoice_id = $1
	`, draftID, lineID, changes.Description, changes.Quantity, changes.UnitPrice, changes.Discount)
	if err != nil {
		return fmt.Errorf("update line %d: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line %d on draft %d: %w", lineID, draftID, ErrNotFound)
	}

	if err := s.recompute(ctx, tx, draftID, &lineID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// DeleteLine removes one line and recomputes the invoice totals.
func (s *Store) DeleteLine(ctx context.Context, draftID, lineID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.lockDraft(ctx, tx, draftID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		"DELETE FROM invoice_lines WHERE id = $2 AND invoice_id = $1", draftID, lineID)
	if err != nil {
		return fmt.Errorf("delete line %d: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line %d on draft %d: %w", lineID, draftID, ErrNotFound)
	}

	if err := s.recompute(ctx, tx, draftID, nil); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// CreateLine appends a new line. A tax rate, when given, is resolved against
// the taxes table; an unknown rate leaves the line untaxed.
func (s *Store) CreateLine(ctx context.Context, draftID int, line core.LineCreate) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.lockDraft(ctx, tx, draftID); err != nil {
		return 0, err
	}

	if line.ProductID != nil {
		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1 AND is_active = true)",
			*line.ProductID,
		).Scan(&exists); err != nil {
			return 0, fmt.Errorf("validate product %d: %w", *line.ProductID, err)
		}
		if !exists {
			return 0, fmt.Errorf("product %d: %w", *line.ProductID, ErrNotFound)
		}
	}

	taxIDs := []int{}
	if line.TaxRate != nil {
		var taxID int
		err := tx.QueryRow(ctx, "SELECT id FROM taxes WHERE rate = $1", *line.TaxRate).Scan(&taxID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("resolve tax rate %s: %w", line.TaxRate, err)
		}
		if err == nil {
			taxIDs = append(taxIDs, taxID)
		}
	}

	var lineID int
	if err := tx.QueryRow(ctx, `
		INSERT INTO invoice_lines (invoice_id, product_id, description, quantity, unit_price, discount, subtotal, total, tax_ids)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6)
		RETURNING id
	`, draftID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, taxIDs).Scan(&lineID); err != nil {
		return 0, fmt.Errorf("insert line: %w", err)
	}

	if err := s.recompute(ctx, tx, draftID, &lineID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit create: %w", err)
	}
	return lineID, nil
}

// SetInvoiceDate reconciles the draft's invoice date with the document's.
func (s *Store) SetInvoiceDate(ctx context.Context, draftID int, date time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE draft_invoices SET invoice_date = $2 WHERE id = $1 AND state = 'draft'
	`, draftID, date.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("set invoice date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("draft %d: %w", draftID, ErrNotFound)
	}
	return nil
}

// SearchProducts is the catalog search: exact code match ranks first, then
// code prefix, then name substring; the supplier's preferred products rank
// ahead of the rest. An empty result is a valid answer.
func (s *Store) SearchProducts(ctx context.Context, partnerID int, term string) ([]core.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, list_price
		FROM products
		WHERE is_active = true
		  AND (code ILIKE $1 OR code ILIKE $1 || '%' OR name ILIKE '%' || $1 || '%')
		ORDER BY (code ILIKE $1)::int DESC,
		         (code ILIKE $1 || '%')::int DESC,
		         (partner_id = $2)::int DESC NULLS LAST,
		         name
		LIMIT 10
	`, term, partnerID)
	if err != nil {
		return nil, fmt.Errorf("search products %q: %w", term, err)
	}
	defer rows.Close()

	var out []core.Product
	for rows.Next() {
		var p core.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.ListPrice); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// lockDraft locks the invoice header and rejects mutations against anything
// not in draft state.
func (s *Store) lockDraft(ctx context.Context, tx pgx.Tx, draftID int) error {
	var state string
	if err := tx.QueryRow(ctx,
		"SELECT state FROM draft_invoices WHERE id = $1 FOR UPDATE", draftID,
	).Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("draft %d: %w", draftID, ErrNotFound)
		}
		return fmt.Errorf("lock draft %d: %w", draftID, err)
	}
	if state != string(core.RecordStateDraft) {
		return fmt.Errorf("draft %d: %w (state %s)", draftID, ErrImmutable, state)
	}
	return nil
}

// recompute refreshes derived amounts. When lineID is non-nil the line's own
// subtotal and total are recomputed first; invoice totals always follow.
func (s *Store) recompute(ctx context.Context, tx pgx.Tx, draftID int, lineID *int) error {
	if lineID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE invoice_lines
			SET subtotal = round(quantity * unit_price * (1 - discount), 2),
			    total = round(quantity * unit_price * (1 - discount)
			            * (1 + COALESCE((SELECT SUM(t.rate) FROM taxes t WHERE t.id = ANY(tax_ids)), 0) / 100), 2)
			WHERE id = $1
		`, *lineID); err != nil {
			return fmt.Errorf("recompute line %d: %w", *lineID, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE draft_invoices d
		SET amount_untaxed = s.untaxed,
		    amount_tax     = s.tax,
		    amount_total   = s.total
		FROM (
			SELECT COALESCE(SUM(subtotal), 0)       AS untaxed,
			       COALESCE(SUM(total - subtotal), 0) AS tax,
			       COALESCE(SUM(total), 0)          AS total
			FROM invoice_lines
			WHERE invoice_id = $1
		) s
		WHERE d.id = $1
	`, draftID); err != nil {
		return fmt.Errorf("recompute totals for draft %d: %w", draftID, err)
	}
	return nil
}
