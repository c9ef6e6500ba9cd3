package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type RecordState string

const (
	RecordStateDraft     RecordState = "draft"
	RecordStatePosted    RecordState = "posted"
	RecordStateCancelled RecordState = "cancelled"
)

// Attachment is a binary document attached to a draft invoice.
// Data is excluded from session snapshots; it is re-read from the ledger
// store whenever an analysis pass needs the raw bytes.
type Attachment struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// LineItem is one line of a draft invoice. Discount is a fraction in [0, 1).
type LineItem struct {
	ID          int             `json:"id"`
	ProductID   *int            `json:"product_id,omitempty"`
	ProductCode *string         `json:"product_code,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Total       decimal.Decimal `json:"total"`
	TaxIDs      []int           `json:"tax_ids,omitempty"`
}

// ExpectedSubtotal returns quantity * unitPrice * (1 - discount).
func (l LineItem) ExpectedSubtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Mul(decimal.NewFromInt(1).Sub(l.Discount))
}

// ArithmeticOK reports whether the stored subtotal is consistent with the
// line's own quantity, price and discount. A violation is surfaced as a
// difference by the diff engine, never silently corrected.
func (l LineItem) ArithmeticOK() bool {
	return WithinTolerance(l.Subtotal, l.ExpectedSubtotal(), RoundingTolerance)
}

// DraftRecord is the ledger's current belief about an invoice. The ledger
// store owns the authoritative copy; the engine only reads it and issues
// mutation commands against it.
type DraftRecord struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	PartnerID     int             `json:"partner_id"`
	PartnerName   string          `json:"partner_name"`
	CompanyID     int             `json:"company_id"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	Currency      string          `json:"currency"`
	AmountUntaxed decimal.Decimal `json:"amount_untaxed"`
	AmountTax     decimal.Decimal `json:"amount_tax"`
	AmountTotal   decimal.Decimal `json:"amount_total"`
	State         RecordState     `json:"state"`
	Lines         []LineItem      `json:"lines"`
	Attachments   []Attachment    `json:"attachments"`
}

// LineByID returns the line with the given id, or nil.
func (d *DraftRecord) LineByID(id int) *LineItem {
	for i := range d.Lines {
		if d.Lines[i].ID == id {
			return &d.Lines[i]
		}
	}
	return nil
}

// HasLine reports whether a line with the given id exists on the draft.
func (d *DraftRecord) HasLine(id int) bool {
	return d.LineByID(id) != nil
}

// ExtractedLine is one line item parsed out of the supplier's document.
// Amounts are strings: this struct is the wire contract for the extraction
// collaborator's structured output, parsed and checked by Validate.
type ExtractedLine struct {
	Description string  `json:"description" jsonschema_description:"The line item description exactly as printed on the invoice"`
	ProductCode *string `json:"product_code,omitempty" jsonschema_description:"The supplier's article or product code for this line, if printed"`
	Quantity    string  `json:"quantity" jsonschema_description:"The quantity as a decimal string, e.g. '3' or '2.5'"`
	UnitPrice   string  `json:"unit_price" jsonschema_description:"The unit price as a decimal string, e.g. '12.50'"`
	Subtotal    string  `json:"subtotal" jsonschema_description:"The line subtotal (before tax) as a decimal string"`
	TaxRate     *string `json:"tax_rate,omitempty" jsonschema_description:"The tax rate applied to this line as a percentage string, e.g. '21'"`
	Unit        *string `json:"unit,omitempty" jsonschema_description:"The unit of measure, if printed (e.g. 'kg', 'pcs')"`
}

// QuantityAmount returns the parsed quantity. Only meaningful after Validate.
func (l ExtractedLine) QuantityAmount() decimal.Decimal {
	v, _ := ParseAmount(l.Quantity)
	return v
}

// UnitPriceAmount returns the parsed unit price. Only meaningful after Validate.
func (l ExtractedLine) UnitPriceAmount() decimal.Decimal {
	v, _ := ParseAmount(l.UnitPrice)
	return v
}

// SubtotalAmount returns the parsed subtotal. Only meaningful after Validate.
func (l ExtractedLine) SubtotalAmount() decimal.Decimal {
	v, _ := ParseAmount(l.Subtotal)
	return v
}

// ExtractedDocument is the immutable snapshot parsed from the supplier's
// definitive invoice document. A new extraction always produces a new
// snapshot; the engine never mutates one.
type ExtractedDocument struct {
	SupplierName   string          `json:"supplier_name" jsonschema_description:"The supplier's legal or trading name as printed on the invoice"`
	VATNumber      *string         `json:"vat_number,omitempty" jsonschema_description:"The supplier's VAT identification number, if printed"`
	DocumentNumber *string         `json:"document_number,omitempty" jsonschema_description:"The invoice number as printed"`
	DocumentDate   *string         `json:"document_date,omitempty" jsonschema_description:"The invoice date in YYYY-MM-DD format, if printed"`
	TotalAmount    string          `json:"total_amount" jsonschema_description:"The invoice grand total (including tax) as a decimal string"`
	SubtotalAmount *string         `json:"subtotal_amount,omitempty" jsonschema_description:"The total before tax as a decimal string, if printed"`
	TaxAmount      *string         `json:"tax_amount,omitempty" jsonschema_description:"The total tax amount as a decimal string, if printed"`
	Currency       string          `json:"currency" jsonschema_description:"The ISO currency code of the invoice, e.g. 'EUR'"`
	Lines          []ExtractedLine `json:"lines" jsonschema_description:"All line items on the invoice, in document order"`
}

// Total returns the parsed grand total. Only meaningful after Validate.
func (e *ExtractedDocument) Total() decimal.Decimal {
	v, _ := ParseAmount(e.TotalAmount)
	return v
}

// Date returns the parsed document date, or nil if absent or unparseable.
func (e *ExtractedDocument) Date() *time.Time {
	if e.DocumentDate == nil || *e.DocumentDate == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", *e.DocumentDate)
	if err != nil {
		return nil
	}
	return &t
}
