package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Column headers of a WBS-AUC transaction dump
const (
	ColumnPurchaseDoc       = "Purch.Doc."
	ColumnDocType           = "DocTyp"
	ColumnWBSElement        = "WBS Element"
	ColumnPurchaseOrderText = "Purchase order text"
	ColumnOffsetAccountName = "Offset. acct name"
	ColumnAmount            = "ValCOArCur"

	// ColumnPOStatus is appended to every output table
	ColumnPOStatus = "PO_Status"
)

// RequiredColumns returns the headers every input table must carry, in
// the order they are reported when missing.
func RequiredColumns() []string {
	return []string{
		ColumnPurchaseDoc,
		ColumnDocType,
		ColumnWBSElement,
		ColumnPurchaseOrderText,
		ColumnOffsetAccountName,
		ColumnAmount,
	}
}

// Placeholders substituted for absent values when building offset keys
const (
	MissingPlaceholder       = "missing"
	MissingAmountPlaceholder = "nan"
)

// POStatus tells whether a row is linked to a purchase order
type POStatus string

const (
	POStatusPO    POStatus = "PO"
	POStatusNonPO POStatus = "Non PO"
)

// String returns the string representation of POStatus
func (s POStatus) String() string {
	return string(s)
}

// IsValid checks if the status is one of the known values
func (s POStatus) IsValid() bool {
	return s == POStatusPO || s == POStatusNonPO
}

// ClassifyPurchaseDoc returns PO when a purchasing document is present.
// Only an empty cell counts as absent; a cell holding spaces is present.
func ClassifyPurchaseDoc(purchaseDoc string) POStatus {
	if purchaseDoc == "" {
		return POStatusNonPO
	}
	return POStatusPO
}

// Row is one record of a tabular input, kept as raw cell text.
type Row struct {
	// Index is the zero-based position among the data rows of the source table
	Index int `json:"index"`
	// Line is the 1-based line (CSV) or sheet row number of the record
	Line   int      `json:"line"`
	Values []string `json:"values"`
}

// Get returns the cell at column i, or "" when the row is short.
func (r *Row) Get(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Clone returns a deep copy of the row
func (r *Row) Clone() *Row {
	values := make([]string, len(r.Values))
	copy(values, r.Values)
	return &Row{Index: r.Index, Line: r.Line, Values: values}
}

// Table is an ordered, column-labelled set of rows
type Table struct {
	Columns []string `json:"columns"`
	Rows    []*Row   `json:"rows"`
}

// NewTable creates an empty table with the given column labels
func NewTable(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols, Rows: make([]*Row, 0)}
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column label, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds a data row and assigns its Index.
func (t *Table) Append(values []string, line int) *Row {
	row := &Row{Index: len(t.Rows), Line: line, Values: values}
	t.Rows = append(t.Rows, row)
	return row
}

// Column returns every cell of the named column in row order.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx == -1 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row.Get(idx)
	}
	return values, nil
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	clone := NewTable(t.Columns)
	clone.Rows = make([]*Row, len(t.Rows))
	for i, row := range t.Rows {
		clone.Rows[i] = row.Clone()
	}
	return clone
}

// ColumnIndex locates the required columns of a transaction dump
type ColumnIndex struct {
	PurchaseDoc       int
	DocType           int
	WBSElement        int
	PurchaseOrderText int
	OffsetAccountName int
	Amount            int
}

// TransactionRow is the typed view of one dump row
type TransactionRow struct {
	Source            *Row
	PurchaseDoc       string
	DocType           string
	WBSElement        string
	PurchaseOrderText string
	OffsetAccountName string
	RawAmount         string
	Amount            decimal.NullDecimal
	POStatus          POStatus
	OffsetKey         string
}

// NewTransactionRow reads the typed fields of a row. The amount is
// coerced; an unparseable amount yields an invalid NullDecimal.
func NewTransactionRow(row *Row, idx ColumnIndex) *TransactionRow {
	raw := row.Get(idx.Amount)
	return &TransactionRow{
		Source:            row,
		PurchaseDoc:       row.Get(idx.PurchaseDoc),
		DocType:           row.Get(idx.DocType),
		WBSElement:        row.Get(idx.WBSElement),
		PurchaseOrderText: row.Get(idx.PurchaseOrderText),
		OffsetAccountName: row.Get(idx.OffsetAccountName),
		RawAmount:         raw,
		Amount:            ParseAmount(raw),
	}
}

// HasAmount reports whether the amount was parsed successfully
func (tr *TransactionRow) HasAmount() bool {
	return tr.Amount.Valid
}

// IsDebit returns true for a strictly positive amount
func (tr *TransactionRow) IsDebit() bool {
	return tr.Amount.Valid && tr.Amount.Decimal.IsPositive()
}

// IsCredit returns true for a strictly negative amount
func (tr *TransactionRow) IsCredit() bool {
	return tr.Amount.Valid && tr.Amount.Decimal.IsNegative()
}

// String returns a string representation of the TransactionRow
func (tr *TransactionRow) String() string {
	amount := MissingAmountPlaceholder
	if tr.Amount.Valid {
		amount = tr.Amount.Decimal.String()
	}
	line := 0
	if tr.Source != nil {
		line = tr.Source.Line
	}
	return fmt.Sprintf("TransactionRow{Line: %d, WBS: %s, DocTyp: %s, Amount: %s, Status: %s}",
		line, tr.WBSElement, tr.DocType, amount, tr.POStatus)
}

// ParseAmount coerces a cell to a decimal amount. Surrounding whitespace
// is ignored; anything that is not a plain number, including SAP-style
// trailing signs such as "125.00-", is invalid.
func ParseAmount(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// FormatAmount renders an amount in canonical form, or the missing
// placeholder when absent.
func FormatAmount(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return MissingAmountPlaceholder
	}
	return amount.Decimal.String()
}

// KeyPart renders a text cell for use in an offset key. Cells are used
// verbatim, so "W-1 " and "W-1" are different keys; only an empty cell
// becomes the missing placeholder.
func KeyPart(value string) string {
	if value == "" {
		return MissingPlaceholder
	}
	return value
}

// BuildOffsetKey composes the grouping key of offset-cancellation
// candidates. The absolute amount is used so a debit and its matching
// credit share a key.
func BuildOffsetKey(wbs, purchaseOrderText, offsetAccount string, amount decimal.NullDecimal) string {
	abs := amount
	if abs.Valid {
		abs.Decimal = abs.Decimal.Abs()
	}
	return strings.Join([]string{
		KeyPart(wbs),
		KeyPart(purchaseOrderText),
		KeyPart(offsetAccount),
		FormatAmount(abs),
	}, "|")
}

// Summary holds the counters reported after a reconciliation run
type Summary struct {
	Original           int `json:"original" yaml:"original"`
	POs                int `json:"pos" yaml:"pos"`
	NonPOs             int `json:"non_pos" yaml:"non_pos"`
	ExcludedCS         int `json:"excluded_cs" yaml:"excluded_cs"`
	OffsetPairsRemoved int `json:"offset_pairs_removed" yaml:"offset_pairs_removed"`
}

// SummaryItem is one labelled counter of a Summary
type SummaryItem struct {
	Label string
	Value int
}

// Items returns the counters with their display labels, in display order.
func (s Summary) Items() []SummaryItem {
	return []SummaryItem{
		{"Original", s.Original},
		{"POs", s.POs},
		{"Non POs", s.NonPOs},
		{"CS Excluded", s.ExcludedCS},
		{"Offset Pairs Removed", s.OffsetPairsRemoved},
	}
}

// Cleaned returns the number of rows left in the cleaned table
func (s Summary) Cleaned() int {
	return s.POs + s.NonPOs
}

// Validate checks that the counters are consistent with each other
func (s Summary) Validate() error {
	if s.Original < 0 || s.POs < 0 || s.NonPOs < 0 || s.ExcludedCS < 0 || s.OffsetPairsRemoved < 0 {
		return fmt.Errorf("summary counters cannot be negative: %+v", s)
	}
	if got := s.Cleaned() + s.ExcludedCS + 2*s.OffsetPairsRemoved; got != s.Original {
		return fmt.Errorf("row count not conserved: cleaned %d + excluded %d + 2x%d pairs = %d, original %d",
			s.Cleaned(), s.ExcludedCS, s.OffsetPairsRemoved, got, s.Original)
	}
	return nil
}

// String returns a one-line representation of the Summary
func (s Summary) String() string {
	parts := make([]string, 0, 5)
	for _, item := range s.Items() {
		parts = append(parts, fmt.Sprintf("%s: %d", item.Label, item.Value))
	}
	return strings.Join(parts, ", ")
}
