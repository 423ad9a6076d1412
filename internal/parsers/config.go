package parsers

import (
	"fmt"
	"strings"

	"wbs-auc-reconciliation/internal/models"
)

// Supported CSV source encodings
const (
	EncodingUTF8        = "utf-8"
	EncodingLatin1      = "latin1"
	EncodingWindows1252 = "windows-1252"
)

// SupportedEncodings returns the encodings accepted for CSV input
func SupportedEncodings() []string {
	return []string{EncodingUTF8, EncodingLatin1, EncodingWindows1252}
}

// ColumnConfig names the headers of the required columns. Aliases map a
// canonical header to alternative spellings seen in other exports.
type ColumnConfig struct {
	PurchaseDoc       string              `json:"purchase_doc" yaml:"purchase_doc" mapstructure:"purchase_doc"`
	DocType           string              `json:"doc_type" yaml:"doc_type" mapstructure:"doc_type"`
	WBSElement        string              `json:"wbs_element" yaml:"wbs_element" mapstructure:"wbs_element"`
	PurchaseOrderText string              `json:"purchase_order_text" yaml:"purchase_order_text" mapstructure:"purchase_order_text"`
	OffsetAccountName string              `json:"offset_account_name" yaml:"offset_account_name" mapstructure:"offset_account_name"`
	Amount            string              `json:"amount" yaml:"amount" mapstructure:"amount"`
	Aliases           map[string][]string `json:"aliases,omitempty" yaml:"aliases,omitempty" mapstructure:"aliases"`
}

// DefaultColumnConfig returns the headers of a standard WBS-AUC export
func DefaultColumnConfig() *ColumnConfig {
	return &ColumnConfig{
		PurchaseDoc:       models.ColumnPurchaseDoc,
		DocType:           models.ColumnDocType,
		WBSElement:        models.ColumnWBSElement,
		PurchaseOrderText: models.ColumnPurchaseOrderText,
		OffsetAccountName: models.ColumnOffsetAccountName,
		Amount:            models.ColumnAmount,
		Aliases: map[string][]string{
			models.ColumnPurchaseDoc: {"Purchasing Document", "Purch. Doc."},
			models.ColumnDocType:     {"Document Type", "Doc. Type"},
			models.ColumnAmount:      {"Value in CO area crcy", "Val/COArea Crcy"},
		},
	}
}

// Validate checks if the column configuration is valid
func (cc *ColumnConfig) Validate() error {
	seen := make(map[string]string)
	for _, field := range cc.fields() {
		if strings.TrimSpace(field.header) == "" {
			return fmt.Errorf("%s column cannot be empty", field.name)
		}
		if other, ok := seen[field.header]; ok {
			return fmt.Errorf("%s and %s columns share the header %q", other, field.name, field.header)
		}
		seen[field.header] = field.name
	}
	return nil
}

// Required returns the configured headers in reporting order
func (cc *ColumnConfig) Required() []string {
	fields := cc.fields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.header
	}
	return headers
}

// Candidates returns the header followed by its aliases
func (cc *ColumnConfig) Candidates(header string) []string {
	return append([]string{header}, cc.Aliases[header]...)
}

type columnField struct {
	name   string
	header string
}

func (cc *ColumnConfig) fields() []columnField {
	return []columnField{
		{"purchase doc", cc.PurchaseDoc},
		{"doc type", cc.DocType},
		{"WBS element", cc.WBSElement},
		{"purchase order text", cc.PurchaseOrderText},
		{"offset account name", cc.OffsetAccountName},
		{"amount", cc.Amount},
	}
}

// TableParserConfig holds configuration for reading a tabular export
type TableParserConfig struct {
	// Sheet selects the worksheet of a workbook; empty means the first sheet
	Sheet            string        `json:"sheet,omitempty" yaml:"sheet,omitempty" mapstructure:"sheet"`
	Delimiter        rune          `json:"delimiter" yaml:"delimiter" mapstructure:"delimiter"`
	Encoding         string        `json:"encoding" yaml:"encoding" mapstructure:"encoding"`
	SkipEmptyRows    bool          `json:"skip_empty_rows" yaml:"skip_empty_rows" mapstructure:"skip_empty_rows"`
	ValidateEncoding bool          `json:"validate_encoding" yaml:"validate_encoding" mapstructure:"validate_encoding"`
	ReportProgress   bool          `json:"report_progress" yaml:"report_progress" mapstructure:"report_progress"`
	Columns          *ColumnConfig `json:"columns" yaml:"columns" mapstructure:"columns"`
}

// DefaultTableParserConfig returns a configuration with sensible defaults
func DefaultTableParserConfig() *TableParserConfig {
	return &TableParserConfig{
		Delimiter:        ',',
		Encoding:         EncodingUTF8,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
		Columns:          DefaultColumnConfig(),
	}
}

// Validate checks if the parser configuration is valid
func (c *TableParserConfig) Validate() error {
	switch c.Delimiter {
	case 0, '"', '\r', '\n':
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}

	encoding := strings.ToLower(strings.TrimSpace(c.Encoding))
	valid := false
	for _, e := range SupportedEncodings() {
		if encoding == e {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unsupported encoding %q (supported: %s)", c.Encoding, strings.Join(SupportedEncodings(), ", "))
	}

	if c.Columns == nil {
		return fmt.Errorf("column configuration is required")
	}
	return c.Columns.Validate()
}
