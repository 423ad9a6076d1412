package reconciler

import (
	"strings"

	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/pkg/logger"
)

// DataPreprocessor turns raw table rows into typed, classified and keyed
// transaction rows.
type DataPreprocessor struct {
	config   *PreprocessingConfig
	excluded map[string]bool
	logger   logger.Logger
}

// PreprocessingConfig contains configuration for row preprocessing
type PreprocessingConfig struct {
	// ExcludedDocTypes lists DocTyp values whose rows are dropped. Values
	// are compared after trimming surrounding whitespace.
	ExcludedDocTypes []string
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		ExcludedDocTypes: []string{"CS"},
	}
}

// PreprocessedRows is the outcome of preprocessing one table
type PreprocessedRows struct {
	// All holds every row in source order, classified
	All []*models.TransactionRow
	// Retained holds the rows that survived exclusion, keyed
	Retained []*models.TransactionRow
	Stats    PreprocessingStats
}

// PreprocessingStats provides statistics about preprocessing
type PreprocessingStats struct {
	Rows               int `json:"rows"`
	ClassifiedPO       int `json:"classified_po"`
	ClassifiedNonPO    int `json:"classified_non_po"`
	Excluded           int `json:"excluded"`
	UnparseableAmounts int `json:"unparseable_amounts"`
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}

	excluded := make(map[string]bool, len(config.ExcludedDocTypes))
	for _, docType := range config.ExcludedDocTypes {
		excluded[strings.TrimSpace(docType)] = true
	}

	return &DataPreprocessor{
		config:   config,
		excluded: excluded,
		logger:   logger.GetGlobalLogger().WithComponent("preprocessor"),
	}
}

// IsExcluded reports whether a DocTyp value marks a row for exclusion
func (dp *DataPreprocessor) IsExcluded(docType string) bool {
	return dp.excluded[strings.TrimSpace(docType)]
}

// Preprocess classifies every row, drops excluded document types and
// builds offset keys for the rows that remain. Classification happens
// before exclusion so every input row carries a status.
func (dp *DataPreprocessor) Preprocess(table *models.Table, columns models.ColumnIndex) *PreprocessedRows {
	result := &PreprocessedRows{
		All:      make([]*models.TransactionRow, 0, table.Len()),
		Retained: make([]*models.TransactionRow, 0, table.Len()),
	}
	result.Stats.Rows = table.Len()

	for _, row := range table.Rows {
		tr := models.NewTransactionRow(row, columns)
		tr.POStatus = models.ClassifyPurchaseDoc(tr.PurchaseDoc)
		if tr.POStatus == models.POStatusPO {
			result.Stats.ClassifiedPO++
		} else {
			result.Stats.ClassifiedNonPO++
		}
		result.All = append(result.All, tr)
	}

	for _, tr := range result.All {
		if dp.IsExcluded(tr.DocType) {
			result.Stats.Excluded++
			continue
		}
		if !tr.HasAmount() {
			result.Stats.UnparseableAmounts++
		}
		tr.OffsetKey = models.BuildOffsetKey(tr.WBSElement, tr.PurchaseOrderText, tr.OffsetAccountName, tr.Amount)
		result.Retained = append(result.Retained, tr)
	}

	dp.logger.WithFields(logger.Fields{
		"rows":                result.Stats.Rows,
		"po":                  result.Stats.ClassifiedPO,
		"non_po":              result.Stats.ClassifiedNonPO,
		"excluded":            result.Stats.Excluded,
		"excluded_doc_types":  dp.config.ExcludedDocTypes,
		"unparseable_amounts": result.Stats.UnparseableAmounts,
	}).Debug("Preprocessed rows")

	return result
}
