package matcher

import (
	"wbs-auc-reconciliation/internal/models"
)

// EdgeCaseHandler inspects rows for situations cancellation leaves alone
type EdgeCaseHandler struct {
	config *OffsetConfig
}

// NewEdgeCaseHandler creates a new edge case handler
func NewEdgeCaseHandler(config *OffsetConfig) *EdgeCaseHandler {
	if config == nil {
		config = DefaultOffsetConfig()
	}
	return &EdgeCaseHandler{config: config}
}

// AmountAnomaly describes a row whose amount could not be used
type AmountAnomaly struct {
	Line      int    `json:"line"`
	RawAmount string `json:"raw_amount"`
	Key       string `json:"key"`
}

// UnbalancedGroup is a candidate group with rows left after cancellation
type UnbalancedGroup struct {
	Key            string `json:"key"`
	Debits         int    `json:"debits"`
	Credits        int    `json:"credits"`
	Neutral        int    `json:"neutral"`
	RemainingRows  int    `json:"remaining_rows"`
	CancelledPairs int    `json:"cancelled_pairs"`
}

// EdgeCaseReport collects the edge cases found in one pass
type EdgeCaseReport struct {
	UnparseableAmounts []AmountAnomaly    `json:"unparseable_amounts"`
	ZeroAmounts        int                `json:"zero_amounts"`
	UnbalancedGroups   []*UnbalancedGroup `json:"unbalanced_groups"`
}

// HasAnomalies returns true when any row had an unusable amount
func (r *EdgeCaseReport) HasAnomalies() bool {
	return len(r.UnparseableAmounts) > 0
}

// Analyze reports unparseable and zero amounts, and candidate groups in
// which some debits or credits stayed unpaired.
func (ech *EdgeCaseHandler) Analyze(rows []*models.TransactionRow) *EdgeCaseReport {
	report := &EdgeCaseReport{}

	for _, row := range rows {
		switch {
		case !row.HasAmount():
			line := 0
			if row.Source != nil {
				line = row.Source.Line
			}
			report.UnparseableAmounts = append(report.UnparseableAmounts, AmountAnomaly{
				Line:      line,
				RawAmount: row.RawAmount,
				Key:       row.OffsetKey,
			})
		case row.Amount.Decimal.IsZero():
			report.ZeroAmounts++
		}
	}

	index := NewOffsetIndex(rows)
	for _, group := range index.Candidates(ech.config.MinGroupSize) {
		if unbalanced := ech.checkBalance(group); unbalanced != nil {
			report.UnbalancedGroups = append(report.UnbalancedGroups, unbalanced)
		}
	}

	return report
}

// checkBalance returns nil when every signed row of the group cancels
func (ech *EdgeCaseHandler) checkBalance(group *OffsetGroup) *UnbalancedGroup {
	debits := len(group.Debits())
	credits := len(group.Credits())
	if debits == credits {
		return nil
	}

	pairs := debits
	if credits < pairs {
		pairs = credits
	}
	return &UnbalancedGroup{
		Key:            group.Key,
		Debits:         debits,
		Credits:        credits,
		Neutral:        group.Size() - debits - credits,
		RemainingRows:  group.Size() - 2*pairs,
		CancelledPairs: pairs,
	}
}
