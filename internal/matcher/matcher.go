package matcher

import (
	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

// OffsetMatcher cancels offsetting debit/credit pairs
type OffsetMatcher struct {
	Config *OffsetConfig
	logger logger.Logger
}

// OffsetPair is one cancelled debit and credit sharing a key. Pairing is
// positional: the i-th debit of a group goes with its i-th credit.
type OffsetPair struct {
	Key    string
	Debit  *models.TransactionRow
	Credit *models.TransactionRow
}

// CancellationResult is the outcome of a cancellation pass
type CancellationResult struct {
	Pairs     []*OffsetPair
	Index     IndexStats
	cancelled map[*models.TransactionRow]bool
	pairCount int
}

// IsCancelled reports whether a row was removed as part of a pair
func (r *CancellationResult) IsCancelled(row *models.TransactionRow) bool {
	return r.cancelled[row]
}

// PairCount returns the number of cancelled pairs
func (r *CancellationResult) PairCount() int {
	return r.pairCount
}

// CancelledRows returns the number of removed rows
func (r *CancellationResult) CancelledRows() int {
	return len(r.cancelled)
}

// NewOffsetMatcher creates a new matcher with the specified configuration
func NewOffsetMatcher(config *OffsetConfig) (*OffsetMatcher, error) {
	if config == nil {
		config = DefaultOffsetConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "offset_config", config.MinGroupSize, err)
	}

	return &OffsetMatcher{
		Config: config,
		logger: logger.GetGlobalLogger().WithComponent("offset_matcher"),
	}, nil
}

// Cancel groups rows by OffsetKey and cancels offsetting pairs. Rows with
// a zero or missing amount never take part in a pair. The input slice is
// not modified.
func (m *OffsetMatcher) Cancel(rows []*models.TransactionRow) *CancellationResult {
	index := NewOffsetIndex(rows)
	result := &CancellationResult{
		Index:     index.GetStats(m.Config.MinGroupSize),
		cancelled: make(map[*models.TransactionRow]bool),
	}

	for _, group := range index.Candidates(m.Config.MinGroupSize) {
		debits := group.Debits()
		credits := group.Credits()

		n := len(debits)
		if len(credits) < n {
			n = len(credits)
		}
		if n == 0 {
			continue
		}

		for i := 0; i < n; i++ {
			result.cancelled[debits[i]] = true
			result.cancelled[credits[i]] = true
			if m.Config.CollectPairs {
				result.Pairs = append(result.Pairs, &OffsetPair{
					Key:    group.Key,
					Debit:  debits[i],
					Credit: credits[i],
				})
			}
		}
		result.pairCount += n

		m.logger.WithFields(logger.Fields{
			"key":     group.Key,
			"debits":  len(debits),
			"credits": len(credits),
			"pairs":   n,
		}).Debug("Cancelled offsetting pairs")
	}

	m.logger.WithFields(logger.Fields{
		"rows":             result.Index.Rows,
		"groups":           result.Index.Groups,
		"candidate_groups": result.Index.CandidateGroups,
		"pairs":            result.pairCount,
	}).Info("Offset cancellation completed")

	return result
}
