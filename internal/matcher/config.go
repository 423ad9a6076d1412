// Package matcher implements offset-pair cancellation for WBS-AUC rows.
//
// Rows that share an offset key (WBS element, purchase order text, offset
// account name and absolute amount) are candidates for cancellation. Within
// each group the first n debits and the first n credits, in source order,
// cancel each other, where n is the smaller of the two counts. Nothing
// beyond the key and the sign is compared.
//
// Example usage:
//
//	m, err := matcher.NewOffsetMatcher(matcher.DefaultOffsetConfig())
//	result := m.Cancel(rows)
//	fmt.Println(result.PairCount())
package matcher

import "fmt"

// OffsetConfig holds the parameters of offset-pair cancellation
type OffsetConfig struct {
	// MinGroupSize is the smallest key group considered for cancellation
	MinGroupSize int `json:"min_group_size" yaml:"min_group_size" mapstructure:"min_group_size"`

	// CollectPairs keeps the individual debit/credit pairs in the result
	CollectPairs bool `json:"collect_pairs" yaml:"collect_pairs" mapstructure:"collect_pairs"`
}

// DefaultOffsetConfig returns the standard cancellation parameters
func DefaultOffsetConfig() *OffsetConfig {
	return &OffsetConfig{
		MinGroupSize: 2,
		CollectPairs: true,
	}
}

// Validate checks if the configuration is valid
func (c *OffsetConfig) Validate() error {
	if c.MinGroupSize < 2 {
		return fmt.Errorf("min group size must be at least 2, got %d", c.MinGroupSize)
	}
	return nil
}
