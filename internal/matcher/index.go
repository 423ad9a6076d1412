package matcher

import (
	"wbs-auc-reconciliation/internal/models"
)

// OffsetGroup holds the rows sharing one offset key, in source order
type OffsetGroup struct {
	Key  string
	Rows []*models.TransactionRow
}

// Size returns the number of rows in the group
func (g *OffsetGroup) Size() int {
	return len(g.Rows)
}

// Debits returns the rows with a strictly positive amount, in source order
func (g *OffsetGroup) Debits() []*models.TransactionRow {
	var debits []*models.TransactionRow
	for _, row := range g.Rows {
		if row.IsDebit() {
			debits = append(debits, row)
		}
	}
	return debits
}

// Credits returns the rows with a strictly negative amount, in source order
func (g *OffsetGroup) Credits() []*models.TransactionRow {
	var credits []*models.TransactionRow
	for _, row := range g.Rows {
		if row.IsCredit() {
			credits = append(credits, row)
		}
	}
	return credits
}

// OffsetIndex groups rows by offset key. Groups are enumerated in the
// order their key first appears.
type OffsetIndex struct {
	groups map[string]*OffsetGroup
	order  []string
	total  int
}

// IndexStats provides statistics about an offset index
type IndexStats struct {
	Rows            int `json:"rows"`
	Groups          int `json:"groups"`
	CandidateGroups int `json:"candidate_groups"`
	LargestGroup    int `json:"largest_group"`
}

// NewOffsetIndex indexes rows by their OffsetKey
func NewOffsetIndex(rows []*models.TransactionRow) *OffsetIndex {
	index := &OffsetIndex{
		groups: make(map[string]*OffsetGroup),
		total:  len(rows),
	}

	for _, row := range rows {
		group, exists := index.groups[row.OffsetKey]
		if !exists {
			group = &OffsetGroup{Key: row.OffsetKey}
			index.groups[row.OffsetKey] = group
			index.order = append(index.order, row.OffsetKey)
		}
		group.Rows = append(group.Rows, row)
	}

	return index
}

// Groups returns every group in first-appearance order
func (oi *OffsetIndex) Groups() []*OffsetGroup {
	groups := make([]*OffsetGroup, len(oi.order))
	for i, key := range oi.order {
		groups[i] = oi.groups[key]
	}
	return groups
}

// Candidates returns the groups with at least minSize rows, in
// first-appearance order
func (oi *OffsetIndex) Candidates(minSize int) []*OffsetGroup {
	var candidates []*OffsetGroup
	for _, key := range oi.order {
		if group := oi.groups[key]; group.Size() >= minSize {
			candidates = append(candidates, group)
		}
	}
	return candidates
}

// GetStats returns statistics about the index
func (oi *OffsetIndex) GetStats(minSize int) IndexStats {
	groups := oi.Groups()
	stats := IndexStats{Rows: oi.total, Groups: len(groups)}
	for _, group := range groups {
		if group.Size() >= minSize {
			stats.CandidateGroups++
		}
		if group.Size() > stats.LargestGroup {
			stats.LargestGroup = group.Size()
		}
	}
	return stats
}
