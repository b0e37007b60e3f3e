// Package rankings applies column filters, sorting and pagination to ranking snapshots.
package rankings

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/tsarena/internal/domain/format"
	"github.com/okian/tsarena/internal/domain/pagination"
	"github.com/okian/tsarena/internal/domain/types"
)

// ErrUnknownColumn is returned for sort or filter columns the table does not have.
var ErrUnknownColumn = errors.New("unknown column")

// Column names a sortable table column.
type Column string

// Table columns.
const (
	ColRankPosition     Column = "rank_position"
	ColModelName        Column = "model_name"
	ColReadableID       Column = "readable_id"
	ColEloMedian        Column = "elo_rating_median"
	ColAvgMASE          Column = "avg_mase"
	ColEvaluatedCount   Column = "evaluated_count"
	ColMatchesPlayed    Column = "matches_played"
	ColOrganizationName Column = "organization_name"
	ColArchitecture     Column = "architecture"
	ColModelSize        Column = "model_size"
)

// ParseColumn validates a column name.
func ParseColumn(s string) (Column, error) {
	c := Column(strings.TrimSpace(s))
	if _, ok := accessors[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, s)
	}
	return c, nil
}

// Direction of a sort.
type Direction string

// Sort directions.
const (
	None Direction = ""
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is the active sort of the table.
type Sort struct {
	Column    Column    `json:"column,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// DefaultSort orders by rank position ascending.
var DefaultSort = Sort{Column: ColRankPosition, Direction: Asc}

// Toggle returns the sort after clicking column: asc, then desc, then unsorted.
// Clicking a different column starts over at asc.
func (s Sort) Toggle(c Column) Sort {
	if s.Column != c {
		return Sort{Column: c, Direction: Asc}
	}
	switch s.Direction {
	case Asc:
		return Sort{Column: c, Direction: Desc}
	case Desc:
		return Sort{}
	}
	return Sort{Column: c, Direction: Asc}
}

// Query describes the table state to apply.
type Query struct {
	Sort     Sort
	Text     map[Column]string
	MaxSize  *float64
	Page     int
	PageSize int
}

// Row is a ranking entry with its rendered interval diffs.
type Row struct {
	types.RankingEntry
	EloUpperDiff  float64 `json:"elo_ci_upper_diff"`
	EloLowerDiff  float64 `json:"elo_ci_lower_diff"`
	MASEText      string  `json:"mase_text"`
	EvaluatedText string  `json:"evaluated_text"`
}

// Result is a filtered, sorted page of the table.
type Result struct {
	Sort  Sort                 `json:"sort"`
	Page  pagination.Page[Row] `json:"page"`
	Total int                  `json:"total"`
}

// value is a comparable cell value; nil values sort last in both directions.
type value struct {
	num  *float64
	text *string
}

func num(f float64) value     { return value{num: &f} }
func text(s string) value     { return value{text: &s} }
func optNum(f *float64) value { return value{num: f} }

func optText(s *string) value {
	if s == nil {
		return value{}
	}
	return text(*s)
}

func optInt(i *int) value {
	if i == nil {
		return value{}
	}
	return num(float64(*i))
}

var accessors = map[Column]func(types.RankingEntry) value{
	ColRankPosition:     func(r types.RankingEntry) value { return num(float64(r.RankPosition)) },
	ColModelName:        func(r types.RankingEntry) value { return text(r.ModelName) },
	ColReadableID:       func(r types.RankingEntry) value { return text(r.ReadableID) },
	ColEloMedian:        func(r types.RankingEntry) value { return num(r.EloMedian) },
	ColAvgMASE:          func(r types.RankingEntry) value { return optNum(r.AvgMASE) },
	ColEvaluatedCount:   func(r types.RankingEntry) value { return optInt(r.EvaluatedCount) },
	ColMatchesPlayed:    func(r types.RankingEntry) value { return num(float64(r.MatchesPlayed)) },
	ColOrganizationName: func(r types.RankingEntry) value { return text(r.OrganizationName) },
	ColArchitecture:     func(r types.RankingEntry) value { return optText(r.Architecture) },
	ColModelSize:        func(r types.RankingEntry) value { return optNum(r.ModelSize) },
}

func (v value) missing() bool { return v.num == nil && v.text == nil }

// compare returns -1, 0 or 1. Both values must be present.
func (v value) compare(o value) int {
	if v.num != nil && o.num != nil {
		switch {
		case *v.num < *o.num:
			return -1
		case *v.num > *o.num:
			return 1
		}
		return 0
	}
	a, b := "", ""
	if v.text != nil {
		a = strings.ToLower(*v.text)
	}
	if o.text != nil {
		b = strings.ToLower(*o.text)
	}
	return strings.Compare(a, b)
}

// Filter keeps the rows matching every text filter and the size threshold.
// Text filters are case-insensitive substring matches. A size threshold drops
// rows whose size is above it and rows with unknown size.
func Filter(rows []types.RankingEntry, textFilters map[Column]string, maxSize *float64) []types.RankingEntry {
	out := make([]types.RankingEntry, 0, len(rows))
	for _, r := range rows {
		if maxSize != nil && (r.ModelSize == nil || *r.ModelSize > *maxSize) {
			continue
		}
		if !matchesText(r, textFilters) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesText(r types.RankingEntry, filters map[Column]string) bool {
	for col, needle := range filters {
		needle = strings.ToLower(strings.TrimSpace(needle))
		if needle == "" {
			continue
		}
		get, ok := accessors[col]
		if !ok {
			continue
		}
		v := get(r)
		if v.text == nil || !strings.Contains(strings.ToLower(*v.text), needle) {
			return false
		}
	}
	return true
}

// SortRows stably sorts rows in place by s. An empty sort keeps the input order.
func SortRows(rows []types.RankingEntry, s Sort) {
	get, ok := accessors[s.Column]
	if !ok || s.Direction == None {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := get(rows[i]), get(rows[j])
		switch {
		case a.missing() && b.missing():
			return false
		case a.missing():
			return false
		case b.missing():
			return true
		}
		c := a.compare(b)
		if s.Direction == Desc {
			return c > 0
		}
		return c < 0
	})
}

// Apply filters, sorts and paginates rows. The input slice is not modified.
func Apply(rows []types.RankingEntry, q Query) Result {
	filtered := Filter(rows, q.Text, q.MaxSize)
	SortRows(filtered, q.Sort)

	out := make([]Row, len(filtered))
	for i, r := range filtered {
		out[i] = render(r)
	}
	return Result{Sort: q.Sort, Page: pagination.Slice(out, q.Page, q.PageSize), Total: len(out)}
}

func render(r types.RankingEntry) Row {
	row := Row{RankingEntry: r, MASEText: "N/A", EvaluatedText: format.Count(r.EvaluatedCount)}
	if up, low, err := r.EloCI(); err == nil {
		row.EloUpperDiff, row.EloLowerDiff = up, low
	}
	if r.AvgMASE != nil && r.MASEStd != nil {
		row.MASEText = fmt.Sprintf("%.3f ± %.3f", *r.AvgMASE, *r.MASEStd)
	}
	return row
}
