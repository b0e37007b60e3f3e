// Package leaderboard turns flat per-series results of a round into a
// model-by-series rank matrix ordered by average rank.
package leaderboard

import (
	"fmt"
	"sort"

	"github.com/okian/tsarena/internal/domain/pagination"
	"github.com/okian/tsarena/internal/domain/types"
)

// Column is a series column of the board.
type Column struct {
	SeriesID int    `json:"series_id"`
	Name     string `json:"name"`
}

// Cell is the rank of one model on one series. NoData marks a series the model has no rank for.
type Cell struct {
	SeriesID int      `json:"series_id"`
	Rank     *int     `json:"rank,omitempty"`
	MASE     *float64 `json:"mase,omitempty"`
	NoData   bool     `json:"no_data,omitempty"`
}

// Row is one model of the board. AvgRank is nil when the model has no ranked series.
type Row struct {
	ModelID    int      `json:"model_id"`
	ReadableID string   `json:"readable_id"`
	ModelName  string   `json:"model_name"`
	AvgRank    *float64 `json:"avg_rank"`
	Cells      []Cell   `json:"cells"`
}

// Board is the aggregated leaderboard of a round.
type Board struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

type rankCell struct {
	rank int
	mase *float64
}

// Aggregate groups entries by model and orders models by mean rank.
// The result does not depend on the order of entries.
func Aggregate(entries []types.LeaderboardEntry) Board {
	sorted := make([]types.LeaderboardEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SeriesID != sorted[j].SeriesID {
			return sorted[i].SeriesID < sorted[j].SeriesID
		}
		if sorted[i].ModelID != sorted[j].ModelID {
			return sorted[i].ModelID < sorted[j].ModelID
		}
		ri, rj := sorted[i].Rank, sorted[j].Rank
		if ri != nil && rj != nil && *ri != *rj {
			return *ri < *rj
		}
		if (ri == nil) != (rj == nil) {
			return ri != nil
		}
		return sorted[i].SeriesName < sorted[j].SeriesName
	})

	columns := columnsOf(sorted)

	type acc struct {
		row   Row
		ranks map[int]rankCell
	}
	byModel := make(map[int]*acc)
	order := make([]int, 0)
	for _, e := range sorted {
		a, ok := byModel[e.ModelID]
		if !ok {
			a = &acc{
				row:   Row{ModelID: e.ModelID, ReadableID: e.ReadableID, ModelName: e.ModelName},
				ranks: make(map[int]rankCell),
			}
			byModel[e.ModelID] = a
			order = append(order, e.ModelID)
		}
		if e.Rank == nil {
			continue
		}
		// Duplicate (model, series) pairs keep the best rank.
		if prev, seen := a.ranks[e.SeriesID]; seen && prev.rank <= *e.Rank {
			continue
		}
		a.ranks[e.SeriesID] = rankCell{rank: *e.Rank, mase: e.MASE}
	}

	rows := make([]Row, 0, len(order))
	for _, id := range order {
		a := byModel[id]
		row := a.row
		row.Cells = make([]Cell, len(columns))
		sum := 0
		for i, c := range columns {
			rc, ok := a.ranks[c.SeriesID]
			if !ok {
				row.Cells[i] = Cell{SeriesID: c.SeriesID, NoData: true}
				continue
			}
			rank := rc.rank
			row.Cells[i] = Cell{SeriesID: c.SeriesID, Rank: &rank, MASE: rc.mase}
			sum += rank
		}
		if n := len(a.ranks); n > 0 {
			avg := float64(sum) / float64(n)
			row.AvgRank = &avg
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ai, aj := rows[i].AvgRank, rows[j].AvgRank
		switch {
		case ai == nil && aj == nil:
		case ai == nil:
			return false
		case aj == nil:
			return true
		case *ai != *aj:
			return *ai < *aj
		}
		return rows[i].ModelID < rows[j].ModelID
	})

	return Board{Columns: columns, Rows: rows}
}

// columnsOf returns distinct series sorted by id, named after their first occurrence.
func columnsOf(sorted []types.LeaderboardEntry) []Column {
	cols := make([]Column, 0)
	seen := make(map[int]bool)
	for _, e := range sorted {
		if seen[e.SeriesID] {
			continue
		}
		seen[e.SeriesID] = true
		name := e.SeriesName
		if name == "" {
			name = fmt.Sprintf("Series %d", e.SeriesID)
		}
		cols = append(cols, Column{SeriesID: e.SeriesID, Name: name})
	}
	return cols
}

// Paged is one page of a board together with its page strip.
type Paged struct {
	Columns []Column             `json:"columns"`
	Rows    pagination.Page[Row] `json:"rows"`
}

// Page returns page k of the board rows.
func (b Board) Page(page, size int) Paged {
	return Paged{Columns: b.Columns, Rows: pagination.Slice(b.Rows, page, size)}
}
