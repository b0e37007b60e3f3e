package leaderboard_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/okian/tsarena/internal/domain/leaderboard"
	"github.com/okian/tsarena/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func intp(v int) *int { return &v }

func entry(model int, series int, rank *int) types.LeaderboardEntry {
	return types.LeaderboardEntry{
		ModelID:    model,
		ReadableID: fmt.Sprintf("m%d", model),
		ModelName:  fmt.Sprintf("Model %d", model),
		SeriesID:   series,
		SeriesName: fmt.Sprintf("S%d", series),
		Rank:       rank,
	}
}

func TestAggregate(t *testing.T) {
	Convey("Given leaderboard entries for two models over two series", t, func() {
		entries := []types.LeaderboardEntry{
			entry(1, 10, intp(1)),
			entry(1, 20, intp(3)),
			entry(2, 10, intp(2)),
			entry(2, 20, intp(1)),
		}

		Convey("When aggregating", func() {
			board := leaderboard.Aggregate(entries)

			Convey("Then models are ordered by mean rank", func() {
				So(len(board.Rows), ShouldEqual, 2)
				So(board.Rows[0].ModelID, ShouldEqual, 2)
				So(*board.Rows[0].AvgRank, ShouldEqual, 1.5)
				So(board.Rows[1].ModelID, ShouldEqual, 1)
				So(*board.Rows[1].AvgRank, ShouldEqual, 2.0)
			})

			Convey("And series columns are sorted by id", func() {
				So(board.Columns, ShouldResemble, []leaderboard.Column{
					{SeriesID: 10, Name: "S10"},
					{SeriesID: 20, Name: "S20"},
				})
			})
		})
	})

	Convey("Given entries where one model misses a series", t, func() {
		entries := []types.LeaderboardEntry{
			entry(1, 1, intp(1)),
			entry(1, 2, intp(1)),
			entry(2, 1, intp(2)),
		}

		Convey("When aggregating", func() {
			board := leaderboard.Aggregate(entries)

			Convey("Then the missing cell is marked as no data", func() {
				var m2 leaderboard.Row
				for _, r := range board.Rows {
					if r.ModelID == 2 {
						m2 = r
					}
				}
				So(m2.Cells[1].NoData, ShouldBeTrue)
				So(m2.Cells[1].Rank, ShouldBeNil)
				So(*m2.AvgRank, ShouldEqual, 2.0)
			})
		})
	})

	Convey("Given a model without any rank", t, func() {
		entries := []types.LeaderboardEntry{
			entry(5, 1, nil),
			entry(6, 1, intp(9)),
		}

		Convey("When aggregating", func() {
			board := leaderboard.Aggregate(entries)

			Convey("Then it sorts after every ranked model", func() {
				So(board.Rows[0].ModelID, ShouldEqual, 6)
				So(board.Rows[1].ModelID, ShouldEqual, 5)
				So(board.Rows[1].AvgRank, ShouldBeNil)
			})
		})
	})

	Convey("Given duplicate results for the same model and series", t, func() {
		entries := []types.LeaderboardEntry{
			entry(1, 1, intp(4)),
			entry(1, 1, intp(2)),
		}

		Convey("When aggregating", func() {
			board := leaderboard.Aggregate(entries)

			Convey("Then the best rank is kept", func() {
				So(*board.Rows[0].Cells[0].Rank, ShouldEqual, 2)
				So(*board.Rows[0].AvgRank, ShouldEqual, 2.0)
			})
		})
	})

	Convey("Given the same entries in different orders", t, func() {
		var entries []types.LeaderboardEntry
		for m := 1; m <= 6; m++ {
			for s := 1; s <= 4; s++ {
				if (m+s)%5 == 0 {
					continue
				}
				entries = append(entries, entry(m, s, intp((m*s)%7+1)))
			}
		}

		Convey("When aggregating shuffled copies", func() {
			want := leaderboard.Aggregate(entries)
			r := rand.New(rand.NewSource(42))
			for i := 0; i < 20; i++ {
				shuffled := make([]types.LeaderboardEntry, len(entries))
				copy(shuffled, entries)
				r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
				So(leaderboard.Aggregate(shuffled), ShouldResemble, want)
			}
		})

		Convey("When ranks are present", func() {
			board := leaderboard.Aggregate(entries)

			Convey("Then average ranks never decrease down the board", func() {
				for i := 1; i < len(board.Rows); i++ {
					So(*board.Rows[i-1].AvgRank, ShouldBeLessThanOrEqualTo, *board.Rows[i].AvgRank)
				}
			})
		})
	})

	Convey("Given a series without a name", t, func() {
		e := entry(1, 3, intp(1))
		e.SeriesName = ""
		board := leaderboard.Aggregate([]types.LeaderboardEntry{e})
		So(board.Columns[0].Name, ShouldEqual, "Series 3")
	})
}

func TestBoardPage(t *testing.T) {
	Convey("Given a board with 12 models", t, func() {
		var entries []types.LeaderboardEntry
		for m := 1; m <= 12; m++ {
			entries = append(entries, entry(m, 1, intp(m)))
		}
		board := leaderboard.Aggregate(entries)

		Convey("When requesting the second page of 10", func() {
			page := board.Page(2, 10)

			Convey("Then it holds the last two models", func() {
				So(len(page.Rows.Items), ShouldEqual, 2)
				So(page.Rows.Items[0].ModelID, ShouldEqual, 11)
				So(page.Rows.TotalPages, ShouldEqual, 2)
			})
		})
	})
}
