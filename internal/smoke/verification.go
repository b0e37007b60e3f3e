package smoke

import (
	"errors"
	"fmt"

	service "github.com/okian/tsarena/internal/app"
	"github.com/okian/tsarena/internal/domain/leaderboard"
	"github.com/okian/tsarena/internal/domain/types"
)

// Verification errors.
var (
	ErrPlaceholderMissing = errors.New("registration round without leaderboard placeholder")
	ErrBoardUnexpected    = errors.New("registration round with leaderboard rows")
	ErrBoardUnsorted      = errors.New("leaderboard not sorted by average rank")
	ErrStatusMismatch     = errors.New("round status differs from definition listing")
)

// verifyRoundView checks the invariants of a round view: registration rounds
// carry the placeholder and no board, other boards are ordered by average
// rank with unranked models last.
func verifyRoundView(ref RoundRef, view service.RoundView) error {
	if view.Round.Data != nil && ref.Status != "" && view.Round.Data.Status != ref.Status {
		// Rounds move on between the listing and the view; only report a step back.
		if !view.Round.Data.Status.Started() && ref.Status.Started() {
			return fmt.Errorf("%w: listed %s, got %s", ErrStatusMismatch, ref.Status, view.Round.Data.Status)
		}
	}

	lb := view.Leaderboard.Data
	if view.Round.Data != nil && view.Round.Data.Status == types.StatusRegistration {
		if lb.Placeholder == "" {
			return ErrPlaceholderMissing
		}
		if lb.Board != nil {
			return ErrBoardUnexpected
		}
		return nil
	}
	if view.Leaderboard.Error != nil || lb.Board == nil {
		return nil
	}
	return verifyBoardOrder(lb.Board.Rows.Items)
}

// verifyBoardOrder checks that rows are ordered by average rank ascending with
// rows without an average last.
func verifyBoardOrder(rows []leaderboard.Row) error {
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1].AvgRank, rows[i].AvgRank
		switch {
		case prev == nil && cur != nil:
			return fmt.Errorf("%w: row %d has an average after an unranked row", ErrBoardUnsorted, i)
		case prev != nil && cur != nil && *cur < *prev:
			return fmt.Errorf("%w: row %d (%.2f) before row %d (%.2f)", ErrBoardUnsorted, i-1, *prev, i, *cur)
		}
	}
	return nil
}
