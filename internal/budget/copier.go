package budget

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/storage"
)

// Copier duplicates expense sets between periods and templates. Every copy
// runs as one storage transaction, so an aborted copy leaves no rows
// behind. Source rows are never mutated, and re-running a copy duplicates
// again: there is no delete-before-copy.
type Copier struct {
	store *storage.SQLiteRepository
}

func NewCopier(store *storage.SQLiteRepository) *Copier {
	return &Copier{store: store}
}

// CopyAll copies every expense of the source period into the destination,
// assigning fresh identifiers and timestamps. Returns the number copied.
func (c *Copier) CopyAll(ctx context.Context, userID, fromPeriodID, toPeriodID string) (int, error) {
	count, err := c.store.CopyExpenses(ctx, storage.CopyExpensesParams{
		UserID:       userID,
		FromPeriodID: fromPeriodID,
		ToPeriodID:   toPeriodID,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("copy expenses from %s to %s: %w", fromPeriodID, toPeriodID, err)
	}
	return count, nil
}

// CopySelected copies only the given expense ids. An empty or nil subset
// is a no-op: zero copies, no query issued.
func (c *Copier) CopySelected(ctx context.Context, userID, fromPeriodID, toPeriodID string, expenseIDs []string) (int, error) {
	if len(expenseIDs) == 0 {
		return 0, nil
	}
	count, err := c.store.CopyExpenses(ctx, storage.CopyExpensesParams{
		UserID:       userID,
		FromPeriodID: fromPeriodID,
		ToPeriodID:   toPeriodID,
		IDs:          expenseIDs,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("copy selected expenses from %s to %s: %w", fromPeriodID, toPeriodID, err)
	}
	return count, nil
}
