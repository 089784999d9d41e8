// Package worker mirrors a user's budget periods from SQLite into a JSON
// snapshot file on remote storage.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/drive"
	"bilancio/internal/storage"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// maxExpenseLoads bounds how many per-period expense queries run at once
// while building a snapshot.
const maxExpenseLoads = 4

// SyncWorker handles synchronization of budget periods from SQLite to the
// snapshot store. The database stays authoritative: every sync re-reads the
// full state and overwrites the remote snapshot.
type SyncWorker struct {
	storage  *storage.SQLiteRepository
	uploader drive.SnapshotUploader
}

func NewSyncWorker(storage *storage.SQLiteRepository, uploader drive.SnapshotUploader) *SyncWorker {
	return &SyncWorker{
		storage:  storage,
		uploader: uploader,
	}
}

// snapshot is the JSON document uploaded per user.
type snapshot struct {
	UserID      string           `json:"user_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Periods     []snapshotPeriod `json:"periods"`
}

type snapshotPeriod struct {
	ID              string            `json:"id"`
	Year            int               `json:"year"`
	MonthlyPayment  decimal.Decimal   `json:"monthly_payment"`
	MonthlyPayments []decimal.Decimal `json:"monthly_payments,omitempty"`
	PreviousBalance decimal.Decimal   `json:"previous_balance"`
	EndingBalance   decimal.Decimal   `json:"ending_balance"`
	Status          string            `json:"status"`
	Expenses        []snapshotExpense `json:"expenses"`
}

type snapshotExpense struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Amount         decimal.Decimal   `json:"amount"`
	Frequency      string            `json:"frequency"`
	StartMonth     int               `json:"start_month"`
	EndMonth       int               `json:"end_month"`
	MonthlyAmounts []decimal.Decimal `json:"monthly_amounts,omitempty"`
}

// HandleSyncMessage processes a single periods sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.PeriodsSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"user_id", msg.UserID,
		"periods", msg.Periods)

	if msg.UserID == "" {
		slog.WarnContext(ctx, "Skipping sync message with empty user id")
		return nil
	}

	return w.SyncUser(ctx, msg.UserID)
}

// SyncUser rebuilds the user's snapshot from the database and uploads it.
func (w *SyncWorker) SyncUser(ctx context.Context, userID string) error {
	snap, err := w.buildSnapshot(ctx, userID)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ref, err := w.uploader.Upload(ctx, SnapshotName(userID), payload)
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Successfully synced periods snapshot",
		"user_id", userID,
		"periods", len(snap.Periods),
		"ref", ref,
		"bytes", len(payload))

	return nil
}

// buildSnapshot joins the user's periods with their expense lists. Expense
// loads for different periods run concurrently.
func (w *SyncWorker) buildSnapshot(ctx context.Context, userID string) (snapshot, error) {
	periods, err := w.storage.ListPeriods(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("list periods: %w", err)
	}

	out := make([]snapshotPeriod, len(periods))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxExpenseLoads)
	for i, p := range periods {
		g.Go(func() error {
			expenses, err := w.storage.ListExpenses(gctx, userID, p.ID)
			if err != nil {
				return fmt.Errorf("list expenses for period %s: %w", p.ID, err)
			}
			out[i] = toSnapshotPeriod(p, expenses)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}

	return snapshot{
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
		Periods:     out,
	}, nil
}

func toSnapshotPeriod(p core.BudgetPeriod, expenses []core.Expense) snapshotPeriod {
	sp := snapshotPeriod{
		ID:              p.ID,
		Year:            p.Year,
		MonthlyPayment:  p.MonthlyPayment,
		MonthlyPayments: p.MonthlyPayments,
		PreviousBalance: p.PreviousBalance,
		EndingBalance:   core.CalculateEndingBalance(p, expenses),
		Status:          string(p.Status),
		Expenses:        make([]snapshotExpense, len(expenses)),
	}
	for i, e := range expenses {
		sp.Expenses[i] = snapshotExpense{
			ID:             e.ID,
			Name:           e.Name,
			Amount:         e.Amount,
			Frequency:      string(e.Frequency),
			StartMonth:     e.StartMonth,
			EndMonth:       e.EndMonth,
			MonthlyAmounts: e.MonthlyAmounts,
		}
	}
	return sp
}

// SnapshotName is the remote file name for a user's snapshot.
func SnapshotName(userID string) string {
	return fmt.Sprintf("periods-%s.json", userID)
}

// SweepAllUsers re-uploads a snapshot for every known user. This is the
// backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) SweepAllUsers(ctx context.Context) error {
	userIDs, err := w.storage.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list user ids: %w", err)
	}
	if len(userIDs) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Sweeping period snapshots", "users", len(userIDs))

	errorCount := 0
	for _, userID := range userIDs {
		if err := w.SyncUser(ctx, userID); err != nil {
			slog.ErrorContext(ctx, "Failed to sync user during sweep",
				"user_id", userID,
				"error", err)
			errorCount++
		}
	}

	slog.InfoContext(ctx, "Sweep completed",
		"total", len(userIDs),
		"errors", errorCount)

	if errorCount == len(userIDs) {
		return fmt.Errorf("sweep failed for all %d users", errorCount)
	}
	return nil
}

// RunPeriodicSweep blocks, sweeping all users at the given interval until
// the context ends. An initial sweep runs immediately to recover from
// missed messages or worker downtime.
func (w *SyncWorker) RunPeriodicSweep(ctx context.Context, interval time.Duration) error {
	if err := w.SweepAllUsers(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping periodic sweep", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.SweepAllUsers(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}
