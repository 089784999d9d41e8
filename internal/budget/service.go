// Package budget implements the period lifecycle: creating, archiving and
// deleting fiscal-year budget periods and templates, copying expense sets
// between them, and tracking the user's active period.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// SnapshotNotifier receives the freshly reloaded period list after every
// mutating operation. It is best-effort: failures are logged and never
// surfaced to the caller.
type SnapshotNotifier interface {
	PublishPeriodsSnapshot(ctx context.Context, userID string, periods []core.BudgetPeriod) error
}

// PeriodService orchestrates period operations over the SQLite store and
// the snapshot notifier. The notifier may be nil when sync is disabled.
type PeriodService struct {
	store    *storage.SQLiteRepository
	notifier SnapshotNotifier
	copier   *Copier

	bootstrap singleflight.Group
	guards    sync.Map // userID -> *InitGuard
}

func NewPeriodService(store *storage.SQLiteRepository, notifier SnapshotNotifier) *PeriodService {
	return &PeriodService{
		store:    store,
		notifier: notifier,
		copier:   NewCopier(store),
	}
}

// PeriodRef identifies the outcome of a period-creating operation.
type PeriodRef struct {
	ID     string            `json:"id"`
	Year   int               `json:"year"`
	Status core.PeriodStatus `json:"status"`
}

// TemplateRef identifies a saved template.
type TemplateRef struct {
	ID           string `json:"id"`
	TemplateName string `json:"templateName"`
}

// CreatePeriodInput carries the fields accepted when creating a period.
// Nil amounts fall back to defaults (5700 monthly payment, zero carryover).
type CreatePeriodInput struct {
	Year             int
	MonthlyPayment   *decimal.Decimal
	PreviousBalance  *decimal.Decimal
	MonthlyPayments  []decimal.Decimal
	Status           core.PeriodStatus
	CopyExpensesFrom string
}

// CreateFromTemplateInput carries the fields for seeding a new year from a
// template. An empty SelectedExpenseIDs copies the template's full set.
type CreateFromTemplateInput struct {
	TemplateID         string
	Year               int
	PreviousBalance    *decimal.Decimal
	SelectedExpenseIDs []string
}

// PeriodExpenses is the read-only projection of a period with its full
// expense list, used for side-by-side year comparison.
type PeriodExpenses struct {
	core.BudgetPeriod
	Expenses []core.Expense
}

// CreatePeriod validates and inserts a new fiscal-year period, optionally
// copying the expense set of another period into it.
func (s *PeriodService) CreatePeriod(ctx context.Context, userID string, in CreatePeriodInput) (PeriodRef, error) {
	if userID == "" {
		return PeriodRef{}, nil
	}

	if err := core.ValidateYear(in.Year); err != nil {
		return PeriodRef{}, err
	}
	if in.MonthlyPayments != nil && len(in.MonthlyPayments) != core.MonthsPerYear {
		return PeriodRef{}, core.ValidationError{Field: "monthlyPayments", Reason: "must contain exactly 12 values"}
	}
	status := in.Status
	if status == "" {
		status = core.StatusActive
	}
	if !status.Valid() {
		return PeriodRef{}, core.ValidationError{Field: "status", Reason: "must be active or archived"}
	}

	exists, err := s.store.PeriodExistsForYear(ctx, userID, in.Year)
	if err != nil {
		return PeriodRef{}, fmt.Errorf("check existing year: %w", err)
	}
	if exists {
		return PeriodRef{}, core.DuplicateYearError{Year: in.Year}
	}

	now := time.Now().UTC()
	p := core.BudgetPeriod{
		ID:              core.NewID(),
		UserID:          userID,
		Year:            in.Year,
		MonthlyPayment:  paymentOrDefault(in.MonthlyPayment),
		MonthlyPayments: in.MonthlyPayments,
		PreviousBalance: valueOrZero(in.PreviousBalance),
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.InsertPeriod(ctx, p); err != nil {
		return PeriodRef{}, fmt.Errorf("create period: %w", err)
	}

	if in.CopyExpensesFrom != "" {
		if _, err := s.copier.CopyAll(ctx, userID, in.CopyExpensesFrom, p.ID); err != nil {
			return PeriodRef{}, fmt.Errorf("copy expenses into new period: %w", err)
		}
	}

	if err := s.refreshAndNotify(ctx, userID); err != nil {
		return PeriodRef{}, err
	}

	return PeriodRef{ID: p.ID, Year: p.Year, Status: p.Status}, nil
}

// UpdatePeriod applies a partial update. A patched monthly payment is
// clamped to zero when negative; an unresolvable id touches nothing.
func (s *PeriodService) UpdatePeriod(ctx context.Context, userID, id string, patch core.PeriodPatch) error {
	if userID == "" {
		return nil
	}

	if patch.MonthlyPayment != nil && patch.MonthlyPayment.IsNegative() {
		zero := decimal.Zero
		patch.MonthlyPayment = &zero
	}
	if patch.MonthlyPayments != nil && *patch.MonthlyPayments != nil && len(*patch.MonthlyPayments) != core.MonthsPerYear {
		return core.ValidationError{Field: "monthlyPayments", Reason: "must contain exactly 12 values"}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return core.ValidationError{Field: "status", Reason: "must be active or archived"}
	}

	if _, err := s.store.UpdatePeriod(ctx, userID, id, patch, time.Now().UTC()); err != nil {
		return fmt.Errorf("update period: %w", err)
	}

	return s.refreshAndNotify(ctx, userID)
}

// ArchivePeriod marks a period archived. When the archived period was the
// active one, the pointer moves to a remaining active-status period, or to
// the first period in stored order, or is left cleared.
func (s *PeriodService) ArchivePeriod(ctx context.Context, userID, id string) error {
	if userID == "" {
		return nil
	}

	archived := core.StatusArchived
	if err := s.UpdatePeriod(ctx, userID, id, core.PeriodPatch{Status: &archived}); err != nil {
		return err
	}

	active, err := s.store.ActivePeriodID(ctx, userID)
	if err != nil {
		return fmt.Errorf("read active pointer: %w", err)
	}
	if active != id {
		return nil
	}

	if err := s.store.ClearActivePeriodID(ctx, userID); err != nil {
		return fmt.Errorf("clear active pointer: %w", err)
	}
	periods, err := s.store.ListPeriods(ctx, userID)
	if err != nil {
		return fmt.Errorf("reload periods: %w", err)
	}
	if replacement := core.SelectActivePeriod(periods, ""); replacement != nil {
		if err := s.store.SetActivePeriodID(ctx, userID, replacement.ID); err != nil {
			return fmt.Errorf("persist replacement active pointer: %w", err)
		}
	}
	return nil
}

// UnarchivePeriod restores a period to active status.
func (s *PeriodService) UnarchivePeriod(ctx context.Context, userID, id string) error {
	if userID == "" {
		return nil
	}
	active := core.StatusActive
	return s.UpdatePeriod(ctx, userID, id, core.PeriodPatch{Status: &active})
}

// DeletePeriod removes a period; the storage cascade removes its expenses.
// Deleting the active period clears the pointer.
func (s *PeriodService) DeletePeriod(ctx context.Context, userID, id string) error {
	if userID == "" {
		return nil
	}

	active, err := s.store.ActivePeriodID(ctx, userID)
	if err != nil {
		return fmt.Errorf("read active pointer: %w", err)
	}

	if _, err := s.store.DeletePeriod(ctx, userID, id); err != nil {
		return fmt.Errorf("delete period: %w", err)
	}

	if active == id {
		if err := s.store.ClearActivePeriodID(ctx, userID); err != nil {
			return fmt.Errorf("clear active pointer: %w", err)
		}
	}

	return s.refreshAndNotify(ctx, userID)
}

// CalculateEndingBalance projects the year-end balance for one period.
func (s *PeriodService) CalculateEndingBalance(ctx context.Context, userID, periodID string) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, nil
	}

	period, err := s.store.GetPeriod(ctx, userID, periodID)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, core.NotFoundError{Kind: "period", ID: periodID}
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load period: %w", err)
	}

	expenses, err := s.store.ListExpenses(ctx, userID, periodID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load expenses: %w", err)
	}

	return core.CalculateEndingBalance(period, expenses), nil
}

// Periods returns the user's period list, bootstrapping a default period
// the first time a user shows up with none at all.
func (s *PeriodService) Periods(ctx context.Context, userID string) ([]core.BudgetPeriod, error) {
	if userID == "" {
		return nil, nil
	}

	periods, err := s.store.ListPeriods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	if len(periods) > 0 {
		return periods, nil
	}

	if err := s.ensureDefaultPeriod(ctx, userID); err != nil {
		return nil, err
	}
	periods, err = s.store.ListPeriods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list periods after bootstrap: %w", err)
	}
	return periods, nil
}

// ActivePeriod resolves the user's active period: the persisted pointer if
// it still resolves, else the first active-status period, else the first
// period in stored order, else nil.
func (s *PeriodService) ActivePeriod(ctx context.Context, userID string) (*core.BudgetPeriod, error) {
	if userID == "" {
		return nil, nil
	}

	periods, err := s.Periods(ctx, userID)
	if err != nil {
		return nil, err
	}
	pointer, err := s.store.ActivePeriodID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read active pointer: %w", err)
	}
	return core.SelectActivePeriod(periods, pointer), nil
}

// SetActivePeriod persists the user's selected period id.
func (s *PeriodService) SetActivePeriod(ctx context.Context, userID, periodID string) error {
	if userID == "" {
		return nil
	}
	if _, err := s.store.GetPeriod(ctx, userID, periodID); errors.Is(err, storage.ErrNotFound) {
		return core.NotFoundError{Kind: "period", ID: periodID}
	} else if err != nil {
		return fmt.Errorf("load period: %w", err)
	}
	return s.store.SetActivePeriodID(ctx, userID, periodID)
}

// Templates lists the user's saved templates ordered by name.
func (s *PeriodService) Templates(ctx context.Context, userID string) ([]core.BudgetPeriod, error) {
	if userID == "" {
		return nil, nil
	}
	templates, err := s.store.ListTemplates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// SaveAsTemplate snapshots a period's income configuration and expense set
// as a reusable template. Templates never carry a balance.
func (s *PeriodService) SaveAsTemplate(ctx context.Context, userID, periodID, name, description string) (TemplateRef, error) {
	if userID == "" {
		return TemplateRef{}, nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return TemplateRef{}, core.ValidationError{Field: "templateName", Reason: "must not be empty"}
	}

	src, err := s.store.GetPeriod(ctx, userID, periodID)
	if errors.Is(err, storage.ErrNotFound) {
		return TemplateRef{}, core.NotFoundError{Kind: "period", ID: periodID}
	}
	if err != nil {
		return TemplateRef{}, fmt.Errorf("load source period: %w", err)
	}

	now := time.Now().UTC()
	tmpl := core.BudgetPeriod{
		ID:              core.NewID(),
		UserID:          userID,
		Year:            core.TemplateYear,
		MonthlyPayment:  src.MonthlyPayment,
		MonthlyPayments: src.MonthlyPayments,
		PreviousBalance: decimal.Zero,
		Status:          core.StatusActive,
		IsTemplate:      true,
		TemplateName:    name,
		TemplateDesc:    strings.TrimSpace(description),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.InsertPeriod(ctx, tmpl); err != nil {
		return TemplateRef{}, fmt.Errorf("create template: %w", err)
	}

	if _, err := s.copier.CopyAll(ctx, userID, src.ID, tmpl.ID); err != nil {
		return TemplateRef{}, fmt.Errorf("copy expenses into template: %w", err)
	}

	if err := s.refreshAndNotify(ctx, userID); err != nil {
		return TemplateRef{}, err
	}

	return TemplateRef{ID: tmpl.ID, TemplateName: tmpl.TemplateName}, nil
}

// DeleteTemplate removes a template and, via the cascade, its expenses.
// Real periods are unreachable through this path.
func (s *PeriodService) DeleteTemplate(ctx context.Context, userID, templateID string) error {
	if userID == "" {
		return nil
	}
	if _, err := s.store.DeleteTemplate(ctx, userID, templateID); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return s.refreshAndNotify(ctx, userID)
}

// CreateFromTemplate seeds a new fiscal-year period from a template,
// copying either the whole expense set or a selected subset.
func (s *PeriodService) CreateFromTemplate(ctx context.Context, userID string, in CreateFromTemplateInput) (PeriodRef, error) {
	if userID == "" {
		return PeriodRef{}, nil
	}

	tmpl, err := s.store.GetTemplate(ctx, userID, in.TemplateID)
	if errors.Is(err, storage.ErrNotFound) {
		return PeriodRef{}, core.NotFoundError{Kind: "template", ID: in.TemplateID}
	}
	if err != nil {
		return PeriodRef{}, fmt.Errorf("load template: %w", err)
	}

	exists, err := s.store.PeriodExistsForYear(ctx, userID, in.Year)
	if err != nil {
		return PeriodRef{}, fmt.Errorf("check existing year: %w", err)
	}
	if exists {
		return PeriodRef{}, core.DuplicateYearError{Year: in.Year}
	}

	now := time.Now().UTC()
	p := core.BudgetPeriod{
		ID:              core.NewID(),
		UserID:          userID,
		Year:            in.Year,
		MonthlyPayment:  tmpl.MonthlyPayment,
		MonthlyPayments: tmpl.MonthlyPayments,
		PreviousBalance: valueOrZero(in.PreviousBalance),
		Status:          core.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.InsertPeriod(ctx, p); err != nil {
		return PeriodRef{}, fmt.Errorf("create period from template: %w", err)
	}

	if len(in.SelectedExpenseIDs) > 0 {
		_, err = s.copier.CopySelected(ctx, userID, tmpl.ID, p.ID, in.SelectedExpenseIDs)
	} else {
		_, err = s.copier.CopyAll(ctx, userID, tmpl.ID, p.ID)
	}
	if err != nil {
		return PeriodRef{}, fmt.Errorf("copy template expenses: %w", err)
	}

	if err := s.refreshAndNotify(ctx, userID); err != nil {
		return PeriodRef{}, err
	}

	return PeriodRef{ID: p.ID, Year: p.Year, Status: p.Status}, nil
}

// CreateExpenseInput carries the fields accepted when adding an expense to
// a period.
type CreateExpenseInput struct {
	Name           string
	Amount         decimal.Decimal
	Frequency      core.Frequency
	StartMonth     int
	EndMonth       int
	MonthlyAmounts []decimal.Decimal
}

// CreateExpense validates and attaches a new expense to a period.
func (s *PeriodService) CreateExpense(ctx context.Context, userID, periodID string, in CreateExpenseInput) (core.Expense, error) {
	if userID == "" {
		return core.Expense{}, nil
	}

	if _, err := s.store.GetPeriod(ctx, userID, periodID); errors.Is(err, storage.ErrNotFound) {
		return core.Expense{}, core.NotFoundError{Kind: "period", ID: periodID}
	} else if err != nil {
		return core.Expense{}, fmt.Errorf("load period: %w", err)
	}

	now := time.Now().UTC()
	e := core.Expense{
		ID:             core.NewID(),
		UserID:         userID,
		BudgetPeriodID: periodID,
		Name:           strings.TrimSpace(in.Name),
		Amount:         in.Amount,
		Frequency:      in.Frequency,
		StartMonth:     in.StartMonth,
		EndMonth:       in.EndMonth,
		MonthlyAmounts: in.MonthlyAmounts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.store.InsertExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	if err := s.refreshAndNotify(ctx, userID); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// GetExpensesForPeriod joins one period with its expense list, ordered by
// expense name.
func (s *PeriodService) GetExpensesForPeriod(ctx context.Context, userID, periodID string) (PeriodExpenses, error) {
	if userID == "" {
		return PeriodExpenses{}, nil
	}

	period, err := s.store.GetPeriod(ctx, userID, periodID)
	if errors.Is(err, storage.ErrNotFound) {
		return PeriodExpenses{}, core.NotFoundError{Kind: "period", ID: periodID}
	}
	if err != nil {
		return PeriodExpenses{}, fmt.Errorf("load period: %w", err)
	}

	expenses, err := s.store.ListExpenses(ctx, userID, periodID)
	if err != nil {
		return PeriodExpenses{}, fmt.Errorf("load expenses: %w", err)
	}

	return PeriodExpenses{BudgetPeriod: period, Expenses: expenses}, nil
}

// ensureDefaultPeriod bootstraps one default period for a user with none.
// Concurrent triggers collapse into one run (singleflight); the per-user
// guard keeps the bootstrap from re-running on every reload for the rest
// of the process lifetime.
func (s *PeriodService) ensureDefaultPeriod(ctx context.Context, userID string) error {
	_, err, _ := s.bootstrap.Do(userID, func() (any, error) {
		guard := s.guardFor(userID)
		if !guard.TryAcquire() {
			return nil, nil
		}

		periods, err := s.store.ListPeriods(ctx, userID)
		if err != nil {
			guard.Release()
			return nil, fmt.Errorf("list periods for bootstrap: %w", err)
		}
		if len(periods) > 0 {
			return nil, nil
		}

		year := time.Now().Year()
		if err := core.ValidateYear(year); err != nil {
			year = core.MinYear
		}

		now := time.Now().UTC()
		p := core.BudgetPeriod{
			ID:              core.NewID(),
			UserID:          userID,
			Year:            year,
			MonthlyPayment:  core.DefaultMonthlyPayment,
			PreviousBalance: decimal.Zero,
			Status:          core.StatusActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.store.InsertPeriod(ctx, p); err != nil {
			guard.Release()
			return nil, fmt.Errorf("bootstrap default period: %w", err)
		}
		if err := s.store.SetActivePeriodID(ctx, userID, p.ID); err != nil {
			return nil, fmt.Errorf("persist bootstrap active pointer: %w", err)
		}

		slog.InfoContext(ctx, "Bootstrapped default period",
			"user_id", userID,
			"id", p.ID,
			"year", p.Year)

		s.notify(ctx, userID, []core.BudgetPeriod{p})
		return nil, nil
	})
	return err
}

func (s *PeriodService) guardFor(userID string) *InitGuard {
	g, _ := s.guards.LoadOrStore(userID, &InitGuard{})
	return g.(*InitGuard)
}

// refreshAndNotify re-reads the canonical period list and hands it to the
// sync notifier. Notifier failures are logged, never propagated: local
// state is already committed and stays authoritative.
func (s *PeriodService) refreshAndNotify(ctx context.Context, userID string) error {
	periods, err := s.store.ListPeriods(ctx, userID)
	if err != nil {
		return fmt.Errorf("reload periods: %w", err)
	}
	s.notify(ctx, userID, periods)
	return nil
}

func (s *PeriodService) notify(ctx context.Context, userID string, periods []core.BudgetPeriod) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishPeriodsSnapshot(ctx, userID, periods); err != nil {
		slog.ErrorContext(ctx, "Failed to publish periods snapshot",
			"user_id", userID,
			"periods", len(periods),
			"error", err)
	}
}

// paymentOrDefault applies the default monthly payment and clamps negative
// inputs to zero. Carryover balances are allowed to be negative, so they
// only default.
func paymentOrDefault(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return core.DefaultMonthlyPayment
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return *v
}

func valueOrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
