package budget

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"

	"github.com/shopspring/decimal"
)

type fakeNotifier struct {
	mu        sync.Mutex
	snapshots []snapshot
	err       error
}

type snapshot struct {
	userID  string
	periods []core.BudgetPeriod
}

func (f *fakeNotifier) PublishPeriodsSnapshot(_ context.Context, userID string, periods []core.BudgetPeriod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.snapshots = append(f.snapshots, snapshot{userID: userID, periods: periods})
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

func newTestService(t *testing.T) (*PeriodService, *storage.SQLiteRepository, *fakeNotifier) {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	notifier := &fakeNotifier{}
	return NewPeriodService(repo, notifier), repo, notifier
}

func mustCreate(t *testing.T, svc *PeriodService, userID string, in CreatePeriodInput) PeriodRef {
	t.Helper()
	ref, err := svc.CreatePeriod(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("CreatePeriod(%d) error = %v", in.Year, err)
	}
	return ref
}

func seedExpense(t *testing.T, repo *storage.SQLiteRepository, userID, periodID, name string, amount int64, freq core.Frequency) core.Expense {
	t.Helper()
	now := time.Now().UTC()
	e := core.Expense{
		ID:             core.NewID(),
		UserID:         userID,
		BudgetPeriodID: periodID,
		Name:           name,
		Amount:         decimal.NewFromInt(amount),
		Frequency:      freq,
		StartMonth:     1,
		EndMonth:       12,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.InsertExpense(context.Background(), e); err != nil {
		t.Fatalf("InsertExpense(%q) error = %v", name, err)
	}
	return e
}

func TestCreatePeriod(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	ref := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})
	if ref.ID == "" {
		t.Fatal("CreatePeriod() returned empty id")
	}
	if ref.Status != core.StatusActive {
		t.Errorf("Status = %q, want %q", ref.Status, core.StatusActive)
	}

	periods, err := svc.Periods(ctx, "alice")
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("len(periods) = %d, want 1", len(periods))
	}
	if !periods[0].MonthlyPayment.Equal(core.DefaultMonthlyPayment) {
		t.Errorf("MonthlyPayment = %s, want default %s", periods[0].MonthlyPayment, core.DefaultMonthlyPayment)
	}
	if notifier.count() == 0 {
		t.Error("notifier received no snapshot after create")
	}
}

func TestCreatePeriod_DuplicateYear(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})

	_, err := svc.CreatePeriod(ctx, "alice", CreatePeriodInput{Year: 2025})
	var dup core.DuplicateYearError
	if !errors.As(err, &dup) {
		t.Fatalf("CreatePeriod(duplicate year) error = %v, want DuplicateYearError", err)
	}
	if dup.Year != 2025 {
		t.Errorf("dup.Year = %d, want 2025", dup.Year)
	}

	// Same year under another user is fine.
	if _, err := svc.CreatePeriod(ctx, "bob", CreatePeriodInput{Year: 2025}); err != nil {
		t.Errorf("CreatePeriod(same year, other user) error = %v", err)
	}
}

func TestCreatePeriod_Validation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreatePeriodInput
	}{
		{"year below range", CreatePeriodInput{Year: 1999}},
		{"year above range", CreatePeriodInput{Year: 2101}},
		{"short series", CreatePeriodInput{Year: 2025, MonthlyPayments: make([]decimal.Decimal, 11)}},
		{"bad status", CreatePeriodInput{Year: 2025, Status: "paused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePeriod(ctx, "alice", tt.in)
			var verr core.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("CreatePeriod() error = %v, want ValidationError", err)
			}
		})
	}

	// Invalid inputs must not leave a period behind.
	periods, err := repo.ListPeriods(ctx, "alice")
	if err != nil {
		t.Fatalf("ListPeriods() error = %v", err)
	}
	if len(periods) != 0 {
		t.Errorf("len(periods) = %d after rejected creates, want 0", len(periods))
	}
}

func TestCreatePeriod_NegativeAmounts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	payment := decimal.NewFromInt(-100)
	carryover := decimal.NewFromInt(-250)
	ref := mustCreate(t, svc, "alice", CreatePeriodInput{
		Year:            2025,
		MonthlyPayment:  &payment,
		PreviousBalance: &carryover,
	})

	p, err := repo.GetPeriod(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("GetPeriod() error = %v", err)
	}
	if !p.MonthlyPayment.IsZero() {
		t.Errorf("MonthlyPayment = %s, want 0 (negative clamped)", p.MonthlyPayment)
	}
	if !p.PreviousBalance.Equal(carryover) {
		t.Errorf("PreviousBalance = %s, want %s (negative carryover kept)", p.PreviousBalance, carryover)
	}
}

func TestCreatePeriod_CopyExpensesFrom(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	src := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2024})
	e1 := seedExpense(t, repo, "alice", src.ID, "rent", 800, core.Monthly)
	e2 := seedExpense(t, repo, "alice", src.ID, "insurance", 300, core.Yearly)

	dst := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025, CopyExpensesFrom: src.ID})

	copied, err := repo.ListExpenses(ctx, "alice", dst.ID)
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(copied) != 2 {
		t.Fatalf("len(copied) = %d, want 2", len(copied))
	}
	for _, c := range copied {
		if c.ID == e1.ID || c.ID == e2.ID {
			t.Errorf("copied expense %q reuses source id", c.Name)
		}
		if c.BudgetPeriodID != dst.ID {
			t.Errorf("copied expense %q points at %q, want %q", c.Name, c.BudgetPeriodID, dst.ID)
		}
	}

	// Source set stays untouched.
	original, err := repo.ListExpenses(ctx, "alice", src.ID)
	if err != nil {
		t.Fatalf("ListExpenses(source) error = %v", err)
	}
	if len(original) != 2 {
		t.Errorf("len(source expenses) = %d, want 2", len(original))
	}
}

func TestUpdatePeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	ref := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})

	payment := decimal.NewFromInt(-50)
	balance := decimal.NewFromInt(1200)
	err := svc.UpdatePeriod(ctx, "alice", ref.ID, core.PeriodPatch{
		MonthlyPayment:  &payment,
		PreviousBalance: &balance,
	})
	if err != nil {
		t.Fatalf("UpdatePeriod() error = %v", err)
	}

	p, err := repo.GetPeriod(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("GetPeriod() error = %v", err)
	}
	if !p.MonthlyPayment.IsZero() {
		t.Errorf("MonthlyPayment = %s, want 0 (negative clamped)", p.MonthlyPayment)
	}
	if !p.PreviousBalance.Equal(balance) {
		t.Errorf("PreviousBalance = %s, want %s", p.PreviousBalance, balance)
	}

	// Unknown id is a silent no-op.
	if err := svc.UpdatePeriod(ctx, "alice", "missing", core.PeriodPatch{PreviousBalance: &balance}); err != nil {
		t.Errorf("UpdatePeriod(missing id) error = %v, want nil", err)
	}
}

func TestArchivePeriod_MovesActivePointer(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	first := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2024})
	second := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})

	if err := svc.SetActivePeriod(ctx, "alice", first.ID); err != nil {
		t.Fatalf("SetActivePeriod() error = %v", err)
	}

	if err := svc.ArchivePeriod(ctx, "alice", first.ID); err != nil {
		t.Fatalf("ArchivePeriod() error = %v", err)
	}

	p, err := repo.GetPeriod(ctx, "alice", first.ID)
	if err != nil {
		t.Fatalf("GetPeriod() error = %v", err)
	}
	if p.Status != core.StatusArchived {
		t.Errorf("Status = %q, want %q", p.Status, core.StatusArchived)
	}

	active, err := svc.ActivePeriod(ctx, "alice")
	if err != nil {
		t.Fatalf("ActivePeriod() error = %v", err)
	}
	if active == nil || active.ID != second.ID {
		t.Errorf("active period after archive = %+v, want id %q", active, second.ID)
	}
}

func TestArchivePeriod_LastPeriodStaysResolvable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	only := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})
	if err := svc.SetActivePeriod(ctx, "alice", only.ID); err != nil {
		t.Fatalf("SetActivePeriod() error = %v", err)
	}
	if err := svc.ArchivePeriod(ctx, "alice", only.ID); err != nil {
		t.Fatalf("ArchivePeriod() error = %v", err)
	}

	// With no active-status period left, resolution falls back to the first
	// period in stored order.
	active, err := svc.ActivePeriod(ctx, "alice")
	if err != nil {
		t.Fatalf("ActivePeriod() error = %v", err)
	}
	if active == nil || active.ID != only.ID {
		t.Errorf("ActivePeriod() = %+v, want archived period %q", active, only.ID)
	}
}

func TestUnarchivePeriod_PreservesFields(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	payment := decimal.NewFromInt(2000)
	balance := decimal.NewFromInt(-300)
	ref := mustCreate(t, svc, "alice", CreatePeriodInput{
		Year:            2025,
		MonthlyPayment:  &payment,
		PreviousBalance: &balance,
	})
	seedExpense(t, repo, "alice", ref.ID, "rent", 800, core.Monthly)

	if err := svc.ArchivePeriod(ctx, "alice", ref.ID); err != nil {
		t.Fatalf("ArchivePeriod() error = %v", err)
	}
	if err := svc.UnarchivePeriod(ctx, "alice", ref.ID); err != nil {
		t.Fatalf("UnarchivePeriod() error = %v", err)
	}

	p, err := repo.GetPeriod(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("GetPeriod() error = %v", err)
	}
	if p.Status != core.StatusActive {
		t.Errorf("Status = %q, want %q", p.Status, core.StatusActive)
	}
	if !p.MonthlyPayment.Equal(payment) || !p.PreviousBalance.Equal(balance) {
		t.Errorf("amounts changed across archive cycle: payment=%s balance=%s", p.MonthlyPayment, p.PreviousBalance)
	}

	expenses, err := repo.ListExpenses(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(expenses) != 1 {
		t.Errorf("len(expenses) = %d after archive cycle, want 1", len(expenses))
	}
}

func TestDeletePeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	keep := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2024})
	doomed := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})
	seedExpense(t, repo, "alice", doomed.ID, "rent", 800, core.Monthly)

	if err := svc.SetActivePeriod(ctx, "alice", doomed.ID); err != nil {
		t.Fatalf("SetActivePeriod() error = %v", err)
	}
	if err := svc.DeletePeriod(ctx, "alice", doomed.ID); err != nil {
		t.Fatalf("DeletePeriod() error = %v", err)
	}

	if _, err := repo.GetPeriod(ctx, "alice", doomed.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPeriod(deleted) error = %v, want ErrNotFound", err)
	}
	if pointer, err := repo.ActivePeriodID(ctx, "alice"); err != nil || pointer != "" {
		t.Errorf("ActivePeriodID() = (%q, %v), want cleared pointer", pointer, err)
	}

	// The resolver still yields a sensible fallback.
	active, err := svc.ActivePeriod(ctx, "alice")
	if err != nil {
		t.Fatalf("ActivePeriod() error = %v", err)
	}
	if active == nil || active.ID != keep.ID {
		t.Errorf("active after delete = %+v, want %q", active, keep.ID)
	}
}

func TestCalculateEndingBalance(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	payment := decimal.NewFromInt(1000)
	balance := decimal.NewFromInt(500)
	ref := mustCreate(t, svc, "alice", CreatePeriodInput{
		Year:            2025,
		MonthlyPayment:  &payment,
		PreviousBalance: &balance,
	})
	seedExpense(t, repo, "alice", ref.ID, "rent", 400, core.Monthly)
	seedExpense(t, repo, "alice", ref.ID, "insurance", 100, core.Yearly)

	got, err := svc.CalculateEndingBalance(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("CalculateEndingBalance() error = %v", err)
	}
	want := decimal.NewFromInt(7600)
	if !got.Equal(want) {
		t.Errorf("CalculateEndingBalance() = %s, want %s", got, want)
	}

	_, err = svc.CalculateEndingBalance(ctx, "alice", "missing")
	var nf core.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("CalculateEndingBalance(missing) error = %v, want NotFoundError", err)
	}
}

func TestPeriods_BootstrapsDefault(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	periods, err := svc.Periods(ctx, "newcomer")
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("len(periods) = %d, want 1 bootstrapped period", len(periods))
	}
	p := periods[0]
	if p.Year != time.Now().Year() {
		t.Errorf("bootstrapped Year = %d, want %d", p.Year, time.Now().Year())
	}
	if !p.MonthlyPayment.Equal(core.DefaultMonthlyPayment) {
		t.Errorf("bootstrapped MonthlyPayment = %s, want %s", p.MonthlyPayment, core.DefaultMonthlyPayment)
	}
	if pointer, err := repo.ActivePeriodID(ctx, "newcomer"); err != nil || pointer != p.ID {
		t.Errorf("ActivePeriodID() = (%q, %v), want bootstrapped id %q", pointer, err, p.ID)
	}

	// A second call must not create another period.
	again, err := svc.Periods(ctx, "newcomer")
	if err != nil {
		t.Fatalf("Periods() second call error = %v", err)
	}
	if len(again) != 1 {
		t.Errorf("len(periods) after second call = %d, want 1", len(again))
	}
}

func TestPeriods_ConcurrentBootstrap(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Periods(ctx, "newcomer"); err != nil {
				t.Errorf("Periods() error = %v", err)
			}
		}()
	}
	wg.Wait()

	periods, err := svc.Periods(ctx, "newcomer")
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}
	if len(periods) != 1 {
		t.Errorf("len(periods) = %d after concurrent bootstrap, want 1", len(periods))
	}
}

func TestSaveAsTemplate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	balance := decimal.NewFromInt(900)
	src := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025, PreviousBalance: &balance})
	seedExpense(t, repo, "alice", src.ID, "rent", 800, core.Monthly)

	ref, err := svc.SaveAsTemplate(ctx, "alice", src.ID, "  standard year  ", "the usual setup")
	if err != nil {
		t.Fatalf("SaveAsTemplate() error = %v", err)
	}
	if ref.TemplateName != "standard year" {
		t.Errorf("TemplateName = %q, want trimmed %q", ref.TemplateName, "standard year")
	}

	tmpl, err := repo.GetTemplate(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}
	if tmpl.Year != core.TemplateYear {
		t.Errorf("template Year = %d, want %d", tmpl.Year, core.TemplateYear)
	}
	if !tmpl.PreviousBalance.IsZero() {
		t.Errorf("template PreviousBalance = %s, want 0", tmpl.PreviousBalance)
	}
	expenses, err := repo.ListExpenses(ctx, "alice", tmpl.ID)
	if err != nil {
		t.Fatalf("ListExpenses(template) error = %v", err)
	}
	if len(expenses) != 1 {
		t.Errorf("len(template expenses) = %d, want 1", len(expenses))
	}

	// Templates never show up in the period list.
	periods, err := svc.Periods(ctx, "alice")
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}
	for _, p := range periods {
		if p.ID == tmpl.ID {
			t.Error("template leaked into the period list")
		}
	}
}

func TestSaveAsTemplate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	src := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})

	_, err := svc.SaveAsTemplate(ctx, "alice", src.ID, "   ", "")
	var verr core.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("SaveAsTemplate(blank name) error = %v, want ValidationError", err)
	}

	_, err = svc.SaveAsTemplate(ctx, "alice", "missing", "name", "")
	var nf core.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("SaveAsTemplate(missing period) error = %v, want NotFoundError", err)
	}
}

func TestCreateFromTemplate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	payment := decimal.NewFromInt(2500)
	src := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2024, MonthlyPayment: &payment})
	seedExpense(t, repo, "alice", src.ID, "rent", 800, core.Monthly)
	seedExpense(t, repo, "alice", src.ID, "gym", 50, core.Monthly)

	tmplRef, err := svc.SaveAsTemplate(ctx, "alice", src.ID, "standard", "")
	if err != nil {
		t.Fatalf("SaveAsTemplate() error = %v", err)
	}

	carryover := decimal.NewFromInt(150)
	ref, err := svc.CreateFromTemplate(ctx, "alice", CreateFromTemplateInput{
		TemplateID:      tmplRef.ID,
		Year:            2025,
		PreviousBalance: &carryover,
	})
	if err != nil {
		t.Fatalf("CreateFromTemplate() error = %v", err)
	}

	p, err := repo.GetPeriod(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("GetPeriod() error = %v", err)
	}
	if !p.MonthlyPayment.Equal(payment) {
		t.Errorf("MonthlyPayment = %s, want template's %s", p.MonthlyPayment, payment)
	}
	if !p.PreviousBalance.Equal(carryover) {
		t.Errorf("PreviousBalance = %s, want %s", p.PreviousBalance, carryover)
	}

	expenses, err := repo.ListExpenses(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(expenses) != 2 {
		t.Errorf("len(expenses) = %d, want full template set of 2", len(expenses))
	}
}

func TestCreateFromTemplate_SelectedSubset(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	src := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2024})
	seedExpense(t, repo, "alice", src.ID, "rent", 800, core.Monthly)
	seedExpense(t, repo, "alice", src.ID, "gym", 50, core.Monthly)

	tmplRef, err := svc.SaveAsTemplate(ctx, "alice", src.ID, "standard", "")
	if err != nil {
		t.Fatalf("SaveAsTemplate() error = %v", err)
	}
	tmplExpenses, err := repo.ListExpenses(ctx, "alice", tmplRef.ID)
	if err != nil {
		t.Fatalf("ListExpenses(template) error = %v", err)
	}

	ref, err := svc.CreateFromTemplate(ctx, "alice", CreateFromTemplateInput{
		TemplateID:         tmplRef.ID,
		Year:               2025,
		SelectedExpenseIDs: []string{tmplExpenses[0].ID},
	})
	if err != nil {
		t.Fatalf("CreateFromTemplate() error = %v", err)
	}

	expenses, err := repo.ListExpenses(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("len(expenses) = %d, want selected subset of 1", len(expenses))
	}
	if expenses[0].Name != tmplExpenses[0].Name {
		t.Errorf("copied expense = %q, want %q", expenses[0].Name, tmplExpenses[0].Name)
	}
}

func TestCreateFromTemplate_Errors(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	src := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2024})
	tmplRef, err := svc.SaveAsTemplate(ctx, "alice", src.ID, "standard", "")
	if err != nil {
		t.Fatalf("SaveAsTemplate() error = %v", err)
	}

	_, err = svc.CreateFromTemplate(ctx, "alice", CreateFromTemplateInput{TemplateID: "missing", Year: 2025})
	var nf core.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("CreateFromTemplate(missing template) error = %v, want NotFoundError", err)
	}

	// A real period id is not accepted as a template id.
	_, err = svc.CreateFromTemplate(ctx, "alice", CreateFromTemplateInput{TemplateID: src.ID, Year: 2025})
	if !errors.As(err, &nf) {
		t.Errorf("CreateFromTemplate(period id) error = %v, want NotFoundError", err)
	}

	_, err = svc.CreateFromTemplate(ctx, "alice", CreateFromTemplateInput{TemplateID: tmplRef.ID, Year: 2024})
	var dup core.DuplicateYearError
	if !errors.As(err, &dup) {
		t.Errorf("CreateFromTemplate(existing year) error = %v, want DuplicateYearError", err)
	}

	// Error paths must not leave partial periods behind.
	periods, err := repo.ListPeriods(ctx, "alice")
	if err != nil {
		t.Fatalf("ListPeriods() error = %v", err)
	}
	if len(periods) != 1 {
		t.Errorf("len(periods) = %d after failed creates, want 1", len(periods))
	}
}

func TestDeleteTemplate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	src := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})
	tmplRef, err := svc.SaveAsTemplate(ctx, "alice", src.ID, "standard", "")
	if err != nil {
		t.Fatalf("SaveAsTemplate() error = %v", err)
	}

	if err := svc.DeleteTemplate(ctx, "alice", tmplRef.ID); err != nil {
		t.Fatalf("DeleteTemplate() error = %v", err)
	}
	templates, err := svc.Templates(ctx, "alice")
	if err != nil {
		t.Fatalf("Templates() error = %v", err)
	}
	if len(templates) != 0 {
		t.Errorf("len(templates) = %d after delete, want 0", len(templates))
	}

	// The template delete path never reaches real periods.
	if err := svc.DeleteTemplate(ctx, "alice", src.ID); err != nil {
		t.Fatalf("DeleteTemplate(period id) error = %v", err)
	}
	if _, err := repo.GetPeriod(ctx, "alice", src.ID); err != nil {
		t.Errorf("GetPeriod() after template delete attempt error = %v", err)
	}
}

func TestGetExpensesForPeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	ref := mustCreate(t, svc, "alice", CreatePeriodInput{Year: 2025})
	seedExpense(t, repo, "alice", ref.ID, "rent", 800, core.Monthly)
	seedExpense(t, repo, "alice", ref.ID, "gym", 50, core.Monthly)

	got, err := svc.GetExpensesForPeriod(ctx, "alice", ref.ID)
	if err != nil {
		t.Fatalf("GetExpensesForPeriod() error = %v", err)
	}
	if got.ID != ref.ID {
		t.Errorf("period ID = %q, want %q", got.ID, ref.ID)
	}
	if len(got.Expenses) != 2 {
		t.Fatalf("len(Expenses) = %d, want 2", len(got.Expenses))
	}
	// Ordered by name.
	if got.Expenses[0].Name != "gym" || got.Expenses[1].Name != "rent" {
		t.Errorf("expense order = [%q %q], want [gym rent]", got.Expenses[0].Name, got.Expenses[1].Name)
	}

	_, err = svc.GetExpensesForPeriod(ctx, "alice", "missing")
	var nf core.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("GetExpensesForPeriod(missing) error = %v, want NotFoundError", err)
	}
}

func TestEmptyUserID_NoOps(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreatePeriod(ctx, "", CreatePeriodInput{Year: 2025}); err != nil {
		t.Errorf("CreatePeriod() error = %v", err)
	}
	if periods, err := svc.Periods(ctx, ""); err != nil || periods != nil {
		t.Errorf("Periods() = (%v, %v), want (nil, nil)", periods, err)
	}
	if active, err := svc.ActivePeriod(ctx, ""); err != nil || active != nil {
		t.Errorf("ActivePeriod() = (%v, %v), want (nil, nil)", active, err)
	}
	if err := svc.DeletePeriod(ctx, "", "some-id"); err != nil {
		t.Errorf("DeletePeriod() error = %v", err)
	}

	if users, err := repo.ListUserIDs(ctx); err != nil || len(users) != 0 {
		t.Errorf("ListUserIDs() = (%v, %v), want no rows", users, err)
	}
	if notifier.count() != 0 {
		t.Errorf("notifier received %d snapshots for empty user, want 0", notifier.count())
	}
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	svc, _, notifier := newTestService(t)
	notifier.err = errors.New("broker down")

	if _, err := svc.CreatePeriod(context.Background(), "alice", CreatePeriodInput{Year: 2025}); err != nil {
		t.Fatalf("CreatePeriod() with failing notifier error = %v", err)
	}
}
