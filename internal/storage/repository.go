package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bilancio/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a scoped lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const periodColumns = `id, user_id, year, monthly_payment, previous_balance, monthly_payments,
	status, is_template, template_name, template_description, created_at, updated_at`

// InsertPeriod stores a new period or template row.
func (r *SQLiteRepository) InsertPeriod(ctx context.Context, p core.BudgetPeriod) error {
	series, err := encodeSeries(p.MonthlyPayments)
	if err != nil {
		return fmt.Errorf("encode monthly payments: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO budget_periods (`+periodColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Year, p.MonthlyPayment.String(), p.PreviousBalance.String(),
		series, string(p.Status), boolToInt(p.IsTemplate),
		nullString(p.TemplateName), nullString(p.TemplateDesc),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert period: %w", err)
	}

	slog.InfoContext(ctx, "Period saved",
		"id", p.ID,
		"user_id", p.UserID,
		"year", p.Year,
		"is_template", p.IsTemplate)

	return nil
}

// GetPeriod loads one period (template or not) scoped by user.
func (r *SQLiteRepository) GetPeriod(ctx context.Context, userID, id string) (core.BudgetPeriod, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+periodColumns+`
		FROM budget_periods
		WHERE id = ? AND user_id = ?`, id, userID)

	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetPeriod{}, ErrNotFound
	}
	if err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("get period: %w", err)
	}
	return p, nil
}

// GetTemplate loads a template row; real periods are not visible here.
func (r *SQLiteRepository) GetTemplate(ctx context.Context, userID, id string) (core.BudgetPeriod, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+periodColumns+`
		FROM budget_periods
		WHERE id = ? AND user_id = ? AND is_template = 1`, id, userID)

	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetPeriod{}, ErrNotFound
	}
	if err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("get template: %w", err)
	}
	return p, nil
}

// PeriodExistsForYear reports whether a non-template period occupies the
// year for this user.
func (r *SQLiteRepository) PeriodExistsForYear(ctx context.Context, userID string, year int) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM budget_periods
		WHERE user_id = ? AND year = ? AND is_template = 0
		LIMIT 1`, userID, year).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check year: %w", err)
	}
	return true, nil
}

// ListPeriods returns the user's non-template periods, newest year first.
func (r *SQLiteRepository) ListPeriods(ctx context.Context, userID string) ([]core.BudgetPeriod, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+periodColumns+`
		FROM budget_periods
		WHERE user_id = ? AND is_template = 0
		ORDER BY year DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	return collectPeriods(rows)
}

// ListTemplates returns the user's templates ordered by name.
func (r *SQLiteRepository) ListTemplates(ctx context.Context, userID string) ([]core.BudgetPeriod, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+periodColumns+`
		FROM budget_periods
		WHERE user_id = ? AND is_template = 1
		ORDER BY template_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	return collectPeriods(rows)
}

// UpdatePeriod applies a patch, mapping each supplied field to a column
// assignment. updated_at is always refreshed. Returns the number of rows
// touched (zero when the id does not resolve for this user).
func (r *SQLiteRepository) UpdatePeriod(ctx context.Context, userID, id string, patch core.PeriodPatch, now time.Time) (int64, error) {
	assignments := []string{"updated_at = ?"}
	args := []any{now}

	if patch.MonthlyPayment != nil {
		assignments = append(assignments, "monthly_payment = ?")
		args = append(args, patch.MonthlyPayment.String())
	}
	if patch.PreviousBalance != nil {
		assignments = append(assignments, "previous_balance = ?")
		args = append(args, patch.PreviousBalance.String())
	}
	if patch.MonthlyPayments != nil {
		series, err := encodeSeries(*patch.MonthlyPayments)
		if err != nil {
			return 0, fmt.Errorf("encode monthly payments: %w", err)
		}
		assignments = append(assignments, "monthly_payments = ?")
		args = append(args, series)
	}
	if patch.Status != nil {
		assignments = append(assignments, "status = ?")
		args = append(args, string(*patch.Status))
	}

	args = append(args, id, userID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_periods SET `+strings.Join(assignments, ", ")+`
		WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("update period: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update period rows affected: %w", err)
	}
	return affected, nil
}

// DeletePeriod removes a period; the FK cascade removes its expenses.
func (r *SQLiteRepository) DeletePeriod(ctx context.Context, userID, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM budget_periods WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete period: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete period rows affected: %w", err)
	}

	slog.InfoContext(ctx, "Period deleted", "id", id, "user_id", userID, "rows", affected)
	return affected, nil
}

// DeleteTemplate removes a template row only; a real period with the same
// id is never touched through this path.
func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, userID, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM budget_periods
		WHERE id = ? AND user_id = ? AND is_template = 1`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete template rows affected: %w", err)
	}
	return affected, nil
}

const expenseColumns = `id, user_id, name, amount, frequency, start_month, end_month,
	budget_period_id, monthly_amounts, created_at, updated_at`

// InsertExpense stores one expense row.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) error {
	series, err := encodeSeries(e.MonthlyAmounts)
	if err != nil {
		return fmt.Errorf("encode monthly amounts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, name, amount, frequency, start_month, end_month,
			budget_period_id, payment_mode, monthly_amounts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Name, e.Amount.String(), string(e.Frequency),
		e.StartMonth, e.EndMonth, e.BudgetPeriodID,
		paymentMode(e), series, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

// ListExpenses returns a period's expenses ordered by name.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID, periodID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE budget_period_id = ? AND user_id = ?
		ORDER BY name`, periodID, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses rows: %w", err)
	}
	return out, nil
}

// CopyExpensesParams describes one copy run. A nil IDs slice copies the
// whole source set; a non-nil slice restricts the copy to those ids.
type CopyExpensesParams struct {
	UserID       string
	FromPeriodID string
	ToPeriodID   string
	IDs          []string
	Now          time.Time
}

// CopyExpenses duplicates expense rows between periods inside a single
// transaction: either every row lands in the destination or none does.
// Each copy gets a fresh identifier and fresh timestamps; source rows are
// never touched.
func (r *SQLiteRepository) CopyExpenses(ctx context.Context, params CopyExpensesParams) (int, error) {
	if params.IDs != nil && len(params.IDs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin copy transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + expenseColumns + `
		FROM expenses
		WHERE budget_period_id = ? AND user_id = ?`
	args := []any{params.FromPeriodID, params.UserID}
	if params.IDs != nil {
		query += ` AND id IN (?` + strings.Repeat(", ?", len(params.IDs)-1) + `)`
		for _, id := range params.IDs {
			args = append(args, id)
		}
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("read source expenses: %w", err)
	}

	var sources []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan source expense: %w", err)
		}
		sources = append(sources, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("read source expenses rows: %w", err)
	}
	rows.Close()

	for _, src := range sources {
		series, err := encodeSeries(src.MonthlyAmounts)
		if err != nil {
			return 0, fmt.Errorf("encode monthly amounts: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO expenses (id, user_id, name, amount, frequency, start_month, end_month,
				budget_period_id, payment_mode, monthly_amounts, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			core.NewID(), src.UserID, src.Name, src.Amount.String(), string(src.Frequency),
			src.StartMonth, src.EndMonth, params.ToPeriodID,
			paymentMode(src), series, params.Now, params.Now)
		if err != nil {
			return 0, fmt.Errorf("copy expense %q: %w", src.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit copy transaction: %w", err)
	}

	slog.InfoContext(ctx, "Expenses copied",
		"from", params.FromPeriodID,
		"to", params.ToPeriodID,
		"count", len(sources))

	return len(sources), nil
}

// Active-period pointer, one durable slot per user.

func activePointerKey(userID string) string {
	return "active_period:" + userID
}

func (r *SQLiteRepository) ActivePeriodID(ctx context.Context, userID string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM app_state WHERE key = ?`, activePointerKey(userID)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read active period pointer: %w", err)
	}
	return value, nil
}

func (r *SQLiteRepository) SetActivePeriodID(ctx context.Context, userID, periodID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		activePointerKey(userID), periodID)
	if err != nil {
		return fmt.Errorf("set active period pointer: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ClearActivePeriodID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM app_state WHERE key = ?`, activePointerKey(userID))
	if err != nil {
		return fmt.Errorf("clear active period pointer: %w", err)
	}
	return nil
}

// ListUserIDs returns every user owning at least one period. The worker's
// backup sweep iterates over this.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM budget_periods ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user ids rows: %w", err)
	}
	return out, nil
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (core.BudgetPeriod, error) {
	var (
		p                  core.BudgetPeriod
		payment, balance   string
		series, name, desc sql.NullString
		status             string
		isTemplate         int
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Year, &payment, &balance, &series,
		&status, &isTemplate, &name, &desc, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return core.BudgetPeriod{}, err
	}

	if p.MonthlyPayment, err = decimal.NewFromString(payment); err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("parse monthly payment: %w", err)
	}
	if p.PreviousBalance, err = decimal.NewFromString(balance); err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("parse previous balance: %w", err)
	}
	if p.MonthlyPayments, err = decodeSeries(series); err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("parse monthly payments: %w", err)
	}
	p.Status = core.PeriodStatus(status)
	p.IsTemplate = isTemplate != 0
	p.TemplateName = name.String
	p.TemplateDesc = desc.String
	return p, nil
}

func collectPeriods(rows *sql.Rows) ([]core.BudgetPeriod, error) {
	var out []core.BudgetPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("period rows: %w", err)
	}
	return out, nil
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e      core.Expense
		amount string
		series sql.NullString
		freq   string
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &amount, &freq,
		&e.StartMonth, &e.EndMonth, &e.BudgetPeriodID, &series,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return core.Expense{}, err
	}

	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("parse amount: %w", err)
	}
	if e.MonthlyAmounts, err = decodeSeries(series); err != nil {
		return core.Expense{}, fmt.Errorf("parse monthly amounts: %w", err)
	}
	e.Frequency = core.Frequency(freq)
	return e, nil
}

func encodeSeries(series []decimal.Decimal) (sql.NullString, error) {
	if series == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(series)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeSeries(raw sql.NullString) ([]decimal.Decimal, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var series []decimal.Decimal
	if err := json.Unmarshal([]byte(raw.String), &series); err != nil {
		return nil, err
	}
	return series, nil
}

func paymentMode(e core.Expense) string {
	if e.MonthlyAmounts != nil {
		return "variable"
	}
	return "fixed"
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
