package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	StatusActive   PeriodStatus = "active"
	StatusArchived PeriodStatus = "archived"
)

// Year bounds for real (non-template) budget periods. Templates are stored
// with TemplateYear.
const (
	MinYear      = 2000
	MaxYear      = 2100
	TemplateYear = 0
)

// MonthsPerYear is also the required length of a monthly amount series.
const MonthsPerYear = 12

// DefaultMonthlyPayment seeds new periods when no income is supplied.
var DefaultMonthlyPayment = decimal.NewFromInt(5700)

type (
	Frequency    string
	PeriodStatus string

	// BudgetPeriod holds one fiscal year's income configuration, or a
	// reusable template when IsTemplate is set (Year is then TemplateYear).
	BudgetPeriod struct {
		ID       string
		UserID   string
		Year     int
		// MonthlyPayment is the fixed recurring income. MonthlyPayments,
		// when present (length 12), overrides it month by month.
		MonthlyPayment  decimal.Decimal
		MonthlyPayments []decimal.Decimal
		PreviousBalance decimal.Decimal
		Status          PeriodStatus
		IsTemplate      bool
		TemplateName    string
		TemplateDesc    string
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// Expense is a recurring cost attached to exactly one period.
	// StartMonth/EndMonth bound the schedule (1-12, inclusive).
	// MonthlyAmounts, when present, records a variable per-month cost;
	// the flat Amount is typically zero in that case.
	Expense struct {
		ID             string
		UserID         string
		BudgetPeriodID string
		Name           string
		Amount         decimal.Decimal
		Frequency      Frequency
		StartMonth     int
		EndMonth       int
		MonthlyAmounts []decimal.Decimal
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	// PeriodPatch carries partial updates to a period. Nil fields are left
	// untouched; a non-nil MonthlyPayments pointing at a nil slice clears
	// the stored series.
	PeriodPatch struct {
		MonthlyPayment  *decimal.Decimal
		PreviousBalance *decimal.Decimal
		MonthlyPayments *[]decimal.Decimal
		Status          *PeriodStatus
	}
)

func (f Frequency) Valid() bool {
	switch f {
	case Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

func (s PeriodStatus) Valid() bool {
	return s == StatusActive || s == StatusArchived
}

// ValidateYear checks the fiscal-year range for real periods.
func ValidateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return ValidationError{Field: "year", Reason: "must be between 2000 and 2100"}
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !e.Frequency.Valid() {
		return ValidationError{Field: "frequency", Reason: "must be monthly, quarterly or yearly"}
	}
	if e.StartMonth < 1 || e.StartMonth > MonthsPerYear {
		return ValidationError{Field: "startMonth", Reason: "must be between 1 and 12"}
	}
	if e.EndMonth < 1 || e.EndMonth > MonthsPerYear {
		return ValidationError{Field: "endMonth", Reason: "must be between 1 and 12"}
	}
	if e.StartMonth > e.EndMonth {
		return ValidationError{Field: "startMonth", Reason: "must not be after endMonth"}
	}
	if e.Amount.IsNegative() {
		return ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if e.MonthlyAmounts != nil && len(e.MonthlyAmounts) != MonthsPerYear {
		return ValidationError{Field: "monthlyAmounts", Reason: "must contain exactly 12 values"}
	}
	return nil
}

// SelectActivePeriod resolves which period is active given the stored
// pointer and an already-loaded list: the pointed-at period if it is still
// present, else the first period with active status, else the first period
// in list order, else nil.
func SelectActivePeriod(periods []BudgetPeriod, preferredID string) *BudgetPeriod {
	if preferredID != "" {
		for i := range periods {
			if periods[i].ID == preferredID {
				return &periods[i]
			}
		}
	}
	for i := range periods {
		if periods[i].Status == StatusActive {
			return &periods[i]
		}
	}
	if len(periods) > 0 {
		return &periods[0]
	}
	return nil
}
