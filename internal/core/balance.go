// Package core holds the budget domain model and the ending-balance
// projection.
//
// This file computes a period's year-end balance from its income
// configuration and its recurring expense schedule.
package core

import "github.com/shopspring/decimal"

// quarterStartMonths are the months on which a quarterly expense falls due.
var quarterStartMonths = [...]int{1, 4, 7, 10}

// AnnualIncome returns the period's total income for the year: the sum of
// the per-month series when present, otherwise twelve fixed payments.
func (p BudgetPeriod) AnnualIncome() decimal.Decimal {
	if len(p.MonthlyPayments) == MonthsPerYear {
		total := decimal.Zero
		for _, m := range p.MonthlyPayments {
			total = total.Add(m)
		}
		return total
	}
	return p.MonthlyPayment.Mul(decimal.NewFromInt(MonthsPerYear))
}

// AnnualContribution returns how much the expense subtracts from the
// year-end balance.
//
// Yearly expenses count once regardless of the month range. Quarterly
// expenses count once per quarter-start month (1, 4, 7, 10) inside
// [StartMonth, EndMonth]. Monthly expenses count once per month in range.
//
// A variable per-month series (MonthlyAmounts) does not participate here:
// the flat Amount drives every frequency rule, so variable expenses with a
// zero flat amount contribute nothing to the projection.
func (e Expense) AnnualContribution() decimal.Decimal {
	switch e.Frequency {
	case Yearly:
		return e.Amount
	case Quarterly:
		occurrences := 0
		for _, m := range quarterStartMonths {
			if m >= e.StartMonth && m <= e.EndMonth {
				occurrences++
			}
		}
		return e.Amount.Mul(decimal.NewFromInt(int64(occurrences)))
	case Monthly:
		months := e.EndMonth - e.StartMonth + 1
		if months < 0 {
			months = 0
		}
		return e.Amount.Mul(decimal.NewFromInt(int64(months)))
	}
	return decimal.Zero
}

// CalculateEndingBalance projects the balance at the end of the period's
// year: carryover plus annual income minus the sum of all expense
// contributions. Negative results are meaningful deficits; no rounding is
// applied.
func CalculateEndingBalance(p BudgetPeriod, expenses []Expense) decimal.Decimal {
	total := p.PreviousBalance.Add(p.AnnualIncome())
	for _, e := range expenses {
		total = total.Sub(e.AnnualContribution())
	}
	return total
}
