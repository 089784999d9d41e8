package http

import (
	"net/http"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

type periodJSON struct {
	ID              string            `json:"id"`
	Year            int               `json:"year"`
	MonthlyPayment  decimal.Decimal   `json:"monthlyPayment"`
	MonthlyPayments []decimal.Decimal `json:"monthlyPayments,omitempty"`
	PreviousBalance decimal.Decimal   `json:"previousBalance"`
	Status          string            `json:"status"`
	IsTemplate      bool              `json:"isTemplate,omitempty"`
	TemplateName    string            `json:"templateName,omitempty"`
	TemplateDesc    string            `json:"templateDescription,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type expenseJSON struct {
	ID             string            `json:"id"`
	BudgetPeriodID string            `json:"budgetPeriodId"`
	Name           string            `json:"name"`
	Amount         decimal.Decimal   `json:"amount"`
	Frequency      string            `json:"frequency"`
	StartMonth     int               `json:"startMonth"`
	EndMonth       int               `json:"endMonth"`
	MonthlyAmounts []decimal.Decimal `json:"monthlyAmounts,omitempty"`
}

func toPeriodJSON(p core.BudgetPeriod) periodJSON {
	return periodJSON{
		ID:              p.ID,
		Year:            p.Year,
		MonthlyPayment:  p.MonthlyPayment,
		MonthlyPayments: p.MonthlyPayments,
		PreviousBalance: p.PreviousBalance,
		Status:          string(p.Status),
		IsTemplate:      p.IsTemplate,
		TemplateName:    p.TemplateName,
		TemplateDesc:    p.TemplateDesc,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toPeriodListJSON(periods []core.BudgetPeriod) []periodJSON {
	out := make([]periodJSON, len(periods))
	for i, p := range periods {
		out[i] = toPeriodJSON(p)
	}
	return out
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:             e.ID,
		BudgetPeriodID: e.BudgetPeriodID,
		Name:           e.Name,
		Amount:         e.Amount,
		Frequency:      string(e.Frequency),
		StartMonth:     e.StartMonth,
		EndMonth:       e.EndMonth,
		MonthlyAmounts: e.MonthlyAmounts,
	}
}

func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.service.Periods(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPeriodListJSON(periods))
}

type createPeriodRequest struct {
	Year             int               `json:"year"`
	MonthlyPayment   *decimal.Decimal  `json:"monthlyPayment"`
	PreviousBalance  *decimal.Decimal  `json:"previousBalance"`
	MonthlyPayments  []decimal.Decimal `json:"monthlyPayments"`
	Status           string            `json:"status"`
	CopyExpensesFrom string            `json:"copyExpensesFrom"`
}

func (s *Server) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ref, err := s.service.CreatePeriod(r.Context(), userID(r), budget.CreatePeriodInput{
		Year:             req.Year,
		MonthlyPayment:   req.MonthlyPayment,
		PreviousBalance:  req.PreviousBalance,
		MonthlyPayments:  req.MonthlyPayments,
		Status:           core.PeriodStatus(req.Status),
		CopyExpensesFrom: req.CopyExpensesFrom,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, ref)
}

type updatePeriodRequest struct {
	MonthlyPayment  *decimal.Decimal  `json:"monthlyPayment"`
	PreviousBalance *decimal.Decimal  `json:"previousBalance"`
	MonthlyPayments []decimal.Decimal `json:"monthlyPayments"`
	// ClearMonthlyPayments drops the per-month series so the flat payment
	// applies again.
	ClearMonthlyPayments bool    `json:"clearMonthlyPayments"`
	Status               *string `json:"status"`
}

func (s *Server) handleUpdatePeriod(w http.ResponseWriter, r *http.Request) {
	var req updatePeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	patch := core.PeriodPatch{
		MonthlyPayment:  req.MonthlyPayment,
		PreviousBalance: req.PreviousBalance,
	}
	if req.ClearMonthlyPayments {
		var cleared []decimal.Decimal
		patch.MonthlyPayments = &cleared
	} else if req.MonthlyPayments != nil {
		patch.MonthlyPayments = &req.MonthlyPayments
	}
	if req.Status != nil {
		status := core.PeriodStatus(*req.Status)
		patch.Status = &status
	}

	if err := s.service.UpdatePeriod(r.Context(), userID(r), r.PathValue("id"), patch); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeletePeriod(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePeriod(r.Context(), userID(r), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleArchivePeriod(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ArchivePeriod(r.Context(), userID(r), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleUnarchivePeriod(w http.ResponseWriter, r *http.Request) {
	if err := s.service.UnarchivePeriod(r.Context(), userID(r), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handlePeriodBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.service.CalculateEndingBalance(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		EndingBalance decimal.Decimal `json:"endingBalance"`
	}{EndingBalance: balance})
}

func (s *Server) handlePeriodExpenses(w http.ResponseWriter, r *http.Request) {
	pe, err := s.service.GetExpensesForPeriod(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	expenses := make([]expenseJSON, len(pe.Expenses))
	for i, e := range pe.Expenses {
		expenses[i] = toExpenseJSON(e)
	}
	respondJSON(w, http.StatusOK, struct {
		Period   periodJSON    `json:"period"`
		Expenses []expenseJSON `json:"expenses"`
	}{Period: toPeriodJSON(pe.BudgetPeriod), Expenses: expenses})
}

type createExpenseRequest struct {
	Name           string            `json:"name"`
	Amount         decimal.Decimal   `json:"amount"`
	Frequency      string            `json:"frequency"`
	StartMonth     int               `json:"startMonth"`
	EndMonth       int               `json:"endMonth"`
	MonthlyAmounts []decimal.Decimal `json:"monthlyAmounts"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	e, err := s.service.CreateExpense(r.Context(), userID(r), r.PathValue("id"), budget.CreateExpenseInput{
		Name:           req.Name,
		Amount:         req.Amount,
		Frequency:      core.Frequency(req.Frequency),
		StartMonth:     req.StartMonth,
		EndMonth:       req.EndMonth,
		MonthlyAmounts: req.MonthlyAmounts,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toExpenseJSON(e))
}

func (s *Server) handleActivePeriod(w http.ResponseWriter, r *http.Request) {
	active, err := s.service.ActivePeriod(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if active == nil {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "no active period"})
		return
	}
	respondJSON(w, http.StatusOK, toPeriodJSON(*active))
}

type setActivePeriodRequest struct {
	PeriodID string `json:"periodId"`
}

func (s *Server) handleSetActivePeriod(w http.ResponseWriter, r *http.Request) {
	var req setActivePeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.SetActivePeriod(r.Context(), userID(r), req.PeriodID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.service.Templates(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPeriodListJSON(templates))
}

type saveAsTemplateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleSaveAsTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveAsTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ref, err := s.service.SaveAsTemplate(r.Context(), userID(r), r.PathValue("id"), req.Name, req.Description)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTemplate(r.Context(), userID(r), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

type createFromTemplateRequest struct {
	Year               int              `json:"year"`
	PreviousBalance    *decimal.Decimal `json:"previousBalance"`
	SelectedExpenseIDs []string         `json:"selectedExpenseIds"`
}

func (s *Server) handleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req createFromTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ref, err := s.service.CreateFromTemplate(r.Context(), userID(r), budget.CreateFromTemplateInput{
		TemplateID:         r.PathValue("id"),
		Year:               req.Year,
		PreviousBalance:    req.PreviousBalance,
		SelectedExpenseIDs: req.SelectedExpenseIDs,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, ref)
}
