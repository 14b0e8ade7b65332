package http

import (
	"net/http"
)

// handleSummary serves the all-time dashboard: totals, categories and the
// five most recent transactions.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	d, err := s.finance.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(d).Write(w)
}

// handleCategories aggregates expenses by category. Without ?month= it
// covers all time.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	month, err := monthQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := s.finance.ExpensesByCategory(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(totals).Write(w)
}

// handleMonthlyOverview serves income and expenses for the last ?months=
// months (default 6), oldest first.
func (s *Server) handleMonthlyOverview(w http.ResponseWriter, r *http.Request) {
	n, err := monthsQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := s.finance.MonthlyOverview(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(overview).Write(w)
}

func (s *Server) handleBudgetUsage(w http.ResponseWriter, r *http.Request) {
	month, err := monthQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	usage, err := s.finance.BudgetUsage(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(usage).Write(w)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	month, err := monthQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	insights, err := s.finance.Insights(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(insights).Write(w)
}

func (s *Server) handleMonthReport(w http.ResponseWriter, r *http.Request) {
	month, err := monthQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.finance.MonthReport(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(report).Write(w)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.finance.AvailableMonths(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(months).Write(w)
}

func (s *Server) handleSeedSampleData(w http.ResponseWriter, r *http.Request) {
	res, err := s.finance.SeedSampleData(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Data(res).
		Message("Sample data added").
		Write(w)
}
