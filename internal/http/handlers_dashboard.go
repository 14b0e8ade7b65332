package http

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

var templateFuncs = template.FuncMap{
	"money":   formatMoney,
	"percent": formatPercent,
	"date": func(t time.Time) string {
		return t.In(time.Local).Format("Jan 2, 2006")
	},
	"inputDate": func(t time.Time) string {
		return t.In(time.Local).Format("2006-01-02")
	},
	"monthLabel": core.MonthLabel,
	"usageStatus": func(u analytics.BudgetUsage) string {
		switch {
		case u.Exceeded():
			return "over"
		case u.NearLimit():
			return "near"
		default:
			return "ok"
		}
	},
}

// dashboardView is the data handed to dashboard.html.
type dashboardView struct {
	Month     string
	Months    []string
	Today     string
	Store     string
	Flash     string
	Report    services.MonthReport
	Overview  analytics.Dashboard
	Monthly   []analytics.MonthTotals
	Recent    []core.Transaction
	Editing   *core.Transaction
	HasBudget bool
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	month, err := monthQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if month == "" {
		month = s.finance.CurrentMonth()
	}

	view, err := s.loadDashboard(r.Context(), month)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load dashboard",
			applog.FieldMonth, month,
			applog.FieldError, err.Error())
		http.Error(w, "Failed to load dashboard", StatusForError(err))
		return
	}
	view.Flash = sanitizeInput(r.URL.Query().Get("error"))
	if id := r.URL.Query().Get("edit"); id != "" {
		for i := range view.Recent {
			if view.Recent[i].ID == id {
				view.Editing = &view.Recent[i]
				break
			}
		}
	}
	s.renderDashboard(w, r, view)
}

func (s *Server) loadDashboard(ctx context.Context, month string) (dashboardView, error) {
	snap, err := s.finance.DashboardSnapshot(ctx, month)
	if err != nil {
		return dashboardView{}, err
	}
	return dashboardView{
		Month:     month,
		Months:    withMonth(snap.Months, month),
		Today:     s.now().Format("2006-01-02"),
		Store:     s.finance.StoreName(),
		Report:    snap.Report,
		Overview:  snap.Overview,
		Monthly:   snap.Monthly,
		Recent:    snap.Recent,
		HasBudget: len(snap.Report.Usage) > 0,
	}, nil
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, view dashboardView) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "dashboard.html", view); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template render failed",
			applog.FieldOperation, applog.OpRender,
			applog.FieldError, err.Error())
		http.Error(w, "Failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleTransactionForm(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		s.redirectToDashboard(w, r, "", err)
		return
	}
	tx, err := parseTransactionForm(r.PostForm, s.now())
	if err != nil {
		s.redirectToDashboard(w, r, "", err)
		return
	}
	saved, err := s.finance.CreateTransaction(r.Context(), tx)
	if err != nil {
		s.redirectToDashboard(w, r, tx.Month(), err)
		return
	}
	s.redirectToDashboard(w, r, saved.Month(), nil)
}

func (s *Server) handleBudgetForm(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		s.redirectToDashboard(w, r, "", err)
		return
	}
	category, month, amount, err := parseBudgetForm(r.PostForm, s.finance.CurrentMonth())
	if err != nil {
		s.redirectToDashboard(w, r, "", err)
		return
	}
	if _, _, err := s.finance.UpsertBudget(r.Context(), category, month, amount); err != nil {
		s.redirectToDashboard(w, r, "", err)
		return
	}
	s.redirectToDashboard(w, r, month, nil)
}

func (s *Server) handleTransactionEditForm(w http.ResponseWriter, r *http.Request) {
	back := r.URL.Query().Get("month")
	if err := s.parseForm(w, r); err != nil {
		s.redirectToDashboard(w, r, back, err)
		return
	}
	patch, err := parseTransactionEditForm(r.PostForm)
	if err != nil {
		s.redirectToDashboard(w, r, back, err)
		return
	}
	saved, err := s.finance.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.redirectToDashboard(w, r, back, err)
		return
	}
	s.redirectToDashboard(w, r, saved.Month(), nil)
}

func (s *Server) handleTransactionDeleteForm(w http.ResponseWriter, r *http.Request) {
	back := r.URL.Query().Get("month")
	err := s.finance.DeleteTransaction(r.Context(), chi.URLParam(r, "id"))
	s.redirectToDashboard(w, r, back, err)
}

func (s *Server) handleBudgetDeleteForm(w http.ResponseWriter, r *http.Request) {
	back := r.URL.Query().Get("month")
	err := s.finance.DeleteBudget(r.Context(), chi.URLParam(r, "id"))
	s.redirectToDashboard(w, r, back, err)
}

func (s *Server) handleSampleDataForm(w http.ResponseWriter, r *http.Request) {
	res, err := s.finance.SeedSampleData(r.Context())
	if err != nil {
		s.redirectToDashboard(w, r, "", err)
		return
	}
	s.redirectToDashboard(w, r, res.Month, nil)
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return errMalformedBody
	}
	return nil
}

// redirectToDashboard sends the browser back to the dashboard with 303 See
// Other, carrying a user-facing message when err is set.
func (s *Server) redirectToDashboard(w http.ResponseWriter, r *http.Request, month string, err error) {
	q := url.Values{}
	if month != "" && core.ValidateMonth(month) == nil {
		q.Set("month", month)
	}
	if err != nil {
		msg := err.Error()
		if status := StatusForError(err); status >= 500 {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Form submission failed",
				applog.FieldPath, r.URL.Path,
				applog.FieldError, err.Error())
			msg = "Something went wrong, please try again"
		}
		q.Set("error", msg)
	}
	target := "/"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// withMonth returns months with month included, newest first.
func withMonth(months []string, month string) []string {
	for _, m := range months {
		if m == month {
			return months
		}
	}
	out := make([]string, 0, len(months)+1)
	inserted := false
	for _, m := range months {
		if !inserted && month > m {
			out = append(out, month)
			inserted = true
		}
		out = append(out, m)
	}
	if !inserted {
		out = append(out, month)
	}
	return out
}
