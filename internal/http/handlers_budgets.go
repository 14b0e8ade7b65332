package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	month, err := monthQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	budgets, err := s.finance.ListBudgets(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(budgets).Write(w)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.finance.GetBudget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(b).Write(w)
}

// handleUpsertBudget creates the (category, month) budget or overwrites the
// amount of the existing one.
func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, month, amount, err := req.toUpsert()
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, created, err := s.finance.UpsertBudget(r.Context(), category, month, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := NewJSONResponse().Data(b)
	if created {
		resp.Status(http.StatusCreated).Header("Location", "/api/budgets/"+b.ID)
	} else {
		resp.Message("Budget updated")
	}
	resp.Write(w)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.finance.UpdateBudget(r.Context(), chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(b).Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.finance.DeleteBudget(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Message("Budget deleted").Write(w)
}
