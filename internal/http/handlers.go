package http

import (
	"errors"
	"fmt"
	"net/http"

	"moviments/internal/core"
	applog "moviments/internal/log"
	"moviments/internal/store"
)

var referenceRoutes = map[string]store.Family{
	"/accounts":      store.Accounts,
	"/expense-types": store.ExpenseTypes,
	"/income-types":  store.IncomeTypes,
	"/months":        store.Months,
	"/subscriptions": store.Subscriptions,
	"/debts":         store.Debts,
	"/savings":       store.Savings,
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, "Moviments API is running", nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, "ok", nil)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			writeFailure(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeSuccess(w, "ready", nil)
}

func (s *Server) handleReferences(f store.Family) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := s.svc.References(r.Context(), f)
		if err != nil {
			s.fail(w, r, applog.OpList, err, http.StatusBadGateway)
			return
		}
		if items == nil {
			items = []core.Category{}
		}
		writeSuccess(w, fmt.Sprintf("%d %s", len(items), f), items)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	invalidated := s.svc.RefreshReferences()
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Reference cache refresh requested",
		applog.FieldOperation, applog.OpRefresh, "invalidated", invalidated)
	writeSuccess(w, "References refreshed", map[string]bool{"invalidated": invalidated})
}

// refData is the payload of a created record.
type refData struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var rec core.ExpenseRecord
	if !s.decode(w, r, &rec) {
		return
	}
	if err := rec.Validate(); err != nil {
		s.fail(w, r, applog.OpCreate, err, http.StatusBadRequest)
		return
	}
	ref, err := s.svc.CreateExpense(r.Context(), rec)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err, http.StatusBadGateway)
		return
	}
	s.events.LogRecordCreated(r.Context(), string(core.KindExpense), rec.Name, rec.Amount.String(), ref)
	writeSuccess(w, "Expense created successfully", refData{ID: ref})
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var rec core.IncomeRecord
	if !s.decode(w, r, &rec) {
		return
	}
	if err := rec.Validate(); err != nil {
		s.fail(w, r, applog.OpCreate, err, http.StatusBadRequest)
		return
	}
	ref, err := s.svc.CreateIncome(r.Context(), rec)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err, http.StatusBadGateway)
		return
	}
	s.events.LogRecordCreated(r.Context(), string(core.KindIncome), rec.Name, rec.Amount.String(), ref)
	writeSuccess(w, "Income created successfully", refData{ID: ref})
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var rec core.TransferRecord
	if !s.decode(w, r, &rec) {
		return
	}
	if err := rec.Validate(); err != nil {
		s.fail(w, r, applog.OpCreate, err, http.StatusBadRequest)
		return
	}
	ref, err := s.svc.CreateTransfer(r.Context(), rec)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err, http.StatusBadGateway)
		return
	}
	s.events.LogRecordCreated(r.Context(), string(core.KindTransfer), rec.Name, rec.Amount.String(), ref)
	writeSuccess(w, "Transfer created successfully", refData{ID: ref})
}

// decode writes 400 or 413 and returns false when the body is not valid
// JSON for v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := decodeJSON(w, r, v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeFailure(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Invalid JSON body",
		"error", err, applog.FieldErrorType, applog.ErrorTypeValidation)
	writeFailure(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
	return false
}
