// Package handlers — HistoryHandler, arama arşivi okuma endpoint'leri.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/primetalker/callkit/pkg"
	"github.com/primetalker/callkit/repository"
)

// HistoryHandler, arşivlenmiş aramaların okuma endpoint'lerini yönetir.
// Arşiv devre dışıysa (repo nil) endpoint'ler 503 döner.
type HistoryHandler struct {
	historyRepo repository.CallHistoryRepository
}

// NewHistoryHandler, constructor.
func NewHistoryHandler(historyRepo repository.CallHistoryRepository) *HistoryHandler {
	return &HistoryHandler{historyRepo: historyRepo}
}

// ListCalls, en son biten aramaları döner.
//
// GET /api/history?limit=20
func (h *HistoryHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	if h.historyRepo == nil {
		pkg.ErrorWithMessage(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.historyRepo.List(r.Context(), limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, records)
}

// GetCall, tek bir aramayı transcript'iyle birlikte döner.
//
// GET /api/history/{id}
func (h *HistoryHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	if h.historyRepo == nil {
		pkg.ErrorWithMessage(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "missing call id")
		return
	}

	record, err := h.historyRepo.Get(r.Context(), id)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, record)
}
