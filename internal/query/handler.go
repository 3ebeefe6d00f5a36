package query

import (
	"net/http"
	"strconv"

	"paperledger/internal/httputil"
	"paperledger/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func tradeParams(r *http.Request) TradeParams {
	q := r.URL.Query()
	return TradeParams{
		Status:    q.Get("status"),
		Side:      q.Get("side"),
		From:      q.Get("from"),
		To:        q.Get("to"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
}

func limitParam(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.svc.Trades(r.Context(), tradeParams(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), tradeParams(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.Wallet(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acct)
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Ledger(r.Context(), limitParam(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.UnrecognizedEvents(r.Context(), limitParam(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if events == nil {
		events = []model.UnrecognizedEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
