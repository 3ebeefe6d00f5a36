// Package webhook is the ingress adapter: it authenticates and parses
// inbound alert deliveries, hands them to the position engine, and maps
// the outcome onto HTTP responses.
package webhook

import (
	"errors"
	"io"
	"net/http"

	"paperledger/internal/engine"
	"paperledger/internal/event"
	"paperledger/internal/feed"
	"paperledger/internal/httputil"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

type Handler struct {
	engine *engine.Engine
	secret string
	bus    *feed.Bus
	log    *zap.Logger
}

func NewHandler(eng *engine.Engine, secret string, bus *feed.Bus, log *zap.Logger) *Handler {
	return &Handler{engine: eng, secret: secret, bus: bus, log: log}
}

type acceptedResponse struct {
	Status  string `json:"status"`
	Result  string `json:"result,omitempty"`
	Trade   any    `json:"trade,omitempty"`
	Balance string `json:"balance,omitempty"`
}

type rejectedResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Webhook handles POST /tv-webhook. A bad secret and a malformed payload
// produce the same response on purpose; the distinction only reaches the
// log.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, rejectedResponse{Status: "error", Code: "invalid_payload"})
		return
	}
	evt, err := event.Parse(body, h.secret)
	if err != nil {
		if errors.Is(err, event.ErrBadSecret) {
			h.log.Warn("webhook rejected: secret mismatch", zap.String("remote", r.RemoteAddr))
		} else {
			h.log.Warn("webhook rejected: invalid payload", zap.Error(err))
		}
		httputil.WriteJSON(w, http.StatusBadRequest, rejectedResponse{Status: "error", Code: "invalid_payload"})
		return
	}
	res, err := h.engine.Apply(r.Context(), evt)
	if err != nil {
		h.writeEngineError(w, evt, err)
		return
	}
	if res.Audited {
		httputil.WriteJSON(w, http.StatusOK, acceptedResponse{Status: "ok", Result: "audited"})
		return
	}
	h.bus.Publish(feed.Update{Type: "ledger_update", Data: res})
	httputil.WriteJSON(w, http.StatusOK, acceptedResponse{
		Status:  "ok",
		Trade:   res.Trade,
		Balance: res.Balance.String(),
	})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, evt event.Event, err error) {
	code := ""
	switch {
	case errors.Is(err, engine.ErrDuplicateEntry):
		code = "duplicate_entry"
	case errors.Is(err, engine.ErrNoOpenTrade):
		code = "no_open_trade"
	case errors.Is(err, engine.ErrSideMismatch):
		code = "side_mismatch"
	}
	if code != "" {
		h.log.Info("event rejected",
			zap.String("tag", evt.Tag),
			zap.String("kind", string(evt.Kind)),
			zap.String("code", code))
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, rejectedResponse{
			Status:  "rejected",
			Code:    code,
			Message: err.Error(),
		})
		return
	}
	if errors.Is(err, engine.ErrTransient) {
		h.log.Warn("transient failure", zap.String("tag", evt.Tag), zap.Error(err))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, rejectedResponse{Status: "transient_error", Code: "transient"})
		return
	}
	h.log.Error("event processing failed", zap.String("tag", evt.Tag), zap.Error(err))
	httputil.WriteJSON(w, http.StatusInternalServerError, rejectedResponse{Status: "error", Code: "internal"})
}

type fundsRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// Funds handles POST /v1/funds: a manual deposit outside the trade
// lifecycle.
func (h *Handler) Funds(w http.ResponseWriter, r *http.Request) {
	var req fundsRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.GreaterThan(decimal.Zero) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	acct, err := h.engine.Deposit(r.Context(), amount)
	if err != nil {
		if errors.Is(err, engine.ErrTransient) {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, rejectedResponse{Status: "transient_error", Code: "transient"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual_deposit"
	}
	h.log.Info("deposit accepted", zap.String("amount", amount.String()), zap.String("reason", reason))
	h.bus.Publish(feed.Update{Type: "wallet_update", Data: acct})
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"balance_after": acct.Balance,
	})
}
