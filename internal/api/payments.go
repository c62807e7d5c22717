package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Bharath-code/deckslayer/internal/payments"
)

type checkoutRequest struct {
	ProductID  string `json:"productId"`
	AnalysisID string `json:"analysisId"`
}

func handleCheckout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		url, err := deps.Payments.Checkout(r.Context(), req.ProductID, u.ID, u.Email, req.AnalysisID)
		if errors.Is(err, payments.ErrUnknownProduct) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "Unknown product")
			return
		}
		if err != nil {
			slog.Error("creating checkout", "user_id", u.ID, "product_id", req.ProductID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "Failed to create checkout")
			return
		}
		writeJSON(w, map[string]string{"url": url})
	}
}

func handleWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.WebhookKey == "" {
			httpError(w, http.StatusInternalServerError, "api_error", "Webhook key missing")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "Invalid payload")
			return
		}
		if err := payments.Verify(deps.WebhookKey, r.Header, body, deps.Now()); err != nil {
			slog.Warn("rejecting webhook", "error", err)
			httpError(w, http.StatusUnauthorized, "authentication_error", "Invalid signature")
			return
		}

		var ev payments.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "Invalid payload")
			return
		}

		id := r.Header.Get(payments.HeaderID)
		if _, err := deps.Payments.HandleEvent(r.Context(), id, ev); err != nil {
			slog.Error("applying webhook", "webhook_id", id, "type", ev.Type, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "Webhook processing failed")
			return
		}
		writeJSON(w, map[string]bool{"received": true})
	}
}
