package handlers

import (
	"net/http"
	"strings"

	"zaiqa-order-service/pkg/response"

	"go.uber.org/zap"
)

type pushSubscribeRequest struct {
	Endpoint     string   `json:"endpoint"`
	P256DH       string   `json:"p256dh"`
	Auth         string   `json:"auth"`
	OrderNumbers []string `json:"orderNumbers"`
}

// PublicSubscribePush registers a Web Push subscription. Re-posting the
// same endpoint refreshes the keys and merges the tracked order numbers.
func (h *Handler) PublicSubscribePush(w http.ResponseWriter, r *http.Request) {
	var req pushSubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" || strings.TrimSpace(req.P256DH) == "" || strings.TrimSpace(req.Auth) == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_SUBSCRIPTION", "endpoint, p256dh and auth are required")
		return
	}

	orderNumbers := make([]string, 0, len(req.OrderNumbers))
	for _, number := range req.OrderNumbers {
		if trimmed := strings.TrimSpace(number); trimmed != "" {
			orderNumbers = append(orderNumbers, trimmed)
		}
	}

	if _, err := h.DB.Exec(r.Context(), `
		insert into push_subscriptions (endpoint, p256dh, auth, order_numbers)
		values ($1, $2, $3, $4)
		on conflict (endpoint) do update
		set p256dh = excluded.p256dh,
		    auth = excluded.auth,
		    order_numbers = (
			select array(select distinct unnest(push_subscriptions.order_numbers || excluded.order_numbers))
		    ),
		    updated_at = now()
	`, req.Endpoint, req.P256DH, req.Auth, orderNumbers); err != nil {
		h.Logger.Error("failed to save push subscription", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save subscription")
		return
	}

	response.Success(w, map[string]any{"subscribed": true})
}

type pushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *Handler) PublicUnsubscribePush(w http.ResponseWriter, r *http.Request) {
	var req pushUnsubscribeRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Endpoint) == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "endpoint is required")
		return
	}

	if _, err := h.DB.Exec(r.Context(), `
		delete from push_subscriptions where endpoint = $1
	`, strings.TrimSpace(req.Endpoint)); err != nil {
		h.Logger.Error("failed to delete push subscription", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to remove subscription")
		return
	}

	response.Success(w, map[string]any{"unsubscribed": true})
}
