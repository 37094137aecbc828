package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"zaiqa-order-service/internal/utils"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type riderLocationView struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recordedAt"`
}

// PublicGetOrder serves the customer tracking page. The caller proves
// ownership with the HMAC token issued at checkout (?token=).
func (h *Handler) PublicGetOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber, err := readPathString(r, "orderNumber")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_NUMBER", "Order number is required")
		return
	}

	token := r.URL.Query().Get("token")
	if !utils.VerifyOrderTrackingToken(h.Config.TrackingTokenSecret, token, orderNumber) {
		response.Error(w, http.StatusUnauthorized, "INVALID_TRACKING_TOKEN", "Tracking link is invalid or expired")
		return
	}

	detail, err := h.fetchOrderDetailByNumber(r.Context(), orderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
			return
		}
		h.Logger.Error("failed to load tracked order", zap.String("orderNumber", orderNumber), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order")
		return
	}

	payload := map[string]any{"order": detail}

	// Expose the rider's position only while the order is actually out
	// for delivery.
	if detail.Status == StatusOnTheWay && detail.RiderID != nil {
		if loc, err := h.fetchRiderLocation(r.Context(), *detail.RiderID); err == nil && loc != nil {
			payload["riderLocation"] = loc
		}
	}

	response.Success(w, payload)
}

func (h *Handler) fetchRiderLocation(ctx context.Context, riderID int64) (*riderLocationView, error) {
	var loc riderLocationView
	err := h.DB.QueryRow(ctx, `
		select latitude, longitude, recorded_at
		from rider_locations where rider_id = $1
	`, riderID).Scan(&loc.Latitude, &loc.Longitude, &loc.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}
