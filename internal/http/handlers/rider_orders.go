package handlers

import (
	"net/http"
	"strings"

	"zaiqa-order-service/internal/middleware"
	"zaiqa-order-service/pkg/response"

	"go.uber.org/zap"
)

// RiderListOrders returns the rider's active deliveries: assigned online
// orders that are ready or already on the way.
func (h *Handler) RiderListOrders(w http.ResponseWriter, r *http.Request) {
	riderCtx, ok := middleware.GetRiderContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session required")
		return
	}

	rows, err := h.DB.Query(r.Context(), `
		select id from orders
		where rider_id = $1 and channel = 'online' and status in ('ready', 'on_the_way')
		order by created_at asc
	`, riderCtx.RiderID)
	if err != nil {
		h.Logger.Error("failed to list rider orders", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load orders")
		return
	}

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			h.Logger.Error("failed to scan rider order id", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load orders")
			return
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		h.Logger.Error("failed to read rider order ids", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load orders")
		return
	}

	orders := make([]OrderDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := h.fetchOrderDetail(r.Context(), id)
		if err != nil {
			h.Logger.Error("failed to load rider order", zap.Int64("orderId", id), zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load orders")
			return
		}
		orders = append(orders, detail)
	}

	response.Success(w, orders)
}

type riderStatusRequest struct {
	Status       string   `json:"status"`
	CashReceived *float64 `json:"cashReceived"`
}

// RiderUpdateOrderStatus lets the rider move their own order forward:
// out for delivery, then delivered (optionally collecting cash).
func (h *Handler) RiderUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	riderCtx, ok := middleware.GetRiderContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session required")
		return
	}

	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	var req riderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	target := strings.ToLower(strings.TrimSpace(req.Status))
	if target != StatusOnTheWay && target != StatusDelivered {
		response.Error(w, http.StatusForbidden, "STATUS_NOT_ALLOWED", "Riders can only mark orders on_the_way or delivered")
		return
	}

	ctx := r.Context()

	var assignedRider *int64
	if err := h.DB.QueryRow(ctx, `select rider_id from orders where id = $1`, orderID).Scan(&assignedRider); err != nil {
		response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
		return
	}
	if assignedRider == nil || *assignedRider != riderCtx.RiderID {
		response.Error(w, http.StatusForbidden, "NOT_YOUR_ORDER", "Order is assigned to another rider")
		return
	}

	detail, terr := h.applyStatusTransition(ctx, orderID, target, nil, req.CashReceived)
	if terr != nil {
		response.Error(w, terr.status, terr.code, terr.message)
		return
	}

	h.publishEvent(ctx, "order.status.updated", map[string]any{
		"type":        "order.status.updated",
		"orderId":     detail.ID,
		"orderNumber": detail.OrderNumber,
		"channel":     detail.Channel,
		"status":      detail.Status,
	})
	h.notifyOrderUpdate(ctx, detail.OrderNumber)

	response.Success(w, detail)
}

type riderLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RiderUpdateLocation upserts the rider's latest position. Only the most
// recent fix is kept; there is no movement history.
func (h *Handler) RiderUpdateLocation(w http.ResponseWriter, r *http.Request) {
	riderCtx, ok := middleware.GetRiderContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session required")
		return
	}

	var req riderLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		response.Error(w, http.StatusBadRequest, "INVALID_COORDINATES", "Latitude or longitude out of range")
		return
	}

	if _, err := h.DB.Exec(r.Context(), `
		insert into rider_locations (rider_id, latitude, longitude, recorded_at)
		values ($1, $2, $3, now())
		on conflict (rider_id) do update
		set latitude = excluded.latitude,
		    longitude = excluded.longitude,
		    recorded_at = excluded.recorded_at
	`, riderCtx.RiderID, req.Latitude, req.Longitude); err != nil {
		h.Logger.Error("failed to save rider location", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save location")
		return
	}

	// Wake the tracking pages of whatever this rider is delivering.
	rows, err := h.DB.Query(r.Context(), `
		select order_number from orders
		where rider_id = $1 and status = 'on_the_way'
	`, riderCtx.RiderID)
	if err == nil {
		for rows.Next() {
			var orderNumber string
			if rows.Scan(&orderNumber) == nil {
				h.notifyOrderUpdate(r.Context(), orderNumber)
			}
		}
		rows.Close()
	}

	response.Success(w, map[string]any{"saved": true})
}
