package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type updateStatusRequest struct {
	Status       string   `json:"status"`
	RiderID      *int64   `json:"riderId"`
	CashReceived *float64 `json:"cashReceived"`
}

type transitionError struct {
	status  int
	code    string
	message string
}

func (e *transitionError) Error() string { return e.message }

// confirmsCashReceipt reports whether a transition carries the rider's
// confirmation that cash was collected at the door.
func confirmsCashReceipt(target string, cashReceived *float64) bool {
	return target == StatusDelivered && cashReceived != nil && *cashReceived > 0
}

// AdminUpdateOrderStatus moves an order on the board. Assigning a rider
// can ride along with the transition; online orders cannot go out for
// delivery without one.
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	h.runStatusTransition(w, r, orderID, req)
}

func (h *Handler) runStatusTransition(w http.ResponseWriter, r *http.Request, orderID int64, req updateStatusRequest) {
	target := strings.ToLower(strings.TrimSpace(req.Status))
	ctx := r.Context()

	detail, terr := h.applyStatusTransition(ctx, orderID, target, req.RiderID, req.CashReceived)
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

// applyStatusTransition is shared by the admin board and the rider app.
// It locks the order, validates the move for the order's channel, stamps
// the first-time timestamps, optionally records cash collected on
// delivery, and issues a receipt when the target calls for one.
func (h *Handler) applyStatusTransition(ctx context.Context, orderID int64, target string, riderID *int64, cashReceived *float64) (OrderDetail, *transitionError) {
	tx, err := h.DB.Begin(ctx)
	if err != nil {
		h.Logger.Error("failed to begin status transaction", zap.Error(err))
		return OrderDetail{}, &transitionError{http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update status"}
	}
	defer tx.Rollback(ctx)

	var (
		channel         string
		current         string
		readyStamped    bool
		existingRiderID *int64
	)
	err = tx.QueryRow(ctx, `
		select channel, status, ready_at is not null, rider_id
		from orders where id = $1 for update
	`, orderID).Scan(&channel, &current, &readyStamped, &existingRiderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderDetail{}, &transitionError{http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found"}
		}
		h.Logger.Error("failed to lock order for status update", zap.Error(err))
		return OrderDetail{}, &transitionError{http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update status"}
	}

	if !isStatusAllowed(channel, target) {
		return OrderDetail{}, &transitionError{http.StatusBadRequest, "INVALID_STATUS", "Status is not valid for this order channel"}
	}
	if !isValidTransition(channel, current, target) {
		return OrderDetail{}, &transitionError{http.StatusConflict, "INVALID_TRANSITION", "Order is already in this status"}
	}

	if riderID != nil {
		var active bool
		if err := tx.QueryRow(ctx, `
			select exists(select 1 from riders where id = $1 and status = 'active')
		`, *riderID).Scan(&active); err != nil {
			h.Logger.Error("failed to check rider", zap.Error(err))
			return OrderDetail{}, &transitionError{http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update status"}
		}
		if !active {
			return OrderDetail{}, &transitionError{http.StatusBadRequest, "RIDER_NOT_FOUND", "Rider not found or inactive"}
		}
		existingRiderID = riderID
	}

	if transitionRequiresRider(channel, target) && existingRiderID == nil {
		return OrderDetail{}, &transitionError{http.StatusBadRequest, "RIDER_REQUIRED", "Assign a rider before sending the order out"}
	}

	if _, err := tx.Exec(ctx, `
		update orders
		set status = $1,
		    rider_id = coalesce($2, rider_id),
		    ready_at = case when $1 = 'ready' then coalesce(ready_at, now()) else ready_at end,
		    delivered_at = case when $1 = 'delivered' then coalesce(delivered_at, now()) else delivered_at end,
		    updated_at = now()
		where id = $3
	`, target, riderID, orderID); err != nil {
		h.Logger.Error("failed to update order status", zap.Error(err))
		return OrderDetail{}, &transitionError{http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update status"}
	}

	if confirmsCashReceipt(target, cashReceived) {
		if err := h.applyPaymentToOrderTx(ctx, tx, orderID, *cashReceived, "cash", nil, nil); err != nil {
			h.Logger.Error("failed to record cash on delivery", zap.Error(err))
			return OrderDetail{}, &transitionError{http.StatusInternalServerError, "DATABASE_ERROR", "Failed to record payment"}
		}
		// The rider confirmed money changed hands, so the stamp does not
		// wait for the balance to clear on a partial collection.
		if _, err := tx.Exec(ctx, `
			update orders set payment_received_at = coalesce(payment_received_at, now()) where id = $1
		`, orderID); err != nil {
			h.Logger.Error("failed to stamp payment receipt", zap.Error(err))
			return OrderDetail{}, &transitionError{http.StatusInternalServerError, "DATABASE_ERROR", "Failed to record payment"}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		h.Logger.Error("failed to commit status update", zap.Error(err))
		return OrderDetail{}, &transitionError{http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update status"}
	}

	detail, err := h.fetchOrderDetail(ctx, orderID)
	if err != nil {
		h.Logger.Error("failed to reload order after status update", zap.Error(err))
		return OrderDetail{}, &transitionError{http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order"}
	}

	if transitionIssuesReceipt(target, readyStamped) {
		h.issueReceipt(ctx, &detail)
	}

	return detail, nil
}
