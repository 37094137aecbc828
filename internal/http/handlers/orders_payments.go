package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"zaiqa-order-service/internal/middleware"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var paymentMethods = map[string]bool{
	"cash":          true,
	"card":          true,
	"bank_transfer": true,
	"wallet":        true,
}

type recordPaymentRequest struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
	Notes  *string `json:"notes"`
}

// AdminListOrderPayments returns the append-only payment ledger for one
// order, oldest first.
func (h *Handler) AdminListOrderPayments(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	payments, err := h.fetchOrderPayments(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("failed to list payments", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load payments")
		return
	}
	response.Success(w, payments)
}

// AdminRecordOrderPayment appends a ledger entry and rolls the cached
// amount_paid / amount_due forward. Ledger rows are never updated or
// deleted; a mistake is corrected by a compensating entry.
func (h *Handler) AdminRecordOrderPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if req.Amount <= 0 || !isFinite(req.Amount) {
		response.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "Payment amount must be greater than zero")
		return
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = "cash"
	}
	if !paymentMethods[method] {
		response.Error(w, http.StatusBadRequest, "INVALID_METHOD", "Unknown payment method")
		return
	}

	var recordedBy *string
	if auth, ok := middleware.GetAuthContext(r.Context()); ok {
		recordedBy = &auth.Email
	}

	ctx := r.Context()
	tx, err := h.DB.Begin(ctx)
	if err != nil {
		h.Logger.Error("failed to begin payment transaction", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to record payment")
		return
	}
	defer tx.Rollback(ctx)

	if err := h.applyPaymentToOrderTx(ctx, tx, orderID, req.Amount, method, req.Notes, recordedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
			return
		}
		h.Logger.Error("failed to record payment", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to record payment")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.Logger.Error("failed to commit payment", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to record payment")
		return
	}

	detail, err := h.fetchOrderDetail(ctx, orderID)
	if err != nil {
		h.Logger.Error("failed to reload order after payment", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order")
		return
	}

	h.notifyOrderUpdate(ctx, detail.OrderNumber)
	response.Success(w, detail)
}

// applyPaymentToOrderTx is the single write path for amount_paid: it
// inserts the ledger row, locks the order, and recomputes the cached
// totals from the ledger sum rather than trusting the previous cache.
// payment_received_at is stamped once, when the balance first clears.
func (h *Handler) applyPaymentToOrderTx(ctx context.Context, tx pgx.Tx, orderID int64, amount float64, method string, notes, recordedBy *string) error {
	var subTotal, discount, tax, fee float64
	if err := tx.QueryRow(ctx, `
		select sub_total, discount_amount, tax_amount, delivery_fee
		from orders where id = $1 for update
	`, orderID).Scan(&subTotal, &discount, &tax, &fee); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		insert into order_payments (order_id, amount, method, notes, recorded_by)
		values ($1, $2, $3, $4, $5)
	`, orderID, round2(amount), method, notes, recordedBy); err != nil {
		return err
	}

	var paid float64
	if err := tx.QueryRow(ctx, `
		select coalesce(sum(amount), 0) from order_payments where order_id = $1
	`, orderID).Scan(&paid); err != nil {
		return err
	}
	paid = round2(paid)

	total, due := computeOrderTotals(subTotal, discount, tax, fee, paid)

	_, err := tx.Exec(ctx, `
		update orders
		set amount_paid = $1, amount_due = $2, total_price = $3,
		    payment_received_at = case when $2::numeric = 0 then coalesce(payment_received_at, now()) else payment_received_at end,
		    updated_at = now()
		where id = $4
	`, paid, due, total, orderID)
	return err
}
