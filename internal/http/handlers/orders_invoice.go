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

type invoiceItemInput struct {
	ID        *int64  `json:"id"`
	ProductID *int64  `json:"productId"`
	DealID    *int64  `json:"dealId"`
	Name      string  `json:"name"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Notes     *string `json:"notes"`
}

type updateInvoiceRequest struct {
	Items          []invoiceItemInput `json:"items"`
	DiscountAmount *float64           `json:"discountAmount"`
	TaxAmount      *float64           `json:"taxAmount"`
	DeliveryFee    *float64           `json:"deliveryFee"`
}

// AdminUpdateOrderInvoice replaces the order's line items and recomputes
// the financial columns in one transaction. Items carrying an id are
// updated in place, items without one are inserted, and existing rows
// absent from the payload are deleted.
func (h *Handler) AdminUpdateOrderInvoice(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	var req updateInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		response.Error(w, http.StatusBadRequest, "EMPTY_INVOICE", "An invoice needs at least one line item")
		return
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_QUANTITY", "Quantity must be greater than zero")
			return
		}
		if item.UnitPrice < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_UNIT_PRICE", "Unit price cannot be negative")
			return
		}
		if item.ProductID == nil && item.DealID == nil && strings.TrimSpace(item.Name) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_ITEM_NAME", "Custom items require a name")
			return
		}
	}
	if (req.DiscountAmount != nil && *req.DiscountAmount < 0) ||
		(req.TaxAmount != nil && *req.TaxAmount < 0) ||
		(req.DeliveryFee != nil && *req.DeliveryFee < 0) {
		response.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "Amounts cannot be negative")
		return
	}

	ctx := r.Context()
	tx, err := h.DB.Begin(ctx)
	if err != nil {
		h.Logger.Error("failed to begin invoice transaction", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update invoice")
		return
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(ctx, `select status from orders where id = $1 for update`, orderID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
			return
		}
		h.Logger.Error("failed to lock order for invoice edit", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update invoice")
		return
	}
	if status == StatusClosed {
		response.Error(w, http.StatusConflict, "ORDER_CLOSED", "Closed orders cannot be edited")
		return
	}

	if err := h.applyInvoiceItemsTx(ctx, tx, orderID, req.Items); err != nil {
		h.Logger.Error("failed to reconcile invoice items", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update invoice")
		return
	}

	if err := h.recomputeOrderTotalsTx(ctx, tx, orderID, req.DiscountAmount, req.TaxAmount, req.DeliveryFee); err != nil {
		h.Logger.Error("failed to recompute order totals", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update invoice")
		return
	}

	if _, err := tx.Exec(ctx, `
		update orders set last_invoice_edit_at = now(), updated_at = now() where id = $1
	`, orderID); err != nil {
		h.Logger.Error("failed to stamp invoice edit", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update invoice")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.Logger.Error("failed to commit invoice update", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update invoice")
		return
	}

	detail, err := h.fetchOrderDetail(ctx, orderID)
	if err != nil {
		h.Logger.Error("failed to reload order after invoice edit", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order")
		return
	}

	h.notifyOrderUpdate(ctx, detail.OrderNumber)
	response.Success(w, detail)
}

// applyInvoiceItemsTx diffs the submitted items against the stored rows:
// delete missing, update kept, insert new.
func (h *Handler) applyInvoiceItemsTx(ctx context.Context, tx pgx.Tx, orderID int64, items []invoiceItemInput) error {
	keptIDs := make([]int64, 0, len(items))
	for _, item := range items {
		if item.ID != nil {
			keptIDs = append(keptIDs, *item.ID)
		}
	}

	if len(keptIDs) == 0 {
		if _, err := tx.Exec(ctx, `delete from order_items where order_id = $1`, orderID); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `
			delete from order_items where order_id = $1 and not (id = any($2))
		`, orderID, keptIDs); err != nil {
			return err
		}
	}

	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if item.ID != nil {
			tag, err := tx.Exec(ctx, `
				update order_items
				set product_id = $1, deal_id = $2, name = $3, quantity = $4,
				    unit_price = $5, notes = $6
				where id = $7 and order_id = $8
			`, item.ProductID, item.DealID, name, item.Quantity, round2(item.UnitPrice), item.Notes, *item.ID, orderID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() > 0 {
				continue
			}
			// Stale id from the client, fall through to insert.
		}
		if _, err := tx.Exec(ctx, `
			insert into order_items (order_id, product_id, deal_id, name, quantity, unit_price, notes)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, orderID, item.ProductID, item.DealID, name, item.Quantity, round2(item.UnitPrice), item.Notes); err != nil {
			return err
		}
	}
	return nil
}

// recomputeOrderTotalsTx re-derives sub_total from the item rows inside
// the same transaction, then reapplies the totals identity. Passing nil
// for an adjustment keeps the stored value.
func (h *Handler) recomputeOrderTotalsTx(ctx context.Context, tx pgx.Tx, orderID int64, discount, tax, fee *float64) error {
	var subTotal, storedDiscount, storedTax, storedFee, amountPaid float64
	if err := tx.QueryRow(ctx, `
		select
			coalesce((select sum(quantity * unit_price) from order_items where order_id = o.id), 0),
			o.discount_amount, o.tax_amount, o.delivery_fee, o.amount_paid
		from orders o
		where o.id = $1
	`, orderID).Scan(&subTotal, &storedDiscount, &storedTax, &storedFee, &amountPaid); err != nil {
		return err
	}

	if discount != nil {
		storedDiscount = *discount
	}
	if tax != nil {
		storedTax = *tax
	}
	if fee != nil {
		storedFee = *fee
	}

	total, due := computeOrderTotals(subTotal, storedDiscount, storedTax, storedFee, amountPaid)

	_, err := tx.Exec(ctx, `
		update orders
		set sub_total = $1, discount_amount = $2, tax_amount = $3, delivery_fee = $4,
		    total_price = $5, amount_due = $6, updated_at = now()
		where id = $7
	`, round2(subTotal), round2(storedDiscount), round2(storedTax), round2(storedFee), total, due, orderID)
	return err
}
