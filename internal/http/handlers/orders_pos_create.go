package handlers

import (
	"net/http"
	"strings"

	"zaiqa-order-service/internal/middleware"
	"zaiqa-order-service/pkg/response"

	"go.uber.org/zap"
)

type posItemInput struct {
	ProductID *int64   `json:"productId"`
	DealID    *int64   `json:"dealId"`
	Name      string   `json:"name"`
	Quantity  int32    `json:"quantity"`
	UnitPrice *float64 `json:"unitPrice"`
	Notes     *string  `json:"notes"`
}

type posCreateOrderRequest struct {
	Channel        string         `json:"channel"`
	CustomerName   *string        `json:"customerName"`
	CustomerPhone  *string        `json:"customerPhone"`
	TableNumber    *string        `json:"tableNumber"`
	DiscountAmount float64        `json:"discountAmount"`
	TaxAmount      float64        `json:"taxAmount"`
	CashReceived   *float64       `json:"cashReceived"`
	Items          []posItemInput `json:"items"`
}

// AdminCreatePOSOrder rings up a counter order. Menu items are priced
// from the catalog; custom lines carry their own name and price. An
// optional cash amount settles (part of) the bill immediately.
func (h *Handler) AdminCreatePOSOrder(w http.ResponseWriter, r *http.Request) {
	var req posCreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	channel := strings.ToLower(strings.TrimSpace(req.Channel))
	if channel == ChannelOnline || !isValidChannel(channel) {
		response.Error(w, http.StatusBadRequest, "INVALID_CHANNEL", "POS orders must be walk_in, dine_in or takeaway")
		return
	}
	if channel == ChannelDineIn && (req.TableNumber == nil || strings.TrimSpace(*req.TableNumber) == "") {
		response.Error(w, http.StatusBadRequest, "MISSING_TABLE", "Dine-in orders need a table number")
		return
	}
	if len(req.Items) == 0 {
		response.Error(w, http.StatusBadRequest, "EMPTY_ORDER", "Add at least one item")
		return
	}
	if req.DiscountAmount < 0 || req.TaxAmount < 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "Amounts cannot be negative")
		return
	}

	ctx := r.Context()

	priced := make([]pricedItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_QUANTITY", "Quantity must be greater than zero")
			return
		}
		if item.ProductID != nil || item.DealID != nil {
			menuPriced, err := h.priceCartItems(ctx, []checkoutItemInput{{
				ProductID: item.ProductID,
				DealID:    item.DealID,
				Quantity:  item.Quantity,
				Notes:     item.Notes,
			}})
			if err != nil {
				if perr, ok := err.(*cartError); ok {
					response.Error(w, http.StatusBadRequest, perr.code, perr.message)
					return
				}
				h.Logger.Error("failed to price pos item", zap.Error(err))
				response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
				return
			}
			priced = append(priced, menuPriced...)
			continue
		}

		name := strings.TrimSpace(item.Name)
		if name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_ITEM_NAME", "Custom items require a name")
			return
		}
		if item.UnitPrice == nil || *item.UnitPrice < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_UNIT_PRICE", "Custom items require a non-negative unit price")
			return
		}
		priced = append(priced, pricedItem{Name: name, Quantity: item.Quantity, UnitPrice: *item.UnitPrice, Notes: item.Notes})
	}

	subTotal := 0.0
	for _, item := range priced {
		subTotal += item.UnitPrice * float64(item.Quantity)
	}
	subTotal = round2(subTotal)

	total, due := computeOrderTotals(subTotal, req.DiscountAmount, req.TaxAmount, 0, 0)

	orderNumber, err := h.generateOrderNumber(ctx)
	if err != nil {
		h.Logger.Error("failed to generate order number", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	tx, err := h.DB.Begin(ctx)
	if err != nil {
		h.Logger.Error("failed to begin pos transaction", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}
	defer tx.Rollback(ctx)

	var orderID int64
	err = tx.QueryRow(ctx, `
		insert into orders (
			order_number, channel, status, customer_name, customer_phone,
			table_number, sub_total, discount_amount, tax_amount,
			total_price, amount_due
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		returning id
	`, orderNumber, channel, StatusNew, req.CustomerName, req.CustomerPhone,
		req.TableNumber, subTotal, round2(req.DiscountAmount), round2(req.TaxAmount),
		total, due,
	).Scan(&orderID)
	if err != nil {
		h.Logger.Error("failed to insert pos order", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	if err := insertOrderItemsTx(ctx, tx, orderID, priced); err != nil {
		h.Logger.Error("failed to insert pos items", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	if req.CashReceived != nil && *req.CashReceived > 0 {
		var recordedBy *string
		if auth, ok := middleware.GetAuthContext(ctx); ok {
			recordedBy = &auth.Email
		}
		if err := h.applyPaymentToOrderTx(ctx, tx, orderID, *req.CashReceived, "cash", nil, recordedBy); err != nil {
			h.Logger.Error("failed to record pos payment", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to record payment")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		h.Logger.Error("failed to commit pos order", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	detail, err := h.fetchOrderDetail(ctx, orderID)
	if err != nil {
		h.Logger.Error("failed to reload pos order", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order")
		return
	}

	h.publishEvent(ctx, "order.created", map[string]any{
		"type":        "order.created",
		"orderId":     detail.ID,
		"orderNumber": detail.OrderNumber,
		"channel":     detail.Channel,
	})
	h.notifyOrderUpdate(ctx, detail.OrderNumber)

	response.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    detail,
	})
}
