package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"zaiqa-order-service/internal/auth"
	"zaiqa-order-service/internal/promo"
	"zaiqa-order-service/internal/utils"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type checkoutItemInput struct {
	ProductID *int64  `json:"productId"`
	DealID    *int64  `json:"dealId"`
	Quantity  int32   `json:"quantity"`
	Notes     *string `json:"notes"`
}

type publicCheckoutRequest struct {
	CustomerName    string              `json:"customerName"`
	CustomerPhone   string              `json:"customerPhone"`
	CustomerAddress string              `json:"customerAddress"`
	CustomerNotes   *string             `json:"customerNotes"`
	Latitude        *float64            `json:"latitude"`
	Longitude       *float64            `json:"longitude"`
	PromoCode       string              `json:"promoCode"`
	Items           []checkoutItemInput `json:"items"`
}

type pricedItem struct {
	ProductID *int64
	DealID    *int64
	Name      string
	Quantity  int32
	UnitPrice float64
	Notes     *string
}

// PublicCreateOrder is the online checkout. Prices come from the menu
// tables, never from the client; the delivery fee comes from coordinates
// when the customer shared them, otherwise from zone matching on the
// address; the discount engine picks the single best programme.
func (h *Handler) PublicCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req publicCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerAddress = strings.TrimSpace(req.CustomerAddress)

	if req.CustomerName == "" || req.CustomerPhone == "" {
		response.Error(w, http.StatusBadRequest, "MISSING_CUSTOMER", "Name and phone are required")
		return
	}
	if req.CustomerAddress == "" {
		response.Error(w, http.StatusBadRequest, "MISSING_ADDRESS", "Delivery address is required")
		return
	}
	if len(req.Items) == 0 {
		response.Error(w, http.StatusBadRequest, "EMPTY_CART", "Add at least one item before checking out")
		return
	}

	ctx := r.Context()

	// Guests check out without an account; a logged-in customer's token
	// ties the order to them so they can rate it later.
	userID := h.optionalCustomerID(r)

	priced, err := h.priceCartItems(ctx, req.Items)
	if err != nil {
		if perr, ok := err.(*cartError); ok {
			response.Error(w, http.StatusBadRequest, perr.code, perr.message)
			return
		}
		h.Logger.Error("failed to price cart", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	subTotal := 0.0
	for _, item := range priced {
		subTotal += item.UnitPrice * float64(item.Quantity)
	}
	subTotal = round2(subTotal)

	deliveryFee, distanceKm := h.resolveDeliveryFee(ctx, req, subTotal)

	orderNumber, err := h.generateOrderNumber(ctx)
	if err != nil {
		h.Logger.Error("failed to generate order number", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	tx, err := h.DB.Begin(ctx)
	if err != nil {
		h.Logger.Error("failed to begin checkout transaction", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}
	defer tx.Rollback(ctx)

	// Discount resolution runs inside the transaction so the first-order
	// check and promo redemption see a consistent snapshot.
	discount, promoErr := promo.Resolve(ctx, tx, promo.Params{
		Code:             req.PromoCode,
		Subtotal:         subTotal,
		CustomerPhone:    req.CustomerPhone,
		Now:              time.Now(),
		Timezone:         h.Config.RestaurantTimezone,
		FirstOrderAmount: h.Config.FirstOrderDiscount,
		FirstOrderLabel:  h.Config.FirstOrderLabel,
		HappyHourStart:   h.Config.HappyHourStart,
		HappyHourEnd:     h.Config.HappyHourEnd,
		HappyHourPercent: h.Config.HappyHourPercent,
	})
	if promoErr != nil {
		response.Error(w, promoErr.StatusCode, string(promoErr.Code), promoErr.Message)
		return
	}

	var (
		discountAmount float64
		discountSource *string
		discountLabel  *string
		promoCodeID    *int64
	)
	if discount != nil {
		discountAmount = discount.Amount
		discountSource = &discount.Source
		discountLabel = &discount.Label
		promoCodeID = discount.PromoCodeID
		if discount.Source == promo.SourcePromoCode && discount.PromoCodeID != nil {
			if redeemErr := promo.RedeemTx(ctx, tx, *discount.PromoCodeID); redeemErr != nil {
				response.Error(w, redeemErr.StatusCode, string(redeemErr.Code), redeemErr.Message)
				return
			}
		}
	}

	total, due := computeOrderTotals(subTotal, discountAmount, 0, deliveryFee, 0)

	var orderID int64
	err = tx.QueryRow(ctx, `
		insert into orders (
			order_number, channel, status,
			customer_name, customer_phone, customer_address, customer_notes, user_id,
			distance_km, sub_total, discount_amount, discount_source,
			discount_label, promo_code_id, delivery_fee, total_price, amount_due
		) values (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		) returning id
	`, orderNumber, ChannelOnline, StatusNew,
		req.CustomerName, req.CustomerPhone, req.CustomerAddress, req.CustomerNotes, userID,
		distanceKm, subTotal, discountAmount, discountSource,
		discountLabel, promoCodeID, deliveryFee, total, due,
	).Scan(&orderID)
	if err != nil {
		h.Logger.Error("failed to insert order", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	if err := insertOrderItemsTx(ctx, tx, orderID, priced); err != nil {
		h.Logger.Error("failed to insert order items", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.Logger.Error("failed to commit checkout", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order")
		return
	}

	detail, err := h.fetchOrderDetail(ctx, orderID)
	if err != nil {
		h.Logger.Error("failed to reload order after checkout", zap.Error(err))
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

	trackingToken := utils.CreateOrderTrackingToken(h.Config.TrackingTokenSecret, detail.OrderNumber)

	response.JSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"data":          detail,
		"trackingToken": trackingToken,
	})
}

type cartError struct {
	code    string
	message string
}

func (e *cartError) Error() string { return e.message }

// priceCartItems resolves every cart line against the menu. Unknown or
// unavailable items fail the whole checkout.
func (h *Handler) priceCartItems(ctx context.Context, items []checkoutItemInput) ([]pricedItem, error) {
	priced := make([]pricedItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &cartError{"INVALID_QUANTITY", "Quantity must be greater than zero"}
		}
		switch {
		case item.ProductID != nil:
			var name string
			var price float64
			err := h.DB.QueryRow(ctx, `
				select name, price from products where id = $1 and is_available = true
			`, *item.ProductID).Scan(&name, &price)
			if err == pgx.ErrNoRows {
				return nil, &cartError{"PRODUCT_UNAVAILABLE", "One of the items is no longer available"}
			}
			if err != nil {
				return nil, err
			}
			priced = append(priced, pricedItem{ProductID: item.ProductID, Name: name, Quantity: item.Quantity, UnitPrice: price, Notes: item.Notes})
		case item.DealID != nil:
			var name string
			var price float64
			err := h.DB.QueryRow(ctx, `
				select name, price from deals
				where id = $1 and is_active = true
				  and (valid_from is null or valid_from <= now())
				  and (valid_until is null or valid_until >= now())
			`, *item.DealID).Scan(&name, &price)
			if err == pgx.ErrNoRows {
				return nil, &cartError{"DEAL_UNAVAILABLE", "One of the deals is no longer available"}
			}
			if err != nil {
				return nil, err
			}
			priced = append(priced, pricedItem{DealID: item.DealID, Name: name, Quantity: item.Quantity, UnitPrice: price, Notes: item.Notes})
		default:
			return nil, &cartError{"INVALID_ITEM", "Each item needs a productId or dealId"}
		}
	}
	return priced, nil
}

// resolveDeliveryFee prefers precise coordinates over zone matching.
// With neither available the fee is zero and staff adjust the invoice.
func (h *Handler) resolveDeliveryFee(ctx context.Context, req publicCheckoutRequest, subTotal float64) (float64, *float64) {
	if req.Latitude != nil && req.Longitude != nil &&
		h.Config.RestaurantLatitude != 0 && h.Config.RestaurantLongitude != 0 {
		km := haversineKm(h.Config.RestaurantLatitude, h.Config.RestaurantLongitude, *req.Latitude, *req.Longitude)
		km = round2(km)
		return deliveryFeeForDistance(km), &km
	}

	zones, err := h.loadDeliveryZones(ctx)
	if err != nil {
		h.Logger.Warn("failed to load delivery zones", zap.Error(err))
		return 0, nil
	}
	fee, _ := matchDeliveryZone(zones, req.CustomerAddress, subTotal)
	return fee, nil
}

func insertOrderItemsTx(ctx context.Context, tx pgx.Tx, orderID int64, items []pricedItem) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			insert into order_items (order_id, product_id, deal_id, name, quantity, unit_price, notes)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, orderID, item.ProductID, item.DealID, item.Name, item.Quantity, round2(item.UnitPrice), item.Notes); err != nil {
			return err
		}
	}
	return nil
}

// optionalCustomerID resolves a customer id from an Authorization header
// when one is present. Checkout stays open to guests, so a missing or
// invalid token is not an error.
func (h *Handler) optionalCustomerID(r *http.Request) *int64 {
	token := auth.ParseBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil
	}
	claims, err := auth.VerifyAccessToken(token, h.Config.JWTSecret)
	if err != nil || claims.Role != auth.RoleCustomer {
		return nil
	}
	id, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
