package handlers

import (
	"context"
	"net/http"
	"strings"

	"zaiqa-order-service/internal/utils"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

func (h *Handler) loadDeliveryZones(ctx context.Context) ([]deliveryZone, error) {
	rows, err := h.DB.Query(ctx, `
		select id, name, min_order_amount, delivery_fee, free_above
		from delivery_zones
		order by id asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := make([]deliveryZone, 0)
	for rows.Next() {
		var (
			zone      deliveryZone
			minOrder  pgtype.Numeric
			fee       pgtype.Numeric
			freeAbove pgtype.Numeric
		)
		if err := rows.Scan(&zone.ID, &zone.Name, &minOrder, &fee, &freeAbove); err != nil {
			return nil, err
		}
		zone.MinOrderAmount = utils.NumericToFloat64(minOrder)
		zone.DeliveryFee = utils.NumericToFloat64(fee)
		zone.FreeAbove = numericPtr(freeAbove)
		zones = append(zones, zone)
	}
	return zones, rows.Err()
}

func (h *Handler) AdminListDeliveryZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.loadDeliveryZones(r.Context())
	if err != nil {
		h.Logger.Error("failed to list delivery zones", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load delivery zones")
		return
	}
	response.Success(w, zones)
}

type deliveryZoneRequest struct {
	Name           string   `json:"name"`
	MinOrderAmount float64  `json:"minOrderAmount"`
	DeliveryFee    float64  `json:"deliveryFee"`
	FreeAbove      *float64 `json:"freeAbove"`
}

func (req *deliveryZoneRequest) validate() (string, string) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "INVALID_ZONE_NAME", "Zone name is required"
	}
	if req.MinOrderAmount < 0 || req.DeliveryFee < 0 {
		return "INVALID_AMOUNT", "Amounts cannot be negative"
	}
	if req.FreeAbove != nil && *req.FreeAbove < 0 {
		return "INVALID_AMOUNT", "free_above cannot be negative"
	}
	return "", ""
}

func (h *Handler) AdminCreateDeliveryZone(w http.ResponseWriter, r *http.Request) {
	var req deliveryZoneRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	var zone deliveryZone
	zone.Name = req.Name
	zone.MinOrderAmount = round2(req.MinOrderAmount)
	zone.DeliveryFee = round2(req.DeliveryFee)
	zone.FreeAbove = req.FreeAbove

	err := h.DB.QueryRow(r.Context(), `
		insert into delivery_zones (name, min_order_amount, delivery_fee, free_above)
		values ($1, $2, $3, $4)
		returning id
	`, zone.Name, zone.MinOrderAmount, zone.DeliveryFee, zone.FreeAbove).Scan(&zone.ID)
	if err != nil {
		h.Logger.Error("failed to create delivery zone", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create delivery zone")
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": zone})
}

func (h *Handler) AdminUpdateDeliveryZone(w http.ResponseWriter, r *http.Request) {
	zoneID, err := readPathInt64(r, "zoneId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ZONE_ID", "Zone id must be numeric")
		return
	}

	var req deliveryZoneRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
		update delivery_zones
		set name = $1, min_order_amount = $2, delivery_fee = $3, free_above = $4, updated_at = now()
		where id = $5
	`, req.Name, round2(req.MinOrderAmount), round2(req.DeliveryFee), req.FreeAbove, zoneID)
	if err != nil {
		h.Logger.Error("failed to update delivery zone", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update delivery zone")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "ZONE_NOT_FOUND", "Delivery zone not found")
		return
	}

	response.Success(w, deliveryZone{
		ID:             zoneID,
		Name:           req.Name,
		MinOrderAmount: round2(req.MinOrderAmount),
		DeliveryFee:    round2(req.DeliveryFee),
		FreeAbove:      req.FreeAbove,
	})
}

func (h *Handler) AdminDeleteDeliveryZone(w http.ResponseWriter, r *http.Request) {
	zoneID, err := readPathInt64(r, "zoneId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ZONE_ID", "Zone id must be numeric")
		return
	}

	tag, err := h.DB.Exec(r.Context(), `delete from delivery_zones where id = $1`, zoneID)
	if err != nil {
		h.Logger.Error("failed to delete delivery zone", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete delivery zone")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "ZONE_NOT_FOUND", "Delivery zone not found")
		return
	}

	response.Success(w, map[string]any{"deleted": true})
}

type deliveryQuoteRequest struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Subtotal  float64  `json:"subtotal"`
}

// PublicDeliveryQuote lets the checkout page show the fee before the
// customer commits. Same resolution order as checkout: coordinates
// first, zone match second.
func (h *Handler) PublicDeliveryQuote(w http.ResponseWriter, r *http.Request) {
	var req deliveryQuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	if req.Latitude != nil && req.Longitude != nil &&
		h.Config.RestaurantLatitude != 0 && h.Config.RestaurantLongitude != 0 {
		km := round2(haversineKm(h.Config.RestaurantLatitude, h.Config.RestaurantLongitude, *req.Latitude, *req.Longitude))
		response.Success(w, map[string]any{
			"method":     "distance",
			"distanceKm": km,
			"fee":        deliveryFeeForDistance(km),
		})
		return
	}

	zones, err := h.loadDeliveryZones(r.Context())
	if err != nil {
		h.Logger.Error("failed to load zones for quote", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to quote delivery")
		return
	}

	fee, zone := matchDeliveryZone(zones, req.Address, req.Subtotal)
	if zone == nil {
		response.Success(w, map[string]any{"method": "none", "fee": 0.0})
		return
	}
	response.Success(w, map[string]any{
		"method": "zone",
		"zone":   zone,
		"fee":    fee,
	})
}
