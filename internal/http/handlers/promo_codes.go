package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"zaiqa-order-service/internal/promo"
	"zaiqa-order-service/internal/utils"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

type promoCodeView struct {
	ID             int64      `json:"id"`
	Code           string     `json:"code"`
	DiscountType   string     `json:"discountType"`
	DiscountValue  float64    `json:"discountValue"`
	MinOrderAmount *float64   `json:"minOrderAmount"`
	ValidFrom      *time.Time `json:"validFrom"`
	ValidUntil     *time.Time `json:"validUntil"`
	UsageLimit     *int32     `json:"usageLimit"`
	UsedCount      int32      `json:"usedCount"`
	IsActive       bool       `json:"isActive"`
}

type promoCodeRequest struct {
	Code           string     `json:"code"`
	DiscountType   string     `json:"discountType"`
	DiscountValue  float64    `json:"discountValue"`
	MinOrderAmount *float64   `json:"minOrderAmount"`
	ValidFrom      *time.Time `json:"validFrom"`
	ValidUntil     *time.Time `json:"validUntil"`
	UsageLimit     *int32     `json:"usageLimit"`
	IsActive       *bool      `json:"isActive"`
}

func (req *promoCodeRequest) validate() (string, string) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.DiscountType = strings.ToLower(strings.TrimSpace(req.DiscountType))

	if req.Code == "" {
		return "INVALID_CODE", "Code is required"
	}
	if req.DiscountType != string(promo.DiscountPercent) && req.DiscountType != string(promo.DiscountFixed) {
		return "INVALID_DISCOUNT_TYPE", "Discount type must be percent or fixed"
	}
	if req.DiscountValue <= 0 {
		return "INVALID_DISCOUNT_VALUE", "Discount value must be greater than zero"
	}
	if req.DiscountType == string(promo.DiscountPercent) && req.DiscountValue > 100 {
		return "INVALID_DISCOUNT_VALUE", "Percent discounts cannot exceed 100"
	}
	if req.MinOrderAmount != nil && *req.MinOrderAmount < 0 {
		return "INVALID_MIN_ORDER", "Minimum order amount cannot be negative"
	}
	if req.UsageLimit != nil && *req.UsageLimit <= 0 {
		return "INVALID_USAGE_LIMIT", "Usage limit must be greater than zero"
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && req.ValidUntil.Before(*req.ValidFrom) {
		return "INVALID_VALIDITY", "valid_until must be after valid_from"
	}
	return "", ""
}

const promoCodeColumns = `
	id, code, discount_type, discount_value, min_order_amount,
	valid_from, valid_until, usage_limit, used_count, is_active
`

func scanPromoCode(row pgx.Row) (promoCodeView, error) {
	var (
		view          promoCodeView
		discountValue pgtype.Numeric
		minOrder      pgtype.Numeric
		validFrom     pgtype.Timestamptz
		validUntil    pgtype.Timestamptz
		usageLimit    pgtype.Int4
	)
	if err := row.Scan(
		&view.ID, &view.Code, &view.DiscountType, &discountValue, &minOrder,
		&validFrom, &validUntil, &usageLimit, &view.UsedCount, &view.IsActive,
	); err != nil {
		return promoCodeView{}, err
	}
	view.DiscountValue = utils.NumericToFloat64(discountValue)
	view.MinOrderAmount = numericPtr(minOrder)
	view.ValidFrom = timePtr(validFrom)
	view.ValidUntil = timePtr(validUntil)
	view.UsageLimit = int4Ptr(usageLimit)
	return view, nil
}

func (h *Handler) AdminListPromoCodes(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(r.Context(), `select `+promoCodeColumns+` from promo_codes order by created_at desc`)
	if err != nil {
		h.Logger.Error("failed to list promo codes", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load promo codes")
		return
	}
	defer rows.Close()

	codes := make([]promoCodeView, 0)
	for rows.Next() {
		view, err := scanPromoCode(rows)
		if err != nil {
			h.Logger.Error("failed to scan promo code", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load promo codes")
			return
		}
		codes = append(codes, view)
	}
	response.Success(w, codes)
}

func (h *Handler) AdminCreatePromoCode(w http.ResponseWriter, r *http.Request) {
	var req promoCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	row := h.DB.QueryRow(r.Context(), `
		insert into promo_codes (code, discount_type, discount_value, min_order_amount,
		                         valid_from, valid_until, usage_limit, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+promoCodeColumns+`
	`, req.Code, req.DiscountType, round2(req.DiscountValue), req.MinOrderAmount,
		req.ValidFrom, req.ValidUntil, req.UsageLimit, isActive)

	view, err := scanPromoCode(row)
	if err != nil {
		if strings.Contains(err.Error(), "promo_codes_code_key") {
			response.Error(w, http.StatusConflict, "CODE_EXISTS", "A promo code with this code already exists")
			return
		}
		h.Logger.Error("failed to create promo code", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create promo code")
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": view})
}

func (h *Handler) AdminUpdatePromoCode(w http.ResponseWriter, r *http.Request) {
	promoID, err := readPathInt64(r, "promoId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_PROMO_ID", "Promo id must be numeric")
		return
	}

	var req promoCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	row := h.DB.QueryRow(r.Context(), `
		update promo_codes
		set code = $1, discount_type = $2, discount_value = $3, min_order_amount = $4,
		    valid_from = $5, valid_until = $6, usage_limit = $7, is_active = $8,
		    updated_at = now()
		where id = $9
		returning `+promoCodeColumns+`
	`, req.Code, req.DiscountType, round2(req.DiscountValue), req.MinOrderAmount,
		req.ValidFrom, req.ValidUntil, req.UsageLimit, isActive, promoID)

	view, err := scanPromoCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "PROMO_NOT_FOUND", "Promo code not found")
			return
		}
		h.Logger.Error("failed to update promo code", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update promo code")
		return
	}

	response.Success(w, view)
}

func (h *Handler) AdminDeletePromoCode(w http.ResponseWriter, r *http.Request) {
	promoID, err := readPathInt64(r, "promoId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_PROMO_ID", "Promo id must be numeric")
		return
	}

	// Codes referenced by past orders are deactivated instead of removed
	// so order history keeps its link.
	tag, err := h.DB.Exec(r.Context(), `
		update promo_codes set is_active = false, updated_at = now() where id = $1
	`, promoID)
	if err != nil {
		h.Logger.Error("failed to deactivate promo code", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete promo code")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "PROMO_NOT_FOUND", "Promo code not found")
		return
	}

	response.Success(w, map[string]any{"deleted": true})
}

type validatePromoRequest struct {
	Code          string  `json:"code"`
	Subtotal      float64 `json:"subtotal"`
	CustomerPhone string  `json:"customerPhone"`
}

// PublicValidatePromo previews the discount for a cart. It never touches
// used_count; redemption happens at checkout only.
func (h *Handler) PublicValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if req.Subtotal < 0 || !isFinite(req.Subtotal) {
		response.Error(w, http.StatusBadRequest, "INVALID_SUBTOTAL", "Subtotal cannot be negative")
		return
	}

	result, promoErr := promo.Resolve(r.Context(), h.DB, promo.Params{
		Code:             req.Code,
		Subtotal:         req.Subtotal,
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

	response.Success(w, map[string]any{"discount": result})
}
