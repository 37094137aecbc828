package handlers

import (
	"errors"
	"net/http"
	"strings"

	"zaiqa-order-service/internal/middleware"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type submitRatingRequest struct {
	Stars    int32   `json:"stars"`
	Delivery *int32  `json:"delivery"`
	Quality  *int32  `json:"quality"`
	Comment  *string `json:"comment"`
}

func validStarValue(v int32) bool { return v >= 1 && v <= 5 }

// ratingOwnedBy reports whether the order belongs to the requesting
// customer. Guest orders carry no owner and cannot be rated through the
// authenticated surface.
func ratingOwnedBy(ownerID *int64, userID int64) bool {
	return ownerID != nil && *ownerID == userID
}

// CustomerSubmitRating records a one-time rating on a delivered order.
// The rating is written once; later submissions are rejected rather
// than averaged or overwritten.
func (h *Handler) CustomerSubmitRating(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	var req submitRatingRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if !validStarValue(req.Stars) {
		response.Error(w, http.StatusBadRequest, "INVALID_RATING", "Stars must be between 1 and 5")
		return
	}
	if (req.Delivery != nil && !validStarValue(*req.Delivery)) ||
		(req.Quality != nil && !validStarValue(*req.Quality)) {
		response.Error(w, http.StatusBadRequest, "INVALID_RATING", "Sub-ratings must be between 1 and 5")
		return
	}
	if req.Comment != nil {
		trimmed := strings.TrimSpace(*req.Comment)
		if len(trimmed) > 1000 {
			trimmed = trimmed[:1000]
		}
		if trimmed == "" {
			req.Comment = nil
		} else {
			req.Comment = &trimmed
		}
	}

	ctx := r.Context()

	var (
		status       string
		ownerID      *int64
		alreadyRated bool
	)
	err = h.DB.QueryRow(ctx, `
		select status, user_id, rated_at is not null from orders where id = $1
	`, orderID).Scan(&status, &ownerID, &alreadyRated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
			return
		}
		h.Logger.Error("failed to load order for rating", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to submit rating")
		return
	}
	if !ratingOwnedBy(ownerID, authCtx.UserID) {
		response.Error(w, http.StatusForbidden, "NOT_YOUR_ORDER", "You can only rate your own orders")
		return
	}
	if status != StatusDelivered {
		response.Error(w, http.StatusConflict, "ORDER_NOT_DELIVERED", "Only delivered orders can be rated")
		return
	}
	if alreadyRated {
		response.Error(w, http.StatusConflict, "RATING_ALREADY_SET", "This order has already been rated")
		return
	}

	// The rated_at guard in the predicate makes the write idempotent
	// under concurrent submissions.
	tag, err := h.DB.Exec(ctx, `
		update orders
		set rating_stars = $1, rating_delivery = $2, rating_quality = $3,
		    rating_comment = $4, rated_at = now(), updated_at = now()
		where id = $5 and user_id = $6 and rated_at is null and status = 'delivered'
	`, req.Stars, req.Delivery, req.Quality, req.Comment, orderID, authCtx.UserID)
	if err != nil {
		h.Logger.Error("failed to save rating", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to submit rating")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusConflict, "RATING_ALREADY_SET", "This order has already been rated")
		return
	}

	detail, err := h.fetchOrderDetail(ctx, orderID)
	if err != nil {
		h.Logger.Error("failed to reload order after rating", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order")
		return
	}

	response.Success(w, detail)
}
