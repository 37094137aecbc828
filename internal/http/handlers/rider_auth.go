package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"zaiqa-order-service/internal/middleware"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type riderLoginRequest struct {
	RiderID int64  `json:"riderId"`
	PIN     string `json:"pin"`
}

// RiderLogin trades rider id + PIN for an opaque session token. The token
// is stored server-side, so deactivating a rider revokes access at once.
func (h *Handler) RiderLogin(w http.ResponseWriter, r *http.Request) {
	var req riderLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	pin := strings.TrimSpace(req.PIN)
	if req.RiderID <= 0 || pin == "" {
		response.Error(w, http.StatusBadRequest, "MISSING_CREDENTIALS", "Rider id and PIN are required")
		return
	}

	ctx := r.Context()

	var (
		riderName string
		pinHash   *string
	)
	err := h.DB.QueryRow(ctx, `
		select name, pin_hash from riders
		where id = $1 and status = 'active'
	`, req.RiderID).Scan(&riderName, &pinHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Rider or PIN is incorrect")
			return
		}
		h.Logger.Error("failed to load rider for login", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Login failed")
		return
	}
	if pinHash == nil {
		response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Rider or PIN is incorrect")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(*pinHash), []byte(pin)) != nil {
		response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Rider or PIN is incorrect")
		return
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		h.Logger.Error("failed to generate session token", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}
	token := hex.EncodeToString(tokenBytes)
	expiresAt := time.Now().Add(h.Config.RiderSessionTTL)

	if _, err := h.DB.Exec(ctx, `
		insert into rider_sessions (rider_id, token, expires_at)
		values ($1, $2, $3)
	`, req.RiderID, token, expiresAt); err != nil {
		h.Logger.Error("failed to create rider session", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Login failed")
		return
	}

	response.Success(w, map[string]any{
		"token":     token,
		"expiresAt": expiresAt,
		"rider": map[string]any{
			"id":   req.RiderID,
			"name": riderName,
		},
	})
}

// RiderLogout deletes the presented session.
func (h *Handler) RiderLogout(w http.ResponseWriter, r *http.Request) {
	riderCtx, ok := middleware.GetRiderContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session required")
		return
	}

	if _, err := h.DB.Exec(r.Context(), `delete from rider_sessions where id = $1`, riderCtx.SessionID); err != nil {
		h.Logger.Error("failed to delete rider session", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Logout failed")
		return
	}

	response.Success(w, map[string]any{"loggedOut": true})
}
