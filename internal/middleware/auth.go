package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"zaiqa-order-service/internal/auth"

	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	authContextKey  contextKey = "authContext"
	riderContextKey contextKey = "riderContext"
)

type AuthContext struct {
	UserID int64
	Role   auth.UserRole
	Email  string
	Name   string
}

type RiderContext struct {
	RiderID   int64
	SessionID int64
	Name      string
}

func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	value := ctx.Value(authContextKey)
	if value == nil {
		return nil, false
	}
	ac, ok := value.(*AuthContext)
	return ac, ok
}

func WithRiderContext(ctx context.Context, riderCtx *RiderContext) context.Context {
	return context.WithValue(ctx, riderContextKey, riderCtx)
}

func GetRiderContext(ctx context.Context) (*RiderContext, bool) {
	value := ctx.Value(riderContextKey)
	if value == nil {
		return nil, false
	}
	rc, ok := value.(*RiderContext)
	return rc, ok
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeAuthErrorDebug(w, status, message, "")
}

func writeAuthErrorDebug(w http.ResponseWriter, status int, message string, debug string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload := map[string]any{
		"success": false,
		"error":   "UNAUTHORIZED",
		"message": message,
	}

	if os.Getenv("APP_ENV") == "development" && strings.TrimSpace(debug) != "" {
		payload["debug"] = debug
	}

	_ = json.NewEncoder(w).Encode(payload)
}

// AdminAuth admits back-office bearer tokens (admin or staff role).
func AdminAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ParseBearerToken(r.Header.Get("Authorization"))
			claims, err := auth.VerifyAccessToken(token, jwtSecret)
			if err != nil {
				writeAuthErrorDebug(w, http.StatusUnauthorized, "Authorization token required", err.Error())
				return
			}

			if claims.Role != auth.RoleAdmin && claims.Role != auth.RoleStaff {
				writeAuthError(w, http.StatusForbidden, "Admin access required")
				return
			}

			userID, err := parseInt64(claims.UserID)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			authCtx := &AuthContext{
				UserID: userID,
				Role:   claims.Role,
				Email:  claims.Email,
			}
			if claims.Name != nil {
				authCtx.Name = *claims.Name
			}

			ctx := WithAuthContext(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CustomerAuth admits customer bearer tokens.
func CustomerAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ParseBearerToken(r.Header.Get("Authorization"))
			claims, err := auth.VerifyAccessToken(token, jwtSecret)
			if err != nil {
				writeAuthErrorDebug(w, http.StatusUnauthorized, "Authorization token required", err.Error())
				return
			}

			if claims.Role != auth.RoleCustomer {
				writeAuthError(w, http.StatusForbidden, "Customer access required")
				return
			}

			userID, err := parseInt64(claims.UserID)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			authCtx := &AuthContext{
				UserID: userID,
				Role:   claims.Role,
				Email:  claims.Email,
			}
			if claims.Name != nil {
				authCtx.Name = *claims.Name
			}

			ctx := WithAuthContext(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RiderAuth validates the DB-backed session token handed out by the rider
// login endpoint. Riders do not carry JWTs.
func RiderAuth(db *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ParseBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			var (
				sessionID int64
				riderID   int64
				riderName string
			)
			query := `
				select s.id, s.rider_id, rd.name
				from rider_sessions s
				join riders rd on rd.id = s.rider_id and rd.status = 'active'
				where s.token = $1 and s.expires_at > now()
			`
			if err := db.QueryRow(r.Context(), query, token).Scan(&sessionID, &riderID, &riderName); err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Session expired or invalid")
				return
			}

			riderCtx := &RiderContext{
				RiderID:   riderID,
				SessionID: sessionID,
				Name:      riderName,
			}

			ctx := WithRiderContext(r.Context(), riderCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseInt64(value string) (int64, error) {
	var out int64
	_, err := fmt.Sscan(value, &out)
	return out, err
}
