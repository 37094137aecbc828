package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type riderView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
	HasPIN bool   `json:"hasPin"`
}

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

type riderRequest struct {
	Name   string  `json:"name"`
	Phone  string  `json:"phone"`
	Status *string `json:"status"`
	PIN    *string `json:"pin"`
}

func (req *riderRequest) validate() (string, string) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		return "INVALID_RIDER_NAME", "Rider name is required"
	}
	if req.Phone == "" {
		return "INVALID_RIDER_PHONE", "Rider phone is required"
	}
	if req.Status != nil && *req.Status != "active" && *req.Status != "inactive" {
		return "INVALID_RIDER_STATUS", "Status must be active or inactive"
	}
	if req.PIN != nil && !pinPattern.MatchString(*req.PIN) {
		return "INVALID_PIN", "PIN must be 4 to 6 digits"
	}
	return "", ""
}

func (h *Handler) AdminListRiders(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(r.Context(), `
		select id, name, phone, status, pin_hash is not null
		from riders
		order by name asc
	`)
	if err != nil {
		h.Logger.Error("failed to list riders", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load riders")
		return
	}
	defer rows.Close()

	riders := make([]riderView, 0)
	for rows.Next() {
		var rider riderView
		if err := rows.Scan(&rider.ID, &rider.Name, &rider.Phone, &rider.Status, &rider.HasPIN); err != nil {
			h.Logger.Error("failed to scan rider", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load riders")
			return
		}
		riders = append(riders, rider)
	}
	response.Success(w, riders)
}

func (h *Handler) AdminCreateRider(w http.ResponseWriter, r *http.Request) {
	var req riderRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	status := "active"
	if req.Status != nil {
		status = *req.Status
	}

	var pinHash *string
	if req.PIN != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.PIN), bcrypt.DefaultCost)
		if err != nil {
			h.Logger.Error("failed to hash rider pin", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create rider")
			return
		}
		hashedStr := string(hashed)
		pinHash = &hashedStr
	}

	var rider riderView
	rider.Name = req.Name
	rider.Phone = req.Phone
	rider.Status = status
	rider.HasPIN = pinHash != nil

	err := h.DB.QueryRow(r.Context(), `
		insert into riders (name, phone, status, pin_hash)
		values ($1, $2, $3, $4)
		returning id
	`, req.Name, req.Phone, status, pinHash).Scan(&rider.ID)
	if err != nil {
		h.Logger.Error("failed to create rider", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create rider")
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": rider})
}

func (h *Handler) AdminUpdateRider(w http.ResponseWriter, r *http.Request) {
	riderID, err := readPathInt64(r, "riderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_RIDER_ID", "Rider id must be numeric")
		return
	}

	var req riderRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	status := "active"
	if req.Status != nil {
		status = *req.Status
	}

	var pinHash *string
	if req.PIN != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.PIN), bcrypt.DefaultCost)
		if err != nil {
			h.Logger.Error("failed to hash rider pin", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update rider")
			return
		}
		hashedStr := string(hashed)
		pinHash = &hashedStr
	}

	// pin_hash only changes when a new PIN is supplied.
	tag, err := h.DB.Exec(r.Context(), `
		update riders
		set name = $1, phone = $2, status = $3,
		    pin_hash = coalesce($4, pin_hash),
		    updated_at = now()
		where id = $5
	`, req.Name, req.Phone, status, pinHash, riderID)
	if err != nil {
		h.Logger.Error("failed to update rider", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update rider")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "RIDER_NOT_FOUND", "Rider not found")
		return
	}

	// Deactivating a rider kills their sessions so the app logs out.
	if status == "inactive" {
		if _, err := h.DB.Exec(r.Context(), `delete from rider_sessions where rider_id = $1`, riderID); err != nil {
			h.Logger.Warn("failed to revoke rider sessions", zap.Int64("riderId", riderID), zap.Error(err))
		}
	}

	response.Success(w, riderView{ID: riderID, Name: req.Name, Phone: req.Phone, Status: status, HasPIN: true})
}

// AdminListRiderLocations shows the live rider map for dispatch.
func (h *Handler) AdminListRiderLocations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(r.Context(), `
		select rd.id, rd.name, l.latitude, l.longitude, l.recorded_at
		from riders rd
		join rider_locations l on l.rider_id = rd.id
		where rd.status = 'active'
		order by rd.name asc
	`)
	if err != nil {
		h.Logger.Error("failed to list rider locations", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load rider locations")
		return
	}
	defer rows.Close()

	type riderLocationRow struct {
		RiderID    int64   `json:"riderId"`
		Name       string  `json:"name"`
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
		RecordedAt string  `json:"recordedAt"`
	}

	locations := make([]riderLocationRow, 0)
	for rows.Next() {
		var loc riderLocationRow
		var recordedAt pgtype.Timestamptz
		if err := rows.Scan(&loc.RiderID, &loc.Name, &loc.Latitude, &loc.Longitude, &recordedAt); err != nil {
			h.Logger.Error("failed to scan rider location", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load rider locations")
			return
		}
		if recordedAt.Valid {
			loc.RecordedAt = recordedAt.Time.Format("2006-01-02T15:04:05Z07:00")
		}
		locations = append(locations, loc)
	}
	response.Success(w, locations)
}
