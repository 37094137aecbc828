package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"zaiqa-order-service/internal/utils"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

type orderSummary struct {
	ID            int64   `json:"id"`
	OrderNumber   string  `json:"orderNumber"`
	Channel       string  `json:"channel"`
	Status        string  `json:"status"`
	CustomerName  *string `json:"customerName"`
	CustomerPhone *string `json:"customerPhone"`
	TableNumber   *string `json:"tableNumber"`
	RiderName     *string `json:"riderName"`
	ItemCount     int64   `json:"itemCount"`
	TotalPrice    float64 `json:"totalPrice"`
	AmountDue     float64 `json:"amountDue"`
	CreatedAt     string  `json:"createdAt"`
}

// AdminListOrders powers the board. Filters are optional: ?status=,
// ?channel=, ?search= (order number or customer), ?limit=, ?offset=.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	where := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if status := strings.TrimSpace(q.Get("status")); status != "" {
		args = append(args, status)
		where = append(where, "o.status = $"+strconv.Itoa(len(args)))
	}
	if channel := strings.TrimSpace(q.Get("channel")); channel != "" {
		args = append(args, channel)
		where = append(where, "o.channel = $"+strconv.Itoa(len(args)))
	}
	if search := strings.TrimSpace(q.Get("search")); search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(o.order_number ilike $"+n+" or o.customer_name ilike $"+n+" or o.customer_phone ilike $"+n+")")
	}

	limit := int64(50)
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	offset := int64(0)
	if raw := q.Get("offset"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	query := `
		select o.id, o.order_number, o.channel, o.status,
		       o.customer_name, o.customer_phone, o.table_number, rd.name,
		       (select count(*) from order_items oi where oi.order_id = o.id),
		       o.total_price, o.amount_due, o.created_at
		from orders o
		left join riders rd on rd.id = o.rider_id
	`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	args = append(args, limit, offset)
	query += " order by o.created_at desc limit $" + strconv.Itoa(len(args)-1) + " offset $" + strconv.Itoa(len(args))

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		h.Logger.Error("failed to list orders", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load orders")
		return
	}
	defer rows.Close()

	orders := make([]orderSummary, 0)
	for rows.Next() {
		var (
			summary       orderSummary
			customerName  pgtype.Text
			customerPhone pgtype.Text
			tableNumber   pgtype.Text
			riderName     pgtype.Text
			totalPrice    pgtype.Numeric
			amountDue     pgtype.Numeric
			createdAt     pgtype.Timestamptz
		)
		if err := rows.Scan(
			&summary.ID, &summary.OrderNumber, &summary.Channel, &summary.Status,
			&customerName, &customerPhone, &tableNumber, &riderName,
			&summary.ItemCount, &totalPrice, &amountDue, &createdAt,
		); err != nil {
			h.Logger.Error("failed to scan order row", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load orders")
			return
		}
		summary.CustomerName = textPtr(customerName)
		summary.CustomerPhone = textPtr(customerPhone)
		summary.TableNumber = textPtr(tableNumber)
		summary.RiderName = textPtr(riderName)
		summary.TotalPrice = utils.NumericToFloat64(totalPrice)
		summary.AmountDue = utils.NumericToFloat64(amountDue)
		if createdAt.Valid {
			summary.CreatedAt = createdAt.Time.Format("2006-01-02T15:04:05Z07:00")
		}
		orders = append(orders, summary)
	}
	if err := rows.Err(); err != nil {
		h.Logger.Error("failed to read order rows", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load orders")
		return
	}

	response.Success(w, orders)
}

func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	detail, err := h.fetchOrderDetail(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
			return
		}
		h.Logger.Error("failed to load order", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order")
		return
	}

	response.Success(w, detail)
}

// AdminGetOrderStats summarizes today's trading in the restaurant's
// local timezone: counts per status plus settled revenue.
func (h *Handler) AdminGetOrderStats(w http.ResponseWriter, r *http.Request) {
	today := utils.CurrentDateInTimezone(h.Config.RestaurantTimezone)

	rows, err := h.DB.Query(r.Context(), `
		select status, count(*)
		from orders
		where (created_at at time zone $1)::date = $2::date
		group by status
	`, h.Config.RestaurantTimezone, today)
	if err != nil {
		h.Logger.Error("failed to load order stats", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load stats")
		return
	}
	defer rows.Close()

	byStatus := map[string]int64{}
	var totalOrders int64
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			h.Logger.Error("failed to scan stats row", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load stats")
			return
		}
		byStatus[status] = count
		totalOrders += count
	}
	if err := rows.Err(); err != nil {
		h.Logger.Error("failed to read stats rows", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load stats")
		return
	}

	var collected, outstanding float64
	if err := h.DB.QueryRow(r.Context(), `
		select coalesce(sum(amount_paid), 0), coalesce(sum(amount_due), 0)
		from orders
		where (created_at at time zone $1)::date = $2::date
	`, h.Config.RestaurantTimezone, today).Scan(&collected, &outstanding); err != nil {
		h.Logger.Error("failed to load revenue stats", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load stats")
		return
	}

	response.Success(w, map[string]any{
		"date":        today,
		"totalOrders": totalOrders,
		"byStatus":    byStatus,
		"collected":   round2(collected),
		"outstanding": round2(outstanding),
	})
}

type assignRiderRequest struct {
	RiderID int64 `json:"riderId"`
}

// AdminAssignRider attaches a rider without touching the status; the
// rider-required gate on on_the_way checks this assignment.
func (h *Handler) AdminAssignRider(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	var req assignRiderRequest
	if err := decodeJSON(r, &req); err != nil || req.RiderID <= 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "riderId is required")
		return
	}

	ctx := r.Context()

	var channel string
	if err := h.DB.QueryRow(ctx, `select channel from orders where id = $1`, orderID).Scan(&channel); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
			return
		}
		h.Logger.Error("failed to load order for rider assignment", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to assign rider")
		return
	}
	if channel != ChannelOnline {
		response.Error(w, http.StatusBadRequest, "INVALID_CHANNEL", "Only online orders take a rider")
		return
	}

	tag, err := h.DB.Exec(ctx, `
		update orders
		set rider_id = $1, updated_at = now()
		where id = $2
		  and exists(select 1 from riders where id = $1 and status = 'active')
	`, req.RiderID, orderID)
	if err != nil {
		h.Logger.Error("failed to assign rider", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to assign rider")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusBadRequest, "RIDER_NOT_FOUND", "Rider not found or inactive")
		return
	}

	detail, err := h.fetchOrderDetail(ctx, orderID)
	if err != nil {
		h.Logger.Error("failed to reload order after rider assignment", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order")
		return
	}

	h.notifyOrderUpdate(ctx, detail.OrderNumber)
	response.Success(w, detail)
}
