package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"zaiqa-order-service/internal/auth"
	"zaiqa-order-service/internal/config"
	"zaiqa-order-service/internal/utils"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	DB     *pgxpool.Pool
	Logger *zap.Logger
	Config config.Config

	adminOrdersRealtime *adminOrdersRealtime
	publicOrderRealtime *publicOrderRealtime
}

func New(db *pgxpool.Pool, logger *zap.Logger, cfg config.Config) *Server {
	srv := &Server{DB: db, Logger: logger, Config: cfg}
	srv.adminOrdersRealtime = newAdminOrdersRealtime(db, logger)
	srv.publicOrderRealtime = newPublicOrderRealtime(db, logger)
	return srv
}

type wsRealtimeClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsRealtimeClient) writeJSON(value any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(value)
}

// boardOrder is the slim shape pushed to the kitchen board; the admin
// app loads the full detail over HTTP when a card is opened.
type boardOrder struct {
	ID           int64     `json:"id"`
	OrderNumber  string    `json:"orderNumber"`
	Channel      string    `json:"channel"`
	Status       string    `json:"status"`
	CustomerName *string   `json:"customerName"`
	TableNumber  *string   `json:"tableNumber"`
	RiderName    *string   `json:"riderName"`
	ItemCount    int64     `json:"itemCount"`
	TotalPrice   float64   `json:"totalPrice"`
	AmountDue    float64   `json:"amountDue"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// The admin board is restaurant-wide, so every admin socket shares one
// subscription key.
const adminBoardKey = "board"

type adminOrdersRealtime struct {
	db     *pgxpool.Pool
	logger *zap.Logger

	started sync.Once
	mu      sync.RWMutex
	subs    map[string]map[*wsRealtimeClient]struct{}
}

func newAdminOrdersRealtime(db *pgxpool.Pool, logger *zap.Logger) *adminOrdersRealtime {
	return &adminOrdersRealtime{
		db:     db,
		logger: logger,
		subs:   make(map[string]map[*wsRealtimeClient]struct{}),
	}
}

func (ar *adminOrdersRealtime) ensureStarted() {
	ar.started.Do(func() {
		go ar.listenLoop(context.Background())
	})
}

func (ar *adminOrdersRealtime) subscribe(client *wsRealtimeClient) (unsubscribe func()) {
	ar.mu.Lock()
	if ar.subs[adminBoardKey] == nil {
		ar.subs[adminBoardKey] = make(map[*wsRealtimeClient]struct{})
	}
	ar.subs[adminBoardKey][client] = struct{}{}
	ar.mu.Unlock()

	return func() {
		ar.mu.Lock()
		clients := ar.subs[adminBoardKey]
		delete(clients, client)
		if len(clients) == 0 {
			delete(ar.subs, adminBoardKey)
		}
		ar.mu.Unlock()
	}
}

func (ar *adminOrdersRealtime) broadcast(message any) {
	ar.mu.RLock()
	clientsMap := ar.subs[adminBoardKey]
	clients := make([]*wsRealtimeClient, 0, len(clientsMap))
	for c := range clientsMap {
		clients = append(clients, c)
	}
	ar.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	for _, c := range clients {
		if err := c.writeJSON(message); err != nil {
			_ = c.conn.Close()
			ar.mu.Lock()
			if current := ar.subs[adminBoardKey]; current != nil {
				delete(current, c)
				if len(current) == 0 {
					delete(ar.subs, adminBoardKey)
				}
			}
			ar.mu.Unlock()
		}
	}
}

func (ar *adminOrdersRealtime) fetchActiveBoard(ctx context.Context) ([]boardOrder, error) {
	query := `
		select o.id, o.order_number, o.channel, o.status,
		       o.customer_name, o.table_number, rd.name,
		       (select count(*) from order_items oi where oi.order_id = o.id),
		       o.total_price, o.amount_due, o.created_at, o.updated_at
		from orders o
		left join riders rd on rd.id = o.rider_id
		where o.status not in ('delivered', 'closed')
		order by o.created_at asc
	`

	rows, err := ar.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]boardOrder, 0)
	for rows.Next() {
		var (
			order        boardOrder
			customerName pgtype.Text
			tableNumber  pgtype.Text
			riderName    pgtype.Text
			totalPrice   pgtype.Numeric
			amountDue    pgtype.Numeric
		)
		if err := rows.Scan(
			&order.ID, &order.OrderNumber, &order.Channel, &order.Status,
			&customerName, &tableNumber, &riderName,
			&order.ItemCount, &totalPrice, &amountDue, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if customerName.Valid {
			order.CustomerName = &customerName.String
		}
		if tableNumber.Valid {
			order.TableNumber = &tableNumber.String
		}
		if riderName.Valid {
			order.RiderName = &riderName.String
		}
		order.TotalPrice = utils.NumericToFloat64(totalPrice)
		order.AmountDue = utils.NumericToFloat64(amountDue)
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (ar *adminOrdersRealtime) listenLoop(ctx context.Context) {
	backoff := time.Second
	for {
		conn, err := ar.db.Acquire(ctx)
		if err != nil {
			if ar.logger != nil {
				ar.logger.Warn("admin board LISTEN acquire failed", zap.Error(err))
			}
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		_, err = conn.Exec(ctx, `listen admin_order_updates`)
		if err != nil {
			conn.Release()
			if ar.logger != nil {
				ar.logger.Warn("admin board LISTEN failed", zap.Error(err))
			}
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		backoff = time.Second
		for {
			if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
				break
			}

			orders, fetchErr := ar.fetchActiveBoard(ctx)
			if fetchErr != nil {
				ar.broadcast(map[string]any{"type": "orders.refresh", "updatedAt": time.Now()})
				continue
			}
			ar.broadcast(map[string]any{"type": "orders.state", "data": orders})
		}

		conn.Release()
		time.Sleep(backoff)
		backoff = minDuration(backoff*2, 30*time.Second)
	}
}

type publicOrderRealtime struct {
	db     *pgxpool.Pool
	logger *zap.Logger

	started sync.Once
	mu      sync.RWMutex
	subs    map[string]map[*wsRealtimeClient]struct{}
}

func newPublicOrderRealtime(db *pgxpool.Pool, logger *zap.Logger) *publicOrderRealtime {
	return &publicOrderRealtime{
		db:     db,
		logger: logger,
		subs:   make(map[string]map[*wsRealtimeClient]struct{}),
	}
}

func (pr *publicOrderRealtime) ensureStarted() {
	pr.started.Do(func() {
		go pr.listenLoop(context.Background())
	})
}

func (pr *publicOrderRealtime) subscribe(orderNumber string, client *wsRealtimeClient) (unsubscribe func()) {
	key := strings.TrimSpace(orderNumber)
	if key == "" {
		return func() {}
	}

	pr.mu.Lock()
	if pr.subs[key] == nil {
		pr.subs[key] = make(map[*wsRealtimeClient]struct{})
	}
	pr.subs[key][client] = struct{}{}
	pr.mu.Unlock()

	return func() {
		pr.mu.Lock()
		clients := pr.subs[key]
		delete(clients, client)
		if len(clients) == 0 {
			delete(pr.subs, key)
		}
		pr.mu.Unlock()
	}
}

func (pr *publicOrderRealtime) broadcast(orderNumber string, message any) {
	key := strings.TrimSpace(orderNumber)
	if key == "" {
		return
	}

	pr.mu.RLock()
	clientsMap := pr.subs[key]
	clients := make([]*wsRealtimeClient, 0, len(clientsMap))
	for c := range clientsMap {
		clients = append(clients, c)
	}
	pr.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	for _, c := range clients {
		if err := c.writeJSON(message); err != nil {
			_ = c.conn.Close()
			pr.mu.Lock()
			if current := pr.subs[key]; current != nil {
				delete(current, c)
				if len(current) == 0 {
					delete(pr.subs, key)
				}
			}
			pr.mu.Unlock()
		}
	}
}

type trackedRiderLocation struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recordedAt"`
}

type trackedOrderState struct {
	OrderNumber   string                `json:"orderNumber"`
	Channel       string                `json:"channel"`
	Status        string                `json:"status"`
	RiderName     *string               `json:"riderName"`
	RiderLocation *trackedRiderLocation `json:"riderLocation"`
	TotalPrice    float64               `json:"totalPrice"`
	AmountPaid    float64               `json:"amountPaid"`
	AmountDue     float64               `json:"amountDue"`
	ChatPreview   *string               `json:"chatPreview"`
	ChatUnread    bool                  `json:"chatUnread"`
	ReadyAt       *time.Time            `json:"readyAt"`
	DeliveredAt   *time.Time            `json:"deliveredAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

func (pr *publicOrderRealtime) fetchTrackedState(ctx context.Context, orderNumber string) (trackedOrderState, bool) {
	query := `
		select o.order_number, o.channel, o.status, rd.name,
		       rl.latitude, rl.longitude, rl.recorded_at,
		       o.total_price, o.amount_paid, o.amount_due,
		       ct.last_message_preview, coalesce(ct.unread_for_customer, false),
		       o.ready_at, o.delivered_at, o.updated_at
		from orders o
		left join riders rd on rd.id = o.rider_id
		left join rider_locations rl on rl.rider_id = o.rider_id
		left join order_chat_threads ct on ct.order_id = o.id and ct.channel = 'customer_support'
		where o.order_number = $1
	`

	var (
		state       trackedOrderState
		riderName   pgtype.Text
		riderLat    pgtype.Float8
		riderLng    pgtype.Float8
		riderAt     pgtype.Timestamptz
		totalPrice  pgtype.Numeric
		amountPaid  pgtype.Numeric
		amountDue   pgtype.Numeric
		chatPreview pgtype.Text
		readyAt     pgtype.Timestamptz
		deliveredAt pgtype.Timestamptz
	)
	if err := pr.db.QueryRow(ctx, query, orderNumber).Scan(
		&state.OrderNumber, &state.Channel, &state.Status, &riderName,
		&riderLat, &riderLng, &riderAt,
		&totalPrice, &amountPaid, &amountDue,
		&chatPreview, &state.ChatUnread,
		&readyAt, &deliveredAt, &state.UpdatedAt,
	); err != nil {
		return trackedOrderState{}, false
	}

	if riderName.Valid {
		state.RiderName = &riderName.String
	}
	// The rider position is only the customer's business while the order
	// is actually out for delivery.
	if state.Status == "on_the_way" && riderLat.Valid && riderLng.Valid && riderAt.Valid {
		state.RiderLocation = &trackedRiderLocation{
			Latitude:   riderLat.Float64,
			Longitude:  riderLng.Float64,
			RecordedAt: riderAt.Time,
		}
	}
	state.TotalPrice = utils.NumericToFloat64(totalPrice)
	state.AmountPaid = utils.NumericToFloat64(amountPaid)
	state.AmountDue = utils.NumericToFloat64(amountDue)
	if chatPreview.Valid {
		state.ChatPreview = &chatPreview.String
	}
	if readyAt.Valid {
		state.ReadyAt = &readyAt.Time
	}
	if deliveredAt.Valid {
		state.DeliveredAt = &deliveredAt.Time
	}
	return state, true
}

func (pr *publicOrderRealtime) listenLoop(ctx context.Context) {
	backoff := time.Second
	for {
		conn, err := pr.db.Acquire(ctx)
		if err != nil {
			if pr.logger != nil {
				pr.logger.Warn("public order LISTEN acquire failed", zap.Error(err))
			}
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		_, err = conn.Exec(ctx, `listen order_updates`)
		if err != nil {
			conn.Release()
			if pr.logger != nil {
				pr.logger.Warn("public order LISTEN failed", zap.Error(err))
			}
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		backoff = time.Second
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				break
			}
			orderNumber := strings.TrimSpace(n.Payload)
			if orderNumber == "" {
				continue
			}

			if state, found := pr.fetchTrackedState(ctx, orderNumber); found {
				pr.broadcast(orderNumber, map[string]any{"type": "order.state", "data": state})
				continue
			}
			pr.broadcast(orderNumber, map[string]any{"type": "order.refresh", "updatedAt": time.Now()})
		}

		conn.Release()
		time.Sleep(backoff)
		backoff = minDuration(backoff*2, 30*time.Second)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// AdminOrdersWS streams the live board to the back office. Auth rides in
// ?token= because browsers cannot set headers on websocket upgrades.
func (s *Server) AdminOrdersWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	token := auth.ParseBearerToken(r.URL.Query().Get("token"))
	claims, err := auth.VerifyAccessToken(token, s.Config.JWTSecret)
	if err != nil || (claims.Role != auth.RoleAdmin && claims.Role != auth.RoleStaff) {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "unauthorized"})
		return
	}

	s.adminOrdersRealtime.ensureStarted()
	ctx := r.Context()
	client := &wsRealtimeClient{conn: conn}
	unsubscribe := s.adminOrdersRealtime.subscribe(client)
	defer unsubscribe()

	// Initial snapshot so the board renders before the first change.
	if orders, fetchErr := s.adminOrdersRealtime.fetchActiveBoard(ctx); fetchErr == nil {
		_ = client.writeJSON(map[string]any{"type": "orders.state", "data": orders})
	} else {
		_ = client.writeJSON(map[string]any{"type": "orders.refresh", "updatedAt": time.Now()})
	}

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	select {
	case <-clientClosed:
		return
	case <-ctx.Done():
		return
	}
}

// PublicOrderWS streams status changes to the customer tracking page.
func (s *Server) PublicOrderWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	orderNumber := r.URL.Query().Get("orderNumber")
	token := r.URL.Query().Get("token")
	if orderNumber == "" || token == "" {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "invalid request"})
		return
	}

	if !utils.VerifyOrderTrackingToken(s.Config.TrackingTokenSecret, token, orderNumber) {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "order not found"})
		return
	}

	s.publicOrderRealtime.ensureStarted()
	ctx := r.Context()
	client := &wsRealtimeClient{conn: conn}
	unsubscribe := s.publicOrderRealtime.subscribe(orderNumber, client)
	defer unsubscribe()

	if state, found := s.publicOrderRealtime.fetchTrackedState(ctx, orderNumber); found {
		_ = client.writeJSON(map[string]any{"type": "order.state", "data": state})
	} else {
		_ = client.writeJSON(map[string]any{"type": "error", "message": "order not found"})
		return
	}

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	select {
	case <-clientClosed:
		return
	case <-ctx.Done():
		return
	}
}
