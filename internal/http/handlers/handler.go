package handlers

import (
	"context"

	"zaiqa-order-service/internal/config"
	"zaiqa-order-service/internal/queue"
	"zaiqa-order-service/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Handler struct {
	DB     *pgxpool.Pool
	Logger *zap.Logger
	Config config.Config
	Queue  *queue.Client
	Store  *storage.ObjectStore
}

// publishEvent pushes a domain event onto the topic exchange. Event
// delivery is best-effort: a broker outage must not fail the request
// that produced the event.
func (h *Handler) publishEvent(ctx context.Context, routingKey string, payload any) {
	if h.Queue == nil {
		return
	}
	if err := h.Queue.PublishJSON(ctx, queue.EventsExchange, routingKey, payload); err != nil {
		h.Logger.Warn("event publish failed", zap.String("routingKey", routingKey), zap.Error(err))
	}
}

// notifyOrderUpdate wakes websocket listeners via Postgres NOTIFY. Also
// best-effort.
func (h *Handler) notifyOrderUpdate(ctx context.Context, orderNumber string) {
	if _, err := h.DB.Exec(ctx, `select pg_notify('order_updates', $1)`, orderNumber); err != nil {
		h.Logger.Warn("order notify failed", zap.Error(err))
	}
	if _, err := h.DB.Exec(ctx, `select pg_notify('admin_order_updates', $1)`, orderNumber); err != nil {
		h.Logger.Warn("admin notify failed", zap.Error(err))
	}
}
