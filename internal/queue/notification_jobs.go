package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange           = "zaiqa.events"
	EventsQueue              = "zaiqa.notifications"
	NotificationJobsExchange = "zaiqa.notification_jobs"
	NotificationJobsQueue    = "zaiqa.notification_jobs.process"
	NotificationJobsDLQ      = "zaiqa.notification_jobs.dlq"
	NotificationJobsRK       = "process"
	NotificationJobsDeadRK   = "dead"
)

type orderStatusUpdatedEvent struct {
	Type        string     `json:"type"`
	OrderID     int64      `json:"orderId"`
	OrderNumber string     `json:"orderNumber"`
	Status      string     `json:"status"`
	UpdatedAt   *time.Time `json:"updatedAt"`
}

type chatMessageCreatedEvent struct {
	Type        string `json:"type"`
	OrderID     int64  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	SenderType  string `json:"senderType"`
	Preview     string `json:"preview"`
}

func EnsureNotificationJobsTopology(ctx context.Context, qc *Client) error {
	if qc == nil {
		return nil
	}

	if err := qc.EnsureExchangeKind(NotificationJobsExchange, "direct"); err != nil {
		return err
	}

	if _, err := qc.EnsureQueue(NotificationJobsDLQ); err != nil {
		return err
	}
	if err := qc.BindQueue(NotificationJobsDLQ, NotificationJobsExchange, NotificationJobsDeadRK); err != nil {
		return err
	}

	_, err := qc.EnsureQueueWithArgs(NotificationJobsQueue, amqp.Table{
		"x-dead-letter-exchange":    NotificationJobsExchange,
		"x-dead-letter-routing-key": NotificationJobsDeadRK,
	})
	if err != nil {
		return err
	}
	return qc.BindQueue(NotificationJobsQueue, NotificationJobsExchange, NotificationJobsRK)
}

// ProcessEventToJobs translates domain events into web-push jobs for every
// subscription tracking the affected order. Actual delivery is the push
// worker's problem.
func ProcessEventToJobs(ctx context.Context, db *pgxpool.Pool, qc *Client, body []byte) error {
	if db == nil || qc == nil {
		return nil
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}

	switch strings.TrimSpace(envelope.Type) {
	case "order.status.updated":
		var evt orderStatusUpdatedEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			return err
		}
		return publishOrderStatusJobs(ctx, db, qc, evt)
	case "chat.message.created":
		var evt chatMessageCreatedEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			return err
		}
		// Rider and admin messages notify the customer; customer messages
		// are surfaced on the admin board, not via web push.
		if evt.SenderType == "customer" {
			return nil
		}
		return publishChatJobs(ctx, db, qc, evt)
	default:
		// unknown envelope
		return nil
	}
}

func publishOrderStatusJobs(ctx context.Context, db *pgxpool.Pool, qc *Client, evt orderStatusUpdatedEvent) error {
	title := pushTitleForStatus(evt.Status)
	if title == "" {
		return nil
	}

	subs, err := loadSubscriptionsForOrder(ctx, db, evt.OrderNumber)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		job := map[string]any{
			"kind": "push.order_status",
			"payload": map[string]any{
				"endpoint":    sub.Endpoint,
				"p256dh":      sub.P256dh,
				"auth":        sub.Auth,
				"orderNumber": evt.OrderNumber,
				"status":      evt.Status,
				"title":       title,
			},
			"createdAt": time.Now().UTC().Format(time.RFC3339),
			"attempt":   1,
		}
		if err := qc.PublishJSON(ctx, NotificationJobsExchange, NotificationJobsRK, job); err != nil {
			return err
		}
	}
	return nil
}

func publishChatJobs(ctx context.Context, db *pgxpool.Pool, qc *Client, evt chatMessageCreatedEvent) error {
	subs, err := loadSubscriptionsForOrder(ctx, db, evt.OrderNumber)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		job := map[string]any{
			"kind": "push.chat_message",
			"payload": map[string]any{
				"endpoint":    sub.Endpoint,
				"p256dh":      sub.P256dh,
				"auth":        sub.Auth,
				"orderNumber": evt.OrderNumber,
				"preview":     evt.Preview,
			},
			"createdAt": time.Now().UTC().Format(time.RFC3339),
			"attempt":   1,
		}
		if err := qc.PublishJSON(ctx, NotificationJobsExchange, NotificationJobsRK, job); err != nil {
			return err
		}
	}
	return nil
}

type pushSubscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

func loadSubscriptionsForOrder(ctx context.Context, db *pgxpool.Pool, orderNumber string) ([]pushSubscription, error) {
	rows, err := db.Query(ctx, `
		select endpoint, p256dh, auth
		from push_subscriptions
		where $1 = any(order_numbers)
	`, orderNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]pushSubscription, 0)
	for rows.Next() {
		var sub pushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.P256dh, &sub.Auth); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func pushTitleForStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "preparing":
		return "Your order is being prepared"
	case "ready":
		return "Your order is ready"
	case "on_the_way":
		return "Your order is on the way"
	case "delivered":
		return "Your order has been delivered"
	default:
		return ""
	}
}
