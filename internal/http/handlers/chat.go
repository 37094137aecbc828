package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"zaiqa-order-service/internal/middleware"
	"zaiqa-order-service/internal/storage"
	"zaiqa-order-service/internal/utils"
	"zaiqa-order-service/pkg/response"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

const chatThreadChannel = "customer_support"
const chatPreviewLength = 120

type chatMessageView struct {
	ID          int64     `json:"id"`
	SenderType  string    `json:"senderType"`
	SenderName  *string   `json:"senderName"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type chatThreadView struct {
	ID                 int64      `json:"id"`
	OrderID            int64      `json:"orderId"`
	OrderNumber        string     `json:"orderNumber"`
	CustomerName       *string    `json:"customerName"`
	UnreadForAdmin     bool       `json:"unreadForAdmin"`
	UnreadForCustomer  bool       `json:"unreadForCustomer"`
	LastMessageAt      *time.Time `json:"lastMessageAt"`
	LastMessagePreview *string    `json:"lastMessagePreview"`
}

// truncateMessage enforces the per-message length limit on rune
// boundaries so multibyte text is never cut mid-character.
func truncateMessage(body string, limit int) string {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}

func messagePreview(body string) string {
	runes := []rune(body)
	if len(runes) <= chatPreviewLength {
		return body
	}
	return string(runes[:chatPreviewLength-1]) + "…"
}

// ensureChatThread returns the thread id for the order, creating the row
// on first contact. The do-update no-op makes the insert always return.
func (h *Handler) ensureChatThread(ctx context.Context, orderID int64) (int64, error) {
	var threadID int64
	err := h.DB.QueryRow(ctx, `
		insert into order_chat_threads (order_id, channel)
		values ($1, $2)
		on conflict (order_id, channel) do update set channel = excluded.channel
		returning id
	`, orderID, chatThreadChannel).Scan(&threadID)
	return threadID, err
}

// postChatMessage is the shared write path for all three sender types.
func (h *Handler) postChatMessage(ctx context.Context, orderID int64, senderType string, senderName *string, body string, attachments []string) (*chatMessageView, error) {
	body = truncateMessage(body, h.Config.MaxChatMessageLength)
	if body == "" && len(attachments) == 0 {
		return nil, errors.New("empty message")
	}

	threadID, err := h.ensureChatThread(ctx, orderID)
	if err != nil {
		return nil, err
	}

	tx, err := h.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	message := chatMessageView{
		SenderType:  senderType,
		SenderName:  senderName,
		Body:        body,
		Attachments: attachments,
	}

	var attachmentsArg any
	if len(attachments) > 0 {
		attachmentsArg = attachments
	}

	if err := tx.QueryRow(ctx, `
		insert into order_chat_messages (thread_id, sender_type, sender_name, body, attachments)
		values ($1, $2, $3, $4, $5)
		returning id, created_at
	`, threadID, senderType, senderName, body, attachmentsArg).Scan(&message.ID, &message.CreatedAt); err != nil {
		return nil, err
	}

	preview := messagePreview(body)
	if preview == "" && len(attachments) > 0 {
		preview = "[photo]"
	}

	// A customer message lights up the admin inbox and vice versa. The
	// sender's own flag is cleared: writing implies having read.
	unreadForAdmin := senderType == "customer"
	unreadForCustomer := senderType != "customer"

	if _, err := tx.Exec(ctx, `
		update order_chat_threads
		set unread_for_admin = $1, unread_for_customer = $2,
		    last_message_at = $3, last_message_preview = $4
		where id = $5
	`, unreadForAdmin, unreadForCustomer, message.CreatedAt, preview, threadID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &message, nil
}

func (h *Handler) listChatMessages(ctx context.Context, orderID int64) ([]chatMessageView, error) {
	rows, err := h.DB.Query(ctx, `
		select m.id, m.sender_type, m.sender_name, m.body, m.attachments, m.created_at
		from order_chat_messages m
		join order_chat_threads t on t.id = m.thread_id
		where t.order_id = $1 and t.channel = $2
		order by m.created_at asc, m.id asc
	`, orderID, chatThreadChannel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]chatMessageView, 0)
	for rows.Next() {
		var (
			message    chatMessageView
			senderName pgtype.Text
		)
		if err := rows.Scan(&message.ID, &message.SenderType, &senderName, &message.Body, &message.Attachments, &message.CreatedAt); err != nil {
			return nil, err
		}
		message.SenderName = textPtr(senderName)
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (h *Handler) markThreadRead(ctx context.Context, orderID int64, forAdmin bool) {
	column := "unread_for_customer"
	if forAdmin {
		column = "unread_for_admin"
	}
	if _, err := h.DB.Exec(ctx, `
		update order_chat_threads set `+column+` = false
		where order_id = $1 and channel = $2
	`, orderID, chatThreadChannel); err != nil {
		h.Logger.Warn("failed to clear unread flag", zap.Int64("orderId", orderID), zap.Error(err))
	}
}

func (h *Handler) publishChatEvent(ctx context.Context, orderNumber string, senderType string, message *chatMessageView) {
	h.publishEvent(ctx, "chat.message.created", map[string]any{
		"type":        "chat.message.created",
		"orderNumber": orderNumber,
		"sender_type": senderType,
		"preview":     messagePreview(message.Body),
	})
	h.notifyOrderUpdate(ctx, orderNumber)
}

// resolvePublicChatOrder checks the tracking token before any public
// chat access.
func (h *Handler) resolvePublicChatOrder(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	orderNumber, err := readPathString(r, "orderNumber")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_NUMBER", "Order number is required")
		return 0, "", false
	}
	token := r.URL.Query().Get("token")
	if !utils.VerifyOrderTrackingToken(h.Config.TrackingTokenSecret, token, orderNumber) {
		response.Error(w, http.StatusUnauthorized, "INVALID_TRACKING_TOKEN", "Tracking link is invalid or expired")
		return 0, "", false
	}

	var orderID int64
	if err := h.DB.QueryRow(r.Context(), `select id from orders where order_number = $1`, orderNumber).Scan(&orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
			return 0, "", false
		}
		h.Logger.Error("failed to resolve chat order", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load chat")
		return 0, "", false
	}
	return orderID, orderNumber, true
}

func (h *Handler) PublicListChatMessages(w http.ResponseWriter, r *http.Request) {
	orderID, _, ok := h.resolvePublicChatOrder(w, r)
	if !ok {
		return
	}

	messages, err := h.listChatMessages(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("failed to list chat messages", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load chat")
		return
	}

	h.markThreadRead(r.Context(), orderID, false)
	response.Success(w, messages)
}

type postChatMessageRequest struct {
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
}

func (h *Handler) PublicPostChatMessage(w http.ResponseWriter, r *http.Request) {
	orderID, orderNumber, ok := h.resolvePublicChatOrder(w, r)
	if !ok {
		return
	}

	var req postChatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	message, err := h.postChatMessage(r.Context(), orderID, "customer", nil, req.Body, req.Attachments)
	if err != nil {
		if err.Error() == "empty message" {
			response.Error(w, http.StatusBadRequest, "EMPTY_MESSAGE", "Message body is required")
			return
		}
		h.Logger.Error("failed to post chat message", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to send message")
		return
	}

	h.publishChatEvent(r.Context(), orderNumber, "customer", message)
	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": message})
}

// AdminListChatThreads is the support inbox, most recent conversation
// first.
func (h *Handler) AdminListChatThreads(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(r.Context(), `
		select t.id, t.order_id, o.order_number, o.customer_name,
		       t.unread_for_admin, t.unread_for_customer,
		       t.last_message_at, t.last_message_preview
		from order_chat_threads t
		join orders o on o.id = t.order_id
		order by t.last_message_at desc nulls last
	`)
	if err != nil {
		h.Logger.Error("failed to list chat threads", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load chats")
		return
	}
	defer rows.Close()

	threads := make([]chatThreadView, 0)
	for rows.Next() {
		var (
			thread        chatThreadView
			customerName  pgtype.Text
			lastMessageAt pgtype.Timestamptz
			preview       pgtype.Text
		)
		if err := rows.Scan(
			&thread.ID, &thread.OrderID, &thread.OrderNumber, &customerName,
			&thread.UnreadForAdmin, &thread.UnreadForCustomer,
			&lastMessageAt, &preview,
		); err != nil {
			h.Logger.Error("failed to scan chat thread", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load chats")
			return
		}
		thread.CustomerName = textPtr(customerName)
		thread.LastMessageAt = timePtr(lastMessageAt)
		thread.LastMessagePreview = textPtr(preview)
		threads = append(threads, thread)
	}
	response.Success(w, threads)
}

func (h *Handler) AdminListChatMessages(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	messages, err := h.listChatMessages(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("failed to list chat messages", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load chat")
		return
	}

	h.markThreadRead(r.Context(), orderID, true)
	response.Success(w, messages)
}

func (h *Handler) AdminPostChatMessage(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}

	var req postChatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	var senderName *string
	if auth, ok := middleware.GetAuthContext(r.Context()); ok && auth.Name != "" {
		senderName = &auth.Name
	}

	var orderNumber string
	if err := h.DB.QueryRow(r.Context(), `select order_number from orders where id = $1`, orderID).Scan(&orderNumber); err != nil {
		response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
		return
	}

	message, err := h.postChatMessage(r.Context(), orderID, "admin", senderName, req.Body, req.Attachments)
	if err != nil {
		if err.Error() == "empty message" {
			response.Error(w, http.StatusBadRequest, "EMPTY_MESSAGE", "Message body is required")
			return
		}
		h.Logger.Error("failed to post admin chat message", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to send message")
		return
	}

	h.publishChatEvent(r.Context(), orderNumber, "admin", message)
	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": message})
}

func (h *Handler) RiderListChatMessages(w http.ResponseWriter, r *http.Request) {
	riderCtx, ok := middleware.GetRiderContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session required")
		return
	}

	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}
	if !h.riderOwnsOrder(r.Context(), riderCtx.RiderID, orderID) {
		response.Error(w, http.StatusForbidden, "NOT_YOUR_ORDER", "Order is assigned to another rider")
		return
	}

	messages, err := h.listChatMessages(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("failed to list rider chat", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load chat")
		return
	}
	response.Success(w, messages)
}

func (h *Handler) RiderPostChatMessage(w http.ResponseWriter, r *http.Request) {
	riderCtx, ok := middleware.GetRiderContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session required")
		return
	}

	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Order id must be numeric")
		return
	}
	if !h.riderOwnsOrder(r.Context(), riderCtx.RiderID, orderID) {
		response.Error(w, http.StatusForbidden, "NOT_YOUR_ORDER", "Order is assigned to another rider")
		return
	}

	var req postChatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	var orderNumber string
	if err := h.DB.QueryRow(r.Context(), `select order_number from orders where id = $1`, orderID).Scan(&orderNumber); err != nil {
		response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
		return
	}

	message, err := h.postChatMessage(r.Context(), orderID, "rider", &riderCtx.Name, req.Body, req.Attachments)
	if err != nil {
		if err.Error() == "empty message" {
			response.Error(w, http.StatusBadRequest, "EMPTY_MESSAGE", "Message body is required")
			return
		}
		h.Logger.Error("failed to post rider chat message", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to send message")
		return
	}

	h.publishChatEvent(r.Context(), orderNumber, "rider", message)
	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": message})
}

func (h *Handler) riderOwnsOrder(ctx context.Context, riderID, orderID int64) bool {
	var owns bool
	if err := h.DB.QueryRow(ctx, `
		select exists(select 1 from orders where id = $1 and rider_id = $2)
	`, orderID, riderID).Scan(&owns); err != nil {
		return false
	}
	return owns
}

// AdminUploadChatAttachment accepts an image, normalizes it to JPEG and
// stores it in the object store. The returned URL goes into the
// attachments array of a subsequent message.
func (h *Handler) AdminUploadChatAttachment(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		response.Error(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Attachment storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxAttachmentBytes)
	if err := r.ParseMultipartForm(h.Config.MaxAttachmentBytes); err != nil {
		response.Error(w, http.StatusRequestEntityTooLarge, "ATTACHMENT_TOO_LARGE", "Attachment exceeds the size limit")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "MISSING_FILE", "Multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.Logger.Error("failed to read attachment", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read attachment")
		return
	}

	contentType := utils.DetectContentType(data)
	if !utils.ValidateImageContentType(contentType) {
		response.Error(w, http.StatusBadRequest, "UNSUPPORTED_IMAGE", "Only JPEG, PNG, WebP and HEIC images are accepted")
		return
	}

	jpeg, _, err := utils.EncodeJpegFitInside(data, 1600, 82)
	if err != nil {
		h.Logger.Warn("failed to process attachment", zap.String("filename", header.Filename), zap.Error(err))
		response.Error(w, http.StatusBadRequest, "INVALID_IMAGE", "Could not decode the image")
		return
	}

	key := storage.ChatAttachmentKey(time.Now(), uuid.NewString())
	url, err := h.Store.PutObject(r.Context(), key, jpeg, "image/jpeg", storage.CacheImmutable)
	if err != nil {
		h.Logger.Error("failed to upload attachment", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to store attachment")
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"url": url}})
}
