package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zaiqa-order-service/internal/storage"
	"zaiqa-order-service/internal/utils"
	"zaiqa-order-service/pkg/response"

	"github.com/jackc/pgx/v5"
	"github.com/phpdave11/gofpdf"
	"go.uber.org/zap"
)

// AdminGetOrderReceipt renders the receipt PDF on demand and streams it.
func (h *Handler) AdminGetOrderReceipt(w http.ResponseWriter, r *http.Request) {
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
		h.Logger.Error("failed to load order for receipt", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load order")
		return
	}

	pdfBytes, err := h.renderReceiptPDF(detail)
	if err != nil {
		h.Logger.Error("failed to render receipt", zap.Int64("orderId", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "RECEIPT_RENDER_FAILED", "Failed to render receipt")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, detail.OrderNumber))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdfBytes)
}

// issueReceipt renders the receipt and archives it to object storage,
// recording the public URL on the order. Failures are logged, never
// surfaced: receipt archival must not block a status transition.
func (h *Handler) issueReceipt(ctx context.Context, detail *OrderDetail) {
	pdfBytes, err := h.renderReceiptPDF(*detail)
	if err != nil {
		h.Logger.Warn("receipt render failed", zap.String("orderNumber", detail.OrderNumber), zap.Error(err))
		return
	}

	if h.Store == nil {
		return
	}

	key := storage.ReceiptKey(detail.OrderNumber)
	url, err := h.Store.PutObject(ctx, key, pdfBytes, "application/pdf", storage.CachePrivate)
	if err != nil {
		h.Logger.Warn("receipt upload failed", zap.String("orderNumber", detail.OrderNumber), zap.Error(err))
		return
	}
	if _, err := h.DB.Exec(ctx, `
		update orders set receipt_url = $1, updated_at = now() where id = $2
	`, url, detail.ID); err != nil {
		h.Logger.Warn("failed to save receipt url", zap.String("orderNumber", detail.OrderNumber), zap.Error(err))
		return
	}
	detail.ReceiptURL = &url
}

func (h *Handler) renderReceiptPDF(detail OrderDetail) ([]byte, error) {
	currency := h.Config.Currency

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, h.Config.RestaurantName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Order Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	loc := utils.LoadLocation(h.Config.RestaurantTimezone)
	issuedAt := time.Now().In(loc).Format("02 Jan 2006 15:04")

	pdf.SetFont("Helvetica", "", 10)
	metaRow := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(40, 6, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
	}
	metaRow("Order", detail.OrderNumber)
	metaRow("Channel", detail.Channel)
	metaRow("Status", detail.Status)
	metaRow("Issued", issuedAt)
	if detail.CustomerName != nil {
		metaRow("Customer", *detail.CustomerName)
	}
	if detail.TableNumber != nil {
		metaRow("Table", *detail.TableNumber)
	}
	if detail.RiderName != nil {
		metaRow("Rider", *detail.RiderName)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(90, 7, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 7, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 7, "Unit", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Total", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range detail.Items {
		pdf.CellFormat(90, 7, item.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 7, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 7, formatFloat(item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, formatFloat(item.LineTotal), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(3)

	totalRow := func(label string, amount float64, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(110, 6, "", "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%s %s", currency, formatFloat(amount)), "", 1, "R", false, 0, "")
	}

	totalRow("Subtotal", detail.SubTotal, false)
	if detail.DiscountAmount > 0 {
		label := "Discount"
		if detail.DiscountLabel != nil {
			label = *detail.DiscountLabel
		}
		totalRow(label, -detail.DiscountAmount, false)
	}
	if detail.TaxAmount > 0 {
		totalRow("Tax", detail.TaxAmount, false)
	}
	if detail.DeliveryFee > 0 {
		totalRow("Delivery", detail.DeliveryFee, false)
	}
	totalRow("Total", detail.TotalPrice, true)
	if detail.AmountPaid > 0 {
		totalRow("Paid", detail.AmountPaid, false)
		totalRow("Due", detail.AmountDue, true)
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 5, "Thank you for ordering from "+h.Config.RestaurantName, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
