package handlers

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"zaiqa-order-service/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type OrderItemView struct {
	ID        int64   `json:"id"`
	ProductID *int64  `json:"productId"`
	DealID    *int64  `json:"dealId"`
	Name      string  `json:"name"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
	Notes     *string `json:"notes"`
}

type PaymentView struct {
	ID         int64     `json:"id"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
	Notes      *string   `json:"notes"`
	RecordedBy *string   `json:"recordedBy"`
	PaidAt     time.Time `json:"paidAt"`
}

type OrderDetail struct {
	ID              int64    `json:"id"`
	OrderNumber     string   `json:"orderNumber"`
	Channel         string   `json:"channel"`
	ServiceMode     string   `json:"serviceMode"`
	Status          string   `json:"status"`
	CustomerName    *string  `json:"customerName"`
	CustomerPhone   *string  `json:"customerPhone"`
	CustomerAddress *string  `json:"customerAddress"`
	CustomerNotes   *string  `json:"customerNotes"`
	TableNumber     *string  `json:"tableNumber"`
	RiderID         *int64   `json:"riderId"`
	RiderName       *string  `json:"riderName"`
	DistanceKm      *float64 `json:"distanceKm"`

	SubTotal       float64 `json:"subTotal"`
	DiscountAmount float64 `json:"discountAmount"`
	DiscountSource *string `json:"discountSource"`
	DiscountLabel  *string `json:"discountLabel"`
	TaxAmount      float64 `json:"taxAmount"`
	DeliveryFee    float64 `json:"deliveryFee"`
	TotalPrice     float64 `json:"totalPrice"`
	AmountPaid     float64 `json:"amountPaid"`
	AmountDue      float64 `json:"amountDue"`

	RatingStars    *int32  `json:"ratingStars"`
	RatingDelivery *int32  `json:"ratingDelivery"`
	RatingQuality  *int32  `json:"ratingQuality"`
	RatingComment  *string `json:"ratingComment"`

	ReceiptURL *string `json:"receiptUrl"`

	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ReadyAt           *time.Time `json:"readyAt"`
	DeliveredAt       *time.Time `json:"deliveredAt"`
	PaymentReceivedAt *time.Time `json:"paymentReceivedAt"`
	RatedAt           *time.Time `json:"ratedAt"`
	LastInvoiceEditAt *time.Time `json:"lastInvoiceEditAt"`

	Items    []OrderItemView `json:"items"`
	Payments []PaymentView   `json:"payments"`
}

const orderDetailColumns = `
	o.id, o.order_number, o.channel, o.status,
	o.customer_name, o.customer_phone, o.customer_address, o.customer_notes,
	o.table_number, o.rider_id, rd.name, o.distance_km,
	o.sub_total, o.discount_amount, o.discount_source, o.discount_label,
	o.tax_amount, o.delivery_fee, o.total_price, o.amount_paid, o.amount_due,
	o.rating_stars, o.rating_delivery, o.rating_quality, o.rating_comment,
	o.receipt_url,
	o.created_at, o.updated_at, o.ready_at, o.delivered_at,
	o.payment_received_at, o.rated_at, o.last_invoice_edit_at
`

func (h *Handler) fetchOrderDetail(ctx context.Context, orderID int64) (OrderDetail, error) {
	query := `
		select ` + orderDetailColumns + `
		from orders o
		left join riders rd on rd.id = o.rider_id
		where o.id = $1
	`
	return h.scanOrderDetail(ctx, h.DB.QueryRow(ctx, query, orderID))
}

func (h *Handler) fetchOrderDetailByNumber(ctx context.Context, orderNumber string) (OrderDetail, error) {
	query := `
		select ` + orderDetailColumns + `
		from orders o
		left join riders rd on rd.id = o.rider_id
		where o.order_number = $1
	`
	return h.scanOrderDetail(ctx, h.DB.QueryRow(ctx, query, orderNumber))
}

func (h *Handler) scanOrderDetail(ctx context.Context, row pgx.Row) (OrderDetail, error) {
	var (
		detail          OrderDetail
		customerName    pgtype.Text
		customerPhone   pgtype.Text
		customerAddress pgtype.Text
		customerNotes   pgtype.Text
		tableNumber     pgtype.Text
		riderID         pgtype.Int8
		riderName       pgtype.Text
		distanceKm      pgtype.Numeric
		subTotal        pgtype.Numeric
		discountAmount  pgtype.Numeric
		discountSource  pgtype.Text
		discountLabel   pgtype.Text
		taxAmount       pgtype.Numeric
		deliveryFee     pgtype.Numeric
		totalPrice      pgtype.Numeric
		amountPaid      pgtype.Numeric
		amountDue       pgtype.Numeric
		ratingStars     pgtype.Int4
		ratingDelivery  pgtype.Int4
		ratingQuality   pgtype.Int4
		ratingComment   pgtype.Text
		receiptURL      pgtype.Text
		readyAt         pgtype.Timestamptz
		deliveredAt     pgtype.Timestamptz
		paymentAt       pgtype.Timestamptz
		ratedAt         pgtype.Timestamptz
		invoiceEditAt   pgtype.Timestamptz
	)

	if err := row.Scan(
		&detail.ID, &detail.OrderNumber, &detail.Channel, &detail.Status,
		&customerName, &customerPhone, &customerAddress, &customerNotes,
		&tableNumber, &riderID, &riderName, &distanceKm,
		&subTotal, &discountAmount, &discountSource, &discountLabel,
		&taxAmount, &deliveryFee, &totalPrice, &amountPaid, &amountDue,
		&ratingStars, &ratingDelivery, &ratingQuality, &ratingComment,
		&receiptURL,
		&detail.CreatedAt, &detail.UpdatedAt, &readyAt, &deliveredAt,
		&paymentAt, &ratedAt, &invoiceEditAt,
	); err != nil {
		return OrderDetail{}, err
	}

	detail.ServiceMode = serviceModeForChannel(detail.Channel)
	detail.CustomerName = textPtr(customerName)
	detail.CustomerPhone = textPtr(customerPhone)
	detail.CustomerAddress = textPtr(customerAddress)
	detail.CustomerNotes = textPtr(customerNotes)
	detail.TableNumber = textPtr(tableNumber)
	detail.RiderID = int8Ptr(riderID)
	detail.RiderName = textPtr(riderName)
	detail.DistanceKm = numericPtr(distanceKm)

	detail.SubTotal = utils.NumericToFloat64(subTotal)
	detail.DiscountAmount = utils.NumericToFloat64(discountAmount)
	detail.DiscountSource = textPtr(discountSource)
	detail.DiscountLabel = textPtr(discountLabel)
	detail.TaxAmount = utils.NumericToFloat64(taxAmount)
	detail.DeliveryFee = utils.NumericToFloat64(deliveryFee)
	detail.TotalPrice = utils.NumericToFloat64(totalPrice)
	detail.AmountPaid = utils.NumericToFloat64(amountPaid)
	detail.AmountDue = utils.NumericToFloat64(amountDue)

	detail.RatingStars = int4Ptr(ratingStars)
	detail.RatingDelivery = int4Ptr(ratingDelivery)
	detail.RatingQuality = int4Ptr(ratingQuality)
	detail.RatingComment = textPtr(ratingComment)
	detail.ReceiptURL = textPtr(receiptURL)

	detail.ReadyAt = timePtr(readyAt)
	detail.DeliveredAt = timePtr(deliveredAt)
	detail.PaymentReceivedAt = timePtr(paymentAt)
	detail.RatedAt = timePtr(ratedAt)
	detail.LastInvoiceEditAt = timePtr(invoiceEditAt)

	items, err := h.fetchOrderItems(ctx, detail.ID)
	if err != nil {
		return OrderDetail{}, err
	}
	detail.Items = items

	payments, err := h.fetchOrderPayments(ctx, detail.ID)
	if err != nil {
		return OrderDetail{}, err
	}
	detail.Payments = payments

	return detail, nil
}

func (h *Handler) fetchOrderItems(ctx context.Context, orderID int64) ([]OrderItemView, error) {
	rows, err := h.DB.Query(ctx, `
		select id, product_id, deal_id, name, quantity, unit_price, notes
		from order_items
		where order_id = $1
		order by id asc
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]OrderItemView, 0)
	for rows.Next() {
		var (
			item      OrderItemView
			productID pgtype.Int8
			dealID    pgtype.Int8
			unitPrice pgtype.Numeric
			notes     pgtype.Text
		)
		if err := rows.Scan(&item.ID, &productID, &dealID, &item.Name, &item.Quantity, &unitPrice, &notes); err != nil {
			return nil, err
		}
		item.ProductID = int8Ptr(productID)
		item.DealID = int8Ptr(dealID)
		item.UnitPrice = utils.NumericToFloat64(unitPrice)
		item.LineTotal = round2(item.UnitPrice * float64(item.Quantity))
		item.Notes = textPtr(notes)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (h *Handler) fetchOrderPayments(ctx context.Context, orderID int64) ([]PaymentView, error) {
	rows, err := h.DB.Query(ctx, `
		select id, amount, method, notes, recorded_by, paid_at
		from order_payments
		where order_id = $1
		order by paid_at asc, id asc
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]PaymentView, 0)
	for rows.Next() {
		var (
			payment    PaymentView
			amount     pgtype.Numeric
			notes      pgtype.Text
			recordedBy pgtype.Text
		)
		if err := rows.Scan(&payment.ID, &amount, &payment.Method, &notes, &recordedBy, &payment.PaidAt); err != nil {
			return nil, err
		}
		payment.Amount = utils.NumericToFloat64(amount)
		payment.Notes = textPtr(notes)
		payment.RecordedBy = textPtr(recordedBy)
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateOrderNumber produces a short human-readable code (date prefix +
// 4 random characters) and retries on the rare collision.
func (h *Handler) generateOrderNumber(ctx context.Context) (string, error) {
	datePart := time.Now().In(utils.LoadLocation(h.Config.RestaurantTimezone)).Format("060102")

	for attempt := 0; attempt < 10; attempt++ {
		suffix := make([]byte, 4)
		for i := range suffix {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(orderNumberAlphabet))))
			if err != nil {
				return "", err
			}
			suffix[i] = orderNumberAlphabet[n.Int64()]
		}
		candidate := fmt.Sprintf("Z%s-%s", datePart, suffix)

		var exists bool
		if err := h.DB.QueryRow(ctx, `select exists(select 1 from orders where order_number = $1)`, candidate).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique order number")
}
