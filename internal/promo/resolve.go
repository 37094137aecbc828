package promo

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx, so resolution can run
// both standalone (validate preview) and inside the checkout transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Params struct {
	Code          string
	Subtotal      float64
	CustomerPhone string
	Now           time.Time
	Timezone      string

	FirstOrderAmount float64
	FirstOrderLabel  string
	HappyHourStart   string
	HappyHourEnd     string
	HappyHourPercent float64
}

// Resolve returns the single best discount for the order, or nil when no
// programme applies. A promo code that fails validation is a hard error
// even if another programme would still discount the order: the customer
// asked for that code and deserves to know it did not work.
func Resolve(ctx context.Context, db querier, params Params) (*Candidate, *Error) {
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	candidates := make([]Candidate, 0, 3)

	if strings.TrimSpace(params.Code) != "" {
		code, err := LoadCode(ctx, db, params.Code)
		if err != nil {
			return nil, err
		}
		if vErr := ValidateCode(*code, params.Subtotal, now); vErr != nil {
			return nil, vErr
		}
		amount := ComputeCodeDiscount(*code, params.Subtotal)
		if amount <= 0 {
			return nil, ValidationError(ErrPromoDiscountZero, "Promo discount is zero", nil)
		}
		codeID := code.ID
		candidates = append(candidates, Candidate{
			Source:      SourcePromoCode,
			Label:       code.Code,
			Amount:      amount,
			PromoCodeID: &codeID,
		})
	}

	if params.FirstOrderAmount > 0 && strings.TrimSpace(params.CustomerPhone) != "" {
		isFirst, err := isFirstOrder(ctx, db, params.CustomerPhone)
		if err == nil && isFirst {
			label := params.FirstOrderLabel
			if label == "" {
				label = "First order discount"
			}
			candidates = append(candidates, Candidate{
				Source: SourceFirstOrder,
				Label:  label,
				Amount: FirstOrderDiscount(params.Subtotal, params.FirstOrderAmount),
			})
		}
	}

	if params.HappyHourPercent > 0 {
		localNow := now.In(loadLocation(params.Timezone))
		amount := HappyHourDiscount(params.Subtotal, params.HappyHourPercent, params.HappyHourStart, params.HappyHourEnd, localNow)
		if amount > 0 {
			candidates = append(candidates, Candidate{
				Source: SourceHappyHour,
				Label:  "Happy hour",
				Amount: amount,
			})
		}
	}

	return Best(candidates), nil
}

func LoadCode(ctx context.Context, db querier, rawCode string) (*Code, *Error) {
	normalized := strings.ToUpper(strings.TrimSpace(rawCode))

	row := db.QueryRow(ctx, `
		select id, code, discount_type, discount_value, min_order_amount,
		       valid_from, valid_until, usage_limit, used_count, is_active
		from promo_codes
		where upper(code) = $1
	`, normalized)

	var (
		code          Code
		discountType  string
		discountValue pgtype.Numeric
		minOrder      pgtype.Numeric
		validFrom     pgtype.Timestamptz
		validUntil    pgtype.Timestamptz
		usageLimit    pgtype.Int4
	)
	if err := row.Scan(
		&code.ID, &code.Code, &discountType, &discountValue, &minOrder,
		&validFrom, &validUntil, &usageLimit, &code.UsedCount, &code.IsActive,
	); err != nil {
		return nil, ValidationError(ErrPromoNotFound, "Invalid promo code", nil)
	}

	code.DiscountType = DiscountType(discountType)
	code.DiscountValue = numericToFloat(discountValue)
	code.MinOrderAmount = optionalNumeric(minOrder)
	code.ValidFrom = optionalTime(validFrom)
	code.ValidUntil = optionalTime(validUntil)
	code.UsageLimit = optionalInt(usageLimit)

	return &code, nil
}

func isFirstOrder(ctx context.Context, db querier, phone string) (bool, error) {
	var count int64
	err := db.QueryRow(ctx, `
		select count(*) from orders where customer_phone = $1
	`, strings.TrimSpace(phone)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func loadLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func numericToFloat(value pgtype.Numeric) float64 {
	if !value.Valid {
		return 0
	}
	f, _ := value.Float64Value()
	return f.Float64
}

func optionalNumeric(value pgtype.Numeric) *float64 {
	if !value.Valid {
		return nil
	}
	f := numericToFloat(value)
	return &f
}

func optionalInt(value pgtype.Int4) *int32 {
	if !value.Valid {
		return nil
	}
	return &value.Int32
}

func optionalTime(value pgtype.Timestamptz) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
