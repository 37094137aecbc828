package promo

import (
	"math"
	"time"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Discount sources, recorded on the order so reports can tell how a
// discount was won.
const (
	SourcePromoCode  = "promo_code"
	SourceFirstOrder = "first_order"
	SourceHappyHour  = "happy_hour"
)

type Code struct {
	ID             int64
	Code           string
	DiscountType   DiscountType
	DiscountValue  float64
	MinOrderAmount *float64
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	UsageLimit     *int32
	UsedCount      int32
	IsActive       bool
}

// Candidate is one possible discount for an order. Candidates compete;
// the largest amount wins and the rest are discarded, never summed.
type Candidate struct {
	Source      string  `json:"source"`
	Label       string  `json:"label"`
	Amount      float64 `json:"amount"`
	PromoCodeID *int64  `json:"promoCodeId,omitempty"`
}

func ValidateCode(code Code, subtotal float64, now time.Time) *Error {
	if !code.IsActive {
		return ValidationError(ErrPromoInactive, "Promo code is inactive", nil)
	}
	if code.ValidFrom != nil && now.Before(*code.ValidFrom) {
		return ValidationError(ErrPromoNotActiveYet, "Promo code is not active yet", map[string]any{"validFrom": *code.ValidFrom})
	}
	if code.ValidUntil != nil && now.After(*code.ValidUntil) {
		return ValidationError(ErrPromoExpired, "Promo code has expired", map[string]any{"validUntil": *code.ValidUntil})
	}
	if code.UsageLimit != nil && code.UsedCount >= *code.UsageLimit {
		return ValidationError(ErrPromoExhausted, "Promo code usage limit reached", map[string]any{
			"usageLimit": *code.UsageLimit,
			"usedCount":  code.UsedCount,
		})
	}
	if code.MinOrderAmount != nil && subtotal < *code.MinOrderAmount {
		return ValidationError(ErrPromoMinOrderNotMet, "Order does not meet minimum amount", map[string]any{
			"minOrderAmount": *code.MinOrderAmount,
			"subtotal":       subtotal,
		})
	}
	return nil
}

func ComputeCodeDiscount(code Code, subtotal float64) float64 {
	var amount float64
	if code.DiscountType == DiscountPercent {
		pct := math.Max(0, math.Min(code.DiscountValue, 100))
		amount = subtotal * (pct / 100)
	} else {
		amount = math.Min(code.DiscountValue, subtotal)
	}
	return round2(math.Max(0, amount))
}

// FirstOrderDiscount caps the configured flat amount at the subtotal.
func FirstOrderDiscount(subtotal float64, configured float64) float64 {
	if configured <= 0 || subtotal <= 0 {
		return 0
	}
	return round2(math.Min(configured, subtotal))
}

// HappyHourDiscount applies the configured percentage when the local
// clock falls inside the window. The window may span midnight.
func HappyHourDiscount(subtotal float64, percent float64, startHHMM, endHHMM string, localNow time.Time) float64 {
	if percent <= 0 || subtotal <= 0 {
		return 0
	}
	if !isValidHHMM(startHHMM) || !isValidHHMM(endHHMM) {
		return 0
	}
	nowHHMM := localNow.Format("15:04")
	if !isTimeWithinWindow(nowHHMM, startHHMM, endHHMM) {
		return 0
	}
	pct := math.Max(0, math.Min(percent, 100))
	return round2(subtotal * (pct / 100))
}

// Best picks the single winning candidate: highest amount, first one on
// a tie. Returns nil when no candidate carries a positive amount.
func Best(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Amount <= 0 {
			continue
		}
		if best == nil || c.Amount > best.Amount {
			best = c
		}
	}
	return best
}

func isValidHHMM(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", value)
	return err == nil
}

func isTimeWithinWindow(nowHHMM string, startHHMM string, endHHMM string) bool {
	if startHHMM == endHHMM {
		return true
	}
	if startHHMM < endHHMM {
		return nowHHMM >= startHHMM && nowHHMM <= endHHMM
	}
	return nowHHMM >= startHHMM || nowHHMM <= endHHMM
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
