package promo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptrFloat(v float64) *float64 { return &v }
func ptrInt32(v int32) *int32     { return &v }
func ptrTime(v time.Time) *time.Time {
	return &v
}

func TestValidateCode(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	base := Code{
		ID:            1,
		Code:          "SAVE10",
		DiscountType:  DiscountPercent,
		DiscountValue: 10,
		IsActive:      true,
	}

	t.Run("valid code passes", func(t *testing.T) {
		assert.Nil(t, ValidateCode(base, 500, now))
	})

	t.Run("inactive", func(t *testing.T) {
		code := base
		code.IsActive = false
		err := ValidateCode(code, 500, now)
		assert.NotNil(t, err)
		assert.Equal(t, ErrPromoInactive, err.Code)
	})

	t.Run("not active yet", func(t *testing.T) {
		code := base
		code.ValidFrom = ptrTime(now.Add(time.Hour))
		err := ValidateCode(code, 500, now)
		assert.NotNil(t, err)
		assert.Equal(t, ErrPromoNotActiveYet, err.Code)
	})

	t.Run("expired", func(t *testing.T) {
		code := base
		code.ValidUntil = ptrTime(now.Add(-time.Hour))
		err := ValidateCode(code, 500, now)
		assert.NotNil(t, err)
		assert.Equal(t, ErrPromoExpired, err.Code)
	})

	t.Run("exhausted", func(t *testing.T) {
		code := base
		code.UsageLimit = ptrInt32(5)
		code.UsedCount = 5
		err := ValidateCode(code, 500, now)
		assert.NotNil(t, err)
		assert.Equal(t, ErrPromoExhausted, err.Code)
	})

	t.Run("min order not met", func(t *testing.T) {
		code := base
		code.MinOrderAmount = ptrFloat(1000)
		err := ValidateCode(code, 500, now)
		assert.NotNil(t, err)
		assert.Equal(t, ErrPromoMinOrderNotMet, err.Code)
	})
}

func TestComputeCodeDiscount(t *testing.T) {
	t.Run("percent", func(t *testing.T) {
		code := Code{DiscountType: DiscountPercent, DiscountValue: 10}
		assert.Equal(t, 100.0, ComputeCodeDiscount(code, 1000))
	})

	t.Run("percent clamped to 100", func(t *testing.T) {
		code := Code{DiscountType: DiscountPercent, DiscountValue: 150}
		assert.Equal(t, 1000.0, ComputeCodeDiscount(code, 1000))
	})

	t.Run("fixed capped at subtotal", func(t *testing.T) {
		code := Code{DiscountType: DiscountFixed, DiscountValue: 300}
		assert.Equal(t, 300.0, ComputeCodeDiscount(code, 1000))
		assert.Equal(t, 200.0, ComputeCodeDiscount(code, 200))
	})
}

func TestBestPicksMaxNotSum(t *testing.T) {
	winner := Best([]Candidate{
		{Source: SourcePromoCode, Amount: 100},
		{Source: SourceFirstOrder, Amount: 150},
		{Source: SourceHappyHour, Amount: 80},
	})
	assert.NotNil(t, winner)
	assert.Equal(t, SourceFirstOrder, winner.Source)
	assert.Equal(t, 150.0, winner.Amount)
}

func TestBestSkipsZeroAndEmpty(t *testing.T) {
	assert.Nil(t, Best(nil))
	assert.Nil(t, Best([]Candidate{{Amount: 0}, {Amount: -5}}))
}

func TestBestTieKeepsFirst(t *testing.T) {
	winner := Best([]Candidate{
		{Source: SourcePromoCode, Amount: 120},
		{Source: SourceHappyHour, Amount: 120},
	})
	assert.NotNil(t, winner)
	assert.Equal(t, SourcePromoCode, winner.Source)
}

func TestFirstOrderDiscount(t *testing.T) {
	assert.Equal(t, 150.0, FirstOrderDiscount(1000, 150))
	assert.Equal(t, 80.0, FirstOrderDiscount(80, 150))
	assert.Equal(t, 0.0, FirstOrderDiscount(1000, 0))
}

func TestHappyHourDiscount(t *testing.T) {
	inside := time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)
	outside := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 100.0, HappyHourDiscount(1000, 10, "17:00", "20:00", inside))
	assert.Equal(t, 0.0, HappyHourDiscount(1000, 10, "17:00", "20:00", outside))

	// window spanning midnight
	late := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)
	early := time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 100.0, HappyHourDiscount(1000, 10, "22:00", "02:00", late))
	assert.Equal(t, 100.0, HappyHourDiscount(1000, 10, "22:00", "02:00", early))

	assert.Equal(t, 0.0, HappyHourDiscount(1000, 10, "bad", "20:00", inside))
}
