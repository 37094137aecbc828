package promo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// No code supplied and no first-order programme means Resolve never
// touches the database, so these run against a nil querier.

func TestResolveHappyHourWins(t *testing.T) {
	winner, err := Resolve(context.Background(), nil, Params{
		Subtotal:         1000,
		Now:              time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC),
		Timezone:         "UTC",
		HappyHourStart:   "17:00",
		HappyHourEnd:     "20:00",
		HappyHourPercent: 10,
	})
	assert.Nil(t, err)
	assert.NotNil(t, winner)
	assert.Equal(t, SourceHappyHour, winner.Source)
	assert.Equal(t, 100.0, winner.Amount)
	assert.Nil(t, winner.PromoCodeID)
}

func TestResolveNoProgrammes(t *testing.T) {
	winner, err := Resolve(context.Background(), nil, Params{
		Subtotal: 1000,
		Now:      time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Timezone: "UTC",
	})
	assert.Nil(t, err)
	assert.Nil(t, winner)
}
