package handlers

import (
	"math"
	"testing"
)

func TestDeliveryFeeForDistance(t *testing.T) {
	tests := []struct {
		km   float64
		want float64
	}{
		{0, 0},
		{5.0, 0},
		{5.01, 0}, // rounds to 0
		{6.0, 30},
		{10.5, 165},
		{15.0, 300},
	}

	for _, tc := range tests {
		if got := deliveryFeeForDistance(tc.km); got != tc.want {
			t.Fatalf("deliveryFeeForDistance(%v) = %v, want %v", tc.km, got, tc.want)
		}
	}

	if got := deliveryFeeForDistance(math.NaN()); got != 0 {
		t.Fatalf("deliveryFeeForDistance(NaN) = %v, want 0", got)
	}
}

func TestHaversineKm(t *testing.T) {
	// Lahore city centre to Model Town, roughly 8.5 km.
	got := haversineKm(31.5497, 74.3436, 31.4811, 74.3247)
	if got < 7.5 || got > 9.5 {
		t.Fatalf("haversineKm = %v, expected roughly 8.5", got)
	}

	if got := haversineKm(31.5497, 74.3436, 31.5497, 74.3436); got != 0 {
		t.Fatalf("same point distance = %v, want 0", got)
	}
}

func TestMatchDeliveryZone(t *testing.T) {
	free := 2000.0
	zones := []deliveryZone{
		{ID: 1, Name: "Gulberg", DeliveryFee: 100},
		{ID: 2, Name: "DHA", DeliveryFee: 150, FreeAbove: &free},
	}

	t.Run("first matching zone wins", func(t *testing.T) {
		fee, zone := matchDeliveryZone(zones, "House 12, Gulberg III, Lahore", 500)
		if zone == nil || zone.ID != 1 || fee != 100 {
			t.Fatalf("got fee=%v zone=%+v", fee, zone)
		}
	})

	t.Run("match is case-insensitive", func(t *testing.T) {
		fee, zone := matchDeliveryZone(zones, "street 5, dha phase 4", 500)
		if zone == nil || zone.ID != 2 || fee != 150 {
			t.Fatalf("got fee=%v zone=%+v", fee, zone)
		}
	})

	t.Run("free_above waives the fee", func(t *testing.T) {
		fee, zone := matchDeliveryZone(zones, "street 5, DHA phase 4", 2500)
		if zone == nil || fee != 0 {
			t.Fatalf("got fee=%v zone=%+v", fee, zone)
		}
	})

	t.Run("no match", func(t *testing.T) {
		fee, zone := matchDeliveryZone(zones, "Johar Town", 500)
		if zone != nil || fee != 0 {
			t.Fatalf("got fee=%v zone=%+v", fee, zone)
		}
	})
}
