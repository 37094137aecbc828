package handlers

import (
	"math"
	"strings"
)

const (
	earthRadiusKm      = 6371.0
	freeDeliveryRadius = 5.0
	perKmRate          = 30.0
)

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// deliveryFeeForDistance: free within 5 km, Rs 30 per km beyond, rounded
// to the nearest rupee.
func deliveryFeeForDistance(km float64) float64 {
	if !isFinite(km) || km <= freeDeliveryRadius {
		return 0
	}
	return math.Round((km - freeDeliveryRadius) * perKmRate)
}

type deliveryZone struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	MinOrderAmount float64  `json:"minOrderAmount"`
	DeliveryFee    float64  `json:"deliveryFee"`
	FreeAbove      *float64 `json:"freeAbove"`
}

// matchDeliveryZone is the fallback when geolocation is unavailable: the
// first zone whose name appears (case-insensitively) in the free-text
// address wins. A zone's free_above threshold waives its fee.
func matchDeliveryZone(zones []deliveryZone, address string, subtotal float64) (float64, *deliveryZone) {
	haystack := strings.ToLower(address)
	for i := range zones {
		zone := &zones[i]
		needle := strings.ToLower(strings.TrimSpace(zone.Name))
		if needle == "" || !strings.Contains(haystack, needle) {
			continue
		}
		if zone.FreeAbove != nil && subtotal >= *zone.FreeAbove {
			return 0, zone
		}
		return zone.DeliveryFee, zone
	}
	return 0, nil
}
