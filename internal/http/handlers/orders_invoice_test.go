package handlers

import "testing"

func TestComputeOrderTotals(t *testing.T) {
	tests := []struct {
		name      string
		sub       float64
		discount  float64
		tax       float64
		fee       float64
		paid      float64
		wantTotal float64
		wantDue   float64
	}{
		{"plain order", 1000, 0, 0, 0, 0, 1000, 1000},
		{"discount and delivery fee", 1000, 100, 0, 50, 0, 950, 950},
		{"partial payment", 1000, 100, 0, 50, 500, 950, 450},
		{"fully paid", 950, 0, 0, 0, 950, 950, 0},
		{"overpaid clamps due to zero", 950, 0, 0, 0, 1000, 950, 0},
		{"discount exceeding subtotal clamps to zero", 200, 500, 10, 30, 0, 40, 40},
		{"tax applies after discount", 1000, 100, 150, 0, 0, 1050, 1050},
		{"rounding", 99.995, 0, 0, 0, 0, 100, 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			total, due := computeOrderTotals(tc.sub, tc.discount, tc.tax, tc.fee, tc.paid)
			if total != tc.wantTotal {
				t.Fatalf("total = %v, want %v", total, tc.wantTotal)
			}
			if due != tc.wantDue {
				t.Fatalf("due = %v, want %v", due, tc.wantDue)
			}
		})
	}
}

func TestComputeOrderTotalsAfterPaymentSequence(t *testing.T) {
	// Two 500-rupee items, a 100 discount and a 50 delivery fee, then a
	// 500 payment: total stays 950 while due drops to 450.
	sub := 500.0 * 2
	total, due := computeOrderTotals(sub, 100, 0, 50, 0)
	if total != 950 || due != 950 {
		t.Fatalf("before payment: total=%v due=%v", total, due)
	}
	total, due = computeOrderTotals(sub, 100, 0, 50, 500)
	if total != 950 || due != 450 {
		t.Fatalf("after payment: total=%v due=%v", total, due)
	}
}
