package handlers

import "testing"

func TestConfirmsCashReceipt(t *testing.T) {
	cash := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		target string
		cash   *float64
		want   bool
	}{
		{"delivered with full cash", StatusDelivered, cash(950), true},
		{"delivered with partial cash", StatusDelivered, cash(500), true},
		{"delivered without cash", StatusDelivered, nil, false},
		{"delivered with zero cash", StatusDelivered, cash(0), false},
		{"ready with cash", StatusReady, cash(950), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := confirmsCashReceipt(tt.target, tt.cash); got != tt.want {
				t.Fatalf("confirmsCashReceipt(%q, %v) = %v, want %v", tt.target, tt.cash, got, tt.want)
			}
		})
	}
}
