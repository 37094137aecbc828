package handlers

import "testing"

func TestStatusesForChannel(t *testing.T) {
	tests := []struct {
		channel string
		status  string
		allowed bool
	}{
		{"online", "new", true},
		{"online", "on_the_way", true},
		{"online", "delivered", true},
		{"online", "order_on_table", false},
		{"online", "closed", false},
		{"dine_in", "order_on_table", true},
		{"dine_in", "closed", true},
		{"dine_in", "on_the_way", false},
		{"dine_in", "delivered", false},
		{"walk_in", "order_on_table", true},
		{"walk_in", "on_the_way", false},
		{"takeaway", "ready", true},
		{"takeaway", "closed", true},
		{"takeaway", "order_on_table", false},
		{"drive_thru", "new", false},
	}

	for _, tc := range tests {
		if got := isStatusAllowed(tc.channel, tc.status); got != tc.allowed {
			t.Fatalf("isStatusAllowed(%q, %q) = %v, want %v", tc.channel, tc.status, got, tc.allowed)
		}
	}
}

func TestIsValidTransition(t *testing.T) {
	if isValidTransition("online", "ready", "ready") {
		t.Fatal("self-transition must be rejected")
	}
	if !isValidTransition("online", "ready", "on_the_way") {
		t.Fatal("ready -> on_the_way must be allowed for online")
	}
	if isValidTransition("takeaway", "ready", "on_the_way") {
		t.Fatal("on_the_way is not a takeaway status")
	}
	// Jumps are allowed, the board is not strictly forward-only.
	if !isValidTransition("online", "delivered", "preparing") {
		t.Fatal("backwards jump inside the channel set must be allowed")
	}
}

func TestTransitionRequiresRider(t *testing.T) {
	if !transitionRequiresRider("online", "on_the_way") {
		t.Fatal("online on_the_way requires a rider")
	}
	if transitionRequiresRider("online", "ready") {
		t.Fatal("ready does not require a rider")
	}
	if transitionRequiresRider("dine_in", "on_the_way") {
		t.Fatal("non-online channels never require a rider")
	}
}

func TestTransitionIssuesReceipt(t *testing.T) {
	if !transitionIssuesReceipt("ready", false) {
		t.Fatal("first transition into ready issues a receipt")
	}
	if transitionIssuesReceipt("ready", true) {
		t.Fatal("re-entering ready must not re-issue")
	}
	if !transitionIssuesReceipt("closed", true) {
		t.Fatal("closed always re-issues")
	}
	if transitionIssuesReceipt("preparing", false) {
		t.Fatal("preparing never issues a receipt")
	}
}

func TestServiceModeForChannel(t *testing.T) {
	tests := map[string]string{
		"online":   "delivery",
		"dine_in":  "dine_in",
		"walk_in":  "pickup",
		"takeaway": "pickup",
	}
	for channel, want := range tests {
		if got := serviceModeForChannel(channel); got != want {
			t.Fatalf("serviceModeForChannel(%q) = %q, want %q", channel, got, want)
		}
	}
}
