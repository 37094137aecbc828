package handlers

// Order channels.
const (
	ChannelOnline   = "online"
	ChannelWalkIn   = "walk_in"
	ChannelDineIn   = "dine_in"
	ChannelTakeaway = "takeaway"
)

// Order statuses.
const (
	StatusNew          = "new"
	StatusPreparing    = "preparing"
	StatusReady        = "ready"
	StatusOrderOnTable = "order_on_table"
	StatusOnTheWay     = "on_the_way"
	StatusDelivered    = "delivered"
	StatusClosed       = "closed"
)

// statusesForChannel returns the legal status set for a channel. The
// board allows jumping between any two distinct statuses inside the set;
// ordering is advisory, not enforced.
func statusesForChannel(channel string) []string {
	switch channel {
	case ChannelOnline:
		return []string{StatusNew, StatusPreparing, StatusReady, StatusOnTheWay, StatusDelivered}
	case ChannelWalkIn, ChannelDineIn:
		return []string{StatusNew, StatusPreparing, StatusReady, StatusOrderOnTable, StatusClosed}
	case ChannelTakeaway:
		return []string{StatusNew, StatusPreparing, StatusReady, StatusClosed}
	default:
		return nil
	}
}

func isValidChannel(channel string) bool {
	return statusesForChannel(channel) != nil
}

func isStatusAllowed(channel string, status string) bool {
	for _, s := range statusesForChannel(channel) {
		if s == status {
			return true
		}
	}
	return false
}

// isValidTransition accepts any move to a different legal status for the
// channel. Self-transitions are rejected so repeated clicks cannot fire
// side effects twice.
func isValidTransition(channel string, current string, target string) bool {
	if target == current {
		return false
	}
	return isStatusAllowed(channel, target)
}

// serviceModeForChannel derives how the order reaches the customer.
func serviceModeForChannel(channel string) string {
	switch channel {
	case ChannelOnline:
		return "delivery"
	case ChannelDineIn:
		return "dine_in"
	default:
		return "pickup"
	}
}

// transitionRequiresRider reports whether the target status needs a rider
// on the order: only online orders going out for delivery.
func transitionRequiresRider(channel string, target string) bool {
	return channel == ChannelOnline && target == StatusOnTheWay
}

// transitionIssuesReceipt reports whether entering the target status
// triggers receipt issuance. ready only fires the first time (stamped
// ready_at is the guard); closed re-issues every time.
func transitionIssuesReceipt(target string, readyAlreadyStamped bool) bool {
	if target == StatusClosed {
		return true
	}
	return target == StatusReady && !readyAlreadyStamped
}
