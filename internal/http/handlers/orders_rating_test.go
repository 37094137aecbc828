package handlers

import "testing"

func TestValidStarValue(t *testing.T) {
	for _, v := range []int32{1, 3, 5} {
		if !validStarValue(v) {
			t.Fatalf("validStarValue(%d) = false, want true", v)
		}
	}
	for _, v := range []int32{0, -1, 6} {
		if validStarValue(v) {
			t.Fatalf("validStarValue(%d) = true, want false", v)
		}
	}
}

func TestRatingOwnedBy(t *testing.T) {
	owner := int64(7)

	if !ratingOwnedBy(&owner, 7) {
		t.Fatal("owner should be allowed to rate their order")
	}
	// Another customer's valid token must not be enough.
	if ratingOwnedBy(&owner, 8) {
		t.Fatal("a different customer must not rate someone else's order")
	}
	// Guest checkouts have no owner on record.
	if ratingOwnedBy(nil, 7) {
		t.Fatal("orders without an owner must not be ratable")
	}
}
