package storage

import (
	"testing"
	"time"
)

func TestKeyLayout(t *testing.T) {
	if got := ReceiptKey("Z250615-AB12"); got != "receipts/Z250615-AB12.pdf" {
		t.Fatalf("ReceiptKey = %q", got)
	}

	// Attachment keys group by upload month in UTC.
	at := time.Date(2025, 6, 15, 23, 30, 0, 0, time.FixedZone("PKT", 5*3600))
	if got := ChatAttachmentKey(at, "abc"); got != "chat/2025/06/abc.jpg" {
		t.Fatalf("ChatAttachmentKey = %q", got)
	}

	if got := ProductImageKey(7, "abc"); got != "products/7/abc.jpg" {
		t.Fatalf("ProductImageKey = %q", got)
	}
	if got := ProductThumbKey(7, "abc"); got != "products/7/abc_thumb.jpg" {
		t.Fatalf("ProductThumbKey = %q", got)
	}
}
