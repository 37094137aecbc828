package handlers

import (
	"strings"
	"testing"
)

func TestTruncateMessage(t *testing.T) {
	if got := truncateMessage("  hello  ", 2000); got != "hello" {
		t.Fatalf("got %q", got)
	}

	long := strings.Repeat("x", 2500)
	if got := truncateMessage(long, 2000); len(got) != 2000 {
		t.Fatalf("len = %d, want 2000", len(got))
	}

	// Rune-safe: a multibyte tail must not be split.
	urdu := strings.Repeat("ک", 2100)
	got := truncateMessage(urdu, 2000)
	if len([]rune(got)) != 2000 {
		t.Fatalf("rune len = %d, want 2000", len([]rune(got)))
	}
}

func TestMessagePreview(t *testing.T) {
	if got := messagePreview("short message"); got != "short message" {
		t.Fatalf("got %q", got)
	}

	long := strings.Repeat("a", 300)
	got := messagePreview(long)
	if len([]rune(got)) != chatPreviewLength {
		t.Fatalf("rune len = %d, want %d", len([]rune(got)), chatPreviewLength)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("preview %q missing ellipsis", got)
	}
}
