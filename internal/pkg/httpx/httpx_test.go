package httpx

import (
	"context"
	"fmt"
	"testing"
)

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("http %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestClassification(t *testing.T) {
	wrapped := fmt.Errorf("probe: %w", statusErr(403))
	if !IsPermissionDenied(wrapped) {
		t.Fatalf("expected 403 to be permission denied")
	}
	if IsNotFound(wrapped) {
		t.Fatalf("403 must not classify as not found")
	}
	if !IsNotFound(statusErr(404)) {
		t.Fatalf("expected 404 to be not found")
	}
	if StatusOf(fmt.Errorf("plain")) != 0 {
		t.Fatalf("plain error should carry no status")
	}
}

func TestStatusLabel(t *testing.T) {
	if got := StatusLabel(nil); got != "ok" {
		t.Fatalf("nil: got=%q", got)
	}
	if got := StatusLabel(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("deadline: got=%q", got)
	}
	if got := StatusLabel(statusErr(429)); got != "Too Many Requests" {
		t.Fatalf("429: got=%q", got)
	}
}
