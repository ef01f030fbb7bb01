package browser

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitUntilSucceedsEventually(t *testing.T) {
	calls := 0
	err := WaitUntil(context.Background(), time.Second, time.Millisecond, func(context.Context) bool {
		calls++
		return calls == 3
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 polls, got %d", calls)
	}
}

func TestWaitUntilTimesOut(t *testing.T) {
	err := WaitUntil(context.Background(), 5*time.Millisecond, time.Millisecond, func(context.Context) bool { return false })
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestWaitUntilHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitUntil(ctx, time.Minute, time.Millisecond, func(context.Context) bool { return false })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
