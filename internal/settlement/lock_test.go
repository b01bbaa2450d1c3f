package settlement

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Lock(ctx, "settle:1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := l.Lock(ctx, "settle:1")
		if err != nil {
			t.Errorf("second lock: %v", err)
			return
		}
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while it was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release() // second call is a no-op

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never acquired the lock")
	}
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	r1, err := l.Lock(ctx, "settle:1")
	if err != nil {
		t.Fatal(err)
	}
	defer r1()
	r2, err := l.Lock(ctx, "settle:2")
	if err != nil {
		t.Fatalf("different key should not block: %v", err)
	}
	r2()
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	release()
	if n := l.held(); n != 0 {
		t.Errorf("expected all keys released, %d still tracked", n)
	}
}
