package tube

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitForWaiters(t *testing.T, tb *Tube, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tb.Stats().Waiting == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("never reached %d waiters", n)
}

func TestBlockedTakeWokenByPut(t *testing.T) {
	tb := newTestTube(t, SystemClock())

	got := make(chan Task, 1)
	go func() {
		task, ok, err := tb.Take(context.Background(), time.Second)
		if err != nil || !ok {
			return
		}
		got <- task
	}()
	waitForWaiters(t, tb, 1)

	mustPut(t, tb, "wake", PutOptions{})
	select {
	case task := <-got:
		if string(task.Payload) != "wake" {
			t.Fatalf("waiter got %q", task.Payload)
		}
		if task.State != StateTaken {
			t.Fatalf("waiter got state %s", task.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never woke")
	}
}

func TestWaitersWakeFIFO(t *testing.T) {
	tb := newTestTube(t, SystemClock())

	first := make(chan Task, 1)
	go func() {
		if task, ok, err := tb.Take(context.Background(), 2*time.Second); err == nil && ok {
			first <- task
		}
	}()
	waitForWaiters(t, tb, 1)

	second := make(chan Task, 1)
	go func() {
		if task, ok, err := tb.Take(context.Background(), 2*time.Second); err == nil && ok {
			second <- task
		}
	}()
	waitForWaiters(t, tb, 2)

	mustPut(t, tb, "one", PutOptions{})
	mustPut(t, tb, "two", PutOptions{})

	select {
	case task := <-first:
		if string(task.Payload) != "one" {
			t.Fatalf("first waiter got %q, want %q", task.Payload, "one")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first waiter never woke")
	}
	select {
	case task := <-second:
		if string(task.Payload) != "two" {
			t.Fatalf("second waiter got %q, want %q", task.Payload, "two")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second waiter never woke")
	}
}

func TestTakeTimesOut(t *testing.T) {
	tb := newTestTube(t, SystemClock())
	start := time.Now()
	task, ok, err := tb.Take(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if ok {
		t.Fatalf("take returned task %d from empty tube", task.ID)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("take returned after %v, too early", elapsed)
	}
	if tb.Stats().Waiting != 0 {
		t.Fatalf("timed-out waiter still registered")
	}
}

func TestTakeCancelled(t *testing.T) {
	tb := newTestTube(t, SystemClock())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := tb.Take(ctx, -1)
		done <- err
	}()
	waitForWaiters(t, tb, 1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("take after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled take never returned")
	}
	if tb.Stats().Waiting != 0 {
		t.Fatalf("cancelled waiter still registered")
	}
}

func TestDropBusyWithWaiter(t *testing.T) {
	tb := newTestTube(t, SystemClock())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _, _, _ = tb.Take(ctx, -1) }()
	waitForWaiters(t, tb, 1)

	if err := tb.Drop(); !errors.Is(err, ErrTubeBusy) {
		t.Fatalf("drop with waiter: %v, want ErrTubeBusy", err)
	}
}
