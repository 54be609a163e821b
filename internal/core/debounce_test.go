package core

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRunsLastTrigger(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var last atomic.Int32
	var runs atomic.Int32
	done := make(chan struct{})
	for i := int32(1); i <= 5; i++ {
		v := i
		d.Trigger(func() {
			last.Store(v)
			if runs.Add(1) == 1 {
				close(done)
			}
		})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced function never ran")
	}
	time.Sleep(40 * time.Millisecond)
	if runs.Load() != 1 || last.Load() != 5 {
		t.Fatalf("expected only the last trigger to run, runs=%d last=%d", runs.Load(), last.Load())
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	d := NewDebouncer(time.Hour)
	ran := 0
	d.Trigger(func() { ran++ })
	d.Flush()
	if ran != 1 {
		t.Fatalf("flush should run the pending function, ran=%d", ran)
	}
	d.Flush()
	if ran != 1 {
		t.Fatalf("second flush must be a no-op, ran=%d", ran)
	}

	d.Trigger(func() { ran++ })
	d.Stop()
	d.Flush()
	if ran != 1 {
		t.Fatalf("stopped function must not run, ran=%d", ran)
	}
}

func TestDebouncerDefaultDelay(t *testing.T) {
	if d := NewDebouncer(0); d.delay != DefaultDebounceDelay {
		t.Fatalf("expected default delay, got %s", d.delay)
	}
}
