package engine

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestScheduler_Fires(t *testing.T) {
	s := NewScheduler()
	var ran atomic.Int32
	s.Arm("a", 10*time.Millisecond, func() { ran.Add(1) })
	if !s.Pending("a") {
		t.Error("Pending: got false right after Arm")
	}
	waitFor(t, time.Second, func() bool { return ran.Load() == 1 })
	if s.Pending("a") {
		t.Error("Pending: got true after fire")
	}
}

func TestScheduler_RearmReplaces(t *testing.T) {
	s := NewScheduler()
	var first, second atomic.Int32
	s.Arm("a", 30*time.Millisecond, func() { first.Add(1) })
	s.Arm("a", 30*time.Millisecond, func() { second.Add(1) })

	waitFor(t, time.Second, func() bool { return second.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if first.Load() != 0 {
		t.Errorf("replaced fn ran %d times, want 0", first.Load())
	}
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler()
	var ran atomic.Int32
	s.Arm("a", 20*time.Millisecond, func() { ran.Add(1) })
	s.Cancel("a")
	time.Sleep(60 * time.Millisecond)
	if ran.Load() != 0 {
		t.Errorf("cancelled fn ran %d times, want 0", ran.Load())
	}
	// Cancelling an unknown key is a no-op.
	s.Cancel("missing")
}

func TestScheduler_KeysIndependent(t *testing.T) {
	s := NewScheduler()
	var a, b atomic.Int32
	s.Arm("a", 20*time.Millisecond, func() { a.Add(1) })
	s.Arm("b", 20*time.Millisecond, func() { b.Add(1) })
	s.Cancel("a")

	waitFor(t, time.Second, func() bool { return b.Load() == 1 })
	if a.Load() != 0 {
		t.Errorf("key a ran after cancel")
	}
}

func TestScheduler_Stop(t *testing.T) {
	s := NewScheduler()
	var ran atomic.Int32
	s.Arm("a", 20*time.Millisecond, func() { ran.Add(1) })
	s.Stop()
	s.Arm("b", time.Millisecond, func() { ran.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if ran.Load() != 0 {
		t.Errorf("fn ran %d times after Stop, want 0", ran.Load())
	}
}

func TestScheduler_BurstRunsOnce(t *testing.T) {
	s := NewScheduler()
	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		s.Arm("a", 30*time.Millisecond, func() { ran.Add(1) })
		time.Sleep(time.Millisecond)
	}
	waitFor(t, time.Second, func() bool { return ran.Load() == 1 })
	time.Sleep(60 * time.Millisecond)
	if ran.Load() != 1 {
		t.Errorf("burst: fn ran %d times, want 1", ran.Load())
	}
}
