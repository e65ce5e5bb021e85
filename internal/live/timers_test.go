package live

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func TestTimerFiresAfterDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewTimerManager(clock, zap.NewNop())
	historyID := uuid.New()

	var fired atomic.Int32
	m.Schedule(historyID, "q1", 10*time.Second, func() { fired.Add(1) })

	clock.Advance(9 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("fired before deadline")
	}

	clock.Advance(time.Second)
	waitFor(t, func() bool { return fired.Load() == 1 }, "timer fire")

	// Does not fire again.
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}
}

func TestTimerCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewTimerManager(clock, zap.NewNop())
	historyID := uuid.New()

	var fired atomic.Int32
	m.Schedule(historyID, "q1", 10*time.Second, func() { fired.Add(1) })
	m.Cancel(historyID, "q1")

	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("cancelled timer fired")
	}

	// Cancelling an unknown key is a no-op.
	m.Cancel(historyID, "q2")
	m.Cancel(uuid.New(), "q1")
}

func TestTimerScheduleReplacesExisting(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewTimerManager(clock, zap.NewNop())
	historyID := uuid.New()

	var slow, fast atomic.Int32
	m.Schedule(historyID, "q1", time.Minute, func() { slow.Add(1) })
	m.Schedule(historyID, "q1", 2*time.Second, func() { fast.Add(1) })

	clock.Advance(2 * time.Second)
	waitFor(t, func() bool { return fast.Load() == 1 }, "replacement fire")

	clock.Advance(2 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	if slow.Load() != 0 {
		t.Fatal("replaced timer fired")
	}
	if fast.Load() != 1 {
		t.Fatalf("replacement fired %d times, want 1", fast.Load())
	}
}

func TestTimerCancelAllScopedToHistory(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewTimerManager(clock, zap.NewNop())
	doomed := uuid.New()
	other := uuid.New()

	var doomedFired, otherFired atomic.Int32
	m.Schedule(doomed, "q1", 5*time.Second, func() { doomedFired.Add(1) })
	m.Schedule(doomed, "q2", 5*time.Second, func() { doomedFired.Add(1) })
	m.Schedule(other, "q1", 5*time.Second, func() { otherFired.Add(1) })

	m.CancelAll(doomed)
	clock.Advance(5 * time.Second)

	waitFor(t, func() bool { return otherFired.Load() == 1 }, "unrelated timer fire")
	if doomedFired.Load() != 0 {
		t.Fatalf("cancelled history fired %d times", doomedFired.Load())
	}
}
