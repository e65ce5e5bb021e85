package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type timerKey struct {
	historyID  uuid.UUID
	questionID string
}

type timerHandle struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// TimerManager schedules one cancellable deferred task per
// (historyID, questionID) key. Scheduling under an occupied key replaces the
// existing timer, so the all-answered grace delay can shorten a running
// question timer. Cancellation races with firing are tolerated: the caller's
// idempotency guard, not the timer, is the correctness anchor.
type TimerManager struct {
	clock  clockwork.Clock
	logger *zap.Logger

	mu     sync.Mutex
	timers map[timerKey]*timerHandle
}

// NewTimerManager creates a timer manager on the given clock.
func NewTimerManager(clock clockwork.Clock, logger *zap.Logger) *TimerManager {
	return &TimerManager{
		clock:  clock,
		logger: logger,
		timers: make(map[timerKey]*timerHandle),
	}
}

// Schedule arms a timer that invokes fn after d, replacing any timer already
// armed under the same key.
func (m *TimerManager) Schedule(historyID uuid.UUID, questionID string, d time.Duration, fn func()) {
	key := timerKey{historyID: historyID, questionID: questionID}
	h := &timerHandle{
		timer:  m.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}

	m.mu.Lock()
	if old, ok := m.timers[key]; ok {
		stopAndDrain(old.timer)
		close(old.cancel)
	}
	m.timers[key] = h
	m.mu.Unlock()

	go func() {
		select {
		case <-h.timer.Chan():
			m.remove(key, h)
			fn()
		case <-h.cancel:
		}
	}()

	m.logger.Debug("timer scheduled",
		zap.String("history_id", historyID.String()),
		zap.String("question_id", questionID),
		zap.Duration("duration", d),
	)
}

// Cancel disarms the timer for (historyID, questionID) if one is armed.
func (m *TimerManager) Cancel(historyID uuid.UUID, questionID string) {
	key := timerKey{historyID: historyID, questionID: questionID}
	m.mu.Lock()
	h, ok := m.timers[key]
	if ok {
		delete(m.timers, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	stopAndDrain(h.timer)
	close(h.cancel)
}

// CancelAll disarms every timer belonging to a history (session teardown).
func (m *TimerManager) CancelAll(historyID uuid.UUID) {
	m.mu.Lock()
	var cancelled []*timerHandle
	for key, h := range m.timers {
		if key.historyID == historyID {
			delete(m.timers, key)
			cancelled = append(cancelled, h)
		}
	}
	m.mu.Unlock()
	for _, h := range cancelled {
		stopAndDrain(h.timer)
		close(h.cancel)
	}
}

// remove drops a fired timer, but only if it is still the registered handle
// (a replacement may have taken the key in the meantime).
func (m *TimerManager) remove(key timerKey, h *timerHandle) {
	m.mu.Lock()
	if cur, ok := m.timers[key]; ok && cur == h {
		delete(m.timers, key)
	}
	m.mu.Unlock()
}

// stopAndDrain stops a timer and drains its channel per the time.Timer.Stop
// contract, preventing goroutine leaks.
func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
