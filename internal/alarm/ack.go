package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/logger"
)

// ErrAcknowledgeActive is returned when an acknowledgment is requested
// while a previous suppression window is still open.
var ErrAcknowledgeActive = errors.New("acknowledgment already in progress")

// Clock abstracts wall time and one-shot timers so coordinator tests
// can drive time without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the stoppable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

// Coordinator runs the global acknowledge sequence: clear the active
// projection, flag the whole history quittanced, drop all rule edge
// state, zero the stored telemetry values after the reset delay, and
// close the suppression window when the full window elapses. While the
// window is open the processor applies raw value updates only.
type Coordinator struct {
	mu          sync.Mutex
	suppressing bool
	deadline    time.Time
	lastClear   time.Time
	resetTimer  Timer
	windowTimer Timer

	clock      Clock
	window     time.Duration
	resetDelay time.Duration

	alarms    repository.AlarmRepository
	addresses repository.AddressRepository
	states    *StateStore
	log       logger.Logger
}

// NewCoordinator wires a coordinator. The reset delay must be shorter
// than the window so telemetry is re-baselined before suppression ends.
func NewCoordinator(clock Clock, window, resetDelay time.Duration, alarms repository.AlarmRepository, addresses repository.AddressRepository, states *StateStore, log logger.Logger) *Coordinator {
	return &Coordinator{
		clock:      clock,
		window:     window,
		resetDelay: resetDelay,
		alarms:     alarms,
		addresses:  addresses,
		states:     states,
		log:        log,
	}
}

// Acknowledge starts the suppression window and performs the global
// reset. A second call while the window is open returns
// ErrAcknowledgeActive and leaves the running window untouched.
func (c *Coordinator) Acknowledge(ctx context.Context) error {
	c.mu.Lock()
	if c.suppressing {
		c.mu.Unlock()
		return ErrAcknowledgeActive
	}
	now := c.clock.Now()
	c.suppressing = true
	c.deadline = now.Add(c.window)
	c.mu.Unlock()

	if err := c.alarms.ClearActive(ctx); err != nil {
		c.abort()
		return fmt.Errorf("failed to clear active alarms: %w", err)
	}
	if err := c.alarms.AcknowledgeAll(ctx, now); err != nil {
		c.abort()
		return fmt.Errorf("failed to acknowledge alarm history: %w", err)
	}
	c.states.ResetAll()

	c.mu.Lock()
	c.lastClear = now
	// Anchor both timers to the acknowledge time, not the arming time,
	// so the window closes at the reported deadline even when the
	// ledger writes above were slow.
	elapsed := c.clock.Now().Sub(now)
	c.resetTimer = c.clock.AfterFunc(c.resetDelay-elapsed, c.resetBaseline)
	c.windowTimer = c.clock.AfterFunc(c.window-elapsed, c.closeWindow)
	c.mu.Unlock()

	c.log.Info("acknowledgment started",
		logger.String("window", c.window.String()),
		logger.String("reset_delay", c.resetDelay.String()))
	return nil
}

// resetBaseline runs when the reset delay elapses: zero the stored
// telemetry values while the window is still open, so evaluation
// resumes against fresh edges. A failed reset is logged; the next
// batch re-baselines organically.
func (c *Coordinator) resetBaseline() {
	ctx, cancel := context.WithTimeout(context.Background(), ackStoreTimeout)
	defer cancel()
	if err := c.addresses.ResetAll(ctx); err != nil {
		c.log.Error("failed to reset telemetry baseline", logger.Error(err))
	}
}

// closeWindow ends the suppression window on schedule.
func (c *Coordinator) closeWindow() {
	c.mu.Lock()
	c.suppressing = false
	c.resetTimer = nil
	c.windowTimer = nil
	c.mu.Unlock()

	c.log.Info("acknowledgment window closed")
}

// abort rolls the coordinator back to idle after a failed acknowledge.
func (c *Coordinator) abort() {
	c.mu.Lock()
	c.suppressing = false
	c.stopTimersLocked()
	c.mu.Unlock()
}

func (c *Coordinator) stopTimersLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	if c.windowTimer != nil {
		c.windowTimer.Stop()
		c.windowTimer = nil
	}
}

// Suppressing reports whether an acknowledgment window is open.
func (c *Coordinator) Suppressing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressing
}

// Deadline returns the end of the current window, zero when idle.
func (c *Coordinator) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.suppressing {
		return time.Time{}
	}
	return c.deadline
}

// LastClearTime returns when the active projection was last cleared by
// an acknowledge, zero if never.
func (c *Coordinator) LastClearTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastClear
}

// Stop cancels any pending timers, for shutdown.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
}
