package alarm

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hklweb/alarmd/internal/datastore/entities"
	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/logger"
)

// fakeClock drives coordinator timers deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves the clock and fires due timers outside the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, timer := range c.timers {
		if !timer.stopped && timer.fn != nil && !timer.deadline.After(c.now) {
			due = append(due, timer.fn)
			timer.fn = nil
		}
	}
	c.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

// mockAlarmRepo records coordinator calls. onAck, when set, runs
// during AcknowledgeAll to simulate a slow ledger write.
type mockAlarmRepo struct {
	mu               sync.Mutex
	clearCalls       int
	ackCalls         int
	ackTime          time.Time
	clearErr, ackErr error
	onAck            func()
}

func (m *mockAlarmRepo) ClearActive(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	return m.clearErr
}

func (m *mockAlarmRepo) AcknowledgeAll(_ context.Context, now time.Time) error {
	m.mu.Lock()
	m.ackCalls++
	m.ackTime = now
	err := m.ackErr
	hook := m.onAck
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (m *mockAlarmRepo) RecordTransition(_ context.Context, _ repository.TransitionRecord) error {
	return nil
}
func (m *mockAlarmRepo) ListActive(_ context.Context) ([]entities.ActiveAlarm, error) {
	return nil, nil
}
func (m *mockAlarmRepo) ListHistory(_ context.Context, _, _ int) ([]entities.AlarmRecord, int64, error) {
	return nil, 0, nil
}
func (m *mockAlarmRepo) ListEventLog(_ context.Context, _, _ int) ([]entities.EventLogEntry, int64, error) {
	return nil, 0, nil
}
func (m *mockAlarmRepo) CountByPriority(_ context.Context) (repository.StatusCounts, error) {
	return repository.StatusCounts{}, nil
}

// mockAddressRepo records baseline resets.
type mockAddressRepo struct {
	mu         sync.Mutex
	resetCalls int
	resetErr   error
}

func (m *mockAddressRepo) ResetAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls++
	return m.resetErr
}

func (m *mockAddressRepo) Apply(_ context.Context, _ int, _, _ string) (repository.ChangeResult, error) {
	return repository.ChangeResult{}, nil
}
func (m *mockAddressRepo) Get(_ context.Context, _ int) (*entities.Address, error) {
	return nil, repository.ErrAddressNotFound
}
func (m *mockAddressRepo) List(_ context.Context) ([]entities.Address, error) { return nil, nil }
func (m *mockAddressRepo) Rename(_ context.Context, _ int, _ string) error    { return nil }

func (m *mockAddressRepo) resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCalls
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func newTestCoordinator(clock Clock, alarms *mockAlarmRepo, addresses *mockAddressRepo, states *StateStore) *Coordinator {
	return NewCoordinator(clock, 15*time.Second, 14*time.Second, alarms, addresses, states, testLogger())
}

func TestCoordinator_AcknowledgeRunsFullSequence(t *testing.T) {
	clock := newFakeClock()
	alarms := &mockAlarmRepo{}
	addresses := &mockAddressRepo{}
	states := NewStateStore()
	states.Set(7, true)

	c := newTestCoordinator(clock, alarms, addresses, states)
	require.NoError(t, c.Acknowledge(t.Context()))

	assert.True(t, c.Suppressing())
	assert.Equal(t, clock.Now().Add(15*time.Second), c.Deadline())
	assert.Equal(t, clock.Now(), c.LastClearTime())
	assert.Equal(t, 1, alarms.clearCalls)
	assert.Equal(t, 1, alarms.ackCalls)
	assert.False(t, states.Get(7), "rule edge state must be dropped")
	assert.Equal(t, 0, addresses.resets(), "baseline reset waits for the delay")
}

func TestCoordinator_ResetFiresInsideWindow(t *testing.T) {
	clock := newFakeClock()
	alarms := &mockAlarmRepo{}
	addresses := &mockAddressRepo{}

	c := newTestCoordinator(clock, alarms, addresses, NewStateStore())
	require.NoError(t, c.Acknowledge(t.Context()))

	clock.Advance(13 * time.Second)
	assert.True(t, c.Suppressing())
	assert.Equal(t, 0, addresses.resets())

	clock.Advance(1 * time.Second)
	assert.Equal(t, 1, addresses.resets(), "baseline reset fires at the delay")
	assert.True(t, c.Suppressing(), "window stays open past the reset")

	clock.Advance(1 * time.Second)
	assert.False(t, c.Suppressing())
	assert.True(t, c.Deadline().IsZero())
}

func TestCoordinator_SlowLedgerWritesDoNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	alarms := &mockAlarmRepo{}
	addresses := &mockAddressRepo{}
	// The ledger writes take 2s of wall time before the timers are armed.
	alarms.onAck = func() { clock.Advance(2 * time.Second) }

	c := newTestCoordinator(clock, alarms, addresses, NewStateStore())
	start := clock.Now()
	require.NoError(t, c.Acknowledge(t.Context()))
	assert.Equal(t, start.Add(15*time.Second), c.Deadline())

	clock.Advance(12 * time.Second)
	assert.Equal(t, 1, addresses.resets(), "reset fires 14s after the acknowledge, not after arming")
	assert.True(t, c.Suppressing())

	clock.Advance(1 * time.Second)
	assert.False(t, c.Suppressing(), "window closes at the reported deadline")
}

func TestCoordinator_SecondAcknowledgeRejected(t *testing.T) {
	clock := newFakeClock()
	alarms := &mockAlarmRepo{}
	addresses := &mockAddressRepo{}

	c := newTestCoordinator(clock, alarms, addresses, NewStateStore())
	require.NoError(t, c.Acknowledge(t.Context()))
	deadline := c.Deadline()

	clock.Advance(5 * time.Second)
	err := c.Acknowledge(t.Context())
	require.ErrorIs(t, err, ErrAcknowledgeActive)
	assert.Equal(t, deadline, c.Deadline(), "rejected acknowledge must not move the deadline")
	assert.Equal(t, 1, alarms.clearCalls)
}

func TestCoordinator_AcknowledgeAgainAfterWindowCloses(t *testing.T) {
	clock := newFakeClock()
	alarms := &mockAlarmRepo{}
	addresses := &mockAddressRepo{}

	c := newTestCoordinator(clock, alarms, addresses, NewStateStore())
	require.NoError(t, c.Acknowledge(t.Context()))
	clock.Advance(15 * time.Second)
	require.False(t, c.Suppressing())

	require.NoError(t, c.Acknowledge(t.Context()))
	assert.Equal(t, 2, alarms.ackCalls)
}

func TestCoordinator_StoreFailureRevertsToIdle(t *testing.T) {
	clock := newFakeClock()
	alarms := &mockAlarmRepo{clearErr: errors.New("disk full")}
	addresses := &mockAddressRepo{}

	c := newTestCoordinator(clock, alarms, addresses, NewStateStore())
	err := c.Acknowledge(t.Context())
	require.Error(t, err)
	assert.False(t, c.Suppressing())
	assert.True(t, c.LastClearTime().IsZero())

	clock.Advance(20 * time.Second)
	assert.Equal(t, 0, addresses.resets(), "no reset timer after a failed acknowledge")
}

func TestCoordinator_FailedResetStillClosesWindow(t *testing.T) {
	clock := newFakeClock()
	alarms := &mockAlarmRepo{}
	addresses := &mockAddressRepo{resetErr: errors.New("locked")}

	c := newTestCoordinator(clock, alarms, addresses, NewStateStore())
	require.NoError(t, c.Acknowledge(t.Context()))

	clock.Advance(14 * time.Second)
	assert.Equal(t, 1, addresses.resets())
	assert.True(t, c.Suppressing())

	clock.Advance(1 * time.Second)
	assert.False(t, c.Suppressing())
}
