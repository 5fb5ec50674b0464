// Package fanout pushes periodic alarm snapshots to long-lived
// subscribers. Delivery is best-effort per subscriber: a slow consumer
// drops frames, it never blocks the loop or its peers.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hklweb/alarmd/internal/datastore/entities"
	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/logger"
	"github.com/hklweb/alarmd/internal/observability"
)

const (
	// subscriberBufferSize is the per-subscriber channel capacity.
	// Frames are dropped when the buffer is full.
	subscriberBufferSize = 4
)

// Snapshot is one frame of the push stream: the full current state,
// not a delta, so late joiners and frame drops need no recovery logic.
type Snapshot struct {
	CurrentAlarms []entities.ActiveAlarm `json:"currentAlarms"`
	AllAlarms     []entities.AlarmRecord `json:"allAlarms"`
	Suppressing   bool                   `json:"quittierungActive"`
	Timestamp     time.Time              `json:"timestamp"`
}

// SuppressionSource reports whether an acknowledgment window is open.
type SuppressionSource interface {
	Suppressing() bool
}

type subscriber struct {
	ch     chan Snapshot
	cancel context.CancelFunc
}

// Broadcaster builds snapshots from the ledger on a fixed interval and
// fans them out to every subscriber.
type Broadcaster struct {
	alarms      repository.AlarmRepository
	suppression SuppressionSource
	interval    time.Duration
	historyCap  int
	metrics     *observability.Metrics
	log         logger.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

// NewBroadcaster wires a broadcaster. historyCap bounds the AllAlarms
// slice per frame (newest first); the full history stays queryable
// over the REST surface.
func NewBroadcaster(alarms repository.AlarmRepository, suppression SuppressionSource, interval time.Duration, historyCap int, metrics *observability.Metrics, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		alarms:      alarms,
		suppression: suppression,
		interval:    interval,
		historyCap:  historyCap,
		metrics:     metrics,
		log:         log,
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a consumer. The returned context is cancelled
// when the subscription ends; callers must call Unsubscribe with the
// returned id when done.
func (b *Broadcaster) Subscribe(parent context.Context) (string, <-chan Snapshot, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.New().String()
	sub := &subscriber{
		ch:     make(chan Snapshot, subscriberBufferSize),
		cancel: cancel,
	}

	b.mu.Lock()
	b.subscribers[id] = sub
	count := len(b.subscribers)
	b.mu.Unlock()

	b.metrics.StreamClients.Set(float64(count))
	b.log.Debug("stream subscriber connected", logger.String("client_id", id), logger.Int("subscribers", count))
	return id, sub.ch, ctx
}

// Unsubscribe removes a consumer and cancels its context. Safe to call
// for an unknown or already removed id.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	count := len(b.subscribers)
	b.mu.Unlock()

	if !ok {
		return
	}
	sub.cancel()
	b.metrics.StreamClients.Set(float64(count))
	b.log.Debug("stream subscriber disconnected", logger.String("client_id", id), logger.Int("subscribers", count))
}

// Run builds and pushes frames until the context is cancelled. Ledger
// read errors skip the frame; subscribers keep their last one.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case <-ticker.C:
			snapshot, err := b.BuildSnapshot(ctx)
			if err != nil {
				b.log.Error("failed to build snapshot frame", logger.Error(err))
				continue
			}
			b.push(snapshot)
		}
	}
}

// BuildSnapshot assembles one frame from the ledger.
func (b *Broadcaster) BuildSnapshot(ctx context.Context) (Snapshot, error) {
	active, err := b.alarms.ListActive(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	history, _, err := b.alarms.ListHistory(ctx, b.historyCap, 0)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		CurrentAlarms: active,
		AllAlarms:     history,
		Suppressing:   b.suppression.Suppressing(),
		Timestamp:     time.Now(),
	}, nil
}

// push delivers a frame to every subscriber without blocking.
func (b *Broadcaster) push(snapshot Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- snapshot:
		default:
			b.metrics.DroppedFrames.Inc()
		}
	}
}

// closeAll cancels every subscription on shutdown.
func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		sub.cancel()
		delete(b.subscribers, id)
	}
	b.metrics.StreamClients.Set(0)
}
