package alarm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/logger"
	"github.com/hklweb/alarmd/internal/observability"
)

// Publisher is the outbound MQTT surface the status loop needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// StatusPublisher periodically rolls the active projection up into
// priority counts and publishes them as JSON on the status topic.
type StatusPublisher struct {
	alarms    repository.AlarmRepository
	publisher Publisher
	topic     string
	interval  time.Duration
	metrics   *observability.Metrics
	log       logger.Logger
}

// NewStatusPublisher wires a status loop. It does not start it; call
// Run on its own goroutine.
func NewStatusPublisher(alarms repository.AlarmRepository, publisher Publisher, topic string, interval time.Duration, metrics *observability.Metrics, log logger.Logger) *StatusPublisher {
	return &StatusPublisher{
		alarms:    alarms,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		metrics:   metrics,
		log:       log,
	}
}

// Run publishes until the context is cancelled. A failed cycle is
// logged and the loop keeps going; the next tick retries.
func (s *StatusPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.publishOnce(ctx); err != nil {
				s.metrics.StatusPublishes.WithLabelValues(observability.ResultError).Inc()
				s.log.Error("status publish failed", logger.Error(err))
				continue
			}
			s.metrics.StatusPublishes.WithLabelValues(observability.ResultOK).Inc()
		}
	}
}

func (s *StatusPublisher) publishOnce(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, statusPublishTimeout)
	defer cancel()

	counts, err := s.alarms.CountByPriority(cctx)
	if err != nil {
		return fmt.Errorf("failed to count active alarms: %w", err)
	}
	payload, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal status counts: %w", err)
	}
	if err := s.publisher.Publish(cctx, s.topic, payload); err != nil {
		return fmt.Errorf("failed to publish status to %s: %w", s.topic, err)
	}
	return nil
}
