package alarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/logger"
	"github.com/hklweb/alarmd/internal/observability"
)

// Update is one element of a telemetry batch. Value arrives as a JSON
// number or string and is normalized to its literal string form.
type Update struct {
	Address int
	Value   string
	Topic   string
}

// updateWire is the raw JSON shape. Value stays a json.Number so "5"
// never turns into "5e+00" on the way through.
type updateWire struct {
	Address *int        `json:"address"`
	Value   interface{} `json:"value"`
	Topic   string      `json:"topic"`
}

// Processor consumes telemetry batches: change detection against the
// stored baseline, rule evaluation, and ledger writes, all inside one
// transaction per batch. The batch is the integrity boundary; a failed
// batch rolls back completely, including the in-memory edge state.
type Processor struct {
	db          *gorm.DB
	evaluator   *Evaluator
	states      *StateStore
	coordinator *Coordinator
	metrics     *observability.Metrics
	log         logger.Logger
}

// NewProcessor wires a processor over the shared database handle.
func NewProcessor(db *gorm.DB, evaluator *Evaluator, states *StateStore, coordinator *Coordinator, metrics *observability.Metrics, log logger.Logger) *Processor {
	return &Processor{
		db:          db,
		evaluator:   evaluator,
		states:      states,
		coordinator: coordinator,
		metrics:     metrics,
		log:         log,
	}
}

// HandleMessage is the MQTT ingest entry point. A payload that is not
// a JSON array is dropped with a log line; the subscription stays up.
func (p *Processor) HandleMessage(ctx context.Context, payload []byte) {
	updates, skipped, err := ParseBatch(payload)
	if err != nil {
		p.metrics.BatchesTotal.WithLabelValues(observability.ResultError).Inc()
		p.log.Warn("dropping malformed telemetry batch", logger.Error(err))
		return
	}
	if skipped > 0 {
		p.metrics.MalformedUpdates.Add(float64(skipped))
		p.log.Warn("skipped malformed batch elements", logger.Int("count", skipped))
	}
	if len(updates) == 0 {
		return
	}

	if err := p.ProcessBatch(ctx, updates); err != nil {
		p.metrics.BatchesTotal.WithLabelValues(observability.ResultError).Inc()
		p.log.Error("telemetry batch failed", logger.Error(err), logger.Int("updates", len(updates)))
		return
	}
	p.metrics.BatchesTotal.WithLabelValues(observability.ResultOK).Inc()
}

// ParseBatch decodes a JSON array of telemetry updates. Elements
// missing an address or carrying a non-scalar value are counted and
// skipped; the rest of the batch survives.
func ParseBatch(payload []byte) ([]Update, int, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw []updateWire
	if err := dec.Decode(&raw); err != nil {
		return nil, 0, fmt.Errorf("failed to decode telemetry batch: %w", err)
	}

	updates := make([]Update, 0, len(raw))
	skipped := 0
	for _, w := range raw {
		value, ok := normalizeValue(w.Value)
		if w.Address == nil || !ok {
			skipped++
			continue
		}
		updates = append(updates, Update{Address: *w.Address, Value: value, Topic: w.Topic})
	}
	return updates, skipped, nil
}

// normalizeValue flattens a decoded scalar to its string form. Numbers
// keep their literal representation, booleans become "true"/"false".
func normalizeValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case json.Number:
		return t.String(), true
	case string:
		return t, true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// ProcessBatch applies one batch of updates in array order. While an
// acknowledgment window is open only the raw values are stored, so the
// post-reset baseline stays current without producing alarms.
func (p *Processor) ProcessBatch(ctx context.Context, updates []Update) error {
	start := time.Now()
	defer func() {
		p.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	if p.coordinator != nil && p.coordinator.Suppressing() {
		return p.applyValuesOnly(ctx, updates)
	}

	snapshot := p.states.Snapshot()
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		addresses := repository.NewAddressRepository(tx)
		rules := repository.NewRuleRepository(tx)
		alarms := repository.NewAlarmRepository(tx)

		for _, u := range updates {
			if err := p.processUpdate(ctx, u, addresses, rules, alarms); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.states.Restore(snapshot)
		return err
	}
	return nil
}

// processUpdate handles a single address inside the batch transaction.
func (p *Processor) processUpdate(ctx context.Context, u Update, addresses repository.AddressRepository, rules repository.RuleRepository, alarms repository.AlarmRepository) error {
	change, err := addresses.Apply(ctx, u.Address, u.Value, u.Topic)
	if err != nil {
		return fmt.Errorf("failed to apply update for address %d: %w", u.Address, err)
	}
	p.metrics.UpdatesTotal.Inc()

	// A first-seen address establishes the baseline without alarming;
	// an unchanged value is a no-op.
	if change.IsNew || !change.Changed {
		return nil
	}

	addrRules, err := rules.ListByAddress(ctx, u.Address)
	if err != nil {
		return fmt.Errorf("failed to load rules for address %d: %w", u.Address, err)
	}
	if len(addrRules) == 0 {
		return nil
	}

	now := time.Now()
	for _, t := range p.evaluator.Evaluate(addrRules, u.Value, p.states) {
		p.states.Set(t.Rule.ID, t.Fulfilled)
		if !t.Record {
			continue
		}
		record := repository.TransitionRecord{
			RuleID:    t.Rule.ID,
			Address:   u.Address,
			Value:     u.Value,
			Text:      t.Text,
			Priority:  t.Rule.Priority,
			Fulfilled: t.Fulfilled,
			Timestamp: now,
		}
		if err := alarms.RecordTransition(ctx, record); err != nil {
			return fmt.Errorf("failed to record transition for rule %d: %w", t.Rule.ID, err)
		}
		direction := observability.DirectionUnfulfilled
		if t.Fulfilled {
			direction = observability.DirectionFulfilled
		}
		p.metrics.TransitionsTotal.WithLabelValues(direction).Inc()
		p.log.Debug("rule transition",
			logger.Int("address", u.Address),
			logger.Uint64("rule_id", uint64(t.Rule.ID)),
			logger.Bool("fulfilled", t.Fulfilled),
			logger.String("value", u.Value))
	}
	return nil
}

// applyValuesOnly stores raw values during the suppression window.
// Evaluation, edge state, and the ledger stay untouched.
func (p *Processor) applyValuesOnly(ctx context.Context, updates []Update) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		addresses := repository.NewAddressRepository(tx)
		for _, u := range updates {
			if _, err := addresses.Apply(ctx, u.Address, u.Value, u.Topic); err != nil {
				return fmt.Errorf("failed to apply update for address %d: %w", u.Address, err)
			}
			p.metrics.UpdatesTotal.Inc()
		}
		return nil
	})
}
