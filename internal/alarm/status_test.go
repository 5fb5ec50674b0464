package alarm

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/observability"
)

type capturePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	topics   []string
}

func (c *capturePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestStatusPublisher_PublishesCounts(t *testing.T) {
	db := setupTestDB(t)
	seedAddress(t, db, 100, "0")
	seedValueRule(t, db, 100, "5", "failure", "")
	seedBitRule(t, db, 100, 0, "on", "off")

	p, _ := newTestProcessor(t, db, nil)
	require.NoError(t, p.ProcessBatch(t.Context(), []Update{{Address: 100, Value: "5"}}))

	pub := &capturePublisher{}
	s := NewStatusPublisher(repository.NewAlarmRepository(db), pub, "modbus/alarm/status",
		10*time.Millisecond, observability.NewMetrics(), testLogger())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return pub.count() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "modbus/alarm/status", pub.topics[0])

	var counts map[string]int
	require.NoError(t, json.Unmarshal(pub.payloads[0], &counts))
	// Value rule fired (prio1) and bit 0 of 5 fired (warnung).
	assert.Equal(t, 2, counts["totalActive"])
	assert.Equal(t, 1, counts["prio1"])
	assert.Equal(t, 1, counts["warnung"])
	assert.Equal(t, 0, counts["prio2"])
}
