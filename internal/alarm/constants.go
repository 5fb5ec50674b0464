// Package alarm implements the rule evaluation and notification engine:
// edge-triggered transition detection over incoming telemetry, the
// per-batch ingestion transaction, the global acknowledge cycle, and
// the periodic status roll-up.
package alarm

import "time"

const (
	// statusPublishTimeout bounds the active-projection count query
	// behind each status publication.
	statusPublishTimeout = 3 * time.Second
	// ackStoreTimeout bounds the ledger writes inside an acknowledge.
	ackStoreTimeout = 5 * time.Second
)
