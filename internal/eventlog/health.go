package eventlog

import (
	"fmt"
	"path/filepath"
	"time"
)

// HealthLevel classifies a HealthEvent's severity.
type HealthLevel string

const (
	HealthInfo     HealthLevel = "INFO"
	HealthWarn     HealthLevel = "WARN"
	HealthCritical HealthLevel = "CRITICAL"
)

// HealthEvent is the message-channel payload a stream emits for
// operationally significant moments (terminal commits, single-emission
// guard violations, best-effort side-path failures). The state machine
// holds only the sender side; the engine owns the receiver and fans
// events out to the websocket hub, the Postgres mirror, and zerolog.
type HealthEvent struct {
	StreamID    string                 `json:"stream_id"`
	TradingDate string                 `json:"trading_date"`
	Level       HealthLevel            `json:"level"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	AtUTC       time.Time              `json:"at_utc"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// HealthPath builds the per-stream health log path from spec §6:
// logs/health/{YYYY-MM-DD}_{INSTRUMENT}_{STREAM}.jsonl.
func (p Paths) HealthPath(tradingDate time.Time, instrument, streamID string) string {
	return filepath.Join("logs", "health", fmt.Sprintf("%s_%s_%s.jsonl", tradingDate.Format("2006-01-02"), instrument, streamID))
}

// HealthPersister appends HealthEvents to the per-stream health log.
type HealthPersister struct {
	paths Paths
}

// NewHealthPersister builds a HealthPersister. paths.Root is unused here
// since health log paths are always rooted at "logs/health" per spec §6.
func NewHealthPersister(paths Paths) *HealthPersister {
	return &HealthPersister{paths: paths}
}

func (p *HealthPersister) Persist(tradingDate time.Time, instrument string, ev HealthEvent) error {
	if err := Open(p.paths.HealthPath(tradingDate, instrument, ev.StreamID)).Append(ev); err != nil {
		return fmt.Errorf("eventlog: persist health event: %w", err)
	}
	return nil
}
