// Package postgres implements the best-effort Postgres audit mirror
// (spec §6): append-only copies of committed journal snapshots and
// execution-journal entries, queried for cross-day analytics outside the
// authoritative jsonl/file logs.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/orbstream/internal/persistence"
)

// mirrorRepo implements persistence.MirrorRepo for PostgreSQL.
type mirrorRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMirrorRepo creates a new PostgreSQL-backed mirror repository.
func NewMirrorRepo(db *sqlx.DB, timeout time.Duration) persistence.MirrorRepo {
	return &mirrorRepo{db: db, timeout: timeout}
}

func (r *mirrorRepo) MirrorJournal(ctx context.Context, snap persistence.JournalSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fieldsJSON, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("marshal journal fields: %w", err)
	}

	query := `
		INSERT INTO stream_journals
			(trading_date, stream_id, slot_instance_key, last_state, slot_status,
			 terminal_state, terminal_reason, committed, last_update_utc, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		snap.TradingDate, snap.StreamID, snap.SlotInstanceKey, snap.LastState, snap.SlotStatus,
		snap.TerminalState, snap.TerminalReason, snap.Committed, snap.LastUpdateUTC, fieldsJSON).
		Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate journal mirror row: %w", err)
		}
		return fmt.Errorf("insert journal mirror: %w", err)
	}
	return nil
}

func (r *mirrorRepo) MirrorExecutionEvent(ctx context.Context, ev persistence.ExecutionEventMirror) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO execution_events
			(intent_id, trading_date, stream_id, direction, quantity, submitted, broker_order_id, at_utc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		ev.IntentID, ev.TradingDate, ev.StreamID, ev.Direction, ev.Quantity, ev.Submitted, ev.BrokerOrderID, ev.AtUTC).
		Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert execution event mirror: %w", err)
	}
	return nil
}

func (r *mirrorRepo) JournalsByStream(ctx context.Context, streamID string, tr persistence.TimeRange, limit int) ([]persistence.JournalSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, trading_date, stream_id, slot_instance_key, last_state, slot_status,
		       terminal_state, terminal_reason, committed, last_update_utc, fields, created_at
		FROM stream_journals
		WHERE stream_id = $1 AND last_update_utc >= $2 AND last_update_utc <= $3
		ORDER BY last_update_utc DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, streamID, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal mirrors: %w", err)
	}
	defer rows.Close()

	var out []persistence.JournalSnapshot
	for rows.Next() {
		var snap persistence.JournalSnapshot
		var fieldsJSON []byte
		if err := rows.Scan(&snap.ID, &snap.TradingDate, &snap.StreamID, &snap.SlotInstanceKey,
			&snap.LastState, &snap.SlotStatus, &snap.TerminalState, &snap.TerminalReason,
			&snap.Committed, &snap.LastUpdateUTC, &fieldsJSON, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal mirror row: %w", err)
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &snap.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal journal mirror fields: %w", err)
			}
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal mirror rows: %w", err)
	}
	return out, nil
}

func (r *mirrorRepo) ExecutionEventsByStream(ctx context.Context, streamID string, tr persistence.TimeRange, limit int) ([]persistence.ExecutionEventMirror, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, intent_id, trading_date, stream_id, direction, quantity, submitted, broker_order_id, at_utc, created_at
		FROM execution_events
		WHERE stream_id = $1 AND at_utc >= $2 AND at_utc <= $3
		ORDER BY at_utc DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, streamID, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("query execution event mirrors: %w", err)
	}
	defer rows.Close()

	var out []persistence.ExecutionEventMirror
	for rows.Next() {
		var ev persistence.ExecutionEventMirror
		if err := rows.Scan(&ev.ID, &ev.IntentID, &ev.TradingDate, &ev.StreamID, &ev.Direction,
			&ev.Quantity, &ev.Submitted, &ev.BrokerOrderID, &ev.AtUTC, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution event mirror row: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution event mirror rows: %w", err)
	}
	return out, nil
}

// Health pings the database and reports connection pool stats.
func Health(ctx context.Context, db *sqlx.DB) persistence.HealthCheck {
	start := time.Now()
	check := persistence.HealthCheck{
		ConnectionPool: map[string]int{},
		LastCheck:      start,
	}
	if err := db.PingContext(ctx); err != nil {
		if err == sql.ErrConnDone {
			check.Errors = append(check.Errors, "connection closed")
		} else {
			check.Errors = append(check.Errors, err.Error())
		}
	} else {
		check.Healthy = true
	}
	stats := db.Stats()
	check.ConnectionPool["open"] = stats.OpenConnections
	check.ConnectionPool["in_use"] = stats.InUse
	check.ConnectionPool["idle"] = stats.Idle
	check.ResponseTimeMS = time.Since(start).Milliseconds()
	return check
}
