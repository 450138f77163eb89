package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written to the run log.
const (
	TypeRunCreated   = "run.created"
	TypeRunFailed    = "run.failed"
	TypeHistoryPrior = "run.prior_from_history"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Append writes one event inside tx. A nil tx writes directly to DB.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, runID string, payload Payload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	const q = `INSERT INTO events(ts,type,run_id,payload_json) VALUES (?,?,?,?)`
	args := []any{now().UTC().Format(time.RFC3339), evtType, nullable(runID), string(data)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, args...)
	} else {
		_, err = w.DB.ExecContext(ctx, q, args...)
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
