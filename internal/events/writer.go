package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Mission lifecycle event types. The ledger appends one per transition;
// notification layers (webhooks, log tail) subscribe to the table rather
// than being called by the ledger directly.
const (
	TypeMissionCreated        = "mission.created"
	TypeMissionAccepted       = "mission.accepted"
	TypeMissionProofSubmitted = "mission.proof_submitted"
	TypeMissionApproved       = "mission.approved"
	TypeMissionCancelled      = "mission.cancelled"
	TypeMissionDisputed       = "mission.disputed"
	TypeSettlementFailed      = "mission.settlement_failed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, missionID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,mission_id,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, nullable(missionID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
