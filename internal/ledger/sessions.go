package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"invoice-reconciler/internal/core"

	"github.com/jackc/pgx/v5"
)

// SaveSession snapshots a validation session. The snapshot holds no derived
// ledger figures beyond what ValidationState itself serializes; totals are
// always re-read from the invoice on resume.
func (s *Store) SaveSession(ctx context.Context, state *core.ValidationState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", state.SessionID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO validation_sessions (id, draft_id, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET draft_id = $2, state = $3, updated_at = $4
	`, state.SessionID, state.DraftID, payload, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}

// LoadSession restores a snapshotted session.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*core.ValidationState, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		"SELECT state FROM validation_sessions WHERE id = $1", sessionID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var state core.ValidationState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return &state, nil
}

// DeleteSession discards a snapshot. Mutations already committed to the
// ledger are not rolled back; partial application stays visible.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM validation_sessions WHERE id = $1", sessionID,
	); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}
