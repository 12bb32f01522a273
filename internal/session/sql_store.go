package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// SQLStore keeps sessions in the conversation_sessions table. Rows older
// than ttl are treated as absent.
type SQLStore struct {
	db      storage.DB
	ttl     time.Duration
	timeout time.Duration
}

// NewSQLStore creates a SQL-backed session store.
func NewSQLStore(db storage.DB, ttl, timeout time.Duration) *SQLStore {
	return &SQLStore{db: db, ttl: ttl, timeout: timeout}
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, userID string) (*State, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var (
		state   = &State{UserID: userID}
		rawCtx  string
		rawStep string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT step, context, updated_at FROM conversation_sessions WHERE user_id = $1`, userID,
	).Scan(&rawStep, &rawCtx, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Persistence("load session", err)
	}
	if s.ttl > 0 && time.Since(state.UpdatedAt) > s.ttl {
		return nil, nil
	}

	state.Step = Step(rawStep)
	if err := json.Unmarshal([]byte(rawCtx), &state.Context); err != nil {
		return nil, domain.Persistence("decode session", err)
	}
	return state, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, state *State) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state.Context)
	if err != nil {
		return domain.Persistence("encode session", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (user_id, step, context, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			step = excluded.step,
			context = excluded.context,
			updated_at = excluded.updated_at
	`, state.UserID, string(state.Step), string(raw), state.UpdatedAt)
	if err != nil {
		return domain.Persistence("save session", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, userID string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE user_id = $1`, userID); err != nil {
		return domain.Persistence("delete session", err)
	}
	return nil
}
