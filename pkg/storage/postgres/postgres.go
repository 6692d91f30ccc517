// Package postgres provides a PostgreSQL implementation of
// storage.TurnStore. It uses pgx/v5 for connection pooling and JSONB for
// transcript storage, so session history survives process restarts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bruecke-dev/bruecke/pkg/native"
	"github.com/bruecke-dev/bruecke/pkg/storage"
)

// Store is a PostgreSQL-backed TurnStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.TurnStore at compile time.
var _ storage.TurnStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// AppendTurn stores the messages as the session's next turn. The
// sequence number is assigned inside the insert so concurrent appends
// for one session collide on the primary key instead of interleaving.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, msgs []native.Message) error {
	tenantID := storage.GetTenant(ctx)

	messagesJSON, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO turns (session_id, tenant_id, seq, messages)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3
		FROM turns WHERE session_id = $1 AND tenant_id = $2
	`, sessionID, tenantID, messagesJSON)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting turn: %w", err)
	}

	return nil
}

// History returns the session's full transcript in turn order.
func (s *Store) History(ctx context.Context, sessionID string) ([]native.Message, error) {
	tenantID := storage.GetTenant(ctx)

	rows, err := s.pool.Query(ctx, `
		SELECT messages FROM turns
		WHERE session_id = $1 AND tenant_id = $2
		ORDER BY seq
	`, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var msgs []native.Message
	var found bool
	for rows.Next() {
		found = true
		var messagesJSON []byte
		if err := rows.Scan(&messagesJSON); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		var turnMsgs []native.Message
		if err := json.Unmarshal(messagesJSON, &turnMsgs); err != nil {
			return nil, fmt.Errorf("unmarshaling messages: %w", err)
		}
		msgs = append(msgs, turnMsgs...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}

	if !found {
		return nil, storage.ErrNotFound
	}
	return msgs, nil
}

// DeleteSession removes the session's transcript.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tenantID := storage.GetTenant(ctx)

	result, err := s.pool.Exec(ctx,
		"DELETE FROM turns WHERE session_id = $1 AND tenant_id = $2",
		sessionID, tenantID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
