package storage

import (
	"context"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/native"
)

// Turn is one persisted conversation step: the native messages a single
// bridge turn appended for a session, in conversation order.
type Turn struct {
	SessionID string           `json:"session_id"`
	Seq       int              `json:"seq"`
	Messages  []native.Message `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
}

// TurnStore persists session transcripts. Implementations are safe for
// concurrent use and scope access by tenant when one is present in the
// context.
type TurnStore interface {
	// AppendTurn stores the messages as the session's next turn.
	AppendTurn(ctx context.Context, sessionID string, msgs []native.Message) error

	// History returns the session's full transcript in turn order.
	// Returns ErrNotFound when the session has no stored turns.
	History(ctx context.Context, sessionID string) ([]native.Message, error)

	// DeleteSession removes the session's transcript.
	DeleteSession(ctx context.Context, sessionID string) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
