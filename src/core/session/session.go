package session

import (
	"context"
	"errors"
	"time"
)

// Message roles. A session history only ever holds these two.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNotFound means the session does not exist. It is an expected
	// outcome, not a systemic fault.
	ErrNotFound = errors.New("session: not found")
	// ErrPersistence wraps failures of the backing store. Callers may keep
	// an already-generated response even when they see it.
	ErrPersistence = errors.New("session: persistence failed")
)

// Message is a single turn of a conversation. Immutable once appended.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is the durable form of a session. CreatedAt is set on first save
// and never changes; UpdatedAt moves on every append. MessageCount is stored
// redundantly so listings do not need the full message payload.
type Record struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Messages     []Message `json:"messages"`
	MessageCount int       `json:"message_count"`
}

// Summary is the listing row for a session.
type Summary struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// BlobStore is the byte-oriented persistence medium a session service writes
// through: local files, an object store, or a database row per session.
// Put must be atomic from a reader's point of view. Get returns (nil, nil)
// when the key is absent.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([][]byte, error)
	Clear(ctx context.Context) error
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Messages = make([]Message, len(r.Messages))
	copy(out.Messages, r.Messages)
	return &out
}
