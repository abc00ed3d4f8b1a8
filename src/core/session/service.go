package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"docchat/src/infrastructure/log"
)

const (
	cacheTTL      = 30 * time.Minute
	cacheSweep    = 10 * time.Minute
	previewLength = 100

	// NoMessagesPreview is the listing sentinel for a session that has no
	// user message yet.
	NoMessagesPreview = "No messages"
)

// Service owns session records. Durable storage is the source of truth; the
// cache is write-through and only updated after a successful Put, so a crash
// between the two is resolved by re-reading storage on the next access.
// All operations on one session identifier are serialized; distinct sessions
// never contend.
type Service struct {
	blobs BlobStore
	cache *gocache.Cache
	now   func() time.Time

	locks      sync.Mutex
	perSession map[string]*sync.Mutex
}

// NewService creates a session service over the given persistence medium.
func NewService(blobs BlobStore) *Service {
	return &Service{
		blobs:      blobs,
		cache:      gocache.New(cacheTTL, cacheSweep),
		now:        func() time.Time { return time.Now().UTC() },
		perSession: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockSession(id string) *sync.Mutex {
	s.locks.Lock()
	defer s.locks.Unlock()
	mu, ok := s.perSession[id]
	if !ok {
		mu = &sync.Mutex{}
		s.perSession[id] = mu
	}
	return mu
}

// Append adds a message to a session, creating the record lazily on first
// use. The full updated record is persisted before the cache sees it.
func (s *Service) Append(ctx context.Context, id string, msg Message) (*Record, error) {
	mu := s.lockSession(id)
	mu.Lock()
	defer mu.Unlock()

	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &Record{
			SessionID: id,
			CreatedAt: s.now(),
		}
	}

	record.Messages = append(record.Messages, msg)
	record.MessageCount = len(record.Messages)
	record.UpdatedAt = s.now()

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal session %s: %w", id, err)
	}
	if err := s.blobs.Put(ctx, id, data); err != nil {
		return nil, fmt.Errorf("%w: save %s: %v", ErrPersistence, id, err)
	}
	s.cache.Set(id, record.clone(), gocache.DefaultExpiration)

	log.Debug("session appended", "session_id", id, "messages", record.MessageCount)
	return record.clone(), nil
}

// Get returns the full session record, serving from cache when possible.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

// load fetches a record from cache or storage; nil means absent.
func (s *Service) load(ctx context.Context, id string) (*Record, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*Record).clone(), nil
	}

	data, err := s.blobs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrPersistence, id, err)
	}
	if data == nil {
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrPersistence, id, err)
	}
	s.cache.Set(id, record.clone(), gocache.DefaultExpiration)
	return &record, nil
}

// Delete removes a session from cache and storage. Idempotent; reports
// whether the session existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	mu := s.lockSession(id)
	mu.Lock()
	defer mu.Unlock()

	s.cache.Delete(id)
	existed, err := s.blobs.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", ErrPersistence, id, err)
	}
	return existed, nil
}

// List returns a summary row per stored session, most recently updated
// first. The preview is the first user message, truncated.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	blobs, err := s.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrPersistence, err)
	}

	summaries := make([]Summary, 0, len(blobs))
	for _, data := range blobs {
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			log.Error(err, "skipping undecodable session record")
			continue
		}
		summaries = append(summaries, Summary{
			SessionID:    record.SessionID,
			CreatedAt:    record.CreatedAt,
			UpdatedAt:    record.UpdatedAt,
			MessageCount: record.MessageCount,
			Preview:      preview(record.Messages),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// ClearAll removes every session from cache and storage.
func (s *Service) ClearAll(ctx context.Context) error {
	// Drop the cache first so a failed storage clear leaves readers
	// repopulating from the still-authoritative blobs.
	s.cache.Flush()
	if err := s.blobs.Clear(ctx); err != nil {
		return fmt.Errorf("%w: clear all: %v", ErrPersistence, err)
	}
	return nil
}

func preview(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) > previewLength {
			return string(runes[:previewLength]) + "..."
		}
		return m.Content
	}
	return NoMessagesPreview
}
