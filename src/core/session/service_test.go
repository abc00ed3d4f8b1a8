package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"docchat/src/core/session"
)

// memBlobs is an in-memory session.BlobStore.
type memBlobs struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  bool
	fails int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		m.fails++
		return errors.New("disk full")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[key] = cp
	return nil
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (m *memBlobs) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

func (m *memBlobs) List(_ context.Context) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, 0, len(m.data))
	for _, d := range m.data {
		out = append(out, d)
	}
	return out, nil
}

func (m *memBlobs) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func TestAppendCreatesAndGrowsSession(t *testing.T) {
	ctx := context.Background()
	svc := session.NewService(newMemBlobs())

	first, err := svc.Append(ctx, "s1", session.Message{Role: session.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt not set on first append")
	}

	second, err := svc.Append(ctx, "s1", session.Message{Role: session.RoleAssistant, Content: "hi there"})
	if err != nil {
		t.Fatalf("second Append: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed across appends: %v then %v", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v then %v", first.UpdatedAt, second.UpdatedAt)
	}

	record, err := svc.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.MessageCount != 2 || len(record.Messages) != 2 {
		t.Fatalf("record has %d messages (count %d), want 2", len(record.Messages), record.MessageCount)
	}
	if record.Messages[0].Content != "hello" || record.Messages[1].Content != "hi there" {
		t.Errorf("messages out of order: %+v", record.Messages)
	}
}

func TestGetMissingSession(t *testing.T) {
	svc := session.NewService(newMemBlobs())
	_, err := svc.Get(context.Background(), "nope")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestGetSurvivesCacheLoss(t *testing.T) {
	// A second service over the same blobs simulates a restart: the
	// record must come back from durable storage.
	ctx := context.Background()
	blobs := newMemBlobs()

	svc := session.NewService(blobs)
	if _, err := svc.Append(ctx, "s1", session.Message{Role: session.RoleUser, Content: "persist me"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	restarted := session.NewService(blobs)
	record, err := restarted.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if len(record.Messages) != 1 || record.Messages[0].Content != "persist me" {
		t.Errorf("restarted record = %+v", record)
	}
}

func TestAppendPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	blobs.fail = true

	svc := session.NewService(blobs)
	_, err := svc.Append(ctx, "s1", session.Message{Role: session.RoleUser, Content: "x"})
	if !errors.Is(err, session.ErrPersistence) {
		t.Fatalf("Append with failing store = %v, want ErrPersistence", err)
	}

	// The failed write must not be visible through the cache afterwards.
	blobs.fail = false
	if _, err := svc.Get(ctx, "s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get after failed append = %v, want ErrNotFound", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := session.NewService(newMemBlobs())

	if _, err := svc.Append(ctx, "s1", session.Message{Role: session.RoleUser, Content: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	existed, err := svc.Delete(ctx, "s1")
	if err != nil || !existed {
		t.Fatalf("Delete(existing) = (%v, %v), want (true, nil)", existed, err)
	}
	existed, err = svc.Delete(ctx, "s1")
	if err != nil || existed {
		t.Fatalf("Delete(gone) = (%v, %v), want (false, nil)", existed, err)
	}
	if _, err := svc.Get(ctx, "s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestListSummaries(t *testing.T) {
	ctx := context.Background()
	svc := session.NewService(newMemBlobs())

	long := strings.Repeat("q", 150)
	if _, err := svc.Append(ctx, "older", session.Message{Role: session.RoleUser, Content: long}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := svc.Append(ctx, "newer", session.Message{Role: session.RoleAssistant, Content: "assistant only"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	summaries, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("List = %d summaries, want 2", len(summaries))
	}

	// Sorted by UpdatedAt descending.
	if summaries[0].SessionID != "newer" {
		t.Errorf("first summary = %s, want newer", summaries[0].SessionID)
	}

	byID := map[string]session.Summary{}
	for _, s := range summaries {
		byID[s.SessionID] = s
	}
	if got := byID["older"].Preview; got != strings.Repeat("q", 100)+"..." {
		t.Errorf("long preview = %q, want 100 chars plus ellipsis", got)
	}
	if got := byID["newer"].Preview; got != session.NoMessagesPreview {
		t.Errorf("preview without user message = %q, want %q", got, session.NoMessagesPreview)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	svc := session.NewService(newMemBlobs())

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		if _, err := svc.Append(ctx, id, session.Message{Role: session.RoleUser, Content: id}); err != nil {
			t.Fatalf("Append %s: %v", id, err)
		}
	}

	if err := svc.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	summaries, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("List after ClearAll = %d summaries, want 0", len(summaries))
	}
	if _, err := svc.Get(ctx, "s0"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get after ClearAll = %v, want ErrNotFound", err)
	}
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	ctx := context.Background()
	svc := session.NewService(newMemBlobs())

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := session.Message{Role: session.RoleUser, Content: fmt.Sprintf("message-%d", i)}
			if _, err := svc.Append(ctx, "shared", msg); err != nil {
				t.Errorf("Append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	record, err := svc.Get(ctx, "shared")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.MessageCount != n {
		t.Fatalf("MessageCount = %d, want %d", record.MessageCount, n)
	}

	seen := map[string]bool{}
	for _, m := range record.Messages {
		seen[m.Content] = true
	}
	for i := 0; i < n; i++ {
		if !seen[fmt.Sprintf("message-%d", i)] {
			t.Errorf("message-%d lost", i)
		}
	}
}
