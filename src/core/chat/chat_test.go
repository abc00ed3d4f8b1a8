package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"docchat/src/core/chat"
	"docchat/src/core/chunk"
	"docchat/src/core/index"
	"docchat/src/core/session"
)

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	for i, r := range text {
		v[i%8] += float32(r%7) + 1
	}
	return v, nil
}

// echoGenerator returns the prompt it was given, so tests can inspect
// prompt assembly.
type echoGenerator struct {
	err error
}

func (g *echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return prompt, nil
}

type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func newMemBlobs() *memBlobs { return &memBlobs{data: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store offline")
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
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

func newChatService(t *testing.T, blobs *memBlobs, gen chat.Generator, opts ...chat.Option) (*chat.Service, *index.Index) {
	t.Helper()
	idx := index.NewIndex()
	sessions := session.NewService(blobs)
	return chat.NewService(idx, hashEmbedder{}, sessions, gen, opts...), idx
}

func TestRespondMintsSessionID(t *testing.T) {
	svc, _ := newChatService(t, newMemBlobs(), &echoGenerator{})

	answer, err := svc.Respond(context.Background(), chat.Ask{Query: "hello"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer.SessionID == "" {
		t.Error("Respond did not mint a session id")
	}
	if answer.PersistErr != nil {
		t.Errorf("unexpected persistence error: %v", answer.PersistErr)
	}
}

func TestRespondRejectsEmptyQuery(t *testing.T) {
	svc, _ := newChatService(t, newMemBlobs(), &echoGenerator{})
	if _, err := svc.Respond(context.Background(), chat.Ask{}); err == nil {
		t.Error("Respond with empty query should fail")
	}
}

func TestRespondPureChatPrompt(t *testing.T) {
	svc, _ := newChatService(t, newMemBlobs(), &echoGenerator{})

	answer, err := svc.Respond(context.Background(), chat.Ask{Query: "what is Go?", UseRetrieval: false})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(answer.Text, "No specific documents have been uploaded") {
		t.Errorf("pure chat prompt missing general preamble:\n%s", answer.Text)
	}
	if strings.Contains(answer.Text, "Context from documents:") {
		t.Error("pure chat prompt must not carry a context section")
	}
	if !strings.Contains(answer.Text, chat.NoHistoryMarker) {
		t.Error("fresh session prompt missing the no-history marker")
	}
	if !strings.Contains(answer.Text, "User question: what is Go?") {
		t.Error("prompt missing the user question")
	}
}

func TestRespondCarriesHistoryAcrossTurns(t *testing.T) {
	ctx := context.Background()
	svc, _ := newChatService(t, newMemBlobs(), &echoGenerator{})

	first, err := svc.Respond(ctx, chat.Ask{Query: "remember the number 41"})
	if err != nil {
		t.Fatalf("first Respond: %v", err)
	}

	second, err := svc.Respond(ctx, chat.Ask{Query: "what number?", SessionID: first.SessionID})
	if err != nil {
		t.Fatalf("second Respond: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session id changed: %s then %s", first.SessionID, second.SessionID)
	}
	if !strings.Contains(second.Text, "User: remember the number 41") {
		t.Errorf("second prompt missing first user turn:\n%s", second.Text)
	}
	if !strings.Contains(second.Text, "Assistant: ") {
		t.Error("second prompt missing first assistant turn")
	}
}

func TestRespondHistoryWindowBoundsPrompt(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	svc, _ := newChatService(t, blobs, &echoGenerator{}, chat.WithHistoryWindow(2))

	sessions := session.NewService(blobs)
	for i := 0; i < 6; i++ {
		msg := session.Message{Role: session.RoleUser, Content: fmt.Sprintf("turn-%d", i)}
		if _, err := sessions.Append(ctx, "long", msg); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	answer, err := svc.Respond(ctx, chat.Ask{Query: "latest?", SessionID: "long"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if strings.Contains(answer.Text, "turn-0") {
		t.Error("prompt includes history beyond the configured window")
	}
	if !strings.Contains(answer.Text, "turn-5") {
		t.Error("prompt missing the most recent history")
	}
}

func TestRespondWithRetrievalInjectsContextAndSources(t *testing.T) {
	ctx := context.Background()
	svc, idx := newChatService(t, newMemBlobs(), &echoGenerator{})

	chunks := []chunk.Chunk{
		{Text: "The flux capacitor requires 1.21 gigawatts.", Index: 0},
		{Text: "Plutonium powers the reactor.", Index: 1},
	}
	if err := idx.Insert(ctx, "doc-1", "manual.pdf", chunks, hashEmbedder{}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	answer, err := svc.Respond(ctx, chat.Ask{Query: "The flux capacitor requires 1.21 gigawatts.", UseRetrieval: true, TopK: 2})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(answer.Text, "Context from documents:") {
		t.Error("prompt missing context section")
	}
	if !strings.Contains(answer.Text, "The flux capacitor requires 1.21 gigawatts.") {
		t.Error("prompt missing the retrieved chunk text")
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "manual.pdf" {
		t.Errorf("Sources = %v, want deduplicated [manual.pdf]", answer.Sources)
	}
}

func TestRespondRetrievalOnEmptyIndex(t *testing.T) {
	svc, _ := newChatService(t, newMemBlobs(), &echoGenerator{})

	answer, err := svc.Respond(context.Background(), chat.Ask{Query: "anything", UseRetrieval: true})
	if err != nil {
		t.Fatalf("Respond on empty index: %v", err)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("Sources = %v, want none", answer.Sources)
	}
	if strings.Contains(answer.Text, "Context from documents:") {
		t.Error("empty retrieval must fall back to the general prompt")
	}
}

func TestRespondGenerationFailureIsFatal(t *testing.T) {
	blobs := newMemBlobs()
	svc, _ := newChatService(t, blobs, &echoGenerator{err: errors.New("model offline")})

	_, err := svc.Respond(context.Background(), chat.Ask{Query: "hi"})
	if !errors.Is(err, chat.ErrGeneration) {
		t.Fatalf("Respond = %v, want ErrGeneration", err)
	}
	// A failed generation must not write history.
	if len(blobs.data) != 0 {
		t.Error("failed generation persisted history")
	}
}

func TestRespondPersistenceFailureIsNonFatal(t *testing.T) {
	blobs := newMemBlobs()
	blobs.fail = true
	svc, _ := newChatService(t, blobs, &echoGenerator{})

	answer, err := svc.Respond(context.Background(), chat.Ask{Query: "hi"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer.Text == "" {
		t.Error("answer lost despite persistence failure")
	}
	if answer.PersistErr == nil {
		t.Error("PersistErr not set on persistence failure")
	}
	if !errors.Is(answer.PersistErr, session.ErrPersistence) {
		t.Errorf("PersistErr = %v, want ErrPersistence", answer.PersistErr)
	}
}

func TestRespondCancelledContext(t *testing.T) {
	svc, _ := newChatService(t, newMemBlobs(), &echoGenerator{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Respond(ctx, chat.Ask{Query: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Respond with cancelled context = %v, want context.Canceled", err)
	}
}
