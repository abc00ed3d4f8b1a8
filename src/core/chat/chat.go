package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docchat/src/core/index"
	"docchat/src/core/session"
	"docchat/src/infrastructure/log"
)

const (
	// DefaultTopK bounds retrieval when the caller does not ask for a
	// specific depth.
	DefaultTopK = 5
	// DefaultHistoryWindow is how many trailing messages (three exchanges)
	// of a session are included in the prompt. Storage always keeps the
	// full history.
	DefaultHistoryWindow = 6
)

// ErrGeneration wraps failures of the generation backend. It is fatal to
// the response; there is no automatic retry.
var ErrGeneration = errors.New("chat: generation failed")

// Generator is the injected one-shot completion function.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Ask is one conversational request.
type Ask struct {
	Query        string
	SessionID    string // empty mints a new session
	UseRetrieval bool
	TopK         int // 0 means DefaultTopK
}

// Answer carries the generated response. PersistErr is the non-fatal
// "history not persisted" signal: when set, the answer is valid but was not
// recorded in the session.
type Answer struct {
	Text       string
	Sources    []string
	SessionID  string
	PersistErr error
}

// Service is the retrieval orchestrator: it fuses retrieved context with
// bounded conversation history into a prompt, invokes generation, and
// appends the exchange to the session.
type Service struct {
	idx           *index.Index
	embedder      index.Embedder
	sessions      *session.Service
	generator     Generator
	historyWindow int
}

// Option tunes a Service.
type Option func(*Service)

// WithHistoryWindow overrides how many trailing messages reach the prompt.
func WithHistoryWindow(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.historyWindow = n
		}
	}
}

func NewService(idx *index.Index, embedder index.Embedder, sessions *session.Service, generator Generator, opts ...Option) *Service {
	s := &Service{
		idx:           idx,
		embedder:      embedder,
		sessions:      sessions,
		generator:     generator,
		historyWindow: DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Respond answers one user query. Generation failure is fatal; persistence
// failure after generation is reported on Answer.PersistErr and never
// discards the generated text.
func (s *Service) Respond(ctx context.Context, ask Ask) (*Answer, error) {
	if ask.Query == "" {
		return nil, fmt.Errorf("chat: query is required")
	}

	sessionID := ask.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	var hits []index.Hit
	if ask.UseRetrieval {
		topK := ask.TopK
		if topK <= 0 {
			topK = DefaultTopK
		}
		var err error
		hits, err = s.idx.Query(ctx, ask.Query, topK, s.embedder)
		if err != nil {
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
	}

	history, err := s.history(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	contextChunks := make([]string, 0, len(hits))
	for _, h := range hits {
		contextChunks = append(contextChunks, h.Text)
	}

	prompt, err := buildPrompt(ask.Query, contextChunks, history)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	answer := &Answer{
		Text:      text,
		Sources:   uniqueSources(hits),
		SessionID: sessionID,
	}

	// The exchange is recorded user-first. The response has already been
	// generated, so a failed append degrades to a signal, not an error.
	if _, err := s.sessions.Append(ctx, sessionID, session.Message{Role: session.RoleUser, Content: ask.Query}); err != nil {
		log.Error(err, "history not persisted", "session_id", sessionID)
		answer.PersistErr = err
		return answer, nil
	}
	if _, err := s.sessions.Append(ctx, sessionID, session.Message{Role: session.RoleAssistant, Content: text}); err != nil {
		log.Error(err, "history not persisted", "session_id", sessionID)
		answer.PersistErr = err
	}

	return answer, nil
}

// history loads the trailing prompt window of a session. A missing session
// is simply an empty history.
func (s *Service) history(ctx context.Context, sessionID string) ([]session.Message, error) {
	record, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	messages := record.Messages
	if len(messages) > s.historyWindow {
		messages = messages[len(messages)-s.historyWindow:]
	}
	return messages, nil
}

// uniqueSources deduplicates source names, keeping first-seen order for
// stable display.
func uniqueSources(hits []index.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	sources := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.SourceName]; ok {
			continue
		}
		seen[h.SourceName] = struct{}{}
		sources = append(sources, h.SourceName)
	}
	return sources
}
