package chat

import (
	"context"
	"fmt"
	"strings"

	"corpora/internal/model"
	"corpora/internal/retrieval"
)

const historyWindow = 20

type Searcher interface {
	Search(ctx context.Context, collectionID, query string, topK int) (*retrieval.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, req model.Request, prompt string, temperature float32, maxTokens int) (string, error)
}

type Service struct {
	registry *Registry
	searcher Searcher
	router   Generator
}

func NewService(registry *Registry, searcher Searcher, router Generator) *Service {
	return &Service{registry: registry, searcher: searcher, router: router}
}

func (s *Service) CreateSession(collectionID, modelName string) *Session {
	return s.registry.Create(collectionID, modelName)
}

func (s *Service) GetSession(id string) (*Session, error) {
	return s.registry.Get(id)
}

func (s *Service) DeleteSession(id string) error {
	return s.registry.Delete(id)
}

func (s *Service) ListSessions() []*Session {
	return s.registry.List()
}

// Send answers a user message in the context of its session: retrieved chunks
// from the session's collection plus the recent conversation history feed the
// routed model. Both the user message and the reply are recorded.
func (s *Service) Send(ctx context.Context, sessionID, message string) (string, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return "", err
	}

	res, err := s.searcher.Search(ctx, session.CollectionID, message, 0)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}

	prompt := buildPrompt(session.Messages, res.Results, message)

	answer, err := s.router.Generate(ctx, model.Request{
		Model:         session.Model,
		ContextLength: len(strings.Fields(prompt)),
	}, prompt, 0.2, 1024)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	now := s.registry.now()
	if err := s.registry.Append(sessionID,
		Message{Role: "user", Content: message, CreatedAt: now},
		Message{Role: "assistant", Content: answer, CreatedAt: now},
	); err != nil {
		return "", err
	}

	return answer, nil
}

func buildPrompt(history []Message, results []retrieval.SearchResult, message string) string {
	var b strings.Builder

	b.WriteString("Based on the following context, answer the question.\n\nContext:\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Text)
	}

	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	if len(recent) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, m := range recent {
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(message)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
