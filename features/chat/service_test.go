package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"corpora/features/chat"
	"corpora/internal/model"
	"corpora/internal/retrieval"
)

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, collectionID, query string, topK int) (*retrieval.Result, error) {
	args := m.Called(ctx, collectionID, query, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.Result), args.Error(1)
}

type MockRouter struct {
	mock.Mock
}

func (m *MockRouter) Generate(ctx context.Context, req model.Request, prompt string, temperature float32, maxTokens int) (string, error) {
	args := m.Called(ctx, req, prompt, temperature, maxTokens)
	return args.String(0), args.Error(1)
}

func TestService_Send(t *testing.T) {
	searcher := new(MockSearcher)
	router := new(MockRouter)
	registry := chat.NewRegistry(10, time.Hour)

	svc := chat.NewService(registry, searcher, router)
	session := svc.CreateSession("col-1", "gpt-4o")

	searcher.On("Search", mock.Anything, "col-1", "where is the office?", 0).Return(&retrieval.Result{
		Results: []retrieval.SearchResult{{Text: "The office is in Jakarta.", Score: 0.9}},
	}, nil)

	var prompt string
	router.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Model == "gpt-4o"
	}), mock.Anything, float32(0.2), 1024).
		Run(func(args mock.Arguments) { prompt = args.String(2) }).
		Return("Jakarta", nil)

	answer, err := svc.Send(context.Background(), session.ID, "where is the office?")
	assert.NoError(t, err)
	assert.Equal(t, "Jakarta", answer)
	assert.Contains(t, prompt, "The office is in Jakarta.")
	assert.Contains(t, prompt, "Question: where is the office?")

	got, err := svc.GetSession(session.ID)
	assert.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, "where is the office?", got.Messages[0].Content)
	assert.Equal(t, "Jakarta", got.Messages[1].Content)
}

func TestService_Send_IncludesHistory(t *testing.T) {
	searcher := new(MockSearcher)
	router := new(MockRouter)
	registry := chat.NewRegistry(10, time.Hour)

	svc := chat.NewService(registry, searcher, router)
	session := svc.CreateSession("col-1", "")

	searcher.On("Search", mock.Anything, "col-1", mock.Anything, 0).Return(&retrieval.Result{Results: []retrieval.SearchResult{}}, nil)

	var prompts []string
	router.On("Generate", mock.Anything, mock.Anything, mock.Anything, float32(0.2), 1024).
		Run(func(args mock.Arguments) { prompts = append(prompts, args.String(2)) }).
		Return("ok", nil)

	_, err := svc.Send(context.Background(), session.ID, "first question")
	assert.NoError(t, err)
	_, err = svc.Send(context.Background(), session.ID, "second question")
	assert.NoError(t, err)

	assert.NotContains(t, prompts[0], "Conversation so far")
	assert.Contains(t, prompts[1], "Conversation so far")
	assert.Contains(t, prompts[1], "user: first question")
}

func TestService_Send_UnknownSession(t *testing.T) {
	svc := chat.NewService(chat.NewRegistry(10, time.Hour), new(MockSearcher), new(MockRouter))

	_, err := svc.Send(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestService_Send_SearchFailure(t *testing.T) {
	searcher := new(MockSearcher)
	router := new(MockRouter)
	registry := chat.NewRegistry(10, time.Hour)

	svc := chat.NewService(registry, searcher, router)
	session := svc.CreateSession("col-1", "")

	searcher.On("Search", mock.Anything, "col-1", mock.Anything, 0).Return(nil, errors.New("index down"))

	_, err := svc.Send(context.Background(), session.ID, "hi")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retrieve context")
	router.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	got, _ := svc.GetSession(session.ID)
	assert.Empty(t, got.Messages)
}
