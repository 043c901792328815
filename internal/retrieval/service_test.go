package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"corpora/internal/retrieval"
	"corpora/internal/settings"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) Count(ctx context.Context, collectionID string) (int, error) {
	args := m.Called(ctx, collectionID)
	return args.Int(0), args.Error(1)
}

func (m *mockIndex) Query(ctx context.Context, collectionID string, vector []float32, k int) ([]retrieval.Match, error) {
	args := m.Called(ctx, collectionID, vector, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.Match), args.Error(1)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	args := m.Called(ctx, prompt, temperature, maxTokens)
	return args.String(0), args.Error(1)
}

type mockSettings struct {
	mock.Mock
}

func (m *mockSettings) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func defaultSettings() *settings.Settings {
	return &settings.Settings{SearchTopK: 5, AnswerTemperature: 0.2, AnswerMaxTokens: 1024}
}

func TestService_Search_EmptyCollection(t *testing.T) {
	embedder := new(mockEmbedder)
	index := new(mockIndex)
	generator := new(mockGenerator)
	set := new(mockSettings)

	set.On("Get", mock.Anything).Return(defaultSettings(), nil)
	index.On("Count", mock.Anything, "col-1").Return(0, nil)

	svc := retrieval.NewService(embedder, index, generator, set, nil)

	res, err := svc.Search(context.Background(), "col-1", "what is go?", 5)
	assert.NoError(t, err)
	assert.Equal(t, retrieval.EmptyCollectionAnswer, res.Answer)
	assert.Equal(t, "what is go?", res.Query)
	assert.Empty(t, res.Results)

	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Search_ClampsKToIndexedCount(t *testing.T) {
	embedder := new(mockEmbedder)
	index := new(mockIndex)
	generator := new(mockGenerator)
	set := new(mockSettings)

	set.On("Get", mock.Anything).Return(defaultSettings(), nil)
	index.On("Count", mock.Anything, "col-1").Return(3, nil)
	embedder.On("Embed", mock.Anything, "q").Return([]float32{0.1, 0.2}, nil)
	index.On("Query", mock.Anything, "col-1", []float32{0.1, 0.2}, 3).Return([]retrieval.Match{
		{ChunkID: "c1", Text: "first", Distance: 0.1},
		{ChunkID: "c2", Text: "second", Distance: 0.4},
		{ChunkID: "c3", Text: "third", Distance: 0.9},
	}, nil)
	generator.On("Generate", mock.Anything, mock.Anything, float32(0.2), 1024).Return("an answer", nil)

	svc := retrieval.NewService(embedder, index, generator, set, nil)

	res, err := svc.Search(context.Background(), "col-1", "q", 10)
	assert.NoError(t, err)
	assert.Len(t, res.Results, 3)
	assert.Equal(t, "an answer", res.Answer)
	index.AssertExpectations(t)
}

func TestService_Search_ScoreIsOneMinusDistance(t *testing.T) {
	embedder := new(mockEmbedder)
	index := new(mockIndex)
	generator := new(mockGenerator)
	set := new(mockSettings)

	set.On("Get", mock.Anything).Return(defaultSettings(), nil)
	index.On("Count", mock.Anything, "col-1").Return(10, nil)
	embedder.On("Embed", mock.Anything, "q").Return([]float32{0.5}, nil)
	index.On("Query", mock.Anything, "col-1", []float32{0.5}, 2).Return([]retrieval.Match{
		{ChunkID: "c1", Text: "near", Distance: 0.25},
		{ChunkID: "c2", Text: "far", Distance: 0.75},
	}, nil)
	generator.On("Generate", mock.Anything, mock.Anything, float32(0.2), 1024).Return("ok", nil)

	svc := retrieval.NewService(embedder, index, generator, set, nil)

	res, err := svc.Search(context.Background(), "col-1", "q", 2)
	assert.NoError(t, err)
	assert.InDelta(t, 0.75, res.Results[0].Score, 1e-6)
	assert.InDelta(t, 0.25, res.Results[1].Score, 1e-6)
	assert.GreaterOrEqual(t, res.Results[0].Score, res.Results[1].Score)
}

func TestService_Search_PromptContainsContextAndQuery(t *testing.T) {
	embedder := new(mockEmbedder)
	index := new(mockIndex)
	generator := new(mockGenerator)
	set := new(mockSettings)

	set.On("Get", mock.Anything).Return(defaultSettings(), nil)
	index.On("Count", mock.Anything, "col-1").Return(5, nil)
	embedder.On("Embed", mock.Anything, "where is the office?").Return([]float32{1}, nil)
	index.On("Query", mock.Anything, "col-1", mock.Anything, 1).Return([]retrieval.Match{
		{ChunkID: "c1", Text: "The office is in Jakarta.", Distance: 0.2},
	}, nil)

	var captured string
	generator.On("Generate", mock.Anything, mock.Anything, float32(0.2), 1024).
		Run(func(args mock.Arguments) {
			captured = args.String(1)
		}).
		Return("Jakarta", nil)

	svc := retrieval.NewService(embedder, index, generator, set, nil)

	_, err := svc.Search(context.Background(), "col-1", "where is the office?", 1)
	assert.NoError(t, err)
	assert.Contains(t, captured, "The office is in Jakarta.")
	assert.Contains(t, captured, "Question: where is the office?")
}

func TestService_Search_DefaultTopKFromSettings(t *testing.T) {
	embedder := new(mockEmbedder)
	index := new(mockIndex)
	generator := new(mockGenerator)
	set := new(mockSettings)

	set.On("Get", mock.Anything).Return(&settings.Settings{SearchTopK: 2, AnswerTemperature: 0.1, AnswerMaxTokens: 256}, nil)
	index.On("Count", mock.Anything, "col-1").Return(10, nil)
	embedder.On("Embed", mock.Anything, "q").Return([]float32{1}, nil)
	index.On("Query", mock.Anything, "col-1", mock.Anything, 2).Return([]retrieval.Match{
		{ChunkID: "c1", Text: "a", Distance: 0.3},
	}, nil)
	generator.On("Generate", mock.Anything, mock.Anything, float32(0.1), 256).Return("ok", nil)

	svc := retrieval.NewService(embedder, index, generator, set, nil)

	_, err := svc.Search(context.Background(), "col-1", "q", 0)
	assert.NoError(t, err)
	index.AssertExpectations(t)
	generator.AssertExpectations(t)
}

func TestService_Search_EmbedErrorSurfaces(t *testing.T) {
	embedder := new(mockEmbedder)
	index := new(mockIndex)
	generator := new(mockGenerator)
	set := new(mockSettings)

	set.On("Get", mock.Anything).Return(defaultSettings(), nil)
	index.On("Count", mock.Anything, "col-1").Return(4, nil)
	embedder.On("Embed", mock.Anything, "q").Return(nil, errors.New("provider down"))

	svc := retrieval.NewService(embedder, index, generator, set, nil)

	_, err := svc.Search(context.Background(), "col-1", "q", 2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Search_CountErrorSurfaces(t *testing.T) {
	embedder := new(mockEmbedder)
	index := new(mockIndex)
	generator := new(mockGenerator)
	set := new(mockSettings)

	set.On("Get", mock.Anything).Return(defaultSettings(), nil)
	index.On("Count", mock.Anything, "col-1").Return(0, errors.New("index unreachable"))

	svc := retrieval.NewService(embedder, index, generator, set, nil)

	_, err := svc.Search(context.Background(), "col-1", "q", 2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "index count")
}
