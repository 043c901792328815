package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"corpora/internal/settings"
)

// EmptyCollectionAnswer is returned verbatim when a collection has no indexed
// vectors. This path never reaches the generative model.
const EmptyCollectionAnswer = "This collection has no indexed documents yet. Upload a document and run ingestion before searching."

const promptTemplate = `Based on the following context, answer the question.

Context:
%s

Question: %s

Answer:`

// Match is one raw nearest-neighbor hit from the vector index, ordered by
// ascending distance.
type Match struct {
	ChunkID  string
	Text     string
	Distance float32
	Metadata map[string]interface{}
}

type SearchResult struct {
	Text     string                 `json:"text"`
	Score    float32                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

type Result struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer"`
	Results []SearchResult `json:"results"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Count(ctx context.Context, collectionID string) (int, error)
	Query(ctx context.Context, collectionID string, vector []float32, k int) ([]Match, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
}

type SettingsReader interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Service struct {
	embedder  Embedder
	index     VectorIndex
	generator Generator
	settings  SettingsReader
	logger    *QueryLogger
}

func NewService(e Embedder, idx VectorIndex, g Generator, set SettingsReader, l *QueryLogger) *Service {
	return &Service{embedder: e, index: idx, generator: g, settings: set, logger: l}
}

// Search answers a natural-language query against one collection: nearest
// neighbors from the vector index ranked by ascending distance, a synthesized
// answer conditioned on the retrieved chunks, and the original query. An
// absent or empty collection yields a benign fixed answer instead of an
// error; every other failure surfaces to the caller.
func (s *Service) Search(ctx context.Context, collectionID, query string, topK int) (*Result, error) {
	start := time.Now()
	var res *Result
	var err error

	defer func() {
		if s.logger != nil && err == nil {
			s.logger.Log(QueryLogEntry{
				CollectionID: collectionID,
				Query:        query,
				NumResults:   len(res.Results),
				Duration:     time.Since(start),
			})
		}
	}()

	cfg, cfgErr := s.settings.Get(ctx)
	if cfgErr != nil {
		// Fallback defaults if settings fail (shouldn't happen).
		cfg = &settings.Settings{SearchTopK: 5, AnswerTemperature: 0.2, AnswerMaxTokens: 1024}
	}
	if topK < 1 {
		topK = cfg.SearchTopK
	}
	if topK < 1 {
		topK = 5
	}

	count, err := s.index.Count(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("index count: %w", err)
	}
	if count == 0 {
		res = &Result{Query: query, Answer: EmptyCollectionAnswer, Results: []SearchResult{}}
		return res, nil
	}

	k := topK
	if count < k {
		k = count
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, collectionID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}

	results := make([]SearchResult, len(matches))
	contexts := make([]string, len(matches))
	for i, m := range matches {
		// Assumes the index distance metric is normalized to [0,2].
		results[i] = SearchResult{
			Text:     m.Text,
			Score:    1 - m.Distance,
			Metadata: m.Metadata,
		}
		contexts[i] = m.Text
	}

	prompt := fmt.Sprintf(promptTemplate, strings.Join(contexts, "\n\n"), query)

	answer, err := s.generator.Generate(ctx, prompt, cfg.AnswerTemperature, cfg.AnswerMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	res = &Result{Query: query, Answer: answer, Results: results}
	return res, nil
}
