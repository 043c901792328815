package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"corpora/internal/settings"
)

const (
	embeddingModel  = "gemini-embedding-001"
	generationModel = "gemini-2.0-flash"
)

// Client reads the Gemini API key from settings on every call and recreates
// the underlying genai client when the key changes, so key rotation through
// the settings endpoint takes effect without a restart.
type Client struct {
	settingsSvc *settings.Service
	client      *genai.Client
	currentKey  string
	mu          sync.RWMutex
	clientOpts  []option.ClientOption
}

func NewClient(svc *settings.Service, opts ...option.ClientOption) *Client {
	return &Client{
		settingsSvc: svc,
		clientOpts:  opts,
	}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	client, err := c.activeClient(ctx)
	if err != nil {
		return nil, err
	}

	model := client.EmbeddingModel(embeddingModel)
	batch := model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		slog.ErrorContext(ctx, "batch embedding failed", "error", err, "count", len(texts))
		return nil, classify(err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}

	vecs := make([][]float32, len(res.Embeddings))
	for n, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding received at position %d", n)
		}
		vecs[n] = e.Values
	}
	return vecs, nil
}

func (c *Client) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	return c.GenerateWithModel(ctx, generationModel, prompt, temperature, maxTokens)
}

func (c *Client) GenerateWithModel(ctx context.Context, modelName, prompt string, temperature float32, maxTokens int) (string, error) {
	client, err := c.activeClient(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "model", modelName, "error", err)
		return "", classify(err)
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}

	var out string
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out, nil
}

func (c *Client) activeClient(ctx context.Context) (*genai.Client, error) {
	s, err := c.settingsSvc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	return c.getClient(ctx, s.GeminiAPIKey)
}

func (c *Client) getClient(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil && c.currentKey == key {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check
	if c.client != nil && c.currentKey == key {
		return c.client, nil
	}

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(c.clientOpts, option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	c.client = client
	c.currentKey = key
	return client, nil
}
