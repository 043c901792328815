package model

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	TaskSummarization = "summarization"

	cheapGeminiModel  = "gemini-2.0-flash"
	cheapOpenAIModel  = "gpt-4o-mini"
	largeContextModel = "gemini-1.5-pro"

	largeContextThreshold = 8000
)

// Provider is one backing LLM API. The set of providers is fixed at wiring
// time; requests never instantiate providers dynamically.
type Provider interface {
	GenerateWithModel(ctx context.Context, model, prompt string, temperature float32, maxTokens int) (string, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Request struct {
	Model         string
	TaskType      string
	ContextLength int
}

type Route struct {
	Provider string
	Model    string
}

// DefaultModelSource supplies the runtime-configured default model, read on
// every request so settings changes take effect without a restart. An empty
// return falls back to the built-in cheap model.
type DefaultModelSource interface {
	DefaultModel(ctx context.Context) string
}

type Router struct {
	providers map[string]Provider
	defaults  DefaultModelSource
}

func NewRouter(providers map[string]Provider, defaults DefaultModelSource) *Router {
	return &Router{providers: providers, defaults: defaults}
}

// Resolve picks a provider and model for a request. Precedence: an explicit
// model name, then task type, then context length, then the default.
func (r *Router) Resolve(ctx context.Context, req Request) (Route, error) {
	if req.Model != "" {
		provider, err := providerFor(req.Model)
		if err != nil {
			return Route{}, err
		}
		return Route{Provider: provider, Model: req.Model}, nil
	}

	if req.TaskType == TaskSummarization {
		return Route{Provider: ProviderGemini, Model: cheapGeminiModel}, nil
	}

	if req.ContextLength > largeContextThreshold {
		return Route{Provider: ProviderGemini, Model: largeContextModel}, nil
	}

	model := ""
	if r.defaults != nil {
		model = r.defaults.DefaultModel(ctx)
	}
	if model == "" {
		model = cheapGeminiModel
	}

	provider, err := providerFor(model)
	if err != nil {
		return Route{}, err
	}
	return Route{Provider: provider, Model: model}, nil
}

func (r *Router) Generate(ctx context.Context, req Request, prompt string, temperature float32, maxTokens int) (string, error) {
	route, err := r.Resolve(ctx, req)
	if err != nil {
		return "", err
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return "", fmt.Errorf("provider %q not configured", route.Provider)
	}
	return p.GenerateWithModel(ctx, route.Model, prompt, temperature, maxTokens)
}

func providerFor(model string) (string, error) {
	switch {
	case strings.HasPrefix(model, "gpt"):
		return ProviderOpenAI, nil
	case strings.HasPrefix(model, "gemini"):
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("no provider for model %q", model)
	}
}
