package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Course-Concierge/pkg/openrouter"
)

type Config struct {
	BaseURL    string `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey     string `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model      string `envconfig:"MODEL" split_words:"true" default:"text-embedding-3-small"`
	Dimensions int    `envconfig:"DIMENSIONS" split_words:"true"`
}

// Embedder turns query text into vectors through an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	client     *openaisdk.Client
	model      string
	dimensions int
}

func New(cfg Config) (*Embedder, error) {
	client := openrouterx.NewClient(openrouterx.Config{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
	if client == nil {
		return nil, fmt.Errorf("%w: embedding api key is required", contractx.ErrValidation)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	}
	return &Embedder{client: client, model: model, dimensions: cfg.Dimensions}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: embedding input is empty", contractx.ErrValidation)
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openaisdk.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("create embedding: empty response")
	}

	raw := resp.Data[0].Embedding
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}

var _ contractx.Embedder = (*Embedder)(nil)
