package embedding

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bananya-ml/arxiv-feed/internal/helpers"
)

// OpenAIConfig configures an OpenAI-compatible /embeddings endpoint.
type OpenAIConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
	Retry     helpers.RetryPolicy
}

// OpenAI calls an OpenAI-compatible embeddings API in batches.
type OpenAI struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	batchSize int
	client    *http.Client
	retry     helpers.RetryPolicy
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxTries == 0 {
		cfg.Retry = helpers.DefaultRetryPolicy()
	}
	return &OpenAI{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    key,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		client:    &http.Client{Timeout: cfg.Timeout},
		retry:     cfg.Retry,
	}, nil
}

func (c *OpenAI) Name() string { return "openai:" + c.model }

func (c *OpenAI) Dimension() int { return c.dimension }

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := texts[start:end]

		var resp embeddingsResponse
		err := helpers.PostJSON(ctx, c.client, c.baseURL+"/embeddings",
			map[string]string{"Authorization": "Bearer " + c.apiKey},
			embeddingsRequest{Model: c.model, Input: batch, Dimensions: c.dimension}, &resp, c.retry)
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(batch))
		}
		sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		for _, d := range resp.Data {
			if len(d.Embedding) == 0 {
				return nil, fmt.Errorf("openai embeddings: empty vector at index %d", start+d.Index)
			}
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}
