package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for OpenAI-compatible embedding services
// (OpenAI itself, LM Studio, Ollama's OpenAI endpoint, etc)
type OpenAIConfig struct {
	APIKey        string
	Endpoint      string // e.g. https://api.openai.com/v1
	ModelName     string
	Dimensions    int // 0 uses the model default
	Timeout       time.Duration
	RetryAttempts uint
	Logger        *log.Logger
}

func NewOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Endpoint:      "https://api.openai.com/v1",
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
	}
}

func (c OpenAIConfig) WithAPIKey(apiKey string) OpenAIConfig {
	c.APIKey = apiKey
	return c
}
func (c OpenAIConfig) WithEndpoint(endpoint string) OpenAIConfig {
	c.Endpoint = endpoint
	return c
}
func (c OpenAIConfig) WithModelName(modelName string) OpenAIConfig {
	c.ModelName = modelName
	return c
}
func (c OpenAIConfig) WithDimensions(dimensions int) OpenAIConfig {
	c.Dimensions = dimensions
	return c
}
func (c OpenAIConfig) WithTimeout(timeout time.Duration) OpenAIConfig {
	c.Timeout = timeout
	return c
}
func (c OpenAIConfig) WithRetryAttempts(attempts uint) OpenAIConfig {
	c.RetryAttempts = attempts
	return c
}
func (c OpenAIConfig) WithLogger(logger *log.Logger) OpenAIConfig {
	c.Logger = logger
	return c
}

func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("openai api key is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("retry attempts must be greater than 0")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// OpenAIEmbeddingProvider implements EmbeddingProvider using an
// OpenAI-compatible embeddings API
type OpenAIEmbeddingProvider struct {
	config OpenAIConfig
	client *openai.Client
	logger *log.Logger
}

func NewOpenAIEmbeddingProvider(config OpenAIConfig) (*OpenAIEmbeddingProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := openai.DefaultConfig(config.APIKey)
	cfg.BaseURL = config.Endpoint
	cfg.HTTPClient = &http.Client{Timeout: config.Timeout}
	return &OpenAIEmbeddingProvider{
		config: config,
		client: openai.NewClientWithConfig(cfg),
		logger: config.Logger,
	}, nil
}

func (p *OpenAIEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.config.ModelName),
		Input: []string{text},
	}
	if p.config.Dimensions > 0 {
		req.Dimensions = p.config.Dimensions
	}

	var embedding []float32
	start := time.Now()
	err := retry.Do(
		func() error {
			resp, err := p.client.CreateEmbeddings(ctx, req)
			if err != nil {
				return fmt.Errorf("embedding request failed: %w", err)
			}
			if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
				return fmt.Errorf("empty embedding returned for input")
			}
			embedding = resp.Data[0].Embedding
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.config.RetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("Retrying OpenAI embedding request", "attempt", n+1, "max_attempts", p.config.RetryAttempts, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get OpenAI embedding: %w", err)
	}
	p.logger.Debug("Generated OpenAI embedding",
		"text_length", len(text),
		"embedding_length", len(embedding),
		"model", p.config.ModelName,
		"duration", time.Since(start))
	return embedding, nil
}

func (p *OpenAIEmbeddingProvider) GetEmbeddingModelName() string {
	return p.config.ModelName
}
