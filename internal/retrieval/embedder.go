package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	httpclient "outing-workers/internal/common/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
)

// Embedder turns query text into the vector space of the facility index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var ErrEmptyEmbedding = errors.New("embedding service returned an empty vector")

// ==========================
// HTTP embedding service
// ==========================

// HTTPEmbedder calls an embedding sidecar: POST {base}/embed {"text"} -> {"embedding": [...]}.
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

func NewHTTPEmbedder(baseURL, apiKey string, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpclient.NewClient(timeout),
	}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	headers := map[string]string{}
	if e.apiKey != "" {
		headers["Authorization"] = "Bearer " + e.apiKey
	}

	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := e.client.DoJSON(ctx, http.MethodPost, e.baseURL+"/embed", headers, map[string]string{"text": text}, &resp); err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embedding, nil
}

// ==========================
// Gemini
// ==========================

const DefaultGeminiModel = "text-embedding-004"

// GeminiEmbedder embeds with the Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: client.EmbeddingModel(model)}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return res.Embedding.Values, nil
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

// ==========================
// Redis read-through cache
// ==========================

// CachedEmbedder caches vectors in Redis under prefix+sha1(text). Cache errors never fail a request.
type CachedEmbedder struct {
	next   Embedder
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	logger Logger
}

func NewCachedEmbedder(next Embedder, rdb *redis.Client, prefix string, ttl time.Duration, log Logger) *CachedEmbedder {
	if prefix == "" {
		prefix = "outing:embed:"
	}
	return &CachedEmbedder{next: next, redis: rdb, prefix: prefix, ttl: ttl, logger: log}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		var vec []float32
		if json.Unmarshal([]byte(cached), &vec) == nil && len(vec) > 0 {
			return vec, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("embedding cache read failed", map[string]interface{}{"error": err.Error()})
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vec); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("embedding cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return vec, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(text)))
	return c.prefix + hex.EncodeToString(sum[:])
}
