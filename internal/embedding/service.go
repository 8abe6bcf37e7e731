// Package embedding turns search text into dense vectors, with a
// content-addressed cache in front of the model API.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/crmdex/crmdex/internal/config"
)

// Client is the interface for embedding model backends.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// Service generates embeddings, consulting the cache before invoking the
// model. The underlying client is constructed lazily on first use and
// reused for the process lifetime.
type Service struct {
	cache   *Cache
	factory func() (Client, error)

	mu     sync.Mutex
	client Client
}

// NewService wires a service around an explicit client, used by tests and
// callers that manage client construction themselves.
func NewService(client Client, cache *Cache) *Service {
	if cache == nil {
		cache = NewCache()
	}
	return &Service{
		cache:  cache,
		client: client,
		factory: func() (Client, error) {
			return client, nil
		},
	}
}

// NewServiceFromConfig wires a service whose client is built lazily from
// configuration. A client construction failure surfaces from the first
// embed call rather than here.
func NewServiceFromConfig(cfg *config.EmbeddingConfig, cache *Cache) *Service {
	if cache == nil {
		cache = NewCache()
	}
	return &Service{
		cache: cache,
		factory: func() (Client, error) {
			switch cfg.Provider {
			case "openai", "":
				return NewOpenAIClient(cfg)
			default:
				return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
			}
		},
	}
}

// Cache exposes the service's embedding cache.
func (s *Service) Cache() *Cache {
	return s.cache
}

func (s *Service) ensureClient() (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := s.factory()
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	s.client = client
	return client, nil
}

// EmbedOne generates an embedding for a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany generates embeddings for texts, preserving input order.
// Cached texts are served from the cache; the model is invoked exactly
// once on the batch of all misses, and fresh vectors are cached.
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	missTexts := make([]string, 0, len(texts))
	missIndices := make([]int, 0, len(texts))

	for i, text := range texts {
		if vec := s.cache.Get(text); vec != nil {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIndices = append(missIndices, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	client, err := s.ensureClient()
	if err != nil {
		return nil, err
	}

	vectors, err := client.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(vectors))
	}

	for j, vec := range vectors {
		s.cache.Put(missTexts[j], vec)
		results[missIndices[j]] = vec
	}
	return results, nil
}

// Dimensions reports the embedding dimensionality, or 0 when the client
// has not been constructed yet.
func (s *Service) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return 0
	}
	return s.client.Dimensions()
}

// ModelName reports the embedding model identifier, or "" when the client
// has not been constructed yet.
func (s *Service) ModelName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return ""
	}
	return s.client.Model()
}
