package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"vnnews-clustering/internal/ai"
)

// APIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type APIEmbedder struct {
	cfg       ai.EmbeddingConfig
	batchSize int

	once   sync.Once
	client *ai.OpenAICompatibleClient
	newFn  func() *ai.OpenAICompatibleClient
}

func NewAPIEmbedder(cfg ai.EmbeddingConfig, batchSize int) *APIEmbedder {
	return &APIEmbedder{
		cfg:       cfg,
		batchSize: batchSize,
		newFn:     ai.NewOpenAICompatibleClient,
	}
}

// WithClient replaces the HTTP client built on first use.
func (e *APIEmbedder) WithClient(client *ai.OpenAICompatibleClient) *APIEmbedder {
	e.newFn = func() *ai.OpenAICompatibleClient { return client }
	return e
}

func (e *APIEmbedder) Name() string {
	return "api:" + e.cfg.Model
}

func (e *APIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.once.Do(func() { e.client = e.newFn() })

	out := make([][]float64, len(texts))
	var positions []int
	var inputs []string
	for i, text := range texts {
		clean := strings.TrimSpace(Preprocess(text))
		if clean == "" {
			continue
		}
		positions = append(positions, i)
		inputs = append(inputs, clean)
	}

	err := batches(len(inputs), e.batchSize, func(start, end int) error {
		vecs, err := e.client.EmbedBatch(ctx, e.cfg, inputs[start:end])
		if err != nil {
			return fmt.Errorf("embed texts %d-%d failed: %w", start, end, err)
		}
		for j, v := range vecs {
			out[positions[start+j]] = Normalize(toFloat64(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fillZeros(out, e.cfg.Dimensions)
}

// fillZeros gives skipped inputs a zero vector of the common dimension and
// checks every vector has that dimension.
func fillZeros(vecs [][]float64, fallbackDim int) ([][]float64, error) {
	dim := 0
	for _, v := range vecs {
		if v != nil {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		dim = max(fallbackDim, 1)
	}
	for i, v := range vecs {
		if v == nil {
			vecs[i] = make([]float64, dim)
			continue
		}
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return vecs, nil
}
