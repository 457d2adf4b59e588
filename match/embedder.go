// Package match implements the dog-matching engine: it derives a visual
// fingerprint for every active report's photo and pairs lost reports with
// found reports by content hash and embedding similarity.
package match

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/marku123123/petpals-new/internal/profile"
)

// ErrEmbedderUnavailable is returned by NewEmbedder when no embedding
// backend is configured. Callers may treat this as the degraded hash-only
// configuration by passing a nil embedder to the extractor instead.
var ErrEmbedderUnavailable = errors.New("embedding backend unavailable")

// ImageEmbedder produces a fixed-length embedding vector for a prepared
// image. Implementations wrap an external pretrained feature extractor; the
// engine never assumes anything about the model beyond the vector length.
type ImageEmbedder interface {
	// EmbedImage embeds the given encoded image bytes.
	EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

type embedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbedder creates an ImageEmbedder backed by an OpenAI-compatible
// multimodal embedding endpoint. The prepared image travels as a base64 data
// URL, which is what the compatible providers (siliconflow, jina, ollama)
// accept as embedding input.
func NewEmbedder(p *profile.Profile) (ImageEmbedder, error) {
	if !p.IsMatchingEnabled() {
		return nil, ErrEmbedderUnavailable
	}

	clientConfig := openai.DefaultConfig(p.EmbeddingAPIKey)
	if p.EmbeddingBaseURL != "" {
		clientConfig.BaseURL = p.EmbeddingBaseURL
	}

	return &embedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      p.EmbeddingModel,
		dimensions: p.EmbeddingDim,
	}, nil
}

func (e *embedder) EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("no image data provided for embedding")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	req := openai.EmbeddingRequest{
		Input: []string{dataURL},
		Model: openai.EmbeddingModel(e.model),
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "create embeddings failed")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}

	return resp.Data[0].Embedding, nil
}

func (e *embedder) Dimensions() int {
	return e.dimensions
}
