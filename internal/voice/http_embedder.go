// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultSampleRate is what wav2vec2-style speech models expect.
const DefaultSampleRate = 16000

// maxResponseSize caps the embedding service response body.
const maxResponseSize = 4 << 20

// HTTPEmbedder sends audio to an external embedding service. The upload is
// decoded, downmixed and resampled to SampleRate locally, then posted as
// 16-bit mono WAV. The service answers {"embedding": [...]}.
type HTTPEmbedder struct {
	client     *http.Client
	url        string
	sampleRate int
}

// HTTPEmbedderOption configures an HTTPEmbedder.
type HTTPEmbedderOption func(*HTTPEmbedder)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPEmbedderOption {
	return func(e *HTTPEmbedder) {
		if c != nil {
			e.client = c
		}
	}
}

// WithSampleRate sets the rate audio is resampled to before embedding.
func WithSampleRate(rate int) HTTPEmbedderOption {
	return func(e *HTTPEmbedder) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPEmbedderOption {
	return func(e *HTTPEmbedder) {
		if d > 0 {
			e.client = &http.Client{Timeout: d}
		}
	}
}

// NewHTTPEmbedder creates an embedder posting to url.
func NewHTTPEmbedder(url string, opts ...HTTPEmbedderOption) *HTTPEmbedder {
	e := &HTTPEmbedder{
		client:     &http.Client{Timeout: 30 * time.Second},
		url:        url,
		sampleRate: DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, audio []byte) (Embedding, error) {
	decoded, err := DecodeWAV(audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedFailed, err)
	}
	body, err := decoded.Resample(e.sampleRate).EncodeWAV()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrEmbedFailed, err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrEmbedFailed, err)
	}

	var out embedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", ErrEmbedFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: decode response: %w", ErrEmbedFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return nil, fmt.Errorf("%w: status %d: %s", ErrEmbedFailed, resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("%w: status %d", ErrEmbedFailed, resp.StatusCode)
	}

	emb := Embedding(out.Embedding)
	if err := emb.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedFailed, err)
	}
	return emb, nil
}
