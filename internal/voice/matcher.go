// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package voice

import (
	"context"
	"errors"
	"fmt"
)

// DefaultThreshold is the cosine similarity a sample must exceed to match.
const DefaultThreshold = 0.85

var ErrEmbedFailed = errors.New("voice: embedding failed")

// Embedder turns raw audio into an Embedding. Implementations wrap the
// speech model; the matcher never looks inside.
type Embedder interface {
	Embed(ctx context.Context, audio []byte) (Embedding, error)
}

// Result is the outcome of a comparison that could be performed.
type Result struct {
	Similarity float64
	Threshold  float64
	Matched    bool
}

// Matcher decides whether a voice sample belongs to an enrolled speaker.
type Matcher struct {
	embedder  Embedder
	threshold float64
}

// NewMatcher creates a Matcher. A threshold outside (0, 1] falls back to DefaultThreshold.
func NewMatcher(embedder Embedder, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{embedder: embedder, threshold: threshold}
}

// Threshold returns the configured match threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Embed delegates to the underlying Embedder and validates its output.
func (m *Matcher) Embed(ctx context.Context, audio []byte) (Embedding, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrEmbedFailed)
	}
	e, err := m.embedder.Embed(ctx, audio)
	if err != nil {
		if errors.Is(err, ErrEmbedFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbedFailed, err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedFailed, err)
	}
	return e, nil
}

// Compare scores two embeddings. A non-nil error means no decision could be made;
// a mismatch is reported through Result.Matched.
func (m *Matcher) Compare(candidate, stored Embedding) (Result, error) {
	sim, err := CosineSimilarity(candidate, stored)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Similarity: sim,
		Threshold:  m.threshold,
		Matched:    sim > m.threshold,
	}, nil
}

// Match embeds audio and compares it against the stored textual embedding.
// Malformed stored data is an error, never a silent mismatch.
func (m *Matcher) Match(ctx context.Context, audio []byte, stored string) (Result, error) {
	ref, err := ParseEmbedding(stored)
	if err != nil {
		return Result{}, err
	}
	candidate, err := m.Embed(ctx, audio)
	if err != nil {
		return Result{}, err
	}
	return m.Compare(candidate, ref)
}

// IsMatch is Match reduced to the decision.
func (m *Matcher) IsMatch(ctx context.Context, audio []byte, stored string) (bool, error) {
	res, err := m.Match(ctx, audio, stored)
	if err != nil {
		return false, err
	}
	return res.Matched, nil
}
