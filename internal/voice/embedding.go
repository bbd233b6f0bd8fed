// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package voice decides whether a voice sample matches an enrolled speaker by
// comparing speech embeddings with cosine similarity.
package voice

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMalformedEmbedding = errors.New("voice: malformed embedding")
	ErrEmptyEmbedding     = errors.New("voice: empty embedding")
	ErrDimensionMismatch  = errors.New("voice: embedding dimensions differ")
	ErrZeroVector         = errors.New("voice: zero-length vector")
)

// Embedding is a fixed-length vector summarizing a voice sample.
type Embedding []float64

// Validate rejects empty vectors and non-finite components.
func (e Embedding) Validate() error {
	if len(e) == 0 {
		return ErrEmptyEmbedding
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrMalformedEmbedding, i)
		}
	}
	return nil
}

// ParseEmbedding parses the stored textual form of a vector: a bracketed list
// of decimal numbers separated by commas or whitespace, such as
// "[0.12, -3.4e-05, 1]" or "[0.12 -3.4e-05 1]". Nothing else is accepted.
func ParseEmbedding(s string) (Embedding, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: expected bracketed list", ErrMalformedEmbedding)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, ErrEmptyEmbedding
	}

	var fields []string
	if strings.Contains(body, ",") {
		fields = strings.Split(body, ",")
	} else {
		fields = strings.Fields(body)
	}

	out := make(Embedding, 0, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, fmt.Errorf("%w: empty component %d", ErrMalformedEmbedding, i)
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: component %d: %q", ErrMalformedEmbedding, i, f)
		}
		out = append(out, v)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// FormatEmbedding renders e in the form ParseEmbedding reads.
func FormatEmbedding(e Embedding) string {
	var b strings.Builder
	b.Grow(len(e) * 12)
	b.WriteByte('[')
	for i, v := range e {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// CosineSimilarity returns a·b / (|a||b|).
func CosineSimilarity(a, b Embedding) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyEmbedding
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, ErrZeroVector
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
