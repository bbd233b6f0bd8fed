// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"codeberg.org/oliverandrich/voiceauth/internal/voice"
)

// SentOTP records one call to FakeMailer.SendOTP.
type SentOTP struct {
	To       string
	Code     string
	Validity time.Duration
}

// FakeMailer captures OTP mails instead of sending them.
type FakeMailer struct {
	mu   sync.Mutex
	Sent []SentOTP
	Err  error
}

// SendOTP records the message, or returns Err when set.
func (m *FakeMailer) SendOTP(_ context.Context, to, code string, validity time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentOTP{To: to, Code: code, Validity: validity})
	return nil
}

// Last returns the most recent mail, or the zero value.
func (m *FakeMailer) Last() SentOTP {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentOTP{}
	}
	return m.Sent[len(m.Sent)-1]
}

var ErrUnknownAudio = errors.New("fake embedder: unknown audio")

// FakeEmbedder maps audio payloads to fixed embeddings.
type FakeEmbedder struct {
	mu      sync.Mutex
	Vectors map[string]voice.Embedding
	Err     error
	Calls   int
}

// NewFakeEmbedder returns an embedder that knows no audio yet.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Vectors: make(map[string]voice.Embedding)}
}

// Set registers the embedding returned for audio.
func (f *FakeEmbedder) Set(audio string, e voice.Embedding) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Vectors[audio] = e
}

// Embed implements voice.Embedder.
func (f *FakeEmbedder) Embed(_ context.Context, audio []byte) (voice.Embedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	e, ok := f.Vectors[string(audio)]
	if !ok {
		return nil, ErrUnknownAudio
	}
	return e, nil
}
