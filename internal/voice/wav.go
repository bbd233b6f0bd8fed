// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package voice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
	encodeBitDepth   = 16
)

var (
	ErrNotWAV            = errors.New("voice: not a RIFF/WAVE file")
	ErrUnsupportedFormat = errors.New("voice: unsupported WAV encoding")
	ErrNoAudioData       = errors.New("voice: WAV has no data chunk")
)

// Audio is mono PCM normalized to [-1, 1].
type Audio struct {
	Samples    []float64
	SampleRate int
}

// DecodeWAV reads a RIFF/WAVE file with integer PCM samples of 8, 16, 24 or
// 32 bits. Multi-channel audio is averaged to mono.
func DecodeWAV(data []byte) (*Audio, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	d.ReadInfo()
	if d.NumChans == 0 || d.SampleRate == 0 {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotWAV, err)
		}
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrNotWAV)
	}
	if d.WavAudioFormat != formatPCM && d.WavAudioFormat != formatExtensible {
		return nil, fmt.Errorf("%w: format %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupportedFormat, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAudioData, err)
	}
	samples := downmix(buf.Data, int(d.NumChans), int(d.BitDepth))
	if len(samples) == 0 {
		return nil, ErrNoAudioData
	}
	return &Audio{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}

// downmix averages interleaved frames and scales them to [-1, 1]. A trailing
// partial frame is dropped.
func downmix(data []int, channels, bitDepth int) []float64 {
	scale := float64(int64(1) << (bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned.
		offset = 128
	}

	frames := len(data) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for _, v := range data[i*channels : (i+1)*channels] {
			sum += (float64(v) - offset) / scale
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Resample converts a to the target rate by linear interpolation.
func (a *Audio) Resample(rate int) *Audio {
	if rate <= 0 || rate == a.SampleRate || len(a.Samples) == 0 {
		return a
	}

	ratio := float64(a.SampleRate) / float64(rate)
	n := int(int64(len(a.Samples)) * int64(rate) / int64(a.SampleRate))
	if n < 1 {
		n = 1
	}

	out := make([]float64, n)
	last := len(a.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = a.Samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = a.Samples[j]*(1-frac) + a.Samples[j+1]*frac
	}
	return &Audio{Samples: out, SampleRate: rate}
}

// EncodeWAV writes a as 16-bit mono PCM.
func (a *Audio) EncodeWAV() ([]byte, error) {
	data := make([]int, len(a.Samples))
	for i, s := range a.Samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * 32767))
	}

	var out memFile
	enc := wav.NewEncoder(&out, a.SampleRate, encodeBitDepth, 1, formatPCM)
	err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: a.SampleRate},
		Data:           data,
		SourceBitDepth: encodeBitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return out.buf, nil
}

var errNegativeOffset = errors.New("voice: negative seek offset")

// memFile is an in-memory io.WriteSeeker; the encoder seeks back to patch the
// RIFF and data sizes on Close.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, fmt.Errorf("voice: invalid whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, errNegativeOffset
	}
	m.pos = int(pos)
	return pos, nil
}
