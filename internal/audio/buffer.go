// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     audio
// Description: Decoded PCM buffers and the 16-bit little-endian codec
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Speech output format of the synthesis API
const (
	SpeechSampleRate = 24000
	SpeechChannels   = 1
)

// ErrDecode is wrapped by every decoding failure
var ErrDecode = errors.New("audio decode failed")

// Buffer holds decoded, normalized float samples per channel
type Buffer struct {
	sampleRate int
	channels   [][]float32
}

// NewBuffer allocates a silent buffer
func NewBuffer(channels, frames, sampleRate int) (*Buffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if frames < 0 {
		return nil, fmt.Errorf("frame count must not be negative, got %d", frames)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return &Buffer{sampleRate: sampleRate, channels: data}, nil
}

// SampleRate returns frames per second
func (b *Buffer) SampleRate() int { return b.sampleRate }

// Channels returns the channel count
func (b *Buffer) Channels() int { return len(b.channels) }

// Frames returns the number of sample frames
func (b *Buffer) Frames() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// ChannelData returns the writable samples of one channel
func (b *Buffer) ChannelData(channel int) []float32 {
	return b.channels[channel]
}

// Duration returns the playback length
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.sampleRate)
}

// Interleaved returns the samples frame by frame, channels interleaved
func (b *Buffer) Interleaved() []float32 {
	n := len(b.channels)
	frames := b.Frames()
	out := make([]float32, frames*n)
	for f := 0; f < frames; f++ {
		for c := 0; c < n; c++ {
			out[f*n+c] = b.channels[c][f]
		}
	}
	return out
}

// DecodeBase64 decodes a standard base64 payload
func DecodeBase64(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecode, err)
	}
	return data, nil
}

// DecodePCM16 interprets data as consecutive little-endian signed 16-bit
// samples, interleaved by channel, and normalizes them to [-1.0, 1.0).
func DecodePCM16(data []byte, sampleRate, channels int) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no audio samples", ErrDecode)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d for 16-bit samples", ErrDecode, len(data))
	}
	if channels < 1 {
		return nil, fmt.Errorf("%w: channel count must be positive, got %d", ErrDecode, channels)
	}

	numSamples := len(data) / 2
	if numSamples%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples do not divide into %d channels", ErrDecode, numSamples, channels)
	}
	frames := numSamples / channels

	buf, err := NewBuffer(channels, frames, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	for c := 0; c < channels; c++ {
		channelData := buf.ChannelData(c)
		for i := 0; i < frames; i++ {
			off := (i*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			channelData[i] = float32(sample) / 32768.0
		}
	}

	return buf, nil
}

// EncodePCM16 converts a buffer back to interleaved little-endian 16-bit samples
func EncodePCM16(buf *Buffer) []byte {
	samples := buf.Interleaved()
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
