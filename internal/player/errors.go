// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     player
// Description: Failure taxonomy of the generation and playback pipeline
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package player

import (
	"errors"
	"fmt"

	"github.com/msto63/spiritflow/internal/audio"
	"github.com/msto63/spiritflow/internal/gemini"
)

// Kind classifies a pipeline failure
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingCredential
	KindRemoteCallFailed
	KindEmptyResult
	KindDecodeFailed
	KindDeviceUnavailable
	KindPlaybackFailed
)

// String returns the identifier of the kind
func (k Kind) String() string {
	switch k {
	case KindMissingCredential:
		return "missing_credential"
	case KindRemoteCallFailed:
		return "remote_call_failed"
	case KindEmptyResult:
		return "empty_result"
	case KindDecodeFailed:
		return "decode_failed"
	case KindDeviceUnavailable:
		return "device_unavailable"
	case KindPlaybackFailed:
		return "playback_failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Message returns the user-facing text for the kind
func (k Kind) Message() string {
	switch k {
	case KindMissingCredential:
		return "API Key is not configured. Please set up your environment variables."
	case KindRemoteCallFailed, KindEmptyResult, KindDecodeFailed:
		return "Sorry, there was an error generating the audio. Please try again."
	case KindDeviceUnavailable:
		return "Your device does not support audio features."
	case KindPlaybackFailed:
		return "Sorry, the audio could not be played. Please try again."
	default:
		return "Sorry, something went wrong. Please try again."
	}
}

// Error is a classified pipeline failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// classify maps collaborator errors onto the taxonomy
func classify(op string, err error) *Error {
	kind := KindRemoteCallFailed
	switch {
	case errors.Is(err, gemini.ErrMissingCredential):
		kind = KindMissingCredential
	case errors.Is(err, gemini.ErrEmptyResult):
		kind = KindEmptyResult
	case errors.Is(err, audio.ErrDecode):
		kind = KindDecodeFailed
	case errors.Is(err, audio.ErrDeviceUnavailable):
		kind = KindDeviceUnavailable
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
