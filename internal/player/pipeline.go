// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     player
// Description: Generation pipeline: prompt -> script -> speech -> PCM buffer
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package player

import (
	"context"
	"fmt"
	"time"

	"github.com/msto63/spiritflow/internal/audio"
	"github.com/msto63/spiritflow/internal/gemini"
	"github.com/msto63/spiritflow/internal/meditation"
)

// Generator is the remote generative service
type Generator interface {
	// HasCredential reports whether a key is available right now
	HasCredential() bool

	// GenerateText returns the model's text for prompt
	GenerateText(ctx context.Context, prompt string) (string, error)

	// SynthesizeSpeech voices text and returns base64 PCM
	SynthesizeSpeech(ctx context.Context, text, voice string) (*gemini.Speech, error)
}

// Result is the output of one pipeline run
type Result struct {
	Prompt  string
	Script  string
	Voice   string
	Buffer  *audio.Buffer
	Elapsed time.Duration
}

// Pipeline runs the three sequential generation steps
type Pipeline struct {
	catalog   *meditation.Catalog
	generator Generator
}

// NewPipeline creates a pipeline over catalog and generator
func NewPipeline(catalog *meditation.Catalog, generator Generator) *Pipeline {
	if catalog == nil {
		catalog = meditation.DefaultCatalog()
	}
	return &Pipeline{catalog: catalog, generator: generator}
}

// Catalog returns the prompt catalog in use
func (p *Pipeline) Catalog() *meditation.Catalog {
	return p.catalog
}

// CheckCredential fails with KindMissingCredential when no key is set
func (p *Pipeline) CheckCredential() error {
	if !p.generator.HasCredential() {
		return &Error{Kind: KindMissingCredential, Op: "check credential", Err: gemini.ErrMissingCredential}
	}
	return nil
}

// Run generates and decodes audio for set. Nothing is retained on failure.
func (p *Pipeline) Run(ctx context.Context, set meditation.IntentionSet) (*Result, error) {
	start := time.Now()

	if err := p.CheckCredential(); err != nil {
		return nil, err
	}

	prompt, err := p.catalog.Prompt(set)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: "build prompt", Err: err}
	}

	script, err := p.generator.GenerateText(ctx, prompt)
	if err != nil {
		return nil, classify("generate script", err)
	}
	if script == "" {
		return nil, classify("generate script", gemini.ErrEmptyResult)
	}

	text, err := p.catalog.SpeechText(script)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: "build speech text", Err: err}
	}

	voice := p.catalog.Voice(set.Flow)
	speech, err := p.generator.SynthesizeSpeech(ctx, text, voice)
	if err != nil {
		return nil, classify("synthesize speech", err)
	}
	if speech == nil || speech.Data == "" {
		return nil, classify("synthesize speech", gemini.ErrEmptyResult)
	}

	pcm, err := audio.DecodeBase64(speech.Data)
	if err != nil {
		return nil, &Error{Kind: KindDecodeFailed, Op: "decode speech", Err: err}
	}
	buf, err := audio.DecodePCM16(pcm, audio.SpeechSampleRate, audio.SpeechChannels)
	if err != nil {
		return nil, &Error{Kind: KindDecodeFailed, Op: "decode speech", Err: fmt.Errorf("%d bytes: %w", len(pcm), err)}
	}

	return &Result{
		Prompt:  prompt,
		Script:  script,
		Voice:   voice,
		Buffer:  buf,
		Elapsed: time.Since(start),
	}, nil
}
