// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     gemini
// Description: Gemini REST client for script generation and speech synthesis
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/msto63/spiritflow/pkg/core/logging"
	"github.com/msto63/spiritflow/pkg/core/version"
)

var (
	// ErrMissingCredential is returned before any request when no API key is set
	ErrMissingCredential = errors.New("gemini API key is not configured")

	// ErrEmptyResult is returned when a response carries no usable content
	ErrEmptyResult = errors.New("gemini returned no content")
)

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini returned %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini returned %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// CredentialFunc returns the API key, read at call time
type CredentialFunc func() (string, bool)

// EnvCredential reads the first non-empty variable from names
func EnvCredential(names ...string) CredentialFunc {
	return func() (string, bool) {
		for _, name := range names {
			if v := strings.TrimSpace(os.Getenv(name)); v != "" {
				return v, true
			}
		}
		return "", false
	}
}

// Config holds Gemini client configuration
type Config struct {
	BaseURL     string
	TextModel   string
	SpeechModel string
	Timeout     time.Duration
	Credential  CredentialFunc
	HTTPClient  *http.Client
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://generativelanguage.googleapis.com",
		TextModel:   "gemini-2.5-flash",
		SpeechModel: "gemini-2.5-flash-preview-tts",
		Timeout:     90 * time.Second,
		Credential:  EnvCredential("API_KEY", "GEMINI_API_KEY"),
	}
}

// Client talks to the generateContent endpoint
type Client struct {
	baseURL     string
	textModel   string
	speechModel string
	credential  CredentialFunc
	httpClient  *http.Client
	logger      *logging.Logger
}

// NewClient creates a new Gemini client
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.TextModel == "" {
		cfg.TextModel = def.TextModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = def.SpeechModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Credential == nil {
		cfg.Credential = def.Credential
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		textModel:   cfg.TextModel,
		speechModel: cfg.SpeechModel,
		credential:  cfg.Credential,
		httpClient:  httpClient,
		logger:      logging.New("gemini"),
	}
}

// Part is one piece of content
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64 encoded binary content
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

// Content is a role-tagged list of parts
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// PrebuiltVoiceConfig selects a named voice
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// VoiceConfig wraps the voice selection
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

// SpeechConfig configures audio output
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

// GenerationConfig holds output options
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// GenerateRequest is the generateContent request body
type GenerateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Candidate is one generated alternative
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// GenerateResponse is the generateContent response body
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Speech is a synthesized audio payload, still base64 encoded
type Speech struct {
	MimeType string
	Data     string
}

// HasCredential reports whether an API key is currently available
func (c *Client) HasCredential() bool {
	_, ok := c.credential()
	return ok
}

// GenerateText sends prompt to the text model and returns the generated text
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	req := GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
	}

	resp, err := c.generate(ctx, c.textModel, req)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResult
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

// SynthesizeSpeech voices text with the named prebuilt voice
func (c *Client) SynthesizeSpeech(ctx context.Context, text, voice string) (*Speech, error) {
	req := GenerateRequest{
		Contents: []Content{{Parts: []Part{{Text: text}}}},
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &SpeechConfig{
				VoiceConfig: VoiceConfig{
					PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	}

	resp, err := c.generate(ctx, c.speechModel, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResult
	}

	inline := resp.Candidates[0].Content.Parts[0].InlineData
	if inline == nil || inline.Data == "" {
		return nil, ErrEmptyResult
	}
	return &Speech{MimeType: inline.MimeType, Data: inline.Data}, nil
}

func (c *Client) generate(ctx context.Context, model string, req GenerateRequest) (*GenerateResponse, error) {
	key, ok := c.credential()
	if !ok {
		return nil, ErrMissingCredential
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.Header.Set("x-goog-api-key", key)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("generateContent finished",
		"model", model,
		"status", resp.StatusCode,
		"bytes", len(respBody),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error.Message != "" {
			apiErr.Status = er.Error.Status
			apiErr.Message = er.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, apiErr
	}

	var out GenerateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// TextModel returns the configured text model
func (c *Client) TextModel() string { return c.textModel }

// SpeechModel returns the configured speech model
func (c *Client) SpeechModel() string { return c.speechModel }
