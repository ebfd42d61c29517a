package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func staticKey(key string) CredentialFunc {
	return func() (string, bool) { return key, key != "" }
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	c := NewClient(Config{
		BaseURL:    server.URL,
		Credential: staticKey("test-key"),
	})
	return c, &calls
}

func TestGenerateText(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Contents[0].Parts[0].Text != "hello prompt" {
			t.Errorf("prompt = %q", req.Contents[0].Parts[0].Text)
		}
		if req.GenerationConfig != nil {
			t.Error("text request should not carry generationConfig")
		}

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Breathe in. "},{"text":"Breathe out."}]}}]}`))
	})

	got, err := c.GenerateText(context.Background(), "hello prompt")
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if got != "Breathe in. Breathe out." {
		t.Errorf("GenerateText() = %q", got)
	}
}

func TestGenerateText_Empty(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no candidates", `{"candidates":[]}`},
		{"blank text", `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`},
		{"no parts", `{"candidates":[{"content":{"parts":[]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			if _, err := c.GenerateText(context.Background(), "p"); !errors.Is(err, ErrEmptyResult) {
				t.Errorf("GenerateText() error = %v, want ErrEmptyResult", err)
			}
		})
	}
}

func TestSynthesizeSpeech(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/gemini-2.5-flash-preview-tts:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gc := req.GenerationConfig
		if gc == nil || len(gc.ResponseModalities) != 1 || gc.ResponseModalities[0] != "AUDIO" {
			t.Fatalf("generationConfig = %+v", gc)
		}
		if gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Zephyr" {
			t.Errorf("voice = %q", gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
		}

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"AAABAA=="}}]}}]}`))
	})

	speech, err := c.SynthesizeSpeech(context.Background(), "Say calmly: rest", "Zephyr")
	if err != nil {
		t.Fatalf("SynthesizeSpeech() error = %v", err)
	}
	if speech.Data != "AAABAA==" {
		t.Errorf("Data = %q", speech.Data)
	}
	if !strings.HasPrefix(speech.MimeType, "audio/L16") {
		t.Errorf("MimeType = %q", speech.MimeType)
	}
}

func TestSynthesizeSpeech_NoAudio(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`))
	})
	if _, err := c.SynthesizeSpeech(context.Background(), "t", "Kore"); !errors.Is(err, ErrEmptyResult) {
		t.Errorf("SynthesizeSpeech() error = %v, want ErrEmptyResult", err)
	}
}

func TestAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := c.GenerateText(context.Background(), "p")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 429 || apiErr.Status != "RESOURCE_EXHAUSTED" || apiErr.Message != "quota exhausted" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestMissingCredential_NoRequest(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	c.credential = staticKey("")

	if c.HasCredential() {
		t.Error("HasCredential() = true without key")
	}
	if _, err := c.GenerateText(context.Background(), "p"); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("GenerateText() error = %v, want ErrMissingCredential", err)
	}
	if _, err := c.SynthesizeSpeech(context.Background(), "t", "Kore"); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("SynthesizeSpeech() error = %v, want ErrMissingCredential", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server received %d requests, want 0", calls.Load())
	}
}

func TestEnvCredential(t *testing.T) {
	t.Setenv("SPIRITFLOW_TEST_KEY_A", "")
	t.Setenv("SPIRITFLOW_TEST_KEY_B", "secret")

	key, ok := EnvCredential("SPIRITFLOW_TEST_KEY_A", "SPIRITFLOW_TEST_KEY_B")()
	if !ok || key != "secret" {
		t.Errorf("EnvCredential() = %q, %v", key, ok)
	}

	if _, ok := EnvCredential("SPIRITFLOW_TEST_KEY_A")(); ok {
		t.Error("EnvCredential() with empty variable should report absence")
	}
}

func TestCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GenerateText(ctx, "p")
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Errorf("GenerateText() error = %v, want context.Canceled", err)
	}
}
