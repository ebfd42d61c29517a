package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/msto63/spiritflow/internal/audio"
	"github.com/msto63/spiritflow/internal/gemini"
	"github.com/msto63/spiritflow/internal/meditation"
)

func TestPipeline_Run(t *testing.T) {
	gen := newFakeGenerator()
	p := NewPipeline(nil, gen)

	res, err := p.Run(context.Background(), meditation.Rest("finished the report", "worry about tomorrow"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.Contains(res.Prompt, "finished the report") || !strings.Contains(res.Prompt, "worry about tomorrow") {
		t.Errorf("Prompt = %q", res.Prompt)
	}
	if res.Script != "Breathe in slowly." {
		t.Errorf("Script = %q", res.Script)
	}
	if res.Voice != meditation.VoiceRest {
		t.Errorf("Voice = %q, want %q", res.Voice, meditation.VoiceRest)
	}

	buf := res.Buffer
	if buf.SampleRate() != audio.SpeechSampleRate || buf.Channels() != 1 || buf.Frames() != 4 {
		t.Fatalf("buffer = %d Hz, %d ch, %d frames", buf.SampleRate(), buf.Channels(), buf.Frames())
	}
	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	for i, v := range buf.ChannelData(0) {
		if v != want[i] {
			t.Errorf("sample %d = %v, want %v", i, v, want[i])
		}
	}
}

func TestPipeline_RunIncomplete(t *testing.T) {
	gen := newFakeGenerator()
	p := NewPipeline(nil, gen)

	if _, err := p.Run(context.Background(), meditation.Rise("focus", "")); err == nil {
		t.Fatal("Run() should fail for an incomplete set")
	}
	if gen.textCalls() != 0 {
		t.Error("no remote call expected")
	}
}

func TestPipeline_CheckCredential(t *testing.T) {
	gen := newFakeGenerator()
	gen.hasKey = false
	p := NewPipeline(nil, gen)

	err := p.CheckCredential()
	if !errors.Is(err, gemini.ErrMissingCredential) {
		t.Errorf("CheckCredential() = %v, want ErrMissingCredential", err)
	}

	if _, err := p.Run(context.Background(), meditation.Rise("focus", "calm")); KindOf(err) != KindMissingCredential {
		t.Errorf("Run() error = %v, want MissingCredential", err)
	}
	if gen.textCalls() != 0 {
		t.Error("no remote call expected")
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	gen := newFakeGenerator()
	gen.block = make(chan struct{})
	p := NewPipeline(nil, gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, meditation.Rise("focus", "calm"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if KindOf(err) != KindRemoteCallFailed {
		t.Errorf("kind = %v, want RemoteCallFailed", KindOf(err))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"credential", fmt.Errorf("wrap: %w", gemini.ErrMissingCredential), KindMissingCredential},
		{"empty", gemini.ErrEmptyResult, KindEmptyResult},
		{"api error", &gemini.APIError{StatusCode: 500, Status: "500 Internal Server Error"}, KindRemoteCallFailed},
		{"decode", fmt.Errorf("bad: %w", audio.ErrDecode), KindDecodeFailed},
		{"device", audio.ErrDeviceUnavailable, KindDeviceUnavailable},
		{"other", errors.New("connection reset"), KindRemoteCallFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			if got.Kind != tt.want {
				t.Errorf("classify() kind = %v, want %v", got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the cause")
			}
		})
	}
}

func TestKind_Message(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindMissingCredential, "API Key is not configured"},
		{KindRemoteCallFailed, "error generating the audio"},
		{KindEmptyResult, "error generating the audio"},
		{KindDecodeFailed, "error generating the audio"},
		{KindDeviceUnavailable, "does not support audio"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Message(); !strings.Contains(got, tt.want) {
				t.Errorf("Message() = %q, want to contain %q", got, tt.want)
			}
		})
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{Kind: KindDecodeFailed, Op: "decode speech", Err: audio.ErrDecode}
	if got := err.Error(); !strings.HasPrefix(got, "decode speech: decode_failed") {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(fmt.Errorf("outer: %w", err)) != KindDecodeFailed {
		t.Error("KindOf should see through wrapping")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf(plain) should be unknown")
	}
}

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		valid    bool
	}{
		{StateLocked, StateIdle, true},
		{StateLocked, StateGenerating, false},
		{StateIdle, StateGenerating, true},
		{StateIdle, StatePlaying, false},
		{StateGenerating, StateReady, true},
		{StateGenerating, StateIdle, true},
		{StateGenerating, StatePlaying, false},
		{StateReady, StatePlaying, true},
		{StatePlaying, StateReady, true},
		{StatePlaying, StateIdle, true},
		{StateIdle, StateLocked, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := isValidTransition(tt.from, tt.to); got != tt.valid {
				t.Errorf("isValidTransition() = %v, want %v", got, tt.valid)
			}
		})
	}
}
