package player

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/msto63/spiritflow/internal/audio"
	"github.com/msto63/spiritflow/internal/gemini"
	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/pkg/core/logging"
)

// pcmSpeech encodes samples as a base64 LE int16 payload
func pcmSpeech(samples ...int16) *gemini.Speech {
	data := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}
	return &gemini.Speech{
		MimeType: "audio/L16;codec=pcm;rate=24000",
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

type fakeGenerator struct {
	mu sync.Mutex

	hasKey    bool
	script    string
	textErr   error
	speech    *gemini.Speech
	speechErr error

	// block holds GenerateText until closed or sent to
	block chan struct{}

	prompts     []string
	speechTexts []string
	voices      []string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		hasKey: true,
		script: "Breathe in slowly.",
		speech: pcmSpeech(0, 16384, -32768, 32767),
	}
}

func (g *fakeGenerator) HasCredential() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasKey
}

func (g *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	block := g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.script, g.textErr
}

func (g *fakeGenerator) SynthesizeSpeech(ctx context.Context, text, voice string) (*gemini.Speech, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.speechTexts = append(g.speechTexts, text)
	g.voices = append(g.voices, voice)
	return g.speech, g.speechErr
}

func (g *fakeGenerator) textCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *fakeGenerator) speechCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

type fakeStream struct {
	mu        sync.Mutex
	started   bool
	ended     bool
	stopped   bool
	startErr  error
	onEnded   func()
	callbacks []func()
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	if s.started {
		return audio.ErrStreamStarted
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return audio.ErrStreamEnded
	}
	s.ended = true
	s.stopped = true
	fn := s.onEnded
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

func (s *fakeStream) SetOnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
	if fn != nil {
		s.callbacks = append(s.callbacks, fn)
	}
}

// finish simulates the buffer playing to its end
func (s *fakeStream) finish() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	fn := s.onEnded
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevice struct {
	mu        sync.Mutex
	suspended bool
	resumes   int
	closed    bool
	streamErr error
	startErr  error
	streams   []*fakeStream
}

func (d *fakeDevice) SampleRate() int { return audio.SpeechSampleRate }

func (d *fakeDevice) Suspended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suspended
}

func (d *fakeDevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspended = false
	d.resumes++
	return nil
}

func (d *fakeDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspended = true
	return nil
}

func (d *fakeDevice) NewStream(buf *audio.Buffer) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streamErr != nil {
		return nil, d.streamErr
	}
	s := &fakeStream{startErr: d.startErr}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) stream(i int) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.streams) {
		return nil
	}
	return d.streams[i]
}

func (d *fakeDevice) streamCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

// recorder collects controller events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, e := range r.events {
		if e.Type == EventNotice {
			out = append(out, *e.Notice)
		}
	}
	return out
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type harness struct {
	c     *Controller
	gen   *fakeGenerator
	dev   *fakeDevice
	rec   *recorder
	opens int
}

func newHarness(t *testing.T, set meditation.IntentionSet) *harness {
	t.Helper()
	h := &harness{
		gen: newFakeGenerator(),
		dev: &fakeDevice{},
		rec: &recorder{},
	}

	c, err := New(Config{
		Flow:       set.Flow,
		Intentions: set,
		Generator:  h.gen,
		OpenDevice: func() (audio.Device, error) {
			h.opens++
			return h.dev, nil
		},
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.AddListener(h.rec.listen)
	t.Cleanup(func() { c.Close() })

	h.c = c
	return h
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}
