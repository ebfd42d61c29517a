package player

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/msto63/spiritflow/internal/audio"
	"github.com/msto63/spiritflow/internal/meditation"
)

func TestNew_Validation(t *testing.T) {
	opener := func() (audio.Device, error) { return &fakeDevice{}, nil }

	tests := []struct {
		name string
		cfg  Config
	}{
		{"invalid flow", Config{Flow: "noon", Generator: newFakeGenerator(), OpenDevice: opener}},
		{"no generator", Config{Flow: meditation.FlowRise, OpenDevice: opener}},
		{"no device", Config{Flow: meditation.FlowRise, Generator: newFakeGenerator()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestController_InitialState(t *testing.T) {
	tests := []struct {
		name string
		set  meditation.IntentionSet
		want State
	}{
		{"empty", meditation.Rise("", ""), StateLocked},
		{"primary only", meditation.Rise("focus", ""), StateLocked},
		{"whitespace", meditation.Rest("  ", "worry"), StateLocked},
		{"complete", meditation.Rise("focus", "calm"), StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.set)
			if got := h.c.State(); got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestController_IncompleteNeverLeavesLocked(t *testing.T) {
	h := newHarness(t, meditation.Rise("", ""))
	ctx := context.Background()

	for _, set := range []meditation.IntentionSet{
		meditation.Rise("focus", ""),
		meditation.Rise("", "calm"),
		meditation.Rise("focus", " "),
	} {
		h.c.SetIntentions(set)
		if err := h.c.Toggle(ctx); err != nil {
			t.Fatalf("Toggle() error = %v", err)
		}
		if got := h.c.State(); got != StateLocked {
			t.Fatalf("State() = %v, want Locked for %+v", got, set)
		}
	}

	if n := h.gen.textCalls(); n != 0 {
		t.Errorf("text calls = %d, want 0", n)
	}
	if h.opens != 0 {
		t.Errorf("device opens = %d, want 0", h.opens)
	}
}

func TestController_RiseScenario(t *testing.T) {
	h := newHarness(t, meditation.Rise("", ""))
	h.c.SetIntentions(meditation.Rise("focus", "calm"))
	if got := h.c.State(); got != StateIdle {
		t.Fatalf("State() = %v, want Idle", got)
	}

	if err := h.c.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	if got := h.c.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing", got)
	}
	if h.gen.textCalls() != 1 || h.gen.speechCalls() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", h.gen.textCalls(), h.gen.speechCalls())
	}

	prompt := h.gen.prompts[0]
	if !strings.Contains(prompt, "focus") || !strings.Contains(prompt, "calm") {
		t.Errorf("prompt does not embed intentions: %q", prompt)
	}
	if h.gen.voices[0] != meditation.VoiceRise {
		t.Errorf("voice = %q, want %q", h.gen.voices[0], meditation.VoiceRise)
	}
	want := "Say with a calm, gentle, and reassuring voice: Breathe in slowly."
	if h.gen.speechTexts[0] != want {
		t.Errorf("speech text = %q, want %q", h.gen.speechTexts[0], want)
	}

	snap := h.c.Snapshot()
	if snap.Script != "Breathe in slowly." || !snap.HasAudio {
		t.Errorf("Snapshot() = %+v, want cached script and audio", snap)
	}
	if h.dev.streamCount() != 1 {
		t.Errorf("streams = %d, want 1", h.dev.streamCount())
	}
}

func TestController_RestUsesZephyr(t *testing.T) {
	h := newHarness(t, meditation.Rest("finished the report", "worry"))
	if err := h.c.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if h.gen.voices[0] != meditation.VoiceRest {
		t.Errorf("voice = %q, want %q", h.gen.voices[0], meditation.VoiceRest)
	}
}

func TestController_ToggleDuringGeneratingIsDropped(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	h.gen.block = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.c.Toggle(ctx) }()
	waitForState(t, h.c, StateGenerating)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.c.Toggle(ctx); err != nil {
				t.Errorf("Toggle() during generation error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := h.c.State(); got != StateGenerating {
		t.Errorf("State() = %v, want Generating", got)
	}

	close(h.gen.block)
	if err := <-done; err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	if n := h.gen.textCalls(); n != 1 {
		t.Errorf("text calls = %d, want 1", n)
	}
	if got := h.c.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing", got)
	}
}

func TestController_ReplayReusesBuffer(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	ctx := context.Background()

	steps := []State{StatePlaying, StateReady, StatePlaying, StateReady, StatePlaying}
	for i, want := range steps {
		if err := h.c.Toggle(ctx); err != nil {
			t.Fatalf("Toggle() #%d error = %v", i, err)
		}
		if got := h.c.State(); got != want {
			t.Fatalf("after toggle #%d State() = %v, want %v", i, got, want)
		}
	}

	if n := h.gen.textCalls(); n != 1 {
		t.Errorf("text calls = %d, want 1", n)
	}
	if n := h.dev.streamCount(); n != 3 {
		t.Errorf("streams = %d, want 3", n)
	}
	for i := 0; i < 2; i++ {
		if !h.dev.stream(i).isStopped() {
			t.Errorf("stream %d was not stopped", i)
		}
	}
	if h.opens != 1 {
		t.Errorf("device opens = %d, want 1", h.opens)
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	if err := h.c.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	h.c.Stop()
	h.c.Stop()

	if got := h.c.State(); got != StateReady {
		t.Errorf("State() = %v, want Ready", got)
	}
	// Stopping an already ended stream must not surface an error.
	if err := h.dev.stream(0).Stop(); !errors.Is(err, audio.ErrStreamEnded) {
		t.Errorf("second Stop() = %v, want ErrStreamEnded", err)
	}
	if len(h.rec.notices()) != 0 {
		t.Errorf("notices = %v, want none", h.rec.notices())
	}
}

func TestController_NaturalEndReturnsToReady(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	if err := h.c.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	h.dev.stream(0).finish()

	if got := h.c.State(); got != StateReady {
		t.Errorf("State() = %v, want Ready", got)
	}
	if !h.c.Snapshot().HasAudio {
		t.Error("buffer should stay cached after playback ends")
	}
}

func TestController_StaleEndCallbackIgnored(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	ctx := context.Background()

	if err := h.c.Toggle(ctx); err != nil { // Playing, stream 0
		t.Fatal(err)
	}
	if err := h.c.Toggle(ctx); err != nil { // Ready
		t.Fatal(err)
	}
	if err := h.c.Toggle(ctx); err != nil { // Playing, stream 1
		t.Fatal(err)
	}

	old := h.dev.stream(0)
	old.mu.Lock()
	staleCallback := old.callbacks[0]
	old.mu.Unlock()

	staleCallback()

	if got := h.c.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing after stale callback", got)
	}

	h.dev.stream(1).finish()
	if got := h.c.State(); got != StateReady {
		t.Errorf("State() = %v, want Ready after current stream ended", got)
	}
}

func TestController_IntentionChangeInvalidates(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	ctx := context.Background()

	if err := h.c.Toggle(ctx); err != nil {
		t.Fatal(err)
	}

	h.c.SetIntentions(meditation.Rise("courage", "calm"))

	if got := h.c.State(); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}
	if !h.dev.stream(0).isStopped() {
		t.Error("playback should stop on intention change")
	}
	snap := h.c.Snapshot()
	if snap.HasAudio || snap.Script != "" {
		t.Errorf("cache not cleared: %+v", snap)
	}

	if err := h.c.Toggle(ctx); err != nil {
		t.Fatal(err)
	}
	if n := h.gen.textCalls(); n != 2 {
		t.Errorf("text calls = %d, want 2", n)
	}
	if !strings.Contains(h.gen.prompts[1], "courage") {
		t.Errorf("second prompt = %q, want new intention", h.gen.prompts[1])
	}
}

func TestController_SameIntentionsKeepCache(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	if err := h.c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.c.SetIntentions(meditation.Rise("focus", "calm"))

	if got := h.c.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing", got)
	}
	if !h.c.Snapshot().HasAudio {
		t.Error("cache should survive an unchanged update")
	}
}

func TestController_ClearedFieldStaysIdle(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	ctx := context.Background()
	if err := h.c.Toggle(ctx); err != nil {
		t.Fatal(err)
	}

	h.c.SetIntentions(meditation.Rise("focus", ""))
	if got := h.c.State(); got != StateIdle {
		t.Fatalf("State() = %v, want Idle", got)
	}

	if err := h.c.Toggle(ctx); err != nil {
		t.Fatal(err)
	}
	if n := h.gen.textCalls(); n != 1 {
		t.Errorf("text calls = %d, want 1 while incomplete", n)
	}
}

func TestController_MissingCredential(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	h.gen.hasKey = false

	err := h.c.Toggle(context.Background())
	if KindOf(err) != KindMissingCredential {
		t.Fatalf("Toggle() error = %v, want MissingCredential", err)
	}

	if got := h.c.State(); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}
	if h.gen.textCalls() != 0 || h.gen.speechCalls() != 0 {
		t.Error("no remote call should be made without a credential")
	}
	if h.opens != 0 {
		t.Errorf("device opens = %d, want 0", h.opens)
	}

	notices := h.rec.notices()
	if len(notices) != 1 || notices[0].Kind != KindMissingCredential {
		t.Fatalf("notices = %+v, want one MissingCredential", notices)
	}
	if notices[0].Message != KindMissingCredential.Message() {
		t.Errorf("notice message = %q", notices[0].Message)
	}
}

func TestController_DeviceFailureDisables(t *testing.T) {
	gen := newFakeGenerator()
	rec := &recorder{}
	opens := 0
	c, err := New(Config{
		Flow:       meditation.FlowRest,
		Intentions: meditation.Rest("report", "worry"),
		Generator:  gen,
		OpenDevice: func() (audio.Device, error) {
			opens++
			return nil, audio.ErrDeviceUnavailable
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	c.AddListener(rec.listen)
	ctx := context.Background()

	err = c.Toggle(ctx)
	if KindOf(err) != KindDeviceUnavailable {
		t.Fatalf("Toggle() error = %v, want DeviceUnavailable", err)
	}
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Error("error should wrap audio.ErrDeviceUnavailable")
	}
	if !c.Snapshot().Disabled {
		t.Error("controller should be disabled")
	}

	if err := c.Toggle(ctx); err != nil {
		t.Errorf("Toggle() after disable = %v, want nil", err)
	}
	if opens != 1 {
		t.Errorf("device opens = %d, want 1", opens)
	}
	if gen.textCalls() != 0 {
		t.Errorf("text calls = %d, want 0", gen.textCalls())
	}
	if n := len(rec.notices()); n != 1 {
		t.Errorf("notices = %d, want 1", n)
	}
}

func TestController_PipelineFailure(t *testing.T) {
	remote := errors.New("503 unavailable")

	tests := []struct {
		name  string
		setup func(g *fakeGenerator)
		want  Kind
	}{
		{"text call fails", func(g *fakeGenerator) { g.textErr = remote }, KindRemoteCallFailed},
		{"empty script", func(g *fakeGenerator) { g.script = "" }, KindEmptyResult},
		{"speech call fails", func(g *fakeGenerator) { g.speechErr = remote }, KindRemoteCallFailed},
		{"no audio part", func(g *fakeGenerator) { g.speech = nil }, KindEmptyResult},
		{"invalid base64", func(g *fakeGenerator) { g.speech.Data = "%%%" }, KindDecodeFailed},
		{"odd byte count", func(g *fakeGenerator) { g.speech.Data = "AAAA" }, KindDecodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, meditation.Rise("focus", "calm"))
			tt.setup(h.gen)

			err := h.c.Toggle(context.Background())
			if KindOf(err) != tt.want {
				t.Fatalf("Toggle() error = %v, want kind %v", err, tt.want)
			}
			if got := h.c.State(); got != StateIdle {
				t.Errorf("State() = %v, want Idle", got)
			}
			if snap := h.c.Snapshot(); snap.HasAudio || snap.Script != "" {
				t.Errorf("nothing should be cached: %+v", snap)
			}
			if h.dev.streamCount() != 0 {
				t.Error("no stream should be created")
			}
			notices := h.rec.notices()
			if len(notices) != 1 || notices[0].Kind != tt.want {
				t.Errorf("notices = %+v", notices)
			}
		})
	}
}

func TestController_NoAutomaticRetry(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	h.gen.textErr = errors.New("timeout")
	ctx := context.Background()

	_ = h.c.Toggle(ctx)
	if n := h.gen.textCalls(); n != 1 {
		t.Fatalf("text calls = %d, want 1", n)
	}

	h.gen.mu.Lock()
	h.gen.textErr = nil
	h.gen.mu.Unlock()

	if err := h.c.Toggle(ctx); err != nil {
		t.Fatalf("retry Toggle() error = %v", err)
	}
	if got := h.c.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing", got)
	}
}

func TestController_ResultDiscardedAfterIntentionChange(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	h.gen.block = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.c.Toggle(ctx) }()
	waitForState(t, h.c, StateGenerating)

	h.c.SetIntentions(meditation.Rise("courage", "joy"))
	if got := h.c.State(); got != StateGenerating {
		t.Errorf("State() = %v, want Generating until the pipeline returns", got)
	}

	close(h.gen.block)
	if err := <-done; err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	if got := h.c.State(); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}
	if h.c.Snapshot().HasAudio {
		t.Error("outdated audio must not be cached")
	}
	if h.dev.streamCount() != 0 {
		t.Error("outdated audio must not play")
	}

	h.gen.mu.Lock()
	h.gen.block = nil
	h.gen.mu.Unlock()

	if err := h.c.Toggle(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.gen.prompts[1], "courage") {
		t.Errorf("prompt = %q, want new intentions", h.gen.prompts[1])
	}
}

func TestController_ResumesSuspendedDevice(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	h.dev.suspended = true

	if err := h.c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.dev.resumes != 1 {
		t.Errorf("resumes = %d, want 1", h.dev.resumes)
	}
}

func TestController_PlaybackFailure(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	h.dev.startErr = errors.New("stream busy")

	err := h.c.Toggle(context.Background())
	if KindOf(err) != KindPlaybackFailed {
		t.Fatalf("Toggle() error = %v, want PlaybackFailed", err)
	}
	if got := h.c.State(); got != StateReady {
		t.Errorf("State() = %v, want Ready", got)
	}
	if !h.c.Snapshot().HasAudio {
		t.Error("audio should remain cached for replay")
	}
}

func TestController_EventSequence(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	if err := h.c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}

	var transitions []State
	var generated int
	var lastSeq uint64
	for _, e := range h.rec.all() {
		if e.Seq <= lastSeq {
			t.Errorf("seq %d not increasing after %d", e.Seq, lastSeq)
		}
		lastSeq = e.Seq
		if e.Flow != meditation.FlowRise {
			t.Errorf("event flow = %v", e.Flow)
		}

		switch e.Type {
		case EventStateChanged:
			transitions = append(transitions, e.To)
		case EventGenerated:
			generated++
			if e.Generation.Voice != meditation.VoiceRise || e.Generation.Duration <= 0 {
				t.Errorf("generation = %+v", e.Generation)
			}
		}
	}

	want := []State{StateGenerating, StateReady, StatePlaying}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
	if generated != 1 {
		t.Errorf("generated events = %d, want 1", generated)
	}
}

type noticeSink struct{ got []Notice }

func (s *noticeSink) Notify(n Notice) { s.got = append(s.got, n) }

// runWithin fails the test if fn does not return in time
func runWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("call did not return within %v", d)
	}
}

func TestController_ListenerCallsBack(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))

	var stopped int
	h.c.AddListener(func(e Event) {
		if e.Type == EventGenerated {
			stopped++
			h.c.Stop()
		}
	})

	runWithin(t, 2*time.Second, func() {
		if err := h.c.Toggle(context.Background()); err != nil {
			t.Errorf("Toggle() error = %v", err)
		}
	})

	if stopped != 1 {
		t.Errorf("listener ran %d times, want 1", stopped)
	}
	if got := h.c.State(); got != StateReady {
		t.Errorf("state = %v, want Ready", got)
	}

	var lastSeq uint64
	var last State
	for _, e := range h.rec.all() {
		if e.Seq <= lastSeq {
			t.Errorf("seq %d not increasing after %d", e.Seq, lastSeq)
		}
		lastSeq = e.Seq
		if e.Type == EventStateChanged {
			last = e.To
		}
	}
	if last != StateReady {
		t.Errorf("last delivered state = %v, want Ready", last)
	}
}

func TestController_ListenerSnapshotDuringConcurrentStop(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	h.c.AddListener(func(Event) {
		_ = h.c.Snapshot()
		_ = h.c.State()
	})

	var wg sync.WaitGroup
	quit := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-quit:
				return
			default:
				h.c.Stop()
			}
		}
	}()

	runWithin(t, 2*time.Second, func() {
		for i := 0; i < 20; i++ {
			if err := h.c.Toggle(context.Background()); err != nil {
				t.Errorf("Toggle() error = %v", err)
			}
		}
	})
	close(quit)
	runWithin(t, 2*time.Second, wg.Wait)

	if h.gen.textCalls() != 1 {
		t.Errorf("text calls = %d, want 1", h.gen.textCalls())
	}
}

func TestNotifyListener(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	sink := &noticeSink{}
	h.c.AddListener(NotifyListener(sink))
	h.gen.hasKey = false

	_ = h.c.Toggle(context.Background())

	if len(sink.got) != 1 || sink.got[0].Kind != KindMissingCredential {
		t.Errorf("notified = %+v", sink.got)
	}
}

func TestController_Close(t *testing.T) {
	h := newHarness(t, meditation.Rise("focus", "calm"))
	ctx := context.Background()
	if err := h.c.Toggle(ctx); err != nil {
		t.Fatal(err)
	}

	if err := h.c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !h.dev.stream(0).isStopped() {
		t.Error("Close() should stop playback")
	}
	if !h.dev.closed {
		t.Error("Close() should release the device")
	}

	if err := h.c.Toggle(ctx); err != nil {
		t.Errorf("Toggle() after Close = %v", err)
	}
	if h.dev.streamCount() != 1 {
		t.Error("Toggle() after Close must not play")
	}
	if err := h.c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestController_NullDevicePlaysToEnd(t *testing.T) {
	gen := newFakeGenerator()
	dev := audio.NewNullDevice(audio.DefaultDeviceConfig())
	c, err := New(Config{
		Flow:       meditation.FlowRise,
		Intentions: meditation.Rise("focus", "calm"),
		Generator:  gen,
		OpenDevice: func() (audio.Device, error) { return dev, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	// four samples at 24 kHz end almost immediately
	waitForState(t, c, StateReady)
}
