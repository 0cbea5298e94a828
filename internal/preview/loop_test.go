package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixshop/internal/catalog"
	"pixshop/internal/providers/genai"
)

const tick = 30 * time.Millisecond

type fakeRenderer struct {
	mu       sync.Mutex
	prompts  []string
	requests []genai.ImageRequest
	gate     chan struct{}
	fail     error
}

func (f *fakeRenderer) GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageResult, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		return nil, f.fail
	}
	return &genai.ImageResult{Image: genai.ImageInput{Data: []byte(req.Prompt), MimeType: "image/png"}}, nil
}

func (f *fakeRenderer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type recorder struct {
	ch chan *genai.ImageInput
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *genai.ImageInput, 16)}
}

func (r *recorder) sink(img *genai.ImageInput) { r.ch <- img }

func (r *recorder) next(t *testing.T) *genai.ImageInput {
	t.Helper()
	select {
	case img := <-r.ch:
		return img
	case <-time.After(2 * time.Second):
		t.Fatal("no preview delivered")
		return nil
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case img := <-r.ch:
		t.Fatalf("unexpected preview %v", img)
	case <-time.After(wait):
	}
}

func newLoop(t *testing.T, r Renderer, rec *recorder) *Loop {
	t.Helper()
	l, err := NewLoop(Options{Renderer: r, Sink: rec.sink, Debounce: tick, TouchDebounce: 3 * tick})
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestBurstOfEditsRendersOnce(t *testing.T) {
	r := &fakeRenderer{}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetEnabled(true)

	for _, p := range []string{"a", "a c", "a ca", "a cat", "a cat on a roof"} {
		l.Edit(p)
	}

	img := rec.next(t)
	require.NotNil(t, img)
	assert.Equal(t, "a cat on a roof", string(img.Data))
	rec.none(t, 3*tick)
	assert.Equal(t, []string{"a cat on a roof"}, r.calls())

	req := r.requests[0]
	assert.Equal(t, "preview", req.Op)
	assert.Equal(t, "1:1", req.AspectRatio)
	assert.Equal(t, catalog.MustDefault().Protocol(catalog.ProtocolPreview), req.SystemInstruction)
}

func TestEditWhileDisabledDoesNothing(t *testing.T) {
	r := &fakeRenderer{}
	rec := newRecorder()
	l := newLoop(t, r, rec)

	l.Edit("a cat")
	rec.none(t, 3*tick)
	assert.Empty(t, r.calls())

	l.SetEnabled(true)
	img := rec.next(t)
	require.NotNil(t, img)
	assert.Equal(t, "a cat", string(img.Data))
}

func TestDisableCancelsPendingAndClears(t *testing.T) {
	r := &fakeRenderer{}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetEnabled(true)

	l.Edit("a cat")
	l.SetEnabled(false)

	assert.Nil(t, rec.next(t))
	rec.none(t, 3*tick)
	assert.Empty(t, r.calls())
}

func TestDisableDropsInFlightResult(t *testing.T) {
	r := &fakeRenderer{gate: make(chan struct{})}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetEnabled(true)
	l.Edit("a cat")

	require.Eventually(t, func() bool { return len(r.calls()) == 1 }, time.Second, 5*time.Millisecond)
	l.SetEnabled(false)
	assert.Nil(t, rec.next(t))
	close(r.gate)
	rec.none(t, 3*tick)
}

func TestStaleResultIsDiscarded(t *testing.T) {
	r := &fakeRenderer{gate: make(chan struct{})}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetEnabled(true)
	l.Edit("first")

	require.Eventually(t, func() bool { return len(r.calls()) == 1 }, time.Second, 5*time.Millisecond)
	l.Edit("second")
	require.Eventually(t, func() bool { return len(r.calls()) == 2 }, time.Second, 5*time.Millisecond)
	close(r.gate)

	img := rec.next(t)
	require.NotNil(t, img)
	assert.Equal(t, "second", string(img.Data))
	rec.none(t, 3*tick)
}

func TestClearingPromptCancelsPendingAndClears(t *testing.T) {
	r := &fakeRenderer{}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetEnabled(true)

	l.Edit("a cat")
	l.Edit("   ")

	assert.Nil(t, rec.next(t))
	rec.none(t, 3*tick)
	assert.Empty(t, r.calls())
}

func TestClearingPromptDropsInFlightResult(t *testing.T) {
	r := &fakeRenderer{gate: make(chan struct{})}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetEnabled(true)
	l.Edit("a cat")

	require.Eventually(t, func() bool { return len(r.calls()) == 1 }, time.Second, 5*time.Millisecond)
	l.Edit("")
	assert.Nil(t, rec.next(t))
	close(r.gate)
	rec.none(t, 3*tick)
	assert.Len(t, r.calls(), 1)
}

func TestFailureClearsPreview(t *testing.T) {
	r := &fakeRenderer{fail: errors.New("quota")}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetEnabled(true)
	l.Edit("a cat")

	assert.Nil(t, rec.next(t))
}

func TestTouchUsesLongerDebounce(t *testing.T) {
	r := &fakeRenderer{}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetTouch(true)
	l.SetEnabled(true)
	l.Edit("a cat")

	rec.none(t, 2*tick)
	require.NotNil(t, rec.next(t))
}

func TestClosedLoopIgnoresEdits(t *testing.T) {
	r := &fakeRenderer{}
	rec := newRecorder()
	l := newLoop(t, r, rec)
	l.SetEnabled(true)
	l.Close()

	l.Edit("a cat")
	l.SetEnabled(true)
	rec.none(t, 3*tick)
	assert.Empty(t, r.calls())
}

func TestNewLoopRequiresRenderer(t *testing.T) {
	_, err := NewLoop(Options{})
	assert.Error(t, err)
}
