package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixshop/internal/composer"
	"pixshop/internal/domain"
	"pixshop/internal/providers/genai"
	"pixshop/internal/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeGenerator struct {
	mu       sync.Mutex
	requests []genai.ImageRequest
	inflight atomic.Int32
	peak     atomic.Int32
	fail     error
	delay    time.Duration
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageResult, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		return nil, f.fail
	}
	return &genai.ImageResult{Image: genai.ImageInput{Data: append([]byte(nil), pngHeader...), MimeType: "image/png"}}, nil
}

type failingDescriber struct{}

func (failingDescriber) DescribeImage(context.Context, genai.ImageInput, bool) (string, error) {
	return "", errors.New("vision down")
}

func newSession(t *testing.T, gen ImageGenerator, d composer.Describer, out *storage.FileStore) *Session {
	t.Helper()
	c, err := composer.New(composer.Options{Describer: d})
	require.NoError(t, err)
	s, err := NewSession(Options{
		Composer:  c,
		Generator: gen,
		Output:    out,
		Now:       func() time.Time { return time.UnixMilli(1700000000000) },
	})
	require.NoError(t, err)
	return s
}

func source() *genai.ImageInput {
	return &genai.ImageInput{Data: []byte("source-image"), MimeType: "image/jpeg"}
}

func TestRunTextToImageBatch(t *testing.T) {
	gen := &fakeGenerator{delay: 20 * time.Millisecond}
	s := newSession(t, gen, nil, nil)

	out, err := s.Run(context.Background(), composer.Input{Task: domain.TaskFlux, FreeText: "a city", BatchSize: 4, Fast: true})
	require.NoError(t, err)
	assert.Len(t, out.Results, 4)
	assert.Equal(t, domain.StateSuccess, out.State)
	assert.Equal(t, []domain.PanelState{domain.StateIdle, domain.StateComposing, domain.StateDispatched, domain.StateSuccess}, out.History)
	assert.LessOrEqual(t, gen.peak.Load(), int32(2))
	require.Len(t, gen.requests, 4)
	assert.Nil(t, gen.requests[0].Image)
	assert.True(t, gen.requests[0].Fast)
	assert.Equal(t, "1:1", gen.requests[0].AspectRatio)
}

func TestRunAnalyzesWhenDescribing(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession(t, gen, failingDescriber{}, nil)

	out, err := s.Run(context.Background(), composer.Input{Task: domain.TaskFilters, Preset: "HDR Cinematic", Image: source()})
	require.NoError(t, err)
	assert.Equal(t, []domain.PanelState{domain.StateIdle, domain.StateAnalyzing, domain.StateComposing, domain.StateDispatched, domain.StateSuccess}, out.History)
	assert.Equal(t, "the primary subject + HDR Cinematic", out.Request.Prompt)
	assert.Equal(t, source().Data, gen.requests[0].Image.Data)
}

func TestRunAnalyzesFluxStylePresetWithImage(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession(t, gen, failingDescriber{}, nil)

	out, err := s.Run(context.Background(), composer.Input{Task: domain.TaskFlux, Preset: "neo_noir_cyber", Image: source()})
	require.NoError(t, err)
	assert.Equal(t, []domain.PanelState{domain.StateIdle, domain.StateAnalyzing, domain.StateComposing, domain.StateDispatched, domain.StateSuccess}, out.History)
	assert.Contains(t, out.Request.Prompt, "a creative variation based on the input image, ")
}

func TestRunDisabledReturnsToIdle(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession(t, gen, nil, nil)

	out, err := s.Run(context.Background(), composer.Input{Task: domain.TaskFilters, Image: source()})
	require.ErrorIs(t, err, domain.ErrActionDisabled)
	assert.Equal(t, domain.StateIdle, out.State)
	assert.Empty(t, gen.requests)
}

func TestRunFailureRecordsError(t *testing.T) {
	gen := &fakeGenerator{fail: domain.NoImageError("I only talk")}
	s := newSession(t, gen, nil, nil)

	out, err := s.Run(context.Background(), composer.Input{Task: domain.TaskFlux, FreeText: "a city"})
	require.ErrorIs(t, err, domain.ErrNoImageReturned)
	assert.Equal(t, domain.StateFailed, out.State)
	assert.Equal(t, domain.StateFailed, s.State())
	assert.NotNil(t, out.Request)

	gen.fail = nil
	out, err = s.Run(context.Background(), composer.Input{Task: domain.TaskFlux, FreeText: "a city"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateSuccess, out.State)
}

func TestRunStacksOnPreviousResult(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession(t, gen, nil, nil)
	in := composer.Input{Task: domain.TaskFlux, FreeText: "a city", Image: source(), StackEffect: true}

	_, err := s.Run(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, s.Current())
	_, err = s.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, source().Data, gen.requests[0].Image.Data)
	assert.Equal(t, pngHeader, gen.requests[1].Image.Data)

	in.StackEffect = false
	_, err = s.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, source().Data, gen.requests[2].Image.Data)
}

func TestRunInpaintForwardsMask(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession(t, gen, nil, nil)
	mask := &genai.ImageInput{Data: pngHeader, MimeType: "image/png"}

	_, err := s.Run(context.Background(), composer.Input{Task: domain.TaskInpaint, FreeText: "remove the sign", Image: source(), Mask: mask})
	require.NoError(t, err)
	require.Len(t, gen.requests, 1)
	assert.Equal(t, mask, gen.requests[0].Mask)
	assert.Equal(t, "generate_inpaint", gen.requests[0].Op)
}

func TestRunPersistsOutput(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	s := newSession(t, &fakeGenerator{}, nil, store)

	out, err := s.Run(context.Background(), composer.Input{Task: domain.TaskFlux, FreeText: "a city", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"flux/1700000000000_01.png", "flux/1700000000000_02.png"}, out.Saved)
	data, err := os.ReadFile(filepath.Join(dir, "flux", "1700000000000_02.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestNewSessionRequiresCollaborators(t *testing.T) {
	_, err := NewSession(Options{})
	assert.Error(t, err)
}
