package preview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pixshop/internal/catalog"
	"pixshop/internal/domain"
	"pixshop/internal/infra"
	"pixshop/internal/metrics"
	"pixshop/internal/providers/genai"
)

const (
	DefaultDebounce      = 750 * time.Millisecond
	DefaultTouchDebounce = 1000 * time.Millisecond
)

// Renderer produces preview images.
type Renderer interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageResult, error)
}

// Sink receives each preview. nil clears it. Sinks must not call back into
// the Loop.
type Sink func(img *genai.ImageInput)

// Options configures a Loop.
type Options struct {
	Renderer      Renderer
	Sink          Sink
	Debounce      time.Duration
	TouchDebounce time.Duration
	Fast          bool
	Catalog       *catalog.Registry
	Logger        *infra.Logger
}

// Loop renders a preview of the latest prompt once edits pause. Only the most
// recently scheduled render may deliver a result.
type Loop struct {
	mu       sync.Mutex
	renderer Renderer
	sink     Sink
	delay    time.Duration
	touch    time.Duration
	fast     bool
	profile  string
	logger   *infra.Logger

	enabled bool
	isTouch bool
	closed  bool
	prompt  string
	token   uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	base    context.Context
	stop    context.CancelFunc
}

// NewLoop builds a disabled Loop.
func NewLoop(opts Options) (*Loop, error) {
	if opts.Renderer == nil {
		return nil, errors.New("preview: renderer is required")
	}
	reg := opts.Catalog
	if reg == nil {
		var err error
		if reg, err = catalog.Default(); err != nil {
			return nil, err
		}
	}
	l := &Loop{
		renderer: opts.Renderer,
		sink:     opts.Sink,
		delay:    opts.Debounce,
		touch:    opts.TouchDebounce,
		fast:     opts.Fast,
		profile:  reg.Protocol(catalog.ProtocolPreview),
		logger:   infra.OrNop(opts.Logger),
	}
	if l.delay <= 0 {
		l.delay = DefaultDebounce
	}
	if l.touch <= 0 {
		l.touch = DefaultTouchDebounce
	}
	if l.sink == nil {
		l.sink = func(*genai.ImageInput) {}
	}
	l.base, l.stop = context.WithCancel(context.Background())
	return l, nil
}

// SetEnabled toggles live preview. Turning it off cancels the pending timer
// and any in-flight render and clears the preview.
func (l *Loop) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.enabled == on {
		return
	}
	l.enabled = on
	if on {
		l.scheduleLocked()
		return
	}
	l.resetLocked()
	l.sink(nil)
}

// SetTouch selects the longer debounce used on touch devices.
func (l *Loop) SetTouch(touch bool) {
	l.mu.Lock()
	l.isTouch = touch
	l.mu.Unlock()
}

// Edit records a new prompt and restarts the debounce window. Clearing the
// prompt while enabled cancels pending work and clears the preview.
func (l *Loop) Edit(prompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.prompt = strings.TrimSpace(prompt)
	if !l.enabled {
		return
	}
	if l.prompt == "" {
		l.resetLocked()
		l.sink(nil)
		return
	}
	l.scheduleLocked()
}

// Close stops the loop for good.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.enabled = false
	l.resetLocked()
	l.stop()
}

// scheduleLocked supersedes any pending timer. Every schedule takes a new
// token so results of older renders are dropped.
func (l *Loop) scheduleLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.token++
	if l.prompt == "" {
		return
	}
	delay := l.delay
	if l.isTouch {
		delay = l.touch
	}
	token, prompt := l.token, l.prompt
	l.timer = time.AfterFunc(delay, func() { l.fire(token, prompt) })
}

func (l *Loop) resetLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.token++
}

func (l *Loop) fire(token uint64, prompt string) {
	l.mu.Lock()
	if token != l.token || !l.enabled || l.closed {
		l.mu.Unlock()
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(l.base)
	l.cancel = cancel
	l.timer = nil
	l.mu.Unlock()

	img := Render(ctx, l.renderer, l.profile, prompt, l.fast, l.logger)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	if token != l.token || !l.enabled {
		metrics.PreviewRuns.WithLabelValues("stale").Inc()
		return
	}
	l.cancel = nil
	l.sink(img)
}

// Render produces one preview for prompt using the preview profile. Failures
// are logged and yield nil.
func Render(ctx context.Context, r Renderer, profile, prompt string, fast bool, logger *infra.Logger) *genai.ImageInput {
	logger = infra.OrNop(logger)
	res, err := r.GenerateImage(ctx, genai.ImageRequest{
		Op:                "preview",
		Prompt:            prompt,
		SystemInstruction: profile,
		AspectRatio:       domain.DefaultAspectRatio,
		Fast:              fast,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			outcome = "canceled"
		}
		metrics.PreviewRuns.WithLabelValues(outcome).Inc()
		logger.Debug().Err(err).Msg("preview: render failed")
		return nil
	}
	metrics.PreviewRuns.WithLabelValues("ok").Inc()
	img := res.Image
	return &img
}
