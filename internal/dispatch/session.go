package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pixshop/internal/composer"
	"pixshop/internal/domain"
	"pixshop/internal/infra"
	"pixshop/internal/metrics"
	"pixshop/internal/providers/genai"
	"pixshop/internal/storage"
)

const defaultConcurrency = 2

// ImageGenerator is the image half of the generation client.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageResult, error)
}

// Options configures a Session.
type Options struct {
	Composer    *composer.Composer
	Generator   ImageGenerator
	Output      *storage.FileStore
	Concurrency int
	Logger      *infra.Logger
	Now         func() time.Time
}

// Outcome is what one Run produced.
type Outcome struct {
	Request *domain.GenerationRequest
	Results []genai.ImageResult
	Saved   []string
	State   domain.PanelState
	History []domain.PanelState
}

// Session is one panel's compose-and-dispatch cycle. Runs on the same
// session are serialised; the last successful image becomes the base for the
// next stacked edit.
type Session struct {
	mu       sync.Mutex
	machine  *domain.PanelMachine
	composer *composer.Composer
	gen      ImageGenerator
	output   *storage.FileStore
	limit    int
	logger   *infra.Logger
	now      func() time.Time
	current  *genai.ImageInput
}

// NewSession builds a Session in the idle state.
func NewSession(opts Options) (*Session, error) {
	if opts.Composer == nil {
		return nil, errors.New("dispatch: composer is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("dispatch: generator is required")
	}
	s := &Session{
		machine:  domain.NewPanelMachine(),
		composer: opts.Composer,
		gen:      opts.Generator,
		output:   opts.Output,
		limit:    opts.Concurrency,
		logger:   infra.OrNop(opts.Logger),
		now:      opts.Now,
	}
	if s.limit <= 0 {
		s.limit = defaultConcurrency
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// State returns the panel's current state.
func (s *Session) State() domain.PanelState {
	return s.machine.State()
}

// Current returns the image the next stacked edit would build on.
func (s *Session) Current() *genai.ImageInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Run composes in, dispatches the request and collects the images. The
// returned Outcome is non-nil whenever the cycle started, including on
// failure.
func (s *Session) Run(ctx context.Context, in composer.Input) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := string(in.Task)
	out := &Outcome{}
	finish := func(err error) (*Outcome, error) {
		out.State = s.machine.State()
		out.History = s.machine.History()
		return out, err
	}

	if s.composer.NeedsSubject(in) {
		if err := s.to(task, domain.StateAnalyzing); err != nil {
			return nil, err
		}
	}
	if err := s.to(task, domain.StateComposing); err != nil {
		return nil, err
	}

	req, err := s.composer.Compose(ctx, in)
	if err != nil {
		if errors.Is(err, domain.ErrActionDisabled) {
			_ = s.to(task, domain.StateIdle)
			return finish(err)
		}
		return finish(s.fail(task, err))
	}
	out.Request = req

	if err := s.to(task, domain.StateDispatched); err != nil {
		return nil, err
	}

	if req.ForceNew {
		s.current = nil
	}
	base := in.Image
	if !req.UseOriginal && s.current != nil && in.HasImage() {
		base = s.current
	}

	results, err := s.generate(ctx, in, req, base)
	if err != nil {
		return finish(s.fail(task, err))
	}
	out.Results = results

	if s.output != nil {
		saved, err := s.persist(ctx, req.Type, results)
		if err != nil {
			return finish(s.fail(task, err))
		}
		out.Saved = saved
	}

	img := results[0].Image
	s.current = &img
	if err := s.to(task, domain.StateSuccess); err != nil {
		return nil, err
	}
	return finish(nil)
}

func (s *Session) generate(ctx context.Context, in composer.Input, req *domain.GenerationRequest, base *genai.ImageInput) ([]genai.ImageResult, error) {
	n := req.EffectiveBatchSize()
	ir := genai.ImageRequest{
		Op:                   "generate_" + string(req.Type),
		Prompt:               req.Prompt,
		SystemInstruction:    req.SystemInstructionOverride,
		Image:                base,
		AspectRatio:          req.EffectiveAspectRatio(),
		NegativePrompt:       req.NegativePrompt,
		DenoisingInstruction: req.DenoisingInstruction,
		Fast:                 in.Fast,
	}
	if req.Type == domain.TaskInpaint {
		ir.Mask = in.Mask
	}

	results := make([]genai.ImageResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := s.gen.GenerateImage(gctx, ir)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Session) persist(ctx context.Context, task domain.TaskType, results []genai.ImageResult) ([]string, error) {
	stamp := s.now().UTC().UnixMilli()
	keys := make([]string, 0, len(results))
	for i, r := range results {
		key := fmt.Sprintf("%s/%d_%02d%s", task, stamp, i+1, r.Image.Extension())
		saved, err := s.output.Write(ctx, key, r.Image.Data)
		if err != nil {
			return nil, domain.WriteFailed("save output", err)
		}
		keys = append(keys, saved)
	}
	return keys, nil
}

func (s *Session) to(task string, next domain.PanelState) error {
	if err := s.machine.To(next); err != nil {
		return err
	}
	metrics.PanelTransitions.WithLabelValues(task, string(next)).Inc()
	return nil
}

func (s *Session) fail(task string, cause error) error {
	if err := s.machine.Fail(cause); err != nil {
		s.logger.Error().Err(err).Msg("dispatch: could not record failure")
	} else {
		metrics.PanelTransitions.WithLabelValues(task, string(domain.StateFailed)).Inc()
	}
	s.logger.Warn().Err(cause).Str("task", task).Msg("dispatch: generation failed")
	return cause
}
