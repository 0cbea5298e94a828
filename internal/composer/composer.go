package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pixshop/internal/catalog"
	"pixshop/internal/domain"
	"pixshop/internal/infra"
	"pixshop/internal/providers/genai"
)

// Describer turns an image into a subject description.
type Describer interface {
	DescribeImage(ctx context.Context, img genai.ImageInput, fast bool) (string, error)
}

// PresetSource lists the stored custom presets.
type PresetSource interface {
	Load(ctx context.Context) ([]domain.StylePreset, error)
}

// Input is everything a panel knows when the user asks for a generation.
type Input struct {
	Task              domain.TaskType
	Panel             domain.Panel
	Preset            string
	FreeText          string
	Image             *genai.ImageInput
	Mask              *genai.ImageInput
	AspectRatio       string
	Chaos             bool
	BatchSize         int
	StackEffect       bool
	ForceNew          bool
	MatchShape        bool
	Advanced          bool
	RoutedApplyPrompt string
	Fast              bool
}

// HasImage reports whether a source image is attached.
func (in Input) HasImage() bool {
	return in.Image != nil && len(in.Image.Data) > 0
}

func (in Input) text() string {
	return strings.TrimSpace(in.FreeText)
}

// Options configures a Composer.
type Options struct {
	Catalog   *catalog.Registry
	Presets   PresetSource
	Describer Describer
	Logger    *infra.Logger
}

// Composer turns panel input into exactly one GenerationRequest.
type Composer struct {
	reg       *catalog.Registry
	presets   PresetSource
	describer Describer
	logger    *infra.Logger
}

// New builds a Composer. Presets and Describer are optional; without a
// describer subjects always fall back to the literal phrase.
func New(opts Options) (*Composer, error) {
	reg := opts.Catalog
	if reg == nil {
		var err error
		if reg, err = catalog.Default(); err != nil {
			return nil, err
		}
	}
	return &Composer{
		reg:       reg,
		presets:   opts.Presets,
		describer: opts.Describer,
		logger:    infra.OrNop(opts.Logger),
	}, nil
}

// NeedsSubject reports whether composing in will ask the describer for a
// subject.
func (c *Composer) NeedsSubject(in Input) bool {
	if !in.HasImage() || in.text() != "" || c.describer == nil {
		return false
	}
	switch in.Task {
	case domain.TaskFilters:
		return true
	case domain.TaskFlux:
		return fluxDescribes(in)
	default:
		return false
	}
}

// fluxDescribes reports whether flux asks for a subject when the image comes
// without text. The preset only styles the prompt and never replaces it.
func fluxDescribes(in Input) bool {
	return !in.Advanced && in.Panel != domain.PanelVector
}

// Compose builds the request for in. It returns ErrActionDisabled when the
// panel has neither a preset nor text to work with.
func (c *Composer) Compose(ctx context.Context, in Input) (*domain.GenerationRequest, error) {
	var (
		req *domain.GenerationRequest
		err error
	)
	switch in.Task {
	case domain.TaskAdjust:
		req, err = c.adjust(ctx, in)
	case domain.TaskFilters:
		req, err = c.filters(ctx, in)
	case domain.TaskFlux:
		req, err = c.flux(ctx, in)
	case domain.TaskTypography:
		req, err = c.typography(ctx, in)
	case domain.TaskInpaint:
		req, err = c.inpaint(in)
	default:
		return nil, fmt.Errorf("unknown task %q", in.Task)
	}
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Composer) adjust(ctx context.Context, in Input) (*domain.GenerationRequest, error) {
	var parts []string
	if in.Preset != "" {
		ref, err := c.resolve(ctx, in, "")
		if err != nil {
			return nil, err
		}
		parts = append(parts, ref.prompt)
	}
	if t := in.text(); t != "" {
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return nil, domain.ErrActionDisabled
	}
	if !in.HasImage() {
		return nil, domain.ErrImageRequired
	}
	p := c.reg.Phrases
	return &domain.GenerationRequest{
		Type:                      domain.TaskAdjust,
		Prompt:                    p.AdjustLeadIn + strings.Join(parts, p.AdjustSeparator),
		AspectRatio:               in.AspectRatio,
		SystemInstructionOverride: c.reg.Protocol(catalog.ProtocolImageTransformer),
	}, nil
}

func (c *Composer) filters(ctx context.Context, in Input) (*domain.GenerationRequest, error) {
	if in.Preset == "" && in.text() == "" {
		return nil, domain.ErrActionDisabled
	}
	if !in.HasImage() {
		return nil, domain.ErrImageRequired
	}
	p := c.reg.Phrases
	subject := in.text()
	if subject == "" {
		subject = c.subject(ctx, in, p.FilterFallbackSubject)
	}
	prompt := subject
	if in.Preset != "" {
		ref, err := c.resolve(ctx, in, domain.PanelFilter)
		if err != nil {
			return nil, err
		}
		prompt = subject + p.FilterSeparator + ref.name
	}
	return &domain.GenerationRequest{
		Type:                      domain.TaskFilters,
		Prompt:                    prompt,
		AspectRatio:               in.AspectRatio,
		SystemInstructionOverride: c.reg.Protocol(catalog.ProtocolImageTransformer),
	}, nil
}

// flux covers both the flux panel and the vector panel, which differ only in
// their style catalog and text-only profile.
func (c *Composer) flux(ctx context.Context, in Input) (*domain.GenerationRequest, error) {
	p := c.reg.Phrases
	vector := in.Panel == domain.PanelVector
	panel := domain.PanelFlux
	textProfile := catalog.ProtocolArtist
	if vector {
		panel = domain.PanelVector
		textProfile = catalog.ProtocolDesigner
	}

	var (
		style catalog.StylePreset
		base  = in.text()
	)
	switch {
	case in.Preset != "":
		ref, err := c.resolve(ctx, in, panel)
		if err != nil {
			return nil, err
		}
		style = ref.style
		if ref.custom {
			// stored presets act as a style suffix with no negative prompt
			style = catalog.StylePreset{Key: in.Preset, Label: ref.name, Suffix: ref.prompt}
		}
	case vector:
		if len(c.reg.Vector) > 0 {
			style = c.reg.Vector[0]
		}
	default:
		style, _ = c.reg.FluxStyle("default")
	}

	hasImage := in.HasImage()
	if !hasImage && base == "" && (in.Preset == "" || style.Suffix == "") {
		return nil, domain.ErrActionDisabled
	}
	prompted := base != ""
	if hasImage && base == "" {
		if fluxDescribes(in) {
			base = c.subject(ctx, in, p.FluxFallbackSubject)
		} else {
			base = p.FluxFallbackSubject
		}
	}

	req := &domain.GenerationRequest{
		Type:           domain.TaskFlux,
		UseOriginal:    !in.StackEffect,
		ForceNew:       in.ForceNew,
		AspectRatio:    in.AspectRatio,
		BatchSize:      in.BatchSize,
		IsChaos:        in.Chaos,
		NegativePrompt: style.Negative,
	}
	if hasImage {
		req.DenoisingInstruction = p.DenoiseReimagine
		if in.MatchShape || (!in.Advanced && !prompted) {
			req.DenoisingInstruction = p.DenoisePreserve
		}
		req.SystemInstructionOverride = c.reg.Protocol(catalog.ProtocolImageTransformer)
	} else {
		req.SystemInstructionOverride = c.reg.Protocol(textProfile)
	}

	prompt := joinNonEmpty(", ", base, style.Suffix)
	if in.Chaos {
		prompt += p.ChaosSuffix
	}
	if hasImage {
		prompt = fmt.Sprintf(p.FluxGoalTemplate, req.DenoisingInstruction, prompt)
	}
	if style.Negative != "" {
		prompt += p.NegativeMarker + style.Negative
	}
	req.Prompt = prompt
	req.BatchSize = req.EffectiveBatchSize()
	return req, nil
}

func (c *Composer) typography(ctx context.Context, in Input) (*domain.GenerationRequest, error) {
	p := c.reg.Phrases
	apply := strings.TrimSpace(in.RoutedApplyPrompt)
	if in.Preset != "" {
		ref, err := c.resolve(ctx, in, domain.PanelTypography)
		if err != nil {
			return nil, err
		}
		apply = ref.prompt
	}
	if apply == "" {
		return nil, domain.ErrActionDisabled
	}
	text := in.text()
	if text == "" {
		text = p.TypographyDefaultText
	}

	hasImage := in.HasImage()
	req := &domain.GenerationRequest{
		Type:                      domain.TaskTypography,
		Prompt:                    fmt.Sprintf(p.TypographyTemplate, apply, text, p.TypographyIsolation),
		ForceNew:                  !hasImage,
		AspectRatio:               domain.DefaultAspectRatio,
		SystemInstructionOverride: c.reg.Protocol(catalog.ProtocolTypographer),
	}
	if hasImage {
		req.SystemInstructionOverride = c.reg.Protocol(catalog.ProtocolImageTransformer)
		req.DenoisingInstruction = p.DenoiseTypography
	}
	return req, nil
}

func (c *Composer) inpaint(in Input) (*domain.GenerationRequest, error) {
	instruction := in.text()
	if instruction == "" {
		return nil, domain.ErrActionDisabled
	}
	if !in.HasImage() {
		return nil, domain.ErrImageRequired
	}
	return &domain.GenerationRequest{
		Type:                      domain.TaskInpaint,
		Prompt:                    instruction,
		AspectRatio:               in.AspectRatio,
		SystemInstructionOverride: c.reg.Protocol(catalog.ProtocolInpaint),
	}, nil
}

// subject asks the describer for the image's subject. Any failure, or an
// empty answer, yields fallback.
func (c *Composer) subject(ctx context.Context, in Input, fallback string) string {
	if c.describer == nil || !in.HasImage() {
		return fallback
	}
	desc, err := c.describer.DescribeImage(ctx, *in.Image, in.Fast)
	if err != nil {
		c.logger.Warn().Err(err).Str("task", string(in.Task)).Msg("composer: subject description failed, using fallback")
		return fallback
	}
	if desc = strings.TrimSpace(desc); desc != "" {
		return desc
	}
	return fallback
}

type presetRef struct {
	name   string
	prompt string
	style  catalog.StylePreset
	custom bool
}

// resolve finds in.Preset among the stored presets (by id, then by name
// within panel) and then in the built-in catalog for the task.
func (c *Composer) resolve(ctx context.Context, in Input, panel domain.Panel) (presetRef, error) {
	key := strings.TrimSpace(in.Preset)
	if ref, ok := c.resolveCustom(ctx, key, panel); ok {
		return ref, nil
	}

	switch in.Task {
	case domain.TaskAdjust:
		if p, ok := c.reg.AdjustPreset(key); ok {
			return presetRef{name: p.Name, prompt: p.Prompt}, nil
		}
	case domain.TaskFilters:
		if p, ok := c.reg.FilterPreset(key); ok {
			return presetRef{name: p.Name, prompt: p.Name}, nil
		}
	case domain.TaskFlux:
		lookup := c.reg.FluxStyle
		if panel == domain.PanelVector {
			lookup = c.reg.VectorStyle
		}
		if s, ok := lookup(key); ok {
			return presetRef{name: s.Label, prompt: s.Suffix, style: s}, nil
		}
	case domain.TaskTypography:
		if p, ok := c.reg.TypoPreset(key); ok {
			return presetRef{name: p.Name, prompt: p.ApplyPrompt}, nil
		}
	}
	return presetRef{}, fmt.Errorf("preset %q: %w", key, domain.ErrNotFound)
}

func (c *Composer) resolveCustom(ctx context.Context, key string, panel domain.Panel) (presetRef, bool) {
	if c.presets == nil {
		return presetRef{}, false
	}
	items, err := c.presets.Load(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("composer: custom presets unavailable, using catalog")
		return presetRef{}, false
	}
	if idx := domain.FindByID(items, key); idx >= 0 {
		return customRef(items[idx]), true
	}
	for _, p := range domain.FilterByPanel(items, panel) {
		if p.Name == key {
			return customRef(p), true
		}
	}
	return presetRef{}, false
}

func customRef(p domain.StylePreset) presetRef {
	return presetRef{name: p.Name, prompt: strings.TrimSpace(p.ApplyPrompt), custom: true}
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, sep)
}

// IsDisabled reports whether err means the panel action should stay disabled.
func IsDisabled(err error) bool {
	return errors.Is(err, domain.ErrActionDisabled)
}
