package prompt

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

// Generator is the slice of the generation client the structured calls need.
type Generator interface {
	GenerateJSON(ctx context.Context, req genai.StructuredRequest) (string, error)
	GenerateText(ctx context.Context, prompt string, fast bool) (string, error)
}

// Options configures a Service.
type Options struct {
	Generator Generator
	Catalog   *catalog.Registry
	Logger    *infra.Logger
}

// Service runs the text-only calls: prompt refinement, preset metadata and
// style routing.
type Service struct {
	gen    Generator
	reg    *catalog.Registry
	logger *infra.Logger
}

// ErrRoutingParse is wrapped by the MalformedResponseError ExtractStyle
// returns for an unusable routing packet.
var ErrRoutingParse = errors.New("failed to parse visual DNA routing packet")

type metadataSchema struct {
	Name             string `json:"name" jsonschema:"description=Short evocative preset name"`
	Description      string `json:"description" jsonschema:"description=One sentence describing the look"`
	RecommendedPanel string `json:"recommended_panel" jsonschema:"enum=flux,enum=filter_panel,enum=vector_art_panel,enum=typographic_panel"`
}

type routedDataSchema struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

type routingSchema struct {
	TargetPanelID string           `json:"target_panel_id" jsonschema:"enum=filter_panel,enum=vector_art_panel,enum=typographic_panel"`
	PresetData    routedDataSchema `json:"preset_data"`
}

// NewService builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Generator == nil {
		return nil, errors.New("prompt: generator is required")
	}
	reg := opts.Catalog
	if reg == nil {
		var err error
		if reg, err = catalog.Default(); err != nil {
			return nil, err
		}
	}
	return &Service{gen: opts.Generator, reg: reg, logger: infra.OrNop(opts.Logger)}, nil
}

// Refine rewrites text into a more vivid prompt. An empty answer returns text
// unchanged.
func (s *Service) Refine(ctx context.Context, text string, fast bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyPrompt
	}
	out, err := s.gen.GenerateText(ctx, fmt.Sprintf(s.reg.Phrases.RefineTemplate, text), fast)
	if err != nil {
		return "", err
	}
	if refined := unquote(out); refined != "" {
		return refined, nil
	}
	return text, nil
}

// PresetMetadata proposes a name, description and panel for text. A reply
// that cannot be used yields the default metadata; transport and
// configuration failures are returned.
func (s *Service) PresetMetadata(ctx context.Context, text string, fast bool) (domain.PresetMetadata, error) {
	raw, err := s.gen.GenerateJSON(ctx, genai.StructuredRequest{
		Op:                "preset_metadata",
		Prompt:            fmt.Sprintf(s.reg.Phrases.MetadataTemplate, strings.TrimSpace(text)),
		SystemInstruction: s.reg.Protocol(catalog.ProtocolPresetGenerator),
		Schema:            &metadataSchema{},
		Fast:              fast,
	})
	if err != nil {
		return domain.PresetMetadata{}, err
	}

	payload, err := parseModelPayload[metadataSchema](raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("prompt: metadata reply unusable, using defaults")
		return s.defaultMetadata(), nil
	}
	panel, ok := domain.ParsePanel(payload.RecommendedPanel)
	if !ok {
		panel = domain.PanelFlux
	}
	meta := domain.PresetMetadata{
		Name:             coalesce(payload.Name, s.reg.Phrases.MetadataDefaultName),
		Description:      coalesce(payload.Description, s.reg.Phrases.MetadataDefaultDescription),
		RecommendedPanel: panel,
	}
	if err := domain.ValidateStruct(meta); err != nil {
		return s.defaultMetadata(), nil
	}
	return meta, nil
}

// ExtractStyle routes the visual style of img to a panel and distills it into
// preset data.
func (s *Service) ExtractStyle(ctx context.Context, img genai.ImageInput, fast bool) (domain.RoutedStyle, error) {
	if len(img.Data) == 0 {
		return domain.RoutedStyle{}, domain.ErrImageRequired
	}
	raw, err := s.gen.GenerateJSON(ctx, genai.StructuredRequest{
		Op:                "extract_style",
		Prompt:            s.reg.Phrases.StyleRouting,
		SystemInstruction: s.reg.Protocol(catalog.ProtocolStyleRouter),
		Image:             &img,
		Schema:            &routingSchema{},
		Fast:              fast,
	})
	if err != nil {
		return domain.RoutedStyle{}, err
	}

	payload, err := parseModelPayload[routingSchema](raw)
	if err != nil {
		return domain.RoutedStyle{}, &domain.MalformedResponseError{Op: "extract_style", Raw: raw, Err: fmt.Errorf("%w: %v", ErrRoutingParse, err)}
	}
	panel, _ := domain.ParsePanel(payload.TargetPanelID)
	style := domain.RoutedStyle{
		TargetPanel: panel,
		PresetData: domain.RoutedPresetData{
			Name:        strings.TrimSpace(payload.PresetData.Name),
			Description: strings.TrimSpace(payload.PresetData.Description),
			Prompt:      strings.TrimSpace(payload.PresetData.Prompt),
		},
	}
	if err := domain.ValidateStruct(style); err != nil {
		return domain.RoutedStyle{}, &domain.MalformedResponseError{Op: "extract_style", Raw: raw, Err: fmt.Errorf("%w: %v", ErrRoutingParse, err)}
	}
	return style, nil
}

func (s *Service) defaultMetadata() domain.PresetMetadata {
	return domain.PresetMetadata{
		Name:             s.reg.Phrases.MetadataDefaultName,
		Description:      s.reg.Phrases.MetadataDefaultDescription,
		RecommendedPanel: domain.PanelFlux,
	}
}
