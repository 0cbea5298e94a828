package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"pixshop/internal/domain"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Protocol names an instruction profile.
type Protocol string

const (
	ProtocolArtist           Protocol = "ARTIST"
	ProtocolEditor           Protocol = "EDITOR"
	ProtocolDesigner         Protocol = "DESIGNER"
	ProtocolTypographer      Protocol = "TYPOGRAPHER"
	ProtocolInpaint          Protocol = "INPAINT"
	ProtocolPreview          Protocol = "PREVIEW"
	ProtocolImageTransformer Protocol = "IMAGE_TRANSFORMER"
	ProtocolStyleRouter      Protocol = "STYLE_ROUTER"
	ProtocolPresetGenerator  Protocol = "PRESET_GENERATOR"
)

var requiredProtocols = []Protocol{
	ProtocolArtist, ProtocolEditor, ProtocolDesigner, ProtocolTypographer, ProtocolInpaint,
	ProtocolPreview, ProtocolImageTransformer, ProtocolStyleRouter, ProtocolPresetGenerator,
}

// AdjustPreset is a one-click adjustment.
type AdjustPreset struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Prompt      string `yaml:"prompt" json:"prompt"`
}

// NamedPreset is a filter preset; the transformer profile resolves it by name.
type NamedPreset struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// FilterGroup is a titled list of filter presets.
type FilterGroup struct {
	Group   string        `yaml:"group" json:"group"`
	Presets []NamedPreset `yaml:"presets" json:"presets"`
}

// StylePreset is a generation style: a prompt suffix plus a negative prompt.
type StylePreset struct {
	Key      string `yaml:"key" json:"key"`
	Label    string `yaml:"label" json:"label"`
	Suffix   string `yaml:"suffix" json:"suffix"`
	Negative string `yaml:"negative" json:"negative"`
}

// TypoPreset is a typographic preset.
type TypoPreset struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	ApplyPrompt string `yaml:"applyPrompt" json:"applyPrompt"`
}

// TypoGroup is a titled list of typographic presets.
type TypoGroup struct {
	Group   string       `yaml:"group" json:"group"`
	Presets []TypoPreset `yaml:"presets" json:"presets"`
}

// Phrases holds the fixed text fragments composers splice together.
type Phrases struct {
	AdjustLeadIn               string `yaml:"adjust_lead_in"`
	AdjustSeparator            string `yaml:"adjust_separator"`
	FilterSeparator            string `yaml:"filter_separator"`
	FilterFallbackSubject      string `yaml:"filter_fallback_subject"`
	FilterDefaultPreset        string `yaml:"filter_default_preset"`
	FluxFallbackSubject        string `yaml:"flux_fallback_subject"`
	FluxGoalTemplate           string `yaml:"flux_goal_template"`
	DenoisePreserve            string `yaml:"denoise_preserve"`
	DenoiseReimagine           string `yaml:"denoise_reimagine"`
	DenoiseTypography          string `yaml:"denoise_typography"`
	ChaosSuffix                string `yaml:"chaos_suffix"`
	NegativeMarker             string `yaml:"negative_marker"`
	TypographyDefaultText      string `yaml:"typography_default_text"`
	TypographyDefaultPreset    string `yaml:"typography_default_preset"`
	TypographyIsolation        string `yaml:"typography_isolation"`
	TypographyTemplate         string `yaml:"typography_template"`
	RefineTemplate             string `yaml:"refine_template"`
	MetadataTemplate           string `yaml:"metadata_template"`
	DescribeImage              string `yaml:"describe_image"`
	StyleRouting               string `yaml:"style_routing"`
	MetadataDefaultName        string `yaml:"metadata_default_name"`
	MetadataDefaultDescription string `yaml:"metadata_default_description"`
}

// Registry is the decoded catalog. It is read-only after load.
type Registry struct {
	Protocols  map[Protocol]string `yaml:"protocols"`
	Adjust     []AdjustPreset      `yaml:"adjust"`
	Filters    []FilterGroup       `yaml:"filters"`
	Flux       []StylePreset       `yaml:"flux"`
	Typography []TypoGroup         `yaml:"typography"`
	Vector     []StylePreset       `yaml:"vector"`
	Phrases    Phrases             `yaml:"phrases"`
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the embedded registry, decoding it on first use.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Parse(catalogYAML)
	})
	return defaultReg, defaultErr
}

// MustDefault is Default for callers that cannot proceed without a catalog.
func MustDefault() *Registry {
	reg, err := Default()
	if err != nil {
		panic(err)
	}
	return reg
}

// Parse decodes and checks a catalog document.
func Parse(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	for _, p := range requiredProtocols {
		if strings.TrimSpace(reg.Protocols[p]) == "" {
			return nil, fmt.Errorf("catalog: protocol %s missing", p)
		}
	}
	if _, ok := reg.FluxStyle("default"); !ok {
		return nil, fmt.Errorf("catalog: flux style %q missing", "default")
	}
	if reg.Phrases.NegativeMarker == "" || reg.Phrases.AdjustLeadIn == "" {
		return nil, fmt.Errorf("catalog: phrases incomplete")
	}
	return &reg, nil
}

// Protocol returns the instruction text for p.
func (r *Registry) Protocol(p Protocol) string {
	return r.Protocols[p]
}

// AdjustPreset looks up an adjustment by name.
func (r *Registry) AdjustPreset(name string) (AdjustPreset, bool) {
	for _, p := range r.Adjust {
		if p.Name == name {
			return p, true
		}
	}
	return AdjustPreset{}, false
}

// FilterPreset looks up a filter by name across all groups.
func (r *Registry) FilterPreset(name string) (NamedPreset, bool) {
	for _, g := range r.Filters {
		for _, p := range g.Presets {
			if p.Name == name {
				return p, true
			}
		}
	}
	return NamedPreset{}, false
}

// FluxStyle looks up a generation style by key or label.
func (r *Registry) FluxStyle(key string) (StylePreset, bool) {
	return findStyle(r.Flux, key)
}

// VectorStyle looks up a vector style by key or label.
func (r *Registry) VectorStyle(key string) (StylePreset, bool) {
	return findStyle(r.Vector, key)
}

// TypoPreset looks up a typographic preset by name across all groups.
func (r *Registry) TypoPreset(name string) (TypoPreset, bool) {
	for _, g := range r.Typography {
		for _, p := range g.Presets {
			if p.Name == name {
				return p, true
			}
		}
	}
	return TypoPreset{}, false
}

// PresetsFor lists the built-in preset names for a task, in catalog order.
func (r *Registry) PresetsFor(task domain.TaskType) []string {
	var names []string
	switch task {
	case domain.TaskAdjust:
		for _, p := range r.Adjust {
			names = append(names, p.Name)
		}
	case domain.TaskFilters:
		for _, g := range r.Filters {
			for _, p := range g.Presets {
				names = append(names, p.Name)
			}
		}
	case domain.TaskFlux:
		for _, p := range r.Flux {
			names = append(names, p.Key)
		}
	case domain.TaskTypography:
		for _, g := range r.Typography {
			for _, p := range g.Presets {
				names = append(names, p.Name)
			}
		}
	}
	return names
}

func findStyle(items []StylePreset, key string) (StylePreset, bool) {
	key = strings.TrimSpace(key)
	for _, p := range items {
		if p.Key == key || p.Label == key {
			return p, true
		}
	}
	return StylePreset{}, false
}
