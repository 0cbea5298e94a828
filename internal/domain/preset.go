package domain

import (
	"sort"
	"strings"
	"time"
)

// Panel identifies the editor panel a preset is recommended for.
type Panel string

const (
	PanelFlux       Panel = "flux"
	PanelFilter     Panel = "filter_panel"
	PanelVector     Panel = "vector_art_panel"
	PanelTypography Panel = "typographic_panel"
)

// Category is the coarse label shown next to a preset in the library.
type Category string

const (
	CategoryFlux   Category = "FLUX"
	CategoryFilter Category = "FILTER"
	CategoryVector Category = "VECTOR"
	CategoryTypo   Category = "TYPO"
	CategoryCustom Category = "CUSTOM"
)

// Panels lists every panel a preset may be recommended for.
var Panels = []Panel{PanelFlux, PanelFilter, PanelVector, PanelTypography}

// RoutablePanels lists the panels the style router may pick.
var RoutablePanels = []Panel{PanelFilter, PanelVector, PanelTypography}

// ParsePanel normalizes raw into a known panel.
func ParsePanel(raw string) (Panel, bool) {
	p := Panel(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Panels {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// CategoryForPanel maps a recommended panel onto the category used by smart
// save. Unknown panels fall back to FLUX.
func CategoryForPanel(p Panel) Category {
	switch p {
	case PanelVector:
		return CategoryVector
	case PanelTypography:
		return CategoryTypo
	case PanelFilter:
		return CategoryFilter
	default:
		return CategoryFlux
	}
}

// RoutedCategoryForPanel maps the panel chosen for an extracted style onto
// its category. Anything other than vector or typography is CUSTOM.
func RoutedCategoryForPanel(p Panel) Category {
	switch p {
	case PanelTypography:
		return CategoryTypo
	case PanelVector:
		return CategoryVector
	default:
		return CategoryCustom
	}
}

// StylePreset is a named, reusable style template.
type StylePreset struct {
	ID               string    `json:"id" validate:"required,max=128"`
	Name             string    `json:"name" validate:"required,max=120"`
	Description      string    `json:"description" validate:"max=500"`
	ApplyPrompt      string    `json:"applyPrompt" validate:"required,max=4000"`
	Category         Category  `json:"category" validate:"omitempty,oneof=FLUX FILTER VECTOR TYPO CUSTOM"`
	RecommendedPanel Panel     `json:"recommendedPanel" validate:"omitempty,oneof=flux filter_panel vector_art_panel typographic_panel"`
	IsCustom         bool      `json:"isCustom"`
	Timestamp        time.Time `json:"timestamp"`
}

// Validate checks the preset against its field constraints.
func (p StylePreset) Validate() error {
	return ValidateStruct(p)
}

// SortNewestFirst orders presets by descending timestamp. Ties keep their
// stored order.
func SortNewestFirst(items []StylePreset) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
}

// FilterByPanel returns the presets recommended for panel. An empty panel
// returns every preset.
func FilterByPanel(items []StylePreset, panel Panel) []StylePreset {
	if panel == "" {
		return items
	}
	out := make([]StylePreset, 0, len(items))
	for _, p := range items {
		if p.RecommendedPanel == panel {
			out = append(out, p)
		}
	}
	return out
}

// FindByID returns the index of the preset with id, or -1.
func FindByID(items []StylePreset, id string) int {
	for i, p := range items {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// ClonePresets copies the slice so callers can mutate it freely.
func ClonePresets(items []StylePreset) []StylePreset {
	if items == nil {
		return []StylePreset{}
	}
	out := make([]StylePreset, len(items))
	copy(out, items)
	return out
}
