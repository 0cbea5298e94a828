package domain

// PresetMetadata is the name, description and panel proposed for a prompt.
type PresetMetadata struct {
	Name             string `json:"name" validate:"required"`
	Description      string `json:"description"`
	RecommendedPanel Panel  `json:"recommended_panel" validate:"required,oneof=flux filter_panel vector_art_panel typographic_panel"`
}

// RoutedPresetData is the style distilled from an image.
type RoutedPresetData struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Prompt      string `json:"prompt" validate:"required"`
}

// RoutedStyle pairs an extracted style with the panel it should open in.
type RoutedStyle struct {
	TargetPanel Panel            `json:"target_panel_id" validate:"required,oneof=filter_panel vector_art_panel typographic_panel"`
	PresetData  RoutedPresetData `json:"preset_data" validate:"required"`
}
