package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCategoryForPanel(t *testing.T) {
	tests := []struct {
		panel  Panel
		smart  Category
		routed Category
	}{
		{PanelVector, CategoryVector, CategoryVector},
		{PanelTypography, CategoryTypo, CategoryTypo},
		{PanelFilter, CategoryFilter, CategoryCustom},
		{PanelFlux, CategoryFlux, CategoryCustom},
		{Panel("unknown"), CategoryFlux, CategoryCustom},
	}
	for _, tc := range tests {
		if got := CategoryForPanel(tc.panel); got != tc.smart {
			t.Fatalf("CategoryForPanel(%q) = %q, want %q", tc.panel, got, tc.smart)
		}
		if got := RoutedCategoryForPanel(tc.panel); got != tc.routed {
			t.Fatalf("RoutedCategoryForPanel(%q) = %q, want %q", tc.panel, got, tc.routed)
		}
	}
}

func TestParsePanel(t *testing.T) {
	if p, ok := ParsePanel(" Filter_Panel "); !ok || p != PanelFilter {
		t.Fatalf("ParsePanel = %q, %v", p, ok)
	}
	if _, ok := ParsePanel("adjust"); ok {
		t.Fatal("adjust should not parse as a panel")
	}
}

func TestSortNewestFirstAndFilter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []StylePreset{
		{ID: "a", Timestamp: base, RecommendedPanel: PanelFilter},
		{ID: "b", Timestamp: base.Add(2 * time.Hour), RecommendedPanel: PanelFlux},
		{ID: "c", Timestamp: base.Add(time.Hour), RecommendedPanel: PanelFilter},
	}
	SortNewestFirst(items)
	if items[0].ID != "b" || items[1].ID != "c" || items[2].ID != "a" {
		t.Fatalf("unexpected order: %s %s %s", items[0].ID, items[1].ID, items[2].ID)
	}
	filtered := FilterByPanel(items, PanelFilter)
	if len(filtered) != 2 || filtered[0].ID != "c" {
		t.Fatalf("FilterByPanel = %+v", filtered)
	}
	if FindByID(items, "a") != 2 || FindByID(items, "zzz") != -1 {
		t.Fatal("FindByID returned unexpected index")
	}
}

func TestStylePresetValidate(t *testing.T) {
	ok := StylePreset{ID: "p1", Name: "Neon Noir", ApplyPrompt: "neon, rain, reflections", Category: CategoryFilter, RecommendedPanel: PanelFilter}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	bad := StylePreset{ID: "p2", Name: "", ApplyPrompt: "x", RecommendedPanel: Panel("adjust")}
	err := bad.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate error = %v, want ValidationError", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("Fields = %v, want 2 entries", verr.Fields)
	}
}

func TestGenerationRequestValidate(t *testing.T) {
	req := &GenerationRequest{Type: TaskFlux, Prompt: "  "}
	if err := req.Validate(); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("Validate error = %v, want ErrEmptyPrompt", err)
	}
	req = &GenerationRequest{Type: TaskType("sketch"), Prompt: "cat"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected unknown task type to fail validation")
	}
	req = &GenerationRequest{Type: TaskFlux, Prompt: "cat", AspectRatio: "16:9", BatchSize: 3}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if req.EffectiveBatchSize() != 3 {
		t.Fatalf("EffectiveBatchSize = %d", req.EffectiveBatchSize())
	}
	req.BatchSize = 0
	if req.EffectiveBatchSize() != 1 || req.EffectiveAspectRatio() != "16:9" {
		t.Fatalf("unexpected effective values %d %s", req.EffectiveBatchSize(), req.EffectiveAspectRatio())
	}
}
