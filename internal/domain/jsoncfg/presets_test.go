package jsoncfg

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pixshop/internal/domain"
)

func TestDecodePresetsTolerant(t *testing.T) {
	raw := `[
	  {"id":"1718000000000","name":"Neon Noir","applyPrompt":"neon, rain","genPrompt":"neon, rain","category":"FILTER","recommendedPanel":"filter_panel","isCustom":true,"timestamp":1718000000000,"extra":{"x":1}},
	  {"id":42,"name":"Legacy","genPrompt":"old vector prompt","recommendedPanel":"vector_art_panel"},
	  {"name":"No Id","applyPrompt":"something","timestamp":"2026-03-01T10:00:00Z"}
	]`
	n := 0
	items, err := DecodePresets([]byte(raw), func() string {
		n++
		return "generated"
	})
	if err != nil {
		t.Fatalf("DecodePresets returned error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	if items[0].Timestamp.UnixMilli() != 1718000000000 {
		t.Fatalf("timestamp = %v", items[0].Timestamp)
	}
	if items[1].ID != "42" {
		t.Fatalf("numeric id = %q, want 42", items[1].ID)
	}
	if items[1].ApplyPrompt != "old vector prompt" {
		t.Fatalf("genPrompt fallback not applied: %q", items[1].ApplyPrompt)
	}
	if !items[1].IsCustom {
		t.Fatal("missing isCustom should default to true")
	}
	if !items[1].Timestamp.IsZero() {
		t.Fatalf("missing timestamp should stay zero, got %v", items[1].Timestamp)
	}
	if items[2].ID != "generated" || n != 1 {
		t.Fatalf("missing id not generated: %q (%d calls)", items[2].ID, n)
	}
	if items[2].Timestamp.Year() != 2026 {
		t.Fatalf("RFC3339 timestamp not parsed: %v", items[2].Timestamp)
	}
}

func TestDecodePresetsRejectsNonArray(t *testing.T) {
	for _, raw := range []string{`{"id":"1"}`, ``, `not json`, `[{"id":}]`} {
		if _, err := DecodePresets([]byte(raw), nil); !errors.Is(err, domain.ErrInvalidImport) {
			t.Fatalf("DecodePresets(%q) error = %v, want ErrInvalidImport", raw, err)
		}
	}
}

func TestExportPresetsWritesGenPrompt(t *testing.T) {
	ts := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	data, err := ExportPresets([]domain.StylePreset{{
		ID: "p1", Name: "Neon Noir", ApplyPrompt: "neon, rain, reflections",
		Category: domain.CategoryFilter, RecommendedPanel: domain.PanelFilter, IsCustom: true, Timestamp: ts,
	}})
	if err != nil {
		t.Fatalf("ExportPresets returned error: %v", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if docs[0]["genPrompt"] != "neon, rain, reflections" {
		t.Fatalf("genPrompt = %v", docs[0]["genPrompt"])
	}
	if docs[0]["timestamp"].(float64) != float64(ts.UnixMilli()) {
		t.Fatalf("timestamp = %v", docs[0]["timestamp"])
	}

	back, err := DecodePresets(data, nil)
	if err != nil {
		t.Fatalf("DecodePresets returned error: %v", err)
	}
	if back[0].Name != "Neon Noir" || !back[0].Timestamp.Equal(ts) || back[0].RecommendedPanel != domain.PanelFilter {
		t.Fatalf("round trip mismatch: %+v", back[0])
	}
}

func TestExportFilename(t *testing.T) {
	got := ExportFilename(time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC))
	if got != "pixshop_dna_backup_2026-10-18.json" {
		t.Fatalf("ExportFilename = %q", got)
	}
}

func TestMustMarshal(t *testing.T) {
	if string(MustMarshal(map[string]string{"a": "b"})) != `{"a":"b"}` {
		t.Fatal("unexpected marshal output")
	}
	if string(MustMarshal(make(chan int))) != "{}" {
		t.Fatal("expected {} on marshal failure")
	}
}
