package jsoncfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pixshop/internal/domain"
)

// ExportFilePrefix names downloaded preset backups.
const ExportFilePrefix = "pixshop_dna_backup_"

// presetDoc is the portable shape of one preset. genPrompt mirrors applyPrompt
// for older readers; id and timestamp accept either strings or numbers.
type presetDoc struct {
	ID               json.RawMessage `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	ApplyPrompt      string          `json:"applyPrompt"`
	GenPrompt        string          `json:"genPrompt,omitempty"`
	Category         string          `json:"category"`
	RecommendedPanel string          `json:"recommendedPanel"`
	IsCustom         *bool           `json:"isCustom,omitempty"`
	Timestamp        json.RawMessage `json:"timestamp,omitempty"`
}

type presetOut struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	ApplyPrompt      string `json:"applyPrompt"`
	GenPrompt        string `json:"genPrompt"`
	Category         string `json:"category"`
	RecommendedPanel string `json:"recommendedPanel"`
	IsCustom         bool   `json:"isCustom"`
	Timestamp        int64  `json:"timestamp"`
}

// DecodePresets parses a JSON array of presets. Unknown fields are ignored and
// missing ones stay zero. Records without an id get one from newID.
func DecodePresets(data []byte, newID func() string) ([]domain.StylePreset, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", domain.ErrInvalidImport)
	}
	var docs []presetDoc
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImport, err)
	}
	out := make([]domain.StylePreset, 0, len(docs))
	for _, d := range docs {
		p := domain.StylePreset{
			ID:               rawString(d.ID),
			Name:             strings.TrimSpace(d.Name),
			Description:      strings.TrimSpace(d.Description),
			ApplyPrompt:      d.ApplyPrompt,
			Category:         domain.Category(strings.TrimSpace(d.Category)),
			RecommendedPanel: domain.Panel(strings.TrimSpace(d.RecommendedPanel)),
			IsCustom:         true,
			Timestamp:        rawTime(d.Timestamp),
		}
		if strings.TrimSpace(p.ApplyPrompt) == "" {
			p.ApplyPrompt = d.GenPrompt
		}
		if d.IsCustom != nil {
			p.IsCustom = *d.IsCustom
		}
		if p.ID == "" && newID != nil {
			p.ID = newID()
		}
		out = append(out, p)
	}
	return out, nil
}

// EncodePresets renders presets compactly for storage.
func EncodePresets(items []domain.StylePreset) ([]byte, error) {
	return json.Marshal(toOut(items))
}

// ExportPresets renders presets as an indented, portable document.
func ExportPresets(items []domain.StylePreset) ([]byte, error) {
	return json.MarshalIndent(toOut(items), "", "  ")
}

// ExportFilename returns the download name for a backup taken at t.
func ExportFilename(t time.Time) string {
	return ExportFilePrefix + t.UTC().Format("2006-01-02") + ".json"
}

// MustMarshal marshals v and returns "{}" on failure.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func toOut(items []domain.StylePreset) []presetOut {
	out := make([]presetOut, 0, len(items))
	for _, p := range items {
		var ts int64
		if !p.Timestamp.IsZero() {
			ts = p.Timestamp.UnixMilli()
		}
		out = append(out, presetOut{
			ID:               p.ID,
			Name:             p.Name,
			Description:      p.Description,
			ApplyPrompt:      p.ApplyPrompt,
			GenPrompt:        p.ApplyPrompt,
			Category:         string(p.Category),
			RecommendedPanel: string(p.RecommendedPanel),
			IsCustom:         p.IsCustom,
			Timestamp:        ts,
		})
	}
	return out
}

func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func rawTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if ms, err := n.Int64(); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
