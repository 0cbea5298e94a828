package presets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pixshop/internal/domain"
	"pixshop/internal/domain/jsoncfg"
	"pixshop/internal/events"
	"pixshop/internal/infra"
	"pixshop/internal/metrics"
)

// MetadataSource proposes preset metadata for a free prompt.
type MetadataSource interface {
	PresetMetadata(ctx context.Context, text string, fast bool) (domain.PresetMetadata, error)
}

// Confirmer asks the user before destructive operations.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// Confirmed always agrees. Callers use it when consent was collected upstream.
var Confirmed Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

const defaultPresetName = "Custom Preset"

const clearQuestion = "This will permanently delete ALL saved presets. Are you sure?"

// Options configures a Service.
type Options struct {
	Repo       domain.PresetRepository
	Bus        *events.PresetBus
	Metadata   MetadataSource
	Collection string
	Origin     string
	Logger     *infra.Logger
	Now        func() time.Time
	NewID      func() string
}

// Service owns the preset collection: every mutation goes through one
// load-modify-save cycle and is followed by a PresetsUpdated notice.
type Service struct {
	repo       domain.PresetRepository
	bus        *events.PresetBus
	meta       MetadataSource
	collection string
	origin     string
	logger     *infra.Logger
	now        func() time.Time
	newID      func() string
}

// NewService builds a Service. Repo is required.
func NewService(opts Options) (*Service, error) {
	if opts.Repo == nil {
		return nil, errors.New("presets: repository is required")
	}
	s := &Service{
		repo:       opts.Repo,
		bus:        opts.Bus,
		meta:       opts.Metadata,
		collection: opts.Collection,
		origin:     opts.Origin,
		logger:     infra.OrNop(opts.Logger),
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if s.bus == nil {
		s.bus = events.NewBus[events.PresetsUpdated]()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Bus exposes the notification bus so panels can subscribe.
func (s *Service) Bus() *events.PresetBus {
	return s.bus
}

// Load returns the stored presets in stored order.
func (s *Service) Load(ctx context.Context) ([]domain.StylePreset, error) {
	items, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// List returns presets newest first, optionally restricted to one panel.
func (s *Service) List(ctx context.Context, panel domain.Panel) ([]domain.StylePreset, error) {
	items, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	items = domain.FilterByPanel(domain.ClonePresets(items), panel)
	domain.SortNewestFirst(items)
	return items, nil
}

// Save replaces the whole collection.
func (s *Service) Save(ctx context.Context, items []domain.StylePreset) error {
	normalized, err := s.normalizeAll(items)
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, normalized); err != nil {
		metrics.PresetMutations.WithLabelValues("save", "error").Inc()
		return err
	}
	s.notify("save")
	return nil
}

// Add stores one new preset at the head of the collection. Missing ids and
// timestamps are assigned.
func (s *Service) Add(ctx context.Context, p domain.StylePreset) (domain.StylePreset, error) {
	p = s.prepare(p)
	if err := p.Validate(); err != nil {
		return domain.StylePreset{}, err
	}
	_, err := s.update(ctx, "add", func(cur []domain.StylePreset) ([]domain.StylePreset, error) {
		if domain.FindByID(cur, p.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateID, p.ID)
		}
		return append([]domain.StylePreset{p}, cur...), nil
	})
	if err != nil {
		return domain.StylePreset{}, err
	}
	return p, nil
}

// Delete removes the preset with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.update(ctx, "delete", func(cur []domain.StylePreset) ([]domain.StylePreset, error) {
		idx := domain.FindByID(cur, id)
		if idx < 0 {
			return nil, fmt.Errorf("preset %q: %w", id, domain.ErrNotFound)
		}
		return append(cur[:idx], cur[idx+1:]...), nil
	})
	return err
}

// Clear deletes every preset once confirm agrees. A declined or failed
// confirmation never touches the store.
func (s *Service) Clear(ctx context.Context, confirm Confirmer) error {
	if confirm == nil {
		return domain.ErrClearDeclined
	}
	ok, err := confirm.Confirm(ctx, clearQuestion)
	if err != nil {
		return fmt.Errorf("confirm clear: %w", err)
	}
	if !ok {
		return domain.ErrClearDeclined
	}
	if err := s.repo.Save(ctx, []domain.StylePreset{}); err != nil {
		metrics.PresetMutations.WithLabelValues("clear", "error").Inc()
		return err
	}
	s.notify("clear")
	return nil
}

// ImportResult reports the outcome of Import.
type ImportResult struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

// Import merges a portable document into the collection by id.
func (s *Service) Import(ctx context.Context, data []byte) (ImportResult, error) {
	incoming, err := jsoncfg.DecodePresets(data, s.newID)
	if err != nil {
		return ImportResult{}, &domain.StorageError{Kind: domain.StorageImport, Op: "import", Err: err}
	}
	for i := range incoming {
		incoming[i] = s.importable(incoming[i])
		if err := incoming[i].Validate(); err != nil {
			return ImportResult{}, &domain.StorageError{Kind: domain.StorageImport, Op: "import", Err: fmt.Errorf("record %d: %w", i, err)}
		}
	}

	var added int
	out, err := s.update(ctx, "import", func(cur []domain.StylePreset) ([]domain.StylePreset, error) {
		merged, n, err := MergeByID(cur, incoming)
		added = n
		return merged, err
	})
	if err != nil {
		return ImportResult{}, err
	}
	s.logger.Info().Int("added", added).Int("total", len(out)).Msg("presets imported")
	return ImportResult{Added: added, Total: len(out)}, nil
}

// Export renders the collection as a portable document and its filename.
func (s *Service) Export(ctx context.Context) ([]byte, string, error) {
	items, err := s.repo.Load(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(items) == 0 {
		return nil, "", domain.ErrNothingToExport
	}
	data, err := jsoncfg.ExportPresets(items)
	if err != nil {
		return nil, "", err
	}
	return data, jsoncfg.ExportFilename(s.now()), nil
}

// SmartSave turns a free prompt into a preset using generated metadata.
func (s *Service) SmartSave(ctx context.Context, text string, fast bool) (domain.StylePreset, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.StylePreset{}, domain.ErrEmptyPrompt
	}
	if s.meta == nil {
		return domain.StylePreset{}, &domain.ConfigurationError{Setting: "metadata", Msg: "no metadata source configured"}
	}
	meta, err := s.meta.PresetMetadata(ctx, text, fast)
	if err != nil {
		return domain.StylePreset{}, err
	}
	panel, ok := domain.ParsePanel(string(meta.RecommendedPanel))
	if !ok {
		panel = domain.PanelFlux
	}
	name := meta.Name
	if strings.TrimSpace(name) == "" {
		name = defaultPresetName
	}
	return s.Add(ctx, domain.StylePreset{
		Name:             normalizeName(name),
		Description:      strings.TrimSpace(meta.Description),
		ApplyPrompt:      text,
		Category:         domain.CategoryForPanel(panel),
		RecommendedPanel: panel,
		IsCustom:         true,
	})
}

// SaveRouted stores an extracted style. A non-empty panel overrides the
// router's choice.
func (s *Service) SaveRouted(ctx context.Context, style domain.RoutedStyle, panel domain.Panel) (domain.StylePreset, error) {
	if panel == "" {
		panel = style.TargetPanel
	}
	if _, ok := domain.ParsePanel(string(panel)); !ok {
		return domain.StylePreset{}, fmt.Errorf("unknown panel %q", panel)
	}
	now := truncate(s.now())
	return s.Add(ctx, domain.StylePreset{
		ID:               fmt.Sprintf("dna_%d_%s", now.UnixMilli(), shortID(s.newID())),
		Name:             normalizeName(style.PresetData.Name),
		Description:      strings.TrimSpace(style.PresetData.Description),
		ApplyPrompt:      strings.TrimSpace(style.PresetData.Prompt),
		Category:         domain.RoutedCategoryForPanel(panel),
		RecommendedPanel: panel,
		IsCustom:         true,
		Timestamp:        now,
	})
}

// MergeByID prepends the incoming records whose ids are not yet stored.
// Existing records win on conflict; repeated ids within incoming keep the
// first occurrence. It returns ErrNoNewRecords when nothing is new.
func MergeByID(existing, incoming []domain.StylePreset) ([]domain.StylePreset, int, error) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, p := range existing {
		seen[p.ID] = struct{}{}
	}
	fresh := make([]domain.StylePreset, 0, len(incoming))
	for _, p := range incoming {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		return nil, 0, domain.ErrNoNewRecords
	}
	return append(fresh, existing...), len(fresh), nil
}

func (s *Service) update(ctx context.Context, op string, fn domain.PresetMutation) ([]domain.StylePreset, error) {
	out, err := s.repo.Update(ctx, fn)
	if err != nil {
		metrics.PresetMutations.WithLabelValues(op, "error").Inc()
		return nil, err
	}
	s.notify(op)
	return out, nil
}

func (s *Service) notify(op string) {
	metrics.PresetMutations.WithLabelValues(op, "ok").Inc()
	s.bus.Publish(events.PresetsUpdated{Collection: s.collection, Origin: s.origin, At: s.now().UTC()})
}

func (s *Service) prepare(p domain.StylePreset) domain.StylePreset {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = s.newID()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = s.now()
	}
	p.Timestamp = truncate(p.Timestamp)
	p.Name = normalizeName(p.Name)
	if p.Category == "" {
		p.Category = domain.CategoryCustom
	}
	return p
}

// importable fills the gaps a foreign document may leave so the record
// passes the same checks as a saved one.
func (s *Service) importable(p domain.StylePreset) domain.StylePreset {
	p = s.prepare(p)
	if p.Name == "" {
		p.Name = defaultPresetName
	}
	switch p.Category {
	case domain.CategoryFlux, domain.CategoryFilter, domain.CategoryVector, domain.CategoryTypo, domain.CategoryCustom:
	default:
		p.Category = domain.CategoryCustom
	}
	if p.RecommendedPanel != "" {
		p.RecommendedPanel, _ = domain.ParsePanel(string(p.RecommendedPanel))
	}
	return p
}

func (s *Service) normalizeAll(items []domain.StylePreset) ([]domain.StylePreset, error) {
	out := make([]domain.StylePreset, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, p := range items {
		p = s.prepare(p)
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateID, p.ID)
		}
		seen[p.ID] = struct{}{}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// shortID keeps at most five characters of id with dashes removed.
func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 5 {
		id = id[:5]
	}
	return id
}

// truncate drops precision the portable document cannot carry.
func truncate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

// normalizeName collapses whitespace and title-cases all-lowercase names.
func normalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name != "" && name == strings.ToLower(name) {
		name = cases.Title(language.Und).String(name)
	}
	return name
}
