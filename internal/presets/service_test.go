package presets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixshop/internal/adapter/repo"
	"pixshop/internal/domain"
	"pixshop/internal/domain/jsoncfg"
	"pixshop/internal/events"
	"pixshop/internal/storage"
)

type spyRepo struct {
	inner domain.PresetRepository
	mu    sync.Mutex
	calls []string
}

func (s *spyRepo) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *spyRepo) Load(ctx context.Context) ([]domain.StylePreset, error) {
	s.record("load")
	return s.inner.Load(ctx)
}

func (s *spyRepo) Save(ctx context.Context, items []domain.StylePreset) error {
	s.record("save")
	return s.inner.Save(ctx, items)
}

func (s *spyRepo) Update(ctx context.Context, fn domain.PresetMutation) ([]domain.StylePreset, error) {
	s.record("update")
	return s.inner.Update(ctx, fn)
}

func (s *spyRepo) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c != "load" {
			n++
		}
	}
	return n
}

type stubMetadata struct {
	meta domain.PresetMetadata
	err  error
}

func (s stubMetadata) PresetMetadata(context.Context, string, bool) (domain.PresetMetadata, error) {
	return s.meta, s.err
}

type fixture struct {
	svc   *Service
	repo  *spyRepo
	bus   *events.PresetBus
	clock time.Time
}

func newFixture(t *testing.T, meta MetadataSource) *fixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		repo:  &spyRepo{inner: repo.NewPresetRepositoryFile(store, "test")},
		bus:   events.NewBus[events.PresetsUpdated](),
		clock: time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
	}
	n := 0
	svc, err := NewService(Options{
		Repo:       f.repo,
		Bus:        f.bus,
		Metadata:   meta,
		Collection: "test",
		Origin:     "node-a",
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
		NewID: func() string {
			n++
			return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
		},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func preset(id, name string) domain.StylePreset {
	return domain.StylePreset{ID: id, Name: name, ApplyPrompt: name + " prompt", IsCustom: true}
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)
}

func TestSaveThenLoadReturnsSameCollection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ts := time.UnixMilli(1700000000000).UTC()
	items := []domain.StylePreset{
		{ID: "p1", Name: "Neon Noir", ApplyPrompt: "neon, rain, reflections", Category: domain.CategoryFilter, RecommendedPanel: domain.PanelFilter, IsCustom: true, Timestamp: ts},
		{ID: "p2", Name: "Liquid Gold", ApplyPrompt: "molten gold", Category: domain.CategoryFlux, RecommendedPanel: domain.PanelFlux, IsCustom: true, Timestamp: ts.Add(time.Minute)},
	}
	require.NoError(t, f.svc.Save(ctx, items))

	got, err := f.svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestSaveRejectsDuplicateIDs(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.Save(context.Background(), []domain.StylePreset{preset("a", "A"), preset("a", "B")})
	require.ErrorIs(t, err, domain.ErrDuplicateID)
	assert.Zero(t, f.repo.writes())
}

func TestAddAssignsIDAndTimestampAndNotifies(t *testing.T) {
	f := newFixture(t, nil)
	ch, sub := f.bus.SubscribeChan(4)
	defer sub.Unsubscribe()

	p, err := f.svc.Add(context.Background(), domain.StylePreset{Name: "neon   noir", ApplyPrompt: "neon"})
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", p.ID)
	assert.Equal(t, "Neon Noir", p.Name)
	assert.Equal(t, domain.CategoryCustom, p.Category)
	assert.Zero(t, p.Timestamp.Nanosecond()%int(time.Millisecond))

	select {
	case ev := <-ch:
		assert.Equal(t, "test", ev.Collection)
		assert.Equal(t, "node-a", ev.Origin)
	default:
		t.Fatal("expected a PresetsUpdated notice")
	}
}

func TestAddRejectsInvalidPreset(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Add(context.Background(), domain.StylePreset{Name: "No prompt"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, f.repo.writes())
}

func TestListNewestFirstAndByPanel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	old := preset("old", "Old")
	old.Timestamp = time.UnixMilli(1000).UTC()
	old.RecommendedPanel = domain.PanelFilter
	mid := preset("mid", "Mid")
	mid.Timestamp = time.UnixMilli(2000).UTC()
	mid.RecommendedPanel = domain.PanelTypography
	recent := preset("new", "New")
	recent.Timestamp = time.UnixMilli(3000).UTC()
	recent.RecommendedPanel = domain.PanelFilter
	require.NoError(t, f.svc.Save(ctx, []domain.StylePreset{old, recent, mid}))

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})

	filters, err := f.svc.List(ctx, domain.PanelFilter)
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.Equal(t, "new", filters[0].ID)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, []domain.StylePreset{preset("a", "A"), preset("b", "B")}))

	require.NoError(t, f.svc.Delete(ctx, "a"))
	items, _ := f.svc.Load(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)

	assert.ErrorIs(t, f.svc.Delete(ctx, "missing"), domain.ErrNotFound)
}

func TestClearDeclinedNeverTouchesStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, []domain.StylePreset{preset("a", "A")}))
	before := f.repo.writes()

	asked := false
	err := f.svc.Clear(ctx, ConfirmFunc(func(context.Context, string) (bool, error) {
		asked = true
		return false, nil
	}))
	require.ErrorIs(t, err, domain.ErrClearDeclined)
	assert.True(t, asked)
	assert.Equal(t, before, f.repo.writes())

	require.ErrorIs(t, f.svc.Clear(ctx, nil), domain.ErrClearDeclined)

	err = f.svc.Clear(ctx, ConfirmFunc(func(context.Context, string) (bool, error) {
		return false, errors.New("tty closed")
	}))
	require.Error(t, err)
	assert.Equal(t, before, f.repo.writes())

	items, _ := f.svc.Load(ctx)
	assert.Len(t, items, 1)
}

func TestClearConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, []domain.StylePreset{preset("a", "A")}))

	require.NoError(t, f.svc.Clear(ctx, Confirmed))
	items, err := f.svc.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMergeByID(t *testing.T) {
	existing := []domain.StylePreset{preset("a", "Existing A")}
	incoming := []domain.StylePreset{preset("a", "Imported A"), preset("b", "B"), preset("b", "B again"), preset("c", "C")}

	merged, added, err := MergeByID(existing, incoming)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	require.Len(t, merged, 3)
	assert.Equal(t, "b", merged[0].ID)
	assert.Equal(t, "B", merged[0].Name)
	assert.Equal(t, "c", merged[1].ID)
	assert.Equal(t, "Existing A", merged[2].Name)

	_, _, err = MergeByID(existing, []domain.StylePreset{preset("a", "dup")})
	assert.ErrorIs(t, err, domain.ErrNoNewRecords)
}

func TestImportOverlappingLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, []domain.StylePreset{preset("a", "A")}))
	before, _ := f.svc.Load(ctx)

	_, err := f.svc.Import(ctx, []byte(`[{"id":"a","name":"Other","applyPrompt":"x"}]`))
	require.ErrorIs(t, err, domain.ErrNoNewRecords)

	after, _ := f.svc.Load(ctx)
	assert.Equal(t, before, after)
}

func TestImportRejectsNonArray(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Import(context.Background(), []byte(`{"id":"a"}`))
	require.ErrorIs(t, err, domain.ErrInvalidImport)
	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, domain.StorageImport, storageErr.Kind)
}

func TestImportToleratesMissingFields(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.Import(context.Background(), []byte(`[{"name":"Only a name","genPrompt":"legacy","unknown":true}]`))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 1, Total: 1}, res)

	items, _ := f.svc.Load(context.Background())
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, "legacy", items[0].ApplyPrompt)
}

func TestImportNormalizesForeignRecords(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Import(ctx, []byte(`[{"id":"x1","applyPrompt":"soft light"},{"id":"x2","name":"Odd","applyPrompt":"p","category":"STYLE","recommendedPanel":"Sidebar"}]`))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 2, Total: 2}, res)

	items, err := f.svc.Load(ctx)
	require.NoError(t, err)
	byID := map[string]domain.StylePreset{}
	for _, p := range items {
		byID[p.ID] = p
		assert.False(t, p.Timestamp.IsZero())
		require.NoError(t, p.Validate())
	}
	assert.Equal(t, "Custom Preset", byID["x1"].Name)
	assert.Equal(t, domain.CategoryCustom, byID["x1"].Category)
	assert.Equal(t, domain.CategoryCustom, byID["x2"].Category)
	assert.Empty(t, byID["x2"].RecommendedPanel)

	require.NoError(t, f.svc.Save(ctx, items))
}

func TestImportRejectsRecordWithoutPrompt(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Import(context.Background(), []byte(`[{"id":"x1","name":"Empty"}]`))
	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, domain.StorageImport, storageErr.Kind)

	items, _ := f.svc.Load(context.Background())
	assert.Empty(t, items)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newFixture(t, nil)
	ctx := context.Background()
	_, _, err := src.svc.Export(ctx)
	require.ErrorIs(t, err, domain.ErrNothingToExport)

	for _, name := range []string{"One", "Two", "Three"} {
		_, err := src.svc.Add(ctx, domain.StylePreset{Name: name, ApplyPrompt: name, RecommendedPanel: domain.PanelFlux, Category: domain.CategoryFlux})
		require.NoError(t, err)
	}
	doc, filename, err := src.svc.Export(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^`+jsoncfg.ExportFilePrefix+`\d{4}-\d{2}-\d{2}\.json$`, filename)

	dst := newFixture(t, nil)
	res, err := dst.svc.Import(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)

	want, _ := src.svc.Load(ctx)
	got, _ := dst.svc.Load(ctx)
	assert.ElementsMatch(t, want, got)
}

func TestSmartSaveMapsCategory(t *testing.T) {
	cases := []struct {
		panel    domain.Panel
		category domain.Category
	}{
		{domain.PanelVector, domain.CategoryVector},
		{domain.PanelTypography, domain.CategoryTypo},
		{domain.PanelFilter, domain.CategoryFilter},
		{domain.PanelFlux, domain.CategoryFlux},
		{"bogus", domain.CategoryFlux},
	}
	for _, tc := range cases {
		t.Run(string(tc.panel), func(t *testing.T) {
			f := newFixture(t, stubMetadata{meta: domain.PresetMetadata{Name: "Neon Noir", Description: "d", RecommendedPanel: tc.panel}})
			p, err := f.svc.SmartSave(context.Background(), "  neon city at night ", false)
			require.NoError(t, err)
			assert.Equal(t, tc.category, p.Category)
			assert.Equal(t, "neon city at night", p.ApplyPrompt)
			assert.True(t, p.IsCustom)
			if tc.panel == "bogus" {
				assert.Equal(t, domain.PanelFlux, p.RecommendedPanel)
			}
		})
	}
}

func TestSmartSaveErrors(t *testing.T) {
	f := newFixture(t, stubMetadata{err: &domain.ServiceError{Op: "metadata", Status: 500}})
	_, err := f.svc.SmartSave(context.Background(), "x", false)
	assert.True(t, domain.IsService(err))

	_, err = f.svc.SmartSave(context.Background(), "   ", false)
	assert.ErrorIs(t, err, domain.ErrEmptyPrompt)

	bare := newFixture(t, nil)
	_, err = bare.svc.SmartSave(context.Background(), "x", false)
	assert.True(t, domain.IsConfiguration(err))
}

func TestSaveRoutedForcesPanel(t *testing.T) {
	f := newFixture(t, nil)
	style := domain.RoutedStyle{
		TargetPanel: domain.PanelFilter,
		PresetData:  domain.RoutedPresetData{Name: "Chrome Tag", Description: "d", Prompt: "liquid chrome graffiti"},
	}

	p, err := f.svc.SaveRouted(context.Background(), style, domain.PanelTypography)
	require.NoError(t, err)
	assert.Equal(t, domain.PanelTypography, p.RecommendedPanel)
	assert.Equal(t, domain.CategoryTypo, p.Category)
	assert.Regexp(t, `^dna_\d+_[0-9a-f]{5}$`, p.ID)

	q, err := f.svc.SaveRouted(context.Background(), style, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PanelFilter, q.RecommendedPanel)
	assert.Equal(t, domain.CategoryCustom, q.Category)

	_, err = f.svc.SaveRouted(context.Background(), style, "nowhere")
	assert.Error(t, err)
}

func TestSaveRoutedToleratesShortIDs(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc, err := NewService(Options{
		Repo:       repo.NewPresetRepositoryFile(store, "test"),
		Bus:        events.NewBus[events.PresetsUpdated](),
		Collection: "test",
		NewID:      func() string { return "a-b" },
	})
	require.NoError(t, err)

	style := domain.RoutedStyle{
		TargetPanel: domain.PanelVector,
		PresetData:  domain.RoutedPresetData{Name: "Flat", Prompt: "flat shapes"},
	}
	p, err := svc.SaveRouted(context.Background(), style, "")
	require.NoError(t, err)
	assert.Regexp(t, `^dna_\d+_ab$`, p.ID)
}
