package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pixshop/internal/sqlinline"
)

type call struct {
	query string
	args  []any
}

// fakeTable is an in-memory integration_tokens table.
type fakeTable struct {
	rows    map[string]string
	updated time.Time
	err     error
	reads   int
	execs   []call
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]string{}, updated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeTable) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, call{query: query, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	provider := args[0].(string)
	switch query {
	case sqlinline.QUpsertIntegrationToken:
		f.rows[provider] = args[1].(string)
	case sqlinline.QDeleteIntegrationToken:
		delete(f.rows, provider)
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeTable) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	f.reads++
	if f.err != nil {
		return row{err: f.err}
	}
	token, ok := f.rows[args[0].(string)]
	if !ok {
		return row{err: pgx.ErrNoRows}
	}
	return row{token: token, updated: f.updated}
}

func (f *fakeTable) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type row struct {
	token   string
	updated time.Time
	err     error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 2 {
		return errors.New("expected token and updated_at")
	}
	*dest[0].(*string) = r.token
	*dest[1].(*time.Time) = r.updated
	return nil
}

func TestGeminiAPIKeyIsCached(t *testing.T) {
	table := newFakeTable()
	table.rows[ProviderGemini] = " abc123 "
	store := NewStore(table, time.Minute)

	for i := 0; i < 3; i++ {
		key, err := store.GeminiAPIKey(context.Background())
		if err != nil {
			t.Fatalf("GeminiAPIKey error: %v", err)
		}
		if key != "abc123" {
			t.Fatalf("expected abc123, got %q", key)
		}
	}
	if table.reads != 1 {
		t.Fatalf("expected one read, got %d", table.reads)
	}
}

func TestLookupMissingRow(t *testing.T) {
	store := NewStore(newFakeTable(), 0)
	c, err := store.Lookup(context.Background(), ProviderGemini)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if c.Token != "" || !c.UpdatedAt.IsZero() {
		t.Fatalf("expected empty credential, got %+v", c)
	}
}

func TestLookupErrorIsNotCached(t *testing.T) {
	table := newFakeTable()
	table.err = errors.New("connection refused")
	store := NewStore(table, time.Minute)

	if _, err := store.GeminiAPIKey(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
	table.err = nil
	table.rows[ProviderGemini] = "later"
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil || key != "later" {
		t.Fatalf("expected retry to read the row, got %q %v", key, err)
	}
}

func TestSetInvalidatesCache(t *testing.T) {
	table := newFakeTable()
	store := NewStore(table, time.Minute)

	if key, _ := store.GeminiAPIKey(context.Background()); key != "" {
		t.Fatalf("expected no key, got %q", key)
	}
	if err := store.SetGeminiAPIKey(context.Background(), " secret ", "presetctl"); err != nil {
		t.Fatalf("SetGeminiAPIKey error: %v", err)
	}
	last := table.execs[len(table.execs)-1]
	if last.query != sqlinline.QUpsertIntegrationToken {
		t.Fatalf("unexpected query %q", last.query)
	}
	if v := last.args[1].(string); v != "secret" {
		t.Fatalf("expected trimmed token, got %q", v)
	}
	var props map[string]string
	if err := json.Unmarshal(last.args[2].([]byte), &props); err != nil || props["source"] != "presetctl" {
		t.Fatalf("unexpected properties %s (%v)", last.args[2], err)
	}

	key, err := store.GeminiAPIKey(context.Background())
	if err != nil || key != "secret" {
		t.Fatalf("expected fresh key after set, got %q %v", key, err)
	}
}

func TestSetRejectsEmptyToken(t *testing.T) {
	table := newFakeTable()
	store := NewStore(table, 0)
	if err := store.Set(context.Background(), ProviderGemini, " ", nil); err == nil {
		t.Fatal("expected error for empty token")
	}
	if len(table.execs) != 0 {
		t.Fatalf("expected no writes, got %d", len(table.execs))
	}
}

func TestDelete(t *testing.T) {
	table := newFakeTable()
	table.rows[ProviderGemini] = "abc"
	store := NewStore(table, time.Minute)
	if _, err := store.GeminiAPIKey(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(context.Background(), ProviderGemini); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if key, _ := store.GeminiAPIKey(context.Background()); key != "" {
		t.Fatalf("expected key to be gone, got %q", key)
	}
}

func TestMasked(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"abc":         "***",
		"AIzaSy12345": "*******2345",
	}
	for in, want := range cases {
		if got := (Credential{Token: in}).Masked(); got != want {
			t.Fatalf("Masked(%q) = %q, want %q", in, got, want)
		}
	}
}
