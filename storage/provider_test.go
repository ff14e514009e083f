package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/kvcache/storage"
)

func providers(t *testing.T) map[string]storage.Provider {
	t.Helper()
	ctx := context.Background()

	sqlite, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	out := map[string]storage.Provider{
		"memory": storage.NewMemoryProvider(),
		"file":   storage.NewFileProvider(filepath.Join(t.TempDir(), "items")),
		"sqlite": sqlite,
	}

	if url := os.Getenv("KVCACHE_POSTGRES_URL"); url != "" {
		pg, err := storage.OpenPostgres(ctx, url)
		if err != nil {
			t.Fatalf("OpenPostgres() error = %v", err)
		}
		if err := pg.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}

	return out
}

func TestProvider_SetGet(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := p.SetItem(ctx, "test", "pizza"); err != nil {
				t.Fatalf("SetItem() error = %v", err)
			}

			got, err := p.GetItem(ctx, "test")
			if err != nil {
				t.Fatalf("GetItem() error = %v", err)
			}
			if got != "pizza" {
				t.Errorf("GetItem() = %v, want pizza", got)
			}

			missing, err := p.GetItem(ctx, "missing")
			if err != nil {
				t.Fatalf("GetItem(missing) error = %v", err)
			}
			if missing != nil {
				t.Errorf("GetItem(missing) = %v, want nil", missing)
			}
		})
	}
}

func TestProvider_SetNilRemoves(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := p.SetItem(ctx, "k", map[string]any{"a": 1}); err != nil {
				t.Fatalf("SetItem() error = %v", err)
			}
			if err := p.SetItem(ctx, "k", nil); err != nil {
				t.Fatalf("SetItem(nil) error = %v", err)
			}

			keys, err := p.GetAllKeys(ctx)
			if err != nil {
				t.Fatalf("GetAllKeys() error = %v", err)
			}
			if len(keys) != 0 {
				t.Errorf("GetAllKeys() = %v, want empty", keys)
			}
		})
	}
}

func TestProvider_MultiSetMultiGet(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := p.MultiSet(ctx,
				storage.Entry{Key: "report_1", Value: map[string]any{"title": "a"}},
				storage.Entry{Key: "report_2", Value: []any{"x", "y"}},
				storage.Entry{Key: "flag", Value: true},
			)
			if err != nil {
				t.Fatalf("MultiSet() error = %v", err)
			}

			entries, err := p.MultiGet(ctx, "report_2", "missing", "report_1")
			if err != nil {
				t.Fatalf("MultiGet() error = %v", err)
			}

			want := []storage.Entry{
				{Key: "report_2", Value: []any{"x", "y"}},
				{Key: "report_1", Value: map[string]any{"title": "a"}},
			}
			if diff := cmp.Diff(want, entries); diff != "" {
				t.Errorf("MultiGet() mismatch (-want +got):\n%s", diff)
			}

			keys, err := p.GetAllKeys(ctx)
			if err != nil {
				t.Fatalf("GetAllKeys() error = %v", err)
			}
			if diff := cmp.Diff([]string{"flag", "report_1", "report_2"}, keys); diff != "" {
				t.Errorf("GetAllKeys() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProvider_MultiMerge(t *testing.T) {
	tests := []struct {
		name  string
		start any
		patch any
		want  any
	}{
		{
			name:  "merge into empty key",
			start: nil,
			patch: map[string]any{"a": 1.0},
			want:  map[string]any{"a": 1.0},
		},
		{
			name:  "nested merge",
			start: map[string]any{"a": map[string]any{"x": 1.0}, "b": "keep"},
			patch: map[string]any{"a": map[string]any{"y": 2.0}},
			want:  map[string]any{"a": map[string]any{"x": 1.0, "y": 2.0}, "b": "keep"},
		},
		{
			name:  "array replaced",
			start: map[string]any{"a": []any{1.0, 2.0, 3.0}},
			patch: map[string]any{"a": []any{4.0}},
			want:  map[string]any{"a": []any{4.0}},
		},
		{
			name:  "tombstone deletes path",
			start: map[string]any{"a": 1.0, "b": 2.0},
			patch: map[string]any{"a": nil},
			want:  map[string]any{"b": 2.0},
		},
		{
			name:  "primitive patch replaces",
			start: map[string]any{"a": 1.0},
			patch: "pizza",
			want:  "pizza",
		},
		{
			name:  "mapping patch over primitive",
			start: "pizza",
			patch: map[string]any{"a": 1.0},
			want:  map[string]any{"a": 1.0},
		},
	}

	for name, p := range providers(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				ctx := context.Background()
				if err := p.SetItem(ctx, "merged", tt.start); err != nil {
					t.Fatalf("SetItem() error = %v", err)
				}

				if err := p.MultiMerge(ctx, storage.Entry{Key: "merged", Value: tt.patch}); err != nil {
					t.Fatalf("MultiMerge() error = %v", err)
				}

				got, err := p.GetItem(ctx, "merged")
				if err != nil {
					t.Fatalf("GetItem() error = %v", err)
				}
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("merged value mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestProvider_RemoveAndClear(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p.MultiSet(ctx,
				storage.Entry{Key: "a", Value: 1},
				storage.Entry{Key: "b", Value: 2},
				storage.Entry{Key: "c", Value: 3},
			)

			if err := p.RemoveItem(ctx, "a"); err != nil {
				t.Fatalf("RemoveItem() error = %v", err)
			}
			if err := p.RemoveItem(ctx, "never"); err != nil {
				t.Fatalf("RemoveItem(never) error = %v", err)
			}

			keys, _ := p.GetAllKeys(ctx)
			if diff := cmp.Diff([]string{"b", "c"}, keys); diff != "" {
				t.Errorf("GetAllKeys() after remove mismatch (-want +got):\n%s", diff)
			}

			if err := p.Clear(ctx); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			keys, _ = p.GetAllKeys(ctx)
			if len(keys) != 0 {
				t.Errorf("GetAllKeys() after Clear = %v, want empty", keys)
			}
		})
	}
}

func TestFileProvider_KeyEscaping(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p := storage.NewFileProvider(root)

	keys := []string{"reports/1", ".hidden", "with space", "collection_a"}
	for _, key := range keys {
		if err := p.SetItem(ctx, key, key); err != nil {
			t.Fatalf("SetItem(%q) error = %v", key, err)
		}
	}

	got, err := p.GetAllKeys(ctx)
	if err != nil {
		t.Fatalf("GetAllKeys() error = %v", err)
	}
	want := []string{".hidden", "collection_a", "reports/1", "with space"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetAllKeys() mismatch (-want +got):\n%s", diff)
	}

	for _, key := range keys {
		v, err := p.GetItem(ctx, key)
		if err != nil || v != key {
			t.Errorf("GetItem(%q) = %v, %v", key, v, err)
		}
	}

	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("unexpected directory %q under root", e.Name())
		}
	}
}

func TestFileProvider_MissingRoot(t *testing.T) {
	p := storage.NewFileProvider(filepath.Join(t.TempDir(), "nonexistent"))

	keys, err := p.GetAllKeys(context.Background())
	if err != nil {
		t.Fatalf("GetAllKeys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("GetAllKeys() returned %d keys, want 0", len(keys))
	}
}
