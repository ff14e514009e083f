package rpc_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/kvcache/storage"
	"github.com/tailored-agentic-units/kvcache/storage/rpc"
)

func newRemote(t *testing.T, backing storage.Provider) *rpc.Client {
	t.Helper()

	path, h := rpc.NewHandler(backing)
	mux := http.NewServeMux()
	mux.Handle(path, h)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return rpc.NewClient(srv.Client(), srv.URL)
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := storage.NewMemoryProvider()
	client := newRemote(t, backing)

	if err := client.SetItem(ctx, "test", map[string]any{"a": 1, "list": []any{"x"}}); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}

	got, err := client.GetItem(ctx, "test")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	want := map[string]any{"a": 1.0, "list": []any{"x"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetItem() mismatch (-want +got):\n%s", diff)
	}

	direct, _ := backing.GetItem(ctx, "test")
	if diff := cmp.Diff(want, direct); diff != "" {
		t.Errorf("backing value mismatch (-want +got):\n%s", diff)
	}

	missing, err := client.GetItem(ctx, "missing")
	if err != nil {
		t.Fatalf("GetItem(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetItem(missing) = %v, want nil", missing)
	}
}

func TestClient_BatchOperations(t *testing.T) {
	ctx := context.Background()
	client := newRemote(t, storage.NewMemoryProvider())

	err := client.MultiSet(ctx,
		storage.Entry{Key: "report_1", Value: map[string]any{"title": "one"}},
		storage.Entry{Key: "report_2", Value: "two"},
	)
	if err != nil {
		t.Fatalf("MultiSet() error = %v", err)
	}

	err = client.MultiMerge(ctx,
		storage.Entry{Key: "report_1", Value: map[string]any{"done": true, "title": nil}},
	)
	if err != nil {
		t.Fatalf("MultiMerge() error = %v", err)
	}

	entries, err := client.MultiGet(ctx, "report_1", "report_2", "absent")
	if err != nil {
		t.Fatalf("MultiGet() error = %v", err)
	}
	want := []storage.Entry{
		{Key: "report_1", Value: map[string]any{"done": true}},
		{Key: "report_2", Value: "two"},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("MultiGet() mismatch (-want +got):\n%s", diff)
	}

	keys, err := client.GetAllKeys(ctx)
	if err != nil {
		t.Fatalf("GetAllKeys() error = %v", err)
	}
	if diff := cmp.Diff([]string{"report_1", "report_2"}, keys); diff != "" {
		t.Errorf("GetAllKeys() mismatch (-want +got):\n%s", diff)
	}

	if err := client.RemoveItem(ctx, "report_1"); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if err := client.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	keys, _ = client.GetAllKeys(ctx)
	if len(keys) != 0 {
		t.Errorf("GetAllKeys() after Clear = %v, want empty", keys)
	}
}

type failingProvider struct {
	storage.Provider
}

func (failingProvider) SetItem(context.Context, string, any) error {
	return errors.New("disk full")
}

func TestClient_RemoteFailure(t *testing.T) {
	client := newRemote(t, failingProvider{Provider: storage.NewMemoryProvider()})

	err := client.SetItem(context.Background(), "k", "v")
	if !errors.Is(err, storage.ErrSaveFailed) {
		t.Errorf("SetItem() error = %v, want ErrSaveFailed", err)
	}
}

func TestProviderRegistration(t *testing.T) {
	path, h := rpc.NewHandler(storage.NewMemoryProvider())
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := storage.NewProvider(context.Background(), &storage.Config{Type: rpc.TypeRPC, URL: srv.URL})
	if err != nil {
		t.Fatalf("NewProvider(rpc) error = %v", err)
	}
	if err := p.SetItem(context.Background(), "k", "v"); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}
}
