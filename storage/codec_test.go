package storage_test

import (
	"errors"
	"testing"

	"github.com/tailored-agentic-units/kvcache/storage"
)

func TestMergeJSON(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		patch any
		want  string
	}{
		{name: "nil doc", doc: "", patch: map[string]any{"a": 1}, want: `{"a":1}`},
		{name: "array doc", doc: `[1,2]`, patch: map[string]any{"a": 1}, want: `{"a":1}`},
		{name: "scalar patch", doc: `{"a":1}`, patch: 5, want: `5`},
		{name: "array patch", doc: `{"a":1}`, patch: []any{1}, want: `[1]`},
		{name: "tombstone", doc: `{"a":1,"b":2}`, patch: map[string]any{"b": nil}, want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc []byte
			if tt.doc != "" {
				doc = []byte(tt.doc)
			}
			got, err := storage.MergeJSON(doc, tt.patch)
			if err != nil {
				t.Fatalf("MergeJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("MergeJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMergeJSON_NilPatch(t *testing.T) {
	got, err := storage.MergeJSON([]byte(`{"a":1}`), nil)
	if err != nil {
		t.Fatalf("MergeJSON() error = %v", err)
	}
	if got != nil {
		t.Errorf("MergeJSON() = %s, want nil", got)
	}
}

func TestEncode_InvalidValue(t *testing.T) {
	_, err := storage.Encode(make(chan int))
	if !errors.Is(err, storage.ErrInvalidValue) {
		t.Errorf("Encode(chan) error = %v, want ErrInvalidValue", err)
	}
}
