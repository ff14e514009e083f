package merge_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/kvcache/merge"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name  string
		base  any
		patch any
		want  any
	}{
		{
			name:  "array replaces array",
			base:  map[string]any{"a": []any{1, 2, 3}},
			patch: map[string]any{"a": []any{4}},
			want:  map[string]any{"a": []any{4}},
		},
		{
			name:  "nested mappings merge",
			base:  map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": "keep"},
			patch: map[string]any{"a": map[string]any{"y": 3, "z": 4}},
			want:  map[string]any{"a": map[string]any{"x": 1, "y": 3, "z": 4}, "b": "keep"},
		},
		{
			name:  "primitive patch replaces mapping",
			base:  map[string]any{"a": 1},
			patch: "pizza",
			want:  "pizza",
		},
		{
			name:  "array patch replaces mapping",
			base:  map[string]any{"a": 1},
			patch: []any{"x"},
			want:  []any{"x"},
		},
		{
			name:  "mapping patch over primitive base",
			base:  "pizza",
			patch: map[string]any{"a": 1},
			want:  map[string]any{"a": 1},
		},
		{
			name:  "mapping patch over nil base",
			base:  nil,
			patch: map[string]any{"a": 1},
			want:  map[string]any{"a": 1},
		},
		{
			name:  "tombstone retained",
			base:  map[string]any{"a": 1, "b": 2},
			patch: map[string]any{"a": nil},
			want:  map[string]any{"a": nil, "b": 2},
		},
		{
			name:  "mapping replaces primitive leaf",
			base:  map[string]any{"a": 1},
			patch: map[string]any{"a": map[string]any{"b": 2}},
			want:  map[string]any{"a": map[string]any{"b": 2}},
		},
		{
			name:  "nil patch",
			base:  map[string]any{"a": 1},
			patch: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := merge.Merge(tt.base, tt.patch)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMerge_RecursiveKeyUnion(t *testing.T) {
	a := map[string]any{
		"name":  "a",
		"inner": map[string]any{"p": 1, "q": map[string]any{"r": true}},
		"only":  "base",
	}
	b := map[string]any{
		"name":  "b",
		"inner": map[string]any{"q": map[string]any{"s": false}},
		"extra": 3.5,
	}

	want := map[string]any{
		"name":  "b",
		"inner": map[string]any{"p": 1, "q": map[string]any{"r": true, "s": false}},
		"only":  "base",
		"extra": 3.5,
	}

	if diff := cmp.Diff(want, merge.Merge(a, b)); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1}}
	patch := map[string]any{"a": map[string]any{"y": 2}, "list": []any{1}}

	got := merge.Merge(base, patch).(map[string]any)

	if diff := cmp.Diff(map[string]any{"a": map[string]any{"x": 1}}, base); diff != "" {
		t.Errorf("base mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"a": map[string]any{"y": 2}, "list": []any{1}}, patch); diff != "" {
		t.Errorf("patch mutated (-want +got):\n%s", diff)
	}

	got["list"].([]any)[0] = 99
	if patch["list"].([]any)[0] != 1 {
		t.Error("result shares array with patch")
	}
}

func TestMerge_OpaqueValues(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	later := when.Add(time.Hour)
	pattern := regexp.MustCompile("^a+$")

	got := merge.Merge(
		map[string]any{"at": when, "re": regexp.MustCompile("b")},
		map[string]any{"at": later, "re": pattern},
	).(map[string]any)

	if !got["at"].(time.Time).Equal(later) {
		t.Errorf("at = %v, want %v", got["at"], later)
	}
	if got["re"] != pattern {
		t.Errorf("re = %v, want %v", got["re"], pattern)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		base  any
		patch any
		want  any
	}{
		{
			name:  "tombstone removes key",
			base:  map[string]any{"a": 1, "b": 2},
			patch: map[string]any{"a": nil},
			want:  map[string]any{"b": 2},
		},
		{
			name:  "nested tombstone",
			base:  map[string]any{"a": map[string]any{"x": 1, "y": 2}},
			patch: map[string]any{"a": map[string]any{"x": nil}},
			want:  map[string]any{"a": map[string]any{"y": 2}},
		},
		{
			name:  "nulls inside arrays kept",
			base:  nil,
			patch: map[string]any{"a": []any{nil, 1}},
			want:  map[string]any{"a": []any{nil, 1}},
		},
		{
			name:  "merge on empty key",
			base:  map[string]any{"a": 1},
			patch: map[string]any{"b": 2},
			want:  map[string]any{"a": 1, "b": 2},
		},
		{
			name:  "nil patch",
			base:  map[string]any{"a": 1},
			patch: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, merge.Apply(tt.base, tt.patch)); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClone(t *testing.T) {
	src := map[string]any{"a": []any{map[string]any{"b": 1}}}
	dup := merge.Clone(src).(map[string]any)

	dup["a"].([]any)[0].(map[string]any)["b"] = 2
	if src["a"].([]any)[0].(map[string]any)["b"] != 1 {
		t.Error("Clone() shares nested mapping with source")
	}
}
