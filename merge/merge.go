// Package merge implements the deep-merge rules applied to stored values.
//
// Only map[string]any values are mergeable. Arrays, primitives, and opaque
// types such as time.Time or *regexp.Regexp are replaced wholesale by a patch.
// A nil entry inside a patch mapping is a tombstone: Merge keeps it so the
// persisted layer can delete the path, and Apply strips it.
package merge

// IsMapping reports whether v is a plain mapping that participates in
// recursive merging.
func IsMapping(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// Merge returns the result of merging patch over base. Neither input is
// modified and the result shares no mappings or arrays with patch.
func Merge(base, patch any) any {
	p, ok := patch.(map[string]any)
	if !ok {
		return Clone(patch)
	}

	b, _ := base.(map[string]any)
	out := make(map[string]any, len(b)+len(p))
	for k, v := range b {
		out[k] = v
	}

	for k, pv := range p {
		bv, exists := b[k]
		if exists && IsMapping(bv) && IsMapping(pv) {
			out[k] = Merge(bv, pv)
			continue
		}
		out[k] = Clone(pv)
	}

	return out
}

// Apply merges patch over base and removes tombstones from the result,
// producing the value the persisted layer holds after a merge.
func Apply(base, patch any) any {
	if patch == nil {
		return nil
	}
	return RemoveNulls(Merge(base, patch))
}

// RemoveNulls drops nil entries from mappings at every depth. Array elements
// are left as they are.
func RemoveNulls(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	out := make(map[string]any, len(m))
	for k, val := range m {
		if val == nil {
			continue
		}
		out[k] = RemoveNulls(val)
	}
	return out
}

// Clone returns a deep copy of the mappings and arrays in v. Other values
// are returned as is.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}
