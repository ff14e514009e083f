package store

import (
	"encoding/json"
	"strings"
)

// Operation is one step of an Update batch. The concrete types are SetOp,
// MergeOp, MultiSetOp, and MergeCollectionOp.
type Operation interface {
	method() string
}

// SetOp replaces the value of Key.
type SetOp struct {
	Key   string
	Value any
}

// MergeOp deep-merges Value into the value of Key.
type MergeOp struct {
	Key   string
	Value any
}

// MultiSetOp replaces the value of every key in Values.
type MultiSetOp struct {
	Values map[string]any
}

// MergeCollectionOp merges Values into members of the collection
// CollectionKey. Every key in Values must be a member of it.
type MergeCollectionOp struct {
	CollectionKey string
	Values        map[string]any
}

func (SetOp) method() string             { return "set" }
func (MergeOp) method() string           { return "merge" }
func (MultiSetOp) method() string        { return "multiSet" }
func (MergeCollectionOp) method() string { return "mergeCollection" }

type wireOperation struct {
	Method string          `json:"method"`
	Key    json.RawMessage `json:"key,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// DecodeOperations parses a JSON array of operations of the form
//
//	{"method": "set", "key": "session", "value": {...}}
//
// Methods are set, merge, multiSet, and mergeCollection (case-insensitive).
// For multiSet the value is the key/value mapping and no key is given. An
// unknown method or a key that is not a string yields ErrInvalidArgument.
func DecodeOperations(data []byte) ([]Operation, error) {
	var wire []wireOperation
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, invalidArgument("decode operations: %v", err)
	}

	ops := make([]Operation, 0, len(wire))
	for i, w := range wire {
		op, err := decodeOperation(w)
		if err != nil {
			return nil, invalidArgument("operation %d: %v", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func decodeOperation(w wireOperation) (Operation, error) {
	method := strings.ToLower(w.Method)
	switch method {
	case "set", "merge", "multiset", "mergecollection":
	default:
		return nil, errUnknownMethod(w.Method)
	}

	var key string
	if method != "multiset" {
		if err := json.Unmarshal(w.Key, &key); err != nil {
			return nil, errInvalidKey(w.Method)
		}
	}

	var value any
	if len(w.Value) > 0 {
		if err := json.Unmarshal(w.Value, &value); err != nil {
			return nil, err
		}
	}

	switch method {
	case "set":
		return SetOp{Key: key, Value: value}, nil
	case "merge":
		return MergeOp{Key: key, Value: value}, nil
	case "multiset":
		values, ok := value.(map[string]any)
		if !ok {
			return nil, errNotMapping(w.Method)
		}
		return MultiSetOp{Values: values}, nil
	case "mergecollection":
		values, ok := value.(map[string]any)
		if !ok {
			return nil, errNotMapping(w.Method)
		}
		return MergeCollectionOp{CollectionKey: key, Values: values}, nil
	}
	return nil, errUnknownMethod(w.Method)
}
