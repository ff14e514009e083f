package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/tailored-agentic-units/kvcache/merge"
)

var emptyObject = []byte("{}")

// Encode serializes a value for persistence. A nil value encodes to nil.
func Encode(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return data, nil
}

// Decode parses persisted bytes back into a value. Empty input and JSON
// null decode to nil.
func Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return value, nil
}

// MergeJSON applies patch to the encoded document doc using RFC 7396
// semantics and returns the encoded result. A nil result means the key is
// to be removed.
func MergeJSON(doc []byte, patch any) ([]byte, error) {
	if patch == nil {
		return nil, nil
	}

	patchData, err := Encode(patch)
	if err != nil {
		return nil, err
	}

	if !merge.IsMapping(patch) {
		return patchData, nil
	}

	if !isObject(doc) {
		doc = emptyObject
	}

	out, err := jsonpatch.MergePatch(doc, patchData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return out, nil
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
