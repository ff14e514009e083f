// Package rpc exposes a storage.Provider over Connect RPC and consumes a
// remote one as a local storage.Provider. Messages are protobuf well-known
// types: keys and values travel as structpb.Value, acknowledgements as
// emptypb.Empty.
//
// Importing the package registers the "rpc" provider type, whose Config.URL
// is the base URL of a server created with NewHandler.
package rpc

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/kvcache/storage"
)

// TypeRPC is the storage.Config type that selects a remote provider.
const TypeRPC = "rpc"

// ServiceName is the fully-qualified Connect service name.
const ServiceName = "kvcache.storage.v1.StorageService"

// Procedure paths served by NewHandler.
const (
	ProcedureGetItem    = "/" + ServiceName + "/GetItem"
	ProcedureMultiGet   = "/" + ServiceName + "/MultiGet"
	ProcedureSetItem    = "/" + ServiceName + "/SetItem"
	ProcedureMultiSet   = "/" + ServiceName + "/MultiSet"
	ProcedureMultiMerge = "/" + ServiceName + "/MultiMerge"
	ProcedureGetAllKeys = "/" + ServiceName + "/GetAllKeys"
	ProcedureRemoveItem = "/" + ServiceName + "/RemoveItem"
	ProcedureClear      = "/" + ServiceName + "/Clear"
)

func init() {
	storage.Register(TypeRPC, func(_ context.Context, cfg *storage.Config) (storage.Provider, error) {
		if cfg.URL == "" {
			return nil, fmt.Errorf("rpc storage requires a url")
		}
		return NewClient(http.DefaultClient, cfg.URL), nil
	})
}

// toValue converts a JSON-shaped value into its protobuf form. Values are
// normalized through the storage codec first so that types structpb does not
// know, such as time.Time, cross the wire the way providers persist them.
func toValue(v any) (*structpb.Value, error) {
	data, err := storage.Encode(v)
	if err != nil {
		return nil, err
	}
	normalized, err := storage.Decode(data)
	if err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidValue, err)
	}
	return pv, nil
}

func fromValue(pv *structpb.Value) any {
	if pv == nil {
		return nil
	}
	return pv.AsInterface()
}

func entriesToValue(entries []storage.Entry) (*structpb.Value, error) {
	list := make([]*structpb.Value, 0, len(entries))
	for _, e := range entries {
		value, err := toValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Key, err)
		}
		list = append(list, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"key":   structpb.NewStringValue(e.Key),
				"value": value,
			},
		}))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list}), nil
}

func entriesFromValue(pv *structpb.Value) ([]storage.Entry, error) {
	list := pv.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: expected entry list", storage.ErrInvalidValue)
	}

	entries := make([]storage.Entry, 0, len(list.Values))
	for _, item := range list.Values {
		fields := item.GetStructValue().GetFields()
		key, ok := fields["key"].GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: entry without string key", storage.ErrInvalidValue)
		}
		entries = append(entries, storage.Entry{Key: key.StringValue, Value: fromValue(fields["value"])})
	}
	return entries, nil
}

func keysToValue(keys []string) *structpb.Value {
	list := make([]*structpb.Value, len(keys))
	for i, key := range keys {
		list[i] = structpb.NewStringValue(key)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func keysFromValue(pv *structpb.Value) ([]string, error) {
	list := pv.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: expected key list", storage.ErrInvalidValue)
	}

	keys := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		key, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: non-string key", storage.ErrInvalidValue)
		}
		keys = append(keys, key.StringValue)
	}
	return keys, nil
}
