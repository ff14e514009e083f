package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/kvcache/storage"
)

type handler struct {
	provider storage.Provider
}

// NewHandler serves provider over Connect. It returns the path prefix to
// mount the handler on, in the style of generated Connect handlers.
func NewHandler(provider storage.Provider, opts ...connect.HandlerOption) (string, http.Handler) {
	h := &handler{provider: provider}
	mux := http.NewServeMux()

	mux.Handle(ProcedureGetItem, connect.NewUnaryHandler(ProcedureGetItem, h.getItem, opts...))
	mux.Handle(ProcedureMultiGet, connect.NewUnaryHandler(ProcedureMultiGet, h.multiGet, opts...))
	mux.Handle(ProcedureSetItem, connect.NewUnaryHandler(ProcedureSetItem, h.setItem, opts...))
	mux.Handle(ProcedureMultiSet, connect.NewUnaryHandler(ProcedureMultiSet, h.multiSet, opts...))
	mux.Handle(ProcedureMultiMerge, connect.NewUnaryHandler(ProcedureMultiMerge, h.multiMerge, opts...))
	mux.Handle(ProcedureGetAllKeys, connect.NewUnaryHandler(ProcedureGetAllKeys, h.getAllKeys, opts...))
	mux.Handle(ProcedureRemoveItem, connect.NewUnaryHandler(ProcedureRemoveItem, h.removeItem, opts...))
	mux.Handle(ProcedureClear, connect.NewUnaryHandler(ProcedureClear, h.clear, opts...))

	return "/" + ServiceName + "/", mux
}

func toConnectError(err error) error {
	if errors.Is(err, storage.ErrInvalidValue) {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

func stringArg(pv *structpb.Value) (string, error) {
	key, ok := pv.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("key must be a string"))
	}
	return key.StringValue, nil
}

func (h *handler) getItem(ctx context.Context, req *connect.Request[structpb.Value]) (*connect.Response[structpb.Value], error) {
	key, err := stringArg(req.Msg)
	if err != nil {
		return nil, err
	}

	value, err := h.provider.GetItem(ctx, key)
	if err != nil {
		return nil, toConnectError(err)
	}

	pv, err := toValue(value)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(pv), nil
}

func (h *handler) multiGet(ctx context.Context, req *connect.Request[structpb.Value]) (*connect.Response[structpb.Value], error) {
	keys, err := keysFromValue(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	entries, err := h.provider.MultiGet(ctx, keys...)
	if err != nil {
		return nil, toConnectError(err)
	}

	pv, err := entriesToValue(entries)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(pv), nil
}

func (h *handler) setItem(ctx context.Context, req *connect.Request[structpb.Value]) (*connect.Response[emptypb.Empty], error) {
	entries, err := entriesFromValue(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	if len(entries) != 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("expected one entry, got %d", len(entries)))
	}

	if err := h.provider.SetItem(ctx, entries[0].Key, entries[0].Value); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (h *handler) multiSet(ctx context.Context, req *connect.Request[structpb.Value]) (*connect.Response[emptypb.Empty], error) {
	entries, err := entriesFromValue(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	if err := h.provider.MultiSet(ctx, entries...); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (h *handler) multiMerge(ctx context.Context, req *connect.Request[structpb.Value]) (*connect.Response[emptypb.Empty], error) {
	entries, err := entriesFromValue(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	if err := h.provider.MultiMerge(ctx, entries...); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (h *handler) getAllKeys(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Value], error) {
	keys, err := h.provider.GetAllKeys(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(keysToValue(keys)), nil
}

func (h *handler) removeItem(ctx context.Context, req *connect.Request[structpb.Value]) (*connect.Response[emptypb.Empty], error) {
	key, err := stringArg(req.Msg)
	if err != nil {
		return nil, err
	}

	if err := h.provider.RemoveItem(ctx, key); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (h *handler) clear(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	if err := h.provider.Clear(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}
