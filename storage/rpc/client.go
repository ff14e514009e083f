package rpc

import (
	"context"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/kvcache/storage"
)

var _ storage.Provider = (*Client)(nil)

// Client is a storage.Provider that forwards every call to a remote server.
type Client struct {
	getItem    *connect.Client[structpb.Value, structpb.Value]
	multiGet   *connect.Client[structpb.Value, structpb.Value]
	setItem    *connect.Client[structpb.Value, emptypb.Empty]
	multiSet   *connect.Client[structpb.Value, emptypb.Empty]
	multiMerge *connect.Client[structpb.Value, emptypb.Empty]
	getAllKeys *connect.Client[emptypb.Empty, structpb.Value]
	removeItem *connect.Client[structpb.Value, emptypb.Empty]
	clear      *connect.Client[emptypb.Empty, emptypb.Empty]
}

// NewClient creates a Client for the server at baseURL, for example
// "http://localhost:8080".
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		getItem:    connect.NewClient[structpb.Value, structpb.Value](httpClient, baseURL+ProcedureGetItem, opts...),
		multiGet:   connect.NewClient[structpb.Value, structpb.Value](httpClient, baseURL+ProcedureMultiGet, opts...),
		setItem:    connect.NewClient[structpb.Value, emptypb.Empty](httpClient, baseURL+ProcedureSetItem, opts...),
		multiSet:   connect.NewClient[structpb.Value, emptypb.Empty](httpClient, baseURL+ProcedureMultiSet, opts...),
		multiMerge: connect.NewClient[structpb.Value, emptypb.Empty](httpClient, baseURL+ProcedureMultiMerge, opts...),
		getAllKeys: connect.NewClient[emptypb.Empty, structpb.Value](httpClient, baseURL+ProcedureGetAllKeys, opts...),
		removeItem: connect.NewClient[structpb.Value, emptypb.Empty](httpClient, baseURL+ProcedureRemoveItem, opts...),
		clear:      connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+ProcedureClear, opts...),
	}
}

func (c *Client) GetItem(ctx context.Context, key string) (any, error) {
	res, err := c.getItem.CallUnary(ctx, connect.NewRequest(structpb.NewStringValue(key)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrLoadFailed, key, err)
	}
	return fromValue(res.Msg), nil
}

func (c *Client) MultiGet(ctx context.Context, keys ...string) ([]storage.Entry, error) {
	res, err := c.multiGet.CallUnary(ctx, connect.NewRequest(keysToValue(keys)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrLoadFailed, err)
	}
	return entriesFromValue(res.Msg)
}

func (c *Client) SetItem(ctx context.Context, key string, value any) error {
	req, err := entriesToValue([]storage.Entry{{Key: key, Value: value}})
	if err != nil {
		return err
	}
	if _, err := c.setItem.CallUnary(ctx, connect.NewRequest(req)); err != nil {
		return fmt.Errorf("%w: %s: %v", storage.ErrSaveFailed, key, err)
	}
	return nil
}

func (c *Client) MultiSet(ctx context.Context, entries ...storage.Entry) error {
	req, err := entriesToValue(entries)
	if err != nil {
		return err
	}
	if _, err := c.multiSet.CallUnary(ctx, connect.NewRequest(req)); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSaveFailed, err)
	}
	return nil
}

func (c *Client) MultiMerge(ctx context.Context, entries ...storage.Entry) error {
	req, err := entriesToValue(entries)
	if err != nil {
		return err
	}
	if _, err := c.multiMerge.CallUnary(ctx, connect.NewRequest(req)); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSaveFailed, err)
	}
	return nil
}

func (c *Client) GetAllKeys(ctx context.Context) ([]string, error) {
	res, err := c.getAllKeys.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrLoadFailed, err)
	}
	return keysFromValue(res.Msg)
}

func (c *Client) RemoveItem(ctx context.Context, key string) error {
	if _, err := c.removeItem.CallUnary(ctx, connect.NewRequest(structpb.NewStringValue(key))); err != nil {
		return fmt.Errorf("%w: remove %s: %v", storage.ErrSaveFailed, key, err)
	}
	return nil
}

func (c *Client) Clear(ctx context.Context) error {
	if _, err := c.clear.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{})); err != nil {
		return fmt.Errorf("%w: clear: %v", storage.ErrSaveFailed, err)
	}
	return nil
}
