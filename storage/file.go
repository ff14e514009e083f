package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExt = ".json"

type fileProvider struct {
	root string
}

// NewFileProvider creates a Provider backed by the filesystem. Each key is
// stored as one JSON file directly under root. Writes go through a temporary
// file and a rename so readers never observe a partial value.
func NewFileProvider(root string) Provider {
	return &fileProvider{root: root}
}

func (p *fileProvider) path(key string) string {
	name := url.PathEscape(key)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return filepath.Join(p.root, name+fileExt)
}

func (p *fileProvider) read(key string) ([]byte, error) {
	data, err := os.ReadFile(p.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
	}
	return data, nil
}

func (p *fileProvider) write(key string, data []byte) error {
	if data == nil {
		return p.remove(key)
	}

	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}

	tmp, err := os.CreateTemp(p.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}

	if err := os.Rename(tmpName, p.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}
	return nil
}

func (p *fileProvider) remove(key string) error {
	if err := os.Remove(p.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %v", ErrSaveFailed, key, err)
	}
	return nil
}

func (p *fileProvider) GetItem(_ context.Context, key string) (any, error) {
	data, err := p.read(key)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (p *fileProvider) MultiGet(_ context.Context, keys ...string) ([]Entry, error) {
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		data, err := p.read(key)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}

		value, err := Decode(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

func (p *fileProvider) SetItem(ctx context.Context, key string, value any) error {
	return p.MultiSet(ctx, Entry{Key: key, Value: value})
}

func (p *fileProvider) MultiSet(_ context.Context, entries ...Entry) error {
	for _, e := range entries {
		data, err := Encode(e.Value)
		if err != nil {
			return err
		}
		if err := p.write(e.Key, data); err != nil {
			return err
		}
	}
	return nil
}

func (p *fileProvider) MultiMerge(_ context.Context, entries ...Entry) error {
	for _, e := range entries {
		doc, err := p.read(e.Key)
		if err != nil {
			return err
		}

		out, err := MergeJSON(doc, e.Value)
		if err != nil {
			return err
		}
		if err := p.write(e.Key, out); err != nil {
			return err
		}
	}
	return nil
}

func (p *fileProvider) GetAllKeys(_ context.Context) ([]string, error) {
	dirEntries, err := os.ReadDir(p.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	keys := make([]string, 0, len(dirEntries))
	for _, d := range dirEntries {
		name := d.Name()
		if d.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}

		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *fileProvider) RemoveItem(_ context.Context, key string) error {
	return p.remove(key)
}

func (p *fileProvider) Clear(ctx context.Context) error {
	keys, err := p.GetAllKeys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := p.remove(key); err != nil {
			return err
		}
	}
	return nil
}
