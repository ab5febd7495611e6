package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFolder is where named assets are looked up.
const DefaultFolder = "assets/rive"

// Ext is the asset extension appended to bare names.
const Ext = ".riv"

// Fetcher returns the bytes of a named asset.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// DirFetcher reads <Folder>/<name>.riv from disk.
type DirFetcher struct {
	Folder string
}

// Path resolves a name the way Fetch does.
func (d DirFetcher) Path(name string) string {
	folder := d.Folder
	if folder == "" {
		folder = DefaultFolder
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return filepath.Join(folder, name)
}

func (d DirFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := d.Path(name)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	return b, nil
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, name string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, name string) ([]byte, error) { return f(ctx, name) }
