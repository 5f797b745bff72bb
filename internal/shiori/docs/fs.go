package docs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FSProvider serves documents from a directory tree. A key maps to the file
// at root/key. PDF text is read from the extraction sidecar "<key>.txt";
// sidecars are hidden from listings.
type FSProvider struct {
	root string
}

// NewFSProvider creates a provider rooted at dir.
func NewFSProvider(dir string) (*FSProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("docs fs: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs fs: root %q is not a directory", dir)
	}
	return &FSProvider{root: dir}, nil
}

// Root returns the directory the provider serves.
func (p *FSProvider) Root() string { return p.root }

func (p *FSProvider) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("%w: empty key", ErrDocumentRead)
	}
	return filepath.Join(p.root, filepath.FromSlash(clean[1:])), nil
}

// DocumentText returns the text of key.
func (p *FSProvider) DocumentText(_ context.Context, key string) (string, error) {
	full, err := p.resolve(key)
	if err != nil {
		return "", err
	}
	if Ext(key) == ExtPDF {
		full += ".txt"
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDocumentRead, key, err)
	}
	return string(data), nil
}

// ListKeys walks root/prefix and returns the keys with extension ext, in
// lexical order.
func (p *FSProvider) ListKeys(ctx context.Context, prefix, ext string) ([]string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	start := p.root
	if prefix != "" {
		var err error
		if start, err = p.resolve(prefix); err != nil {
			return nil, err
		}
	}

	var keys []string
	err := filepath.WalkDir(start, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.root, full)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if Ext(key) != ext {
			return nil
		}
		if ext == ExtTXT && Ext(strings.TrimSuffix(key, path.Ext(key))) == ExtPDF {
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("docs fs: list %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Compile-time interface satisfaction checks.
var (
	_ TextProvider = (*FSProvider)(nil)
	_ Lister       = (*FSProvider)(nil)
)
