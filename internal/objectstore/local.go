// Package objectstore keeps uploaded images as files under one directory.
// Object keys are slash-separated relative paths such as
// "uploads/5f8e....jpg".
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// UploadPrefix is the key prefix for gallery uploads.
const UploadPrefix = "uploads/"

// ErrInvalidKey rejects keys that would escape the store root.
var ErrInvalidKey = errors.New("objectstore: invalid key")

func init() {
	ensureMimeType(".webp", "image/webp")
	ensureMimeType(".svg", "image/svg+xml")
	ensureMimeType(".avif", "image/avif")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("objectstore: failed to register MIME type for %s: %v", ext, err)
	}
}

// ContentType guesses the content type of key from its extension.
func ContentType(key string) string {
	if typ := mime.TypeByExtension(strings.ToLower(path.Ext(key))); typ != "" {
		return typ
	}
	return "application/octet-stream"
}

// Local stores objects in a directory on disk.
type Local struct {
	root string
}

// NewLocal creates root if needed and returns a store rooted there.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("objectstore: root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root returns the directory backing the store.
func (l *Local) Root() string {
	return l.root
}

// KeyFromURL reduces a stored image reference to an object key. Full URLs
// keep their path; bare file names are placed under UploadPrefix.
func KeyFromURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, "://"); i >= 0 {
		rest := ref[i+3:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			ref = rest[slash:]
		} else {
			ref = ""
		}
	}
	if q := strings.IndexAny(ref, "?#"); q >= 0 {
		ref = ref[:q]
	}
	ref = strings.TrimPrefix(ref, "/")
	if ref != "" && !strings.Contains(ref, "/") {
		ref = UploadPrefix + ref
	}
	return ref
}

func (l *Local) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Put writes r to key, replacing any existing object.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing objects are not an error.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (l *Local) Exists(key string) bool {
	target, err := l.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && !info.IsDir()
}
