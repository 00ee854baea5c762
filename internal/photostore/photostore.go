// Package photostore abstracts where report photos live. Keys are opaque,
// flat names chosen by the backend; callers never build paths from them.
package photostore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Get and Delete when no photo has the given key.
var ErrNotFound = errors.New("photo not found")

type PhotoStore interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
}

// KeyExt returns the file extension used in storage keys for mimeType.
func KeyExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// MIMEFromKey is the inverse of KeyExt.
func MIMEFromKey(storageKey string) string {
	switch strings.ToLower(path.Ext(storageKey)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
