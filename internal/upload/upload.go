// Package upload validates an incoming photo and hands it to a PhotoStore.
package upload

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/webp"

	"github.com/vbonduro/segnalazioni/internal/photostore"
)

// PublicPrefix is prepended to storage keys to form the stored photo path.
const PublicPrefix = "/uploads/"

var (
	ErrTooLarge        = errors.New("photo exceeds the maximum upload size")
	ErrUnsupportedType = errors.New("photo must be a JPEG, PNG, GIF or WebP image")
	ErrEmpty           = errors.New("photo is empty")
)

// AllowedTypes lists the accepted image MIME types in display order.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// sniffedTypes is the set net/http.DetectContentType recognises for us. WebP
// is checked separately because the WHATWG sniffing table has no WebP entry.
var sniffedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

type Constraints struct {
	MaxBytes int64
}

// Acceptor validates a photo stream and persists it, returning the public
// path the photo is served from.
type Acceptor interface {
	Accept(ctx context.Context, prefix string, r io.Reader, c Constraints) (storedPath string, err error)
}

type ImageAcceptor struct {
	store photostore.PhotoStore
}

func NewImageAcceptor(store photostore.PhotoStore) *ImageAcceptor {
	return &ImageAcceptor{store: store}
}

// Accept reads at most c.MaxBytes from r, checks that the content is a
// decodable image of an allowed type, and saves it. Nothing is stored when
// validation fails.
func (a *ImageAcceptor) Accept(ctx context.Context, prefix string, r io.Reader, c Constraints) (string, error) {
	data, err := readLimited(r, c.MaxBytes)
	if err != nil {
		return "", err
	}

	mimeType, err := detect(data)
	if err != nil {
		return "", err
	}

	key, err := a.store.Save(ctx, prefix, mimeType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to store photo: %w", err)
	}
	return PublicPrefix + key, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read photo: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// detect returns the MIME type of data after confirming the header decodes.
func detect(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}

	mimeType, ok := allowedImageMIME(data)
	if !ok {
		return "", ErrUnsupportedType
	}

	br := bufio.NewReader(bytes.NewReader(data))
	if mimeType == "image/webp" {
		if _, err := webp.DecodeConfig(br); err != nil {
			return "", ErrUnsupportedType
		}
		return mimeType, nil
	}
	if _, _, err := image.DecodeConfig(br); err != nil {
		return "", ErrUnsupportedType
	}
	return mimeType, nil
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if sniffedTypes[mime] {
		return mime, true
	}
	return "", false
}
