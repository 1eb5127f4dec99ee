package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// ErrObjectNotFound is returned by Get and Delete when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Object is a stored blob opened for reading. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectStore keeps binary content keyed by an object key.
type ObjectStore interface {
	// Put stores body under key and returns the public URL of the object.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// ImageKeyPrefix is the folder every uploaded image lives under.
const ImageKeyPrefix = "images/"

var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageFilename builds a unique, URL-safe filename like
// "20260317_101500_1a2b3c4d_my-balcony-garden.jpg" from the client's original name.
func ImageFilename(original, contentType string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" || len(ext) > 6 {
		ext = extByContentType[contentType]
	}
	name := slug.Make(strings.TrimSuffix(filepath.Base(original), filepath.Ext(original)))
	if len(name) > 50 {
		name = strings.Trim(name[:50], "-")
	}
	if name == "" {
		name = "image"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s%s", now.UTC().Format("20060102_150405"), id, name, ext)
}

// ValidFilename reports whether a client-supplied filename can be used as part of an
// object key without escaping the image folder.
func ValidFilename(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return false
	}
	return path.Clean(name) == name
}
