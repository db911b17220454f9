// Package storage keeps uploaded files in public buckets and builds the URLs
// they are served from.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound    = errors.New("object not found")
	ErrInvalidPath = errors.New("invalid object path")
)

// ObjectStore is what the clinic service needs from file storage.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, objectPath, contentType string, r io.Reader) error
	PublicURL(bucket, objectPath string) string
}

// PublicPrefix is the route objects are served under.
const PublicPrefix = "/storage/v1/object/public/"

// Disk stores each bucket as a directory under root.
type Disk struct {
	root    string
	baseURL string
	log     zerolog.Logger
}

func NewDisk(root, baseURL string, log zerolog.Logger) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Disk{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("component", "storage").Logger(),
	}, nil
}

func (d *Disk) resolve(bucket, objectPath string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
	}
	clean := path.Clean("/" + objectPath)
	if clean == "/" || objectPath == "" || strings.Contains(objectPath, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return filepath.Join(d.root, bucket, filepath.FromSlash(clean)), nil
}

// Upload writes the object, replacing any previous version. The file appears
// only once fully written.
func (d *Disk) Upload(ctx context.Context, bucket, objectPath, contentType string, r io.Reader) error {
	dst, err := d.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("publish object: %w", err)
	}

	d.log.Info().
		Str("bucket", bucket).
		Str("path", objectPath).
		Str("content_type", contentType).
		Int64("bytes", n).
		Msg("object stored")
	return nil
}

// PublicURL is where an uploaded object can be fetched without credentials.
func (d *Disk) PublicURL(bucket, objectPath string) string {
	return d.baseURL + PublicPrefix + bucket + "/" + strings.TrimLeft(objectPath, "/")
}

// Open returns the stored object for serving.
func (d *Disk) Open(bucket, objectPath string) (*os.File, error) {
	p, err := d.resolve(bucket, objectPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// DataURL inlines data so it can be stored directly in a row.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
