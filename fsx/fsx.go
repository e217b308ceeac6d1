package fsx

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/errx"
)

// FileInfo represents information about a file
type FileInfo struct {
	Name        string            // Base name of the file
	Size        int64             // File size in bytes
	ModTime     time.Time         // Modification time
	IsDir       bool              // Is a directory
	ContentType string            // MIME type (when available)
	Metadata    map[string]string // Additional metadata
}

// FileSystem is the read side of a file store. Configuration documents are
// the only thing the service reads through it.
type FileSystem interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	ReadFileStream(ctx context.Context, path string) (io.ReadCloser, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)

	// Join builds a path in the store's own separator convention
	Join(elem ...string) string
}

var (
	registry = errx.NewRegistry("FSX")

	ErrNotFound        = registry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "File not found")
	ErrReadFailed      = registry.Register("READ_FAILED", errx.TypeExternal, http.StatusBadGateway, "File could not be read")
	ErrInvalidLocation = registry.Register("INVALID_LOCATION", errx.TypeConfig, http.StatusInternalServerError, "Invalid file location")
)

// Registry exposes the FSX error registry to providers
func Registry() *errx.Registry { return registry }

// IsNotFound reports whether err is a missing-file error
func IsNotFound(err error) bool { return errx.IsCode(err, ErrNotFound) }

// Location is a parsed file reference. Plain paths have an empty Scheme.
type Location struct {
	Scheme string // "" or "s3"
	Bucket string
	Path   string
}

// ParseLocation splits "s3://bucket/key" references from local paths
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, registry.NewWithMessage(ErrInvalidLocation, "empty file location")
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{Path: raw}, nil
	}

	switch strings.ToLower(scheme) {
	case "file":
		return Location{Path: rest}, nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return Location{}, registry.NewWithMessage(ErrInvalidLocation, "s3 location needs bucket and key").
				WithDetail("location", raw)
		}
		return Location{Scheme: "s3", Bucket: bucket, Path: key}, nil
	default:
		return Location{}, registry.NewWithMessage(ErrInvalidLocation, "unsupported scheme "+scheme).
			WithDetail("location", raw)
	}
}

func (l Location) String() string {
	if l.Scheme == "" {
		return l.Path
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Path
}
