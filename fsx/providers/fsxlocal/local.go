package fsxlocal

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/Abraxas-365/wabridge/fsx"
)

// LocalFileSystem reads files from disk. Relative paths resolve against
// basePath when one is set.
type LocalFileSystem struct {
	basePath string
}

var _ fsx.FileSystem = (*LocalFileSystem)(nil)

func NewLocalFileSystem(basePath string) *LocalFileSystem {
	return &LocalFileSystem{basePath: basePath}
}

func (l *LocalFileSystem) resolve(path string) string {
	if filepath.IsAbs(path) || l.basePath == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(l.basePath, path)
}

func (l *LocalFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		return nil, wrap(path, err)
	}
	return data, nil
}

func (l *LocalFileSystem) ReadFileStream(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.resolve(path))
	if err != nil {
		return nil, wrap(path, err)
	}
	return f, nil
}

func (l *LocalFileSystem) Stat(ctx context.Context, path string) (fsx.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return fsx.FileInfo{}, err
	}
	info, err := os.Stat(l.resolve(path))
	if err != nil {
		return fsx.FileInfo{}, wrap(path, err)
	}
	return fsx.FileInfo{
		Name:        info.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		IsDir:       info.IsDir(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

func (l *LocalFileSystem) Exists(ctx context.Context, path string) (bool, error) {
	_, err := l.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if fsx.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (l *LocalFileSystem) Join(elem ...string) string {
	return filepath.Join(elem...)
}

func wrap(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fsx.Registry().NewWithCause(fsx.ErrNotFound, err).WithDetail("path", path)
	}
	return fsx.Registry().NewWithCause(fsx.ErrReadFailed, err).WithDetail("path", path)
}
