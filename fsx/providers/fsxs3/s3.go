package fsxs3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/Abraxas-365/wabridge/fsx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectAPI is the subset of *s3.Client used here
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3FileSystem reads objects from a single bucket. Paths are object keys
// relative to an optional prefix.
type S3FileSystem struct {
	client ObjectAPI
	bucket string
	prefix string
}

var _ fsx.FileSystem = (*S3FileSystem)(nil)

func NewS3FileSystem(client ObjectAPI, bucket, prefix string) *S3FileSystem {
	return &S3FileSystem{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewFromDefaultConfig builds a client from the standard AWS credential chain
func NewFromDefaultConfig(ctx context.Context, bucket, prefix string) (*S3FileSystem, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fsx.Registry().NewWithCause(fsx.ErrReadFailed, err).
			WithDetail("operation", "load_aws_config")
	}
	return NewS3FileSystem(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func (s *S3FileSystem) key(p string) string {
	p = strings.TrimLeft(p, "/")
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func (s *S3FileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	rc, err := s.ReadFileStream(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fsx.Registry().NewWithCause(fsx.ErrReadFailed, err).
			WithDetail("bucket", s.bucket).
			WithDetail("key", s.key(p))
	}
	return buf.Bytes(), nil
}

func (s *S3FileSystem) ReadFileStream(ctx context.Context, p string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		return nil, s.wrap(p, err)
	}
	return out.Body, nil
}

func (s *S3FileSystem) Stat(ctx context.Context, p string) (fsx.FileInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		return fsx.FileInfo{}, s.wrap(p, err)
	}

	info := fsx.FileInfo{
		Name:     path.Base(p),
		Size:     aws.ToInt64(out.ContentLength),
		Metadata: out.Metadata,
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	return info, nil
}

func (s *S3FileSystem) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if fsx.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *S3FileSystem) Join(elem ...string) string {
	return path.Join(elem...)
}

func (s *S3FileSystem) wrap(p string, err error) error {
	if isNotFound(err) {
		return fsx.Registry().NewWithCause(fsx.ErrNotFound, err).
			WithDetail("bucket", s.bucket).
			WithDetail("key", s.key(p))
	}
	return fsx.Registry().NewWithCause(fsx.ErrReadFailed, err).
		WithDetail("bucket", s.bucket).
		WithDetail("key", s.key(p))
}

// HeadObject reports a missing key as a bare 404 "NotFound" API error rather
// than types.NoSuchKey.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
