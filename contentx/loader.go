package contentx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/Abraxas-365/wabridge/fsx"
	"github.com/Abraxas-365/wabridge/logx"
	"gopkg.in/yaml.v3"
)

// Load reads and validates the content document at path
func Load(ctx context.Context, fs fsx.FileSystem, path string) (*Registry, error) {
	data, err := fs.ReadFile(ctx, path)
	if err != nil {
		return nil, contentErrors.NewWithCause(ErrInvalid, err).
			WithDetail("path", path)
	}

	reg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	logx.Info("Loaded %d content sequences and %d quick-reply labels from %s",
		len(reg.sequences), len(reg.labels), path)
	return reg, nil
}

// Parse decodes a YAML or JSON document, picked by the extension of name
func Parse(name string, data []byte) (*Registry, error) {
	doc, err := Decode(name, data)
	if err != nil {
		return nil, err
	}
	return New(doc)
}

// Decode only decodes; unknown fields are rejected so typos fail loudly
func Decode(name string, data []byte) (Document, error) {
	var doc Document

	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return Document{}, decodeError(name, err)
		}
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return Document{}, decodeError(name, err)
		}
	default:
		return Document{}, contentErrors.NewWithMessage(ErrInvalid, "Unsupported content file type").
			WithDetail("path", name)
	}

	return doc, nil
}

func decodeError(name string, err error) error {
	return contentErrors.NewWithCause(ErrInvalid, err).
		WithDetail("path", name).
		WithDetail("reason", err.Error())
}
