package configx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables source
// ===========================

// EnvSource loads configuration from environment variables. Names are
// lowercased and split on "_" into nested keys: SERVER_PORT -> server.port.
type EnvSource struct {
	prefix   string
	priority int
	environ  func() []string
}

// NewEnvSource creates a new environment variable source
func NewEnvSource(prefix string, priority int) Source {
	return &EnvSource{prefix: prefix, priority: priority, environ: os.Environ}
}

func (s *EnvSource) Load() (map[string]any, error) {
	vars := make(map[string]string)
	for _, kv := range s.environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars[key] = val
	}
	return nestVars(vars, s.prefix), nil
}

func (s *EnvSource) Name() string  { return fmt.Sprintf("env(%s)", s.prefix) }
func (s *EnvSource) Priority() int { return s.priority }

// DotEnv file source
// ===========================

// DotEnvSource loads a .env file with godotenv and nests keys like EnvSource
type DotEnvSource struct {
	path     string
	priority int
	optional bool
}

// NewDotEnvSource creates a new .env file source. An optional source treats a
// missing file as empty.
func NewDotEnvSource(path string, priority int, optional bool) Source {
	return &DotEnvSource{path: path, priority: priority, optional: optional}
}

func (s *DotEnvSource) Load() (map[string]any, error) {
	vars, err := godotenv.Read(s.path)
	if err != nil {
		if s.optional && errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return nestVars(vars, ""), nil
}

func (s *DotEnvSource) Name() string  { return fmt.Sprintf("dotenv(%s)", s.path) }
func (s *DotEnvSource) Priority() int { return s.priority }

// File source
// ===========================

// FileSource loads a YAML or JSON document, chosen by extension
type FileSource struct {
	path     string
	priority int
	optional bool
}

// NewFileSource creates a new file source
func NewFileSource(path string, priority int, optional bool) Source {
	return &FileSource{path: path, priority: priority, optional: optional}
}

func (s *FileSource) Load() (map[string]any, error) {
	if s.path == "" {
		return map[string]any{}, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if s.optional && errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return DecodeDocument(s.path, data)
}

func (s *FileSource) Name() string  { return fmt.Sprintf("file(%s)", s.path) }
func (s *FileSource) Priority() int { return s.priority }

// DecodeDocument decodes YAML (.yaml, .yml) or JSON (anything else) into a
// string-keyed map.
func DecodeDocument(name string, data []byte) (map[string]any, error) {
	out := make(map[string]any)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode yaml %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode json %s: %w", name, err)
		}
	}
	return out, nil
}

// Map source
// ===========================

// MapSource serves a fixed map, typically defaults or test overrides
type MapSource struct {
	values   map[string]any
	name     string
	priority int
}

// NewMapSource creates a new map source. Dotted keys are expanded so
// {"delivery.item.timeout": "60s"} and nested maps are equivalent.
func NewMapSource(values map[string]any, name string, priority int) Source {
	expanded := make(map[string]any)
	for k, v := range values {
		setNested(expanded, strings.Split(k, "."), deepCopyAny(v))
	}
	return &MapSource{values: expanded, name: name, priority: priority}
}

func (s *MapSource) Load() (map[string]any, error) { return deepCopyMap(s.values), nil }
func (s *MapSource) Name() string                   { return s.name }
func (s *MapSource) Priority() int                  { return s.priority }

// nestVars converts NAME_PARTS=value pairs into nested maps, keeping values
// as raw strings.
func nestVars(vars map[string]string, prefix string) map[string]any {
	result := make(map[string]any)
	for key, val := range vars {
		if prefix != "" {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			key = strings.TrimPrefix(key, prefix)
		}
		key = strings.Trim(strings.ToLower(key), "_")
		if key == "" {
			continue
		}
		setNested(result, strings.Split(key, "_"), val)
	}
	return result
}
