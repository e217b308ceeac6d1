package configx

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Config represents the main configuration interface
type Config interface {
	// Get retrieves a configuration value by dotted key
	Get(key string) Value

	// Set sets a configuration value
	Set(key string, val any)

	// Has checks if a configuration key exists
	Has(key string) bool

	// AllSettings returns a copy of all settings
	AllSettings() map[string]any

	// AddSource adds a configuration source and merges it immediately
	AddSource(source Source) error

	// LoadAll reloads all configuration sources
	LoadAll() error

	// RequireEnv fails when any of the named variables is absent from both
	// the process environment and the loaded sources
	RequireEnv(envVars ...string) error
}

// Source represents a configuration source
type Source interface {
	// Load loads configuration values from the source
	Load() (map[string]any, error)

	// Name returns the name of the source
	Name() string

	// Priority returns the priority of the source (higher values override lower)
	Priority() int
}

const (
	PriorityDefault = 10
	PriorityFile    = 15
	PriorityDotEnv  = 20
	PriorityEnv     = 30
	PriorityMap     = 40
)

// configuration is the concrete implementation of Config
type configuration struct {
	sync.RWMutex
	values  map[string]any
	sources []Source
}

// Option configures a configuration at construction
type Option func(*configuration) error

// New creates a new Config instance
func New(opts ...Option) (Config, error) {
	cfg := &configuration{values: make(map[string]any)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithSource adds a configuration source
func WithSource(source Source) Option {
	return func(c *configuration) error {
		return c.AddSource(source)
	}
}

// Get retrieves a configuration value by key
func (c *configuration) Get(key string) Value {
	c.RLock()
	defer c.RUnlock()

	if key == "" {
		return newValue("", deepCopyMap(c.values))
	}
	return newValue(key, c.find(key))
}

// find walks a dotted key through nested maps
func (c *configuration) find(key string) any {
	current := c.values
	parts := strings.Split(key, ".")
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return v
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		current = m
	}
	return nil
}

// Set sets a configuration value, creating intermediate maps
func (c *configuration) Set(key string, val any) {
	c.Lock()
	defer c.Unlock()
	setNested(c.values, strings.Split(key, "."), val)
}

// Has checks if a configuration key exists
func (c *configuration) Has(key string) bool {
	c.RLock()
	defer c.RUnlock()
	return c.find(key) != nil
}

// AllSettings returns all settings as a map
func (c *configuration) AllSettings() map[string]any {
	c.RLock()
	defer c.RUnlock()
	return deepCopyMap(c.values)
}

// AddSource adds a configuration source. Sources are kept ordered by
// priority so LoadAll reproduces the same precedence.
func (c *configuration) AddSource(source Source) error {
	data, err := source.Load()
	if err != nil {
		return configErrors.New(ErrSourceLoad).
			WithDetail("source", source.Name()).
			WithCause(err)
	}

	c.Lock()
	defer c.Unlock()

	c.sources = append(c.sources, source)
	sort.SliceStable(c.sources, func(i, j int) bool {
		return c.sources[i].Priority() < c.sources[j].Priority()
	})

	// A lower-priority source added late must not override what is loaded.
	if c.isHighestPriority(source) {
		mergeMapRecursive(c.values, data)
		return nil
	}
	return c.reload()
}

func (c *configuration) isHighestPriority(source Source) bool {
	return c.sources[len(c.sources)-1] == source
}

// LoadAll reloads all configuration sources
func (c *configuration) LoadAll() error {
	c.Lock()
	defer c.Unlock()
	return c.reload()
}

func (c *configuration) reload() error {
	values := make(map[string]any)
	for _, source := range c.sources {
		data, err := source.Load()
		if err != nil {
			return configErrors.New(ErrSourceLoad).
				WithDetail("source", source.Name()).
				WithCause(err)
		}
		mergeMapRecursive(values, data)
	}
	c.values = values
	return nil
}

// RequireEnv checks that every variable is set
func (c *configuration) RequireEnv(envVars ...string) error {
	var missing []string
	for _, env := range envVars {
		if os.Getenv(env) != "" {
			continue
		}
		if v := c.Get(EnvKey(env)); v.IsSet() && v.AsString() != "" {
			continue
		}
		missing = append(missing, env)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return configErrors.New(ErrMissingEnv).
			WithDetail("missing", strings.Join(missing, ", "))
	}
	return nil
}

// EnvKey converts an environment variable name to its dotted config key,
// e.g. DELIVERY_ITEM_TIMEOUT becomes delivery.item.timeout.
func EnvKey(env string) string {
	return strings.ReplaceAll(strings.ToLower(env), "_", ".")
}

// setNested writes val at path, replacing any scalar that blocks the way
func setNested(m map[string]any, path []string, val any) {
	current := m
	for _, part := range path[:len(path)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}

	last := path[len(path)-1]
	if _, isMap := current[last].(map[string]any); isMap {
		if _, valIsMap := val.(map[string]any); !valIsMap {
			// A deeper key already owns this node.
			return
		}
	}
	current[last] = val
}

// mergeMapRecursive merges src into dst, descending into nested maps
func mergeMapRecursive(dst, src map[string]any) {
	for k, v := range src {
		srcMap, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if dstMap, ok := dst[k].(map[string]any); ok {
			mergeMapRecursive(dstMap, srcMap)
			continue
		}
		dst[k] = deepCopyMap(srcMap)
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = deepCopyAny(v)
	}
	return result
}

func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyAny(item)
		}
		return out
	default:
		return val
	}
}

// -----------------------------------------------------------------------------
// Builder
// -----------------------------------------------------------------------------

// Builder provides a fluent API for building configuration
type Builder interface {
	// FromFile adds a YAML or JSON file source; missing files are skipped
	FromFile(path string) Builder

	// FromDotEnv adds a .env file source; missing files are skipped
	FromDotEnv(path string) Builder

	// FromEnv adds an environment variable source
	FromEnv(prefix string) Builder

	// FromMap adds a map source at the highest priority
	FromMap(values map[string]any, name string) Builder

	// WithDefaults adds default values at the lowest priority
	WithDefaults(defaults map[string]any) Builder

	// RequireEnv specifies environment variables that must be present
	RequireEnv(envVars ...string) Builder

	// Build builds the configuration
	Build() (Config, error)
}

type builder struct {
	options     []Option
	requiredEnv []string
}

// NewBuilder creates a new configuration builder
func NewBuilder() Builder {
	return &builder{}
}

func (b *builder) FromFile(path string) Builder {
	b.options = append(b.options, WithSource(NewFileSource(path, PriorityFile, true)))
	return b
}

func (b *builder) FromDotEnv(path string) Builder {
	b.options = append(b.options, WithSource(NewDotEnvSource(path, PriorityDotEnv, true)))
	return b
}

func (b *builder) FromEnv(prefix string) Builder {
	b.options = append(b.options, WithSource(NewEnvSource(prefix, PriorityEnv)))
	return b
}

func (b *builder) FromMap(values map[string]any, name string) Builder {
	b.options = append(b.options, WithSource(NewMapSource(values, name, PriorityMap)))
	return b
}

func (b *builder) WithDefaults(defaults map[string]any) Builder {
	b.options = append(b.options, WithSource(NewMapSource(defaults, "defaults", PriorityDefault)))
	return b
}

func (b *builder) RequireEnv(envVars ...string) Builder {
	b.requiredEnv = append(b.requiredEnv, envVars...)
	return b
}

func (b *builder) Build() (Config, error) {
	cfg, err := New(b.options...)
	if err != nil {
		return nil, err
	}
	if len(b.requiredEnv) > 0 {
		if err := cfg.RequireEnv(b.requiredEnv...); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// String renders the source list, never the values
func (c *configuration) String() string {
	c.RLock()
	defer c.RUnlock()
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = fmt.Sprintf("%s(%d)", s.Name(), s.Priority())
	}
	return "configx[" + strings.Join(names, ", ") + "]"
}
