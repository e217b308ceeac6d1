package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Abraxas-365/wabridge/configx"
	"github.com/Abraxas-365/wabridge/errx"
)

const testContentYAML = `
sequences:
  default:
    items:
      - type: text
        body: "Hi! Tap a button to get started."
  UNLOCK_CONTENT:
    labels: ["Unlock Content"]
    keywords: ["unlock"]
    items:
      - type: image
        url: https://cdn.example.com/cover.jpg
        caption: "Chapter one"
      - type: text
        body: "Enjoy!"
`

func buildConfig(t *testing.T, overrides map[string]any) configx.Config {
	t.Helper()
	b := configx.NewBuilder().WithDefaults(Defaults())
	if overrides != nil {
		b = b.FromMap(overrides, "test")
	}
	cfg, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func TestNewSettingsDefaults(t *testing.T) {
	s := NewSettings(buildConfig(t, nil))

	if s.Port != "8080" {
		t.Errorf("expected port 8080, got %s", s.Port)
	}
	if s.DefaultCountryCode != "91" {
		t.Errorf("expected country code 91, got %s", s.DefaultCountryCode)
	}
	if s.StoreKind != StoreMemory {
		t.Errorf("expected memory store, got %s", s.StoreKind)
	}
	if s.Delivery.ItemTimeout != 60*time.Second {
		t.Errorf("expected 60s item timeout, got %s", s.Delivery.ItemTimeout)
	}
	if s.Delivery.ItemInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms item interval, got %s", s.Delivery.ItemInterval)
	}
	if s.Delivery.SweepInterval != 5*time.Second {
		t.Errorf("expected 5s sweep interval, got %s", s.Delivery.SweepInterval)
	}
	if len(s.Sinks) != 0 {
		t.Errorf("expected no sinks, got %v", s.Sinks)
	}
	if s.KafkaTopic != "wabridge.events" {
		t.Errorf("expected default kafka topic, got %s", s.KafkaTopic)
	}
	if s.AdminEnabled() {
		t.Error("expected admin API disabled without a secret")
	}
	if s.AdminTokenTTL != 12*time.Hour {
		t.Errorf("expected 12h token ttl, got %s", s.AdminTokenTTL)
	}
	if s.LambdaRole != "webhook" {
		t.Errorf("expected webhook role, got %s", s.LambdaRole)
	}
}

func TestNewSettingsOverrides(t *testing.T) {
	s := NewSettings(buildConfig(t, map[string]any{
		"delivery": map[string]any{
			"store": "Postgres",
			"item":  map[string]any{"timeout": "90s"},
		},
		"events": map[string]any{"sink": "log, none, kafka"},
		"kafka":  map[string]any{"brokers": "a:9092,b:9092"},
		"admin":  map[string]any{"jwt": map[string]any{"secret": " s3cret "}},
		"default": map[string]any{
			"country": map[string]any{"code": "44"},
		},
	}))

	if s.StoreKind != StorePostgres {
		t.Errorf("expected postgres store, got %s", s.StoreKind)
	}
	if s.Delivery.ItemTimeout != 90*time.Second {
		t.Errorf("expected 90s item timeout, got %s", s.Delivery.ItemTimeout)
	}
	if s.Delivery.ItemInterval != 250*time.Millisecond {
		t.Errorf("expected default interval kept, got %s", s.Delivery.ItemInterval)
	}
	if len(s.Sinks) != 2 || s.Sinks[0] != SinkLog || s.Sinks[1] != SinkKafka {
		t.Errorf("expected [log kafka], got %v", s.Sinks)
	}
	if len(s.KafkaBrokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", s.KafkaBrokers)
	}
	if !s.AdminEnabled() || s.AdminSecret != "s3cret" {
		t.Errorf("expected trimmed admin secret, got %q", s.AdminSecret)
	}
	if s.DefaultCountryCode != "44" {
		t.Errorf("expected country code 44, got %s", s.DefaultCountryCode)
	}
}

// ---------------------------------------------------------------------------
// Builders
// ---------------------------------------------------------------------------

func TestBuildSinks(t *testing.T) {
	ctx := context.Background()

	fanout, err := BuildSinks(ctx, Settings{Sinks: []string{SinkLog}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if names := fanout.Names(); len(names) != 1 || names[0] != SinkLog {
		t.Errorf("expected [log], got %v", names)
	}

	empty, err := BuildSinks(ctx, Settings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(empty.Names()) != 0 {
		t.Errorf("expected no sinks, got %v", empty.Names())
	}

	tests := []struct {
		name     string
		settings Settings
		code     errx.Code
	}{
		{"unknown sink", Settings{Sinks: []string{"redis"}}, ErrUnknownSink},
		{"sqs without queue", Settings{Sinks: []string{SinkSQS}}, ErrMissingConfig},
		{"kafka without brokers", Settings{Sinks: []string{SinkKafka}}, ErrMissingConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSinks(ctx, tt.settings)
			if !errx.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, closeStore, err := OpenStore(ctx, Settings{StoreKind: StoreMemory})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Name() != "memory" {
		t.Errorf("expected memory store, got %s", store.Name())
	}
	if err := closeStore(ctx); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}

	tests := []struct {
		name string
		kind string
		code errx.Code
	}{
		{"postgres without url", StorePostgres, ErrMissingConfig},
		{"mongo without uri", StoreMongo, ErrMissingConfig},
		{"unknown", "redis", ErrUnknownStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := OpenStore(ctx, Settings{StoreKind: tt.kind})
			if !errx.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestLoadContentFromLocalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content.yaml")
	if err := os.WriteFile(path, []byte(testContentYAML), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, location := range []string{path, "file://" + path} {
		reg, err := LoadContent(context.Background(), location)
		if err != nil {
			t.Fatalf("LoadContent(%s): unexpected error: %v", location, err)
		}
		if !reg.Has("UNLOCK_CONTENT") {
			t.Errorf("LoadContent(%s): expected UNLOCK_CONTENT", location)
		}
	}

	if _, err := LoadContent(context.Background(), "ftp://host/content.yaml"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
	if _, err := LoadContent(context.Background(), filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
