package configx

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fakeEnv(vars ...string) *EnvSource {
	return &EnvSource{priority: PriorityEnv, environ: func() []string { return vars }}
}

func TestEnvSourceNestsKeysAndKeepsRawStrings(t *testing.T) {
	cfg, err := New(WithSource(fakeEnv(
		"WHATSAPP_PHONE_NUMBER_ID=0012345",
		"DELIVERY_ITEM_TIMEOUT=60s",
		"PORT=8080",
	)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Get("whatsapp.phone.number.id").AsString(); got != "0012345" {
		t.Errorf("expected raw string 0012345, got %q", got)
	}
	if got := cfg.Get("delivery.item.timeout").AsDuration(); got != 60*time.Second {
		t.Errorf("expected 60s, got %v", got)
	}
	if got := cfg.Get("port").AsInt(); got != 8080 {
		t.Errorf("expected 8080, got %d", got)
	}
}

func TestPriorityOrder(t *testing.T) {
	cfg, err := NewBuilder().
		WithDefaults(map[string]any{"port": "8080", "content.path": "content.yaml"}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.AddSource(fakeEnv("PORT=9090")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Get("port").AsString(); got != "9090" {
		t.Errorf("expected env to override defaults, got %s", got)
	}
	if got := cfg.Get("content.path").AsString(); got != "content.yaml" {
		t.Errorf("expected default to survive, got %s", got)
	}

	// A lower-priority source added later must not win.
	if err := cfg.AddSource(NewMapSource(map[string]any{"port": "1"}, "late-defaults", PriorityDefault)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Get("port").AsString(); got != "9090" {
		t.Errorf("expected env to keep precedence, got %s", got)
	}
}

func TestDotEnvAndFileSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	yamlPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(envPath, []byte("WHATSAPP_WEBHOOK_VERIFY_TOKEN=\"from-dotenv\"\n# comment\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("delivery:\n  item:\n    interval: 250ms\nkafka:\n  brokers: ['a:9092', 'b:9092']\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewBuilder().FromFile(yamlPath).FromDotEnv(envPath).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Get("whatsapp.webhook.verify.token").AsString(); got != "from-dotenv" {
		t.Errorf("expected dotenv value, got %q", got)
	}
	if got := cfg.Get("delivery.item.interval").AsDuration(); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", got)
	}
	if got := cfg.Get("kafka.brokers").AsStringSlice(); len(got) != 2 || got[1] != "b:9092" {
		t.Errorf("unexpected brokers: %v", got)
	}
}

func TestMissingOptionalFilesAreSkipped(t *testing.T) {
	_, err := NewBuilder().
		FromFile(filepath.Join(t.TempDir(), "absent.yaml")).
		FromDotEnv(filepath.Join(t.TempDir(), ".env")).
		Build()
	if err != nil {
		t.Fatalf("expected missing optional files to be ignored, got %v", err)
	}
}

func TestRequireEnv(t *testing.T) {
	cfg, err := New(WithSource(NewMapSource(map[string]any{"whatsapp.app.secret": "s3cr3t-value"}, "test", PriorityMap)))
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.RequireEnv("WHATSAPP_APP_SECRET"); err != nil {
		t.Errorf("expected value from source to satisfy requirement, got %v", err)
	}

	err = cfg.RequireEnv("WABRIDGE_TEST_SURELY_UNSET_VAR")
	if !IsMissingEnv(err) {
		t.Fatalf("expected missing env error, got %v", err)
	}
}

func TestValueConversions(t *testing.T) {
	tests := []struct {
		name string
		val  any
		fn   func(Value) any
		want any
	}{
		{"bool string", "yes", func(v Value) any { return v.AsBool() }, true},
		{"bool default", "maybe", func(v Value) any { return v.AsBoolDefault(true) }, true},
		{"duration ms", "1500", func(v Value) any { return v.AsDuration() }, 1500 * time.Millisecond},
		{"int default", "abc", func(v Value) any { return v.AsIntDefault(7) }, 7},
		{"string default", nil, func(v Value) any { return v.AsStringDefault("d") }, "d"},
		{"csv slice", "a, b,,c", func(v Value) any { return len(v.AsStringSlice()) }, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(newValue("k", tt.val)); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAsStruct(t *testing.T) {
	cfg, _ := New(WithSource(NewMapSource(map[string]any{
		"kafka": map[string]any{"topic": "events", "brokers": []any{"a"}},
	}, "test", PriorityMap)))

	var k struct {
		Topic   string   `json:"topic"`
		Brokers []string `json:"brokers"`
	}
	if err := cfg.Get("kafka").AsStruct(&k); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Topic != "events" || len(k.Brokers) != 1 {
		t.Errorf("unexpected struct: %+v", k)
	}

	if err := cfg.Get("nope").AsStruct(&k); err == nil {
		t.Error("expected error for unset value")
	}
}
