// Package app wires configuration, storage, the WhatsApp client and the
// delivery orchestrator into the HTTP service and the command line tools.
package app

import (
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/configx"
	"github.com/Abraxas-365/wabridge/deliveryx"
)

// Store and sink names accepted in DELIVERY_STORE and EVENTS_SINK
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	SinkNone  = "none"
	SinkLog   = "log"
	SinkSQS   = "sqs"
	SinkKafka = "kafka"
)

// Settings is the typed view of the service configuration
type Settings struct {
	Port               string
	ContentPath        string
	DefaultCountryCode string

	StoreKind     string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	Delivery      deliveryx.Config

	Sinks        []string
	SQSQueueURL  string
	KafkaBrokers []string
	KafkaTopic   string

	AdminSecret   string
	AdminTokenTTL time.Duration

	LambdaRole      string
	InboundQueueURL string
}

// AdminEnabled reports whether the operator API is mounted
func (s Settings) AdminEnabled() bool { return s.AdminSecret != "" }

// Defaults are the lowest priority configuration layer
func Defaults() map[string]any {
	return map[string]any{
		"port": "8080",
		"whatsapp": map[string]any{
			"api": map[string]any{"version": "v23.0"},
		},
		"content": map[string]any{"path": "content.yaml"},
		"default": map[string]any{
			"country": map[string]any{"code": "91"},
		},
		"delivery": map[string]any{
			"store": StoreMemory,
			"item": map[string]any{
				"timeout":  "60s",
				"interval": "250ms",
			},
			"deadline": map[string]any{"grace": "5s"},
			"sweep":    map[string]any{"interval": "5s"},
		},
		"mongo":  map[string]any{"database": "wabridge"},
		"events": map[string]any{"sink": SinkNone},
		"kafka":  map[string]any{"topic": "wabridge.events"},
		"admin": map[string]any{
			"token": map[string]any{"ttl": "12h"},
		},
		"lambda": map[string]any{"role": "webhook"},
	}
}

// LoadConfig layers defaults, an optional YAML file, .env and the process
// environment, in increasing priority.
func LoadConfig(file string) (configx.Config, error) {
	b := configx.NewBuilder().WithDefaults(Defaults())
	if file != "" {
		b = b.FromFile(file)
	}
	return b.FromDotEnv(".env").FromEnv("").Build()
}

// NewSettings reads Settings from cfg
func NewSettings(cfg configx.Config) Settings {
	get := func(env string) configx.Value { return cfg.Get(configx.EnvKey(env)) }
	def := deliveryx.DefaultConfig()

	s := Settings{
		Port:               get("PORT").AsStringDefault("8080"),
		ContentPath:        get("CONTENT_PATH").AsStringDefault("content.yaml"),
		DefaultCountryCode: get("DEFAULT_COUNTRY_CODE").AsStringDefault("91"),

		StoreKind:     strings.ToLower(get("DELIVERY_STORE").AsStringDefault(StoreMemory)),
		DatabaseURL:   get("DATABASE_URL").AsString(),
		MongoURI:      get("MONGO_URI").AsString(),
		MongoDatabase: get("MONGO_DATABASE").AsStringDefault("wabridge"),
		Delivery: deliveryx.Config{
			ItemTimeout:   get("DELIVERY_ITEM_TIMEOUT").AsDurationDefault(def.ItemTimeout),
			ItemInterval:  get("DELIVERY_ITEM_INTERVAL").AsDurationDefault(def.ItemInterval),
			DeadlineGrace: get("DELIVERY_DEADLINE_GRACE").AsDurationDefault(def.DeadlineGrace),
			SweepInterval: get("DELIVERY_SWEEP_INTERVAL").AsDurationDefault(def.SweepInterval),
		},

		SQSQueueURL:  get("SQS_QUEUE_URL").AsString(),
		KafkaBrokers: get("KAFKA_BROKERS").AsStringSlice(),
		KafkaTopic:   get("KAFKA_TOPIC").AsStringDefault("wabridge.events"),

		AdminSecret:   strings.TrimSpace(get("ADMIN_JWT_SECRET").AsString()),
		AdminTokenTTL: get("ADMIN_TOKEN_TTL").AsDurationDefault(12 * time.Hour),

		LambdaRole:      strings.ToLower(get("LAMBDA_ROLE").AsStringDefault("webhook")),
		InboundQueueURL: get("INBOUND_QUEUE_URL").AsString(),
	}

	for _, sink := range get("EVENTS_SINK").AsStringSlice() {
		sink = strings.ToLower(sink)
		if sink != SinkNone {
			s.Sinks = append(s.Sinks, sink)
		}
	}
	return s
}
