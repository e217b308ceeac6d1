package app

import (
	"context"
	"time"

	"github.com/Abraxas-365/wabridge/auth"
	"github.com/Abraxas-365/wabridge/configx"
	"github.com/Abraxas-365/wabridge/contentx"
	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/deliveryx/stores/deliveryxmemory"
	"github.com/Abraxas-365/wabridge/deliveryx/stores/deliveryxmongo"
	"github.com/Abraxas-365/wabridge/deliveryx/stores/deliveryxpostgres"
	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/Abraxas-365/wabridge/fsx"
	"github.com/Abraxas-365/wabridge/fsx/providers/fsxlocal"
	"github.com/Abraxas-365/wabridge/fsx/providers/fsxs3"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/Abraxas-365/wabridge/msgx/providers/msgxwhatsapp"
	"github.com/Abraxas-365/wabridge/phonex"
)

// App holds every long-lived component of the service
type App struct {
	Settings     Settings
	Credentials  msgxwhatsapp.Credentials
	Normalizer   phonex.Normalizer
	Client       *msgxwhatsapp.Client
	Messages     *msgx.Service
	Content      *contentx.Registry
	Store        deliveryx.Store
	Events       *eventx.Fanout
	Orchestrator *deliveryx.Orchestrator
	Supervisor   *deliveryx.Supervisor

	// Tokens is nil when the operator API is disabled
	Tokens *auth.TokenService

	started   time.Time
	closeFunc []func(context.Context) error
}

// New builds the application from cfg. Credentials, content and the store
// are all checked here so a bad deployment fails at startup.
func New(ctx context.Context, cfg configx.Config) (*App, error) {
	s := NewSettings(cfg)

	content, err := LoadContent(ctx, s.ContentPath)
	if err != nil {
		return nil, err
	}

	client, creds, err := NewClient(cfg, content)
	if err != nil {
		return nil, err
	}

	a := &App{
		Settings:    s,
		Credentials: creds,
		Normalizer:  phonex.NewNormalizer(s.DefaultCountryCode),
		Client:      client,
		Content:     content,
		started:     time.Now(),
	}
	a.Messages = NewMessages(client, a.Normalizer)

	store, closeStore, err := OpenStore(ctx, s)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closeFunc = append(a.closeFunc, closeStore)

	events, err := BuildSinks(ctx, s)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Events = events
	a.closeFunc = append(a.closeFunc, func(context.Context) error { return events.Close() })

	if s.AdminEnabled() {
		a.Tokens, err = auth.NewTokenService(s.AdminSecret, s.AdminTokenTTL)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		logx.RegisterSecret(s.AdminSecret)
	}

	a.Orchestrator = deliveryx.NewOrchestrator(store, content, a.Client,
		deliveryx.WithConfig(s.Delivery),
		deliveryx.WithNormalizer(a.Normalizer),
		deliveryx.WithSubscribers(deliveryx.LogSubscriber{}, deliveryx.NewEventPublisherSubscriber(events)),
	)
	a.Supervisor = deliveryx.NewSupervisor(a.Orchestrator)

	logx.Info("wabridge ready: store=%s sequences=%d admin=%t", store.Name(), len(content.Keys()), s.AdminEnabled())
	return a, nil
}

// Uptime is the time since New returned
func (a *App) Uptime() time.Duration { return time.Since(a.started) }

// Close releases the store and event sinks in reverse order of creation
func (a *App) Close(ctx context.Context) {
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		if err := a.closeFunc[i](ctx); err != nil {
			logx.Warn("shutdown: %v", err)
		}
	}
	a.closeFunc = nil
}

// NewClient loads the WhatsApp credentials from cfg and builds a client.
// labels may be nil when no content registry is loaded.
func NewClient(cfg configx.Config, labels msgxwhatsapp.LabelMatcher) (*msgxwhatsapp.Client, msgxwhatsapp.Credentials, error) {
	creds, err := msgxwhatsapp.LoadCredentials(cfg)
	if err != nil {
		return nil, msgxwhatsapp.Credentials{}, err
	}

	opts := []msgxwhatsapp.Option{
		msgxwhatsapp.WithSettings(msgxwhatsapp.SettingsFromConfig(cfg)),
		msgxwhatsapp.WithNormalizer(phonex.NewNormalizer(NewSettings(cfg).DefaultCountryCode)),
	}
	if labels != nil {
		opts = append(opts, msgxwhatsapp.WithLabelMatcher(labels))
	}
	return msgxwhatsapp.NewClient(creds, opts...), creds, nil
}

// NewMessages puts client behind the validating message service
func NewMessages(client *msgxwhatsapp.Client, normalizer phonex.Normalizer) *msgx.Service {
	return msgx.NewService(normalizer).RegisterSender(client.GetProviderName(), client, true)
}

// LoadContent reads the content document from a local path or an
// s3://bucket/key location.
func LoadContent(ctx context.Context, location string) (*contentx.Registry, error) {
	loc, err := fsx.ParseLocation(location)
	if err != nil {
		return nil, err
	}

	var fs fsx.FileSystem
	switch loc.Scheme {
	case "s3":
		fs, err = fsxs3.NewFromDefaultConfig(ctx, loc.Bucket, "")
		if err != nil {
			return nil, err
		}
	default:
		fs = fsxlocal.NewLocalFileSystem("")
	}
	return contentx.Load(ctx, fs, loc.Path)
}

// OpenStore connects the delivery store named by DELIVERY_STORE. The
// returned function releases it.
func OpenStore(ctx context.Context, s Settings) (deliveryx.Store, func(context.Context) error, error) {
	switch s.StoreKind {
	case StoreMemory, "":
		logx.Warn("delivery records are kept in memory and are lost on restart")
		return deliveryxmemory.New(), func(context.Context) error { return nil }, nil

	case StorePostgres:
		if s.DatabaseURL == "" {
			return nil, nil, missing("DATABASE_URL", "delivery store postgres")
		}
		store, err := deliveryxpostgres.Open(ctx, s.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func(context.Context) error { return store.Close() }, nil

	case StoreMongo:
		if s.MongoURI == "" {
			return nil, nil, missing("MONGO_URI", "delivery store mongo")
		}
		store, client, err := deliveryxmongo.Connect(ctx, s.MongoURI, s.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return store, client.Disconnect, nil

	default:
		return nil, nil, registry.New(ErrUnknownStore).WithDetail("store", s.StoreKind)
	}
}

// Migrate applies the postgres schema, or ensures the mongo indexes. The
// memory store needs nothing.
func Migrate(ctx context.Context, s Settings) error {
	store, closeStore, err := OpenStore(ctx, s)
	if err != nil {
		return err
	}
	defer closeStore(ctx)

	switch st := store.(type) {
	case *deliveryxpostgres.Store:
		return st.Migrate(ctx)
	case *deliveryxmongo.Store:
		return st.EnsureIndexes(ctx)
	default:
		logx.Info("store %s has no schema to migrate", store.Name())
		return nil
	}
}
