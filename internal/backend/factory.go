package backend

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
	"fintrack/internal/store/mongo"
	"fintrack/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger

	openSQLite func(path string) (store.RecordStore, error)
	openMongo  func(ctx context.Context, cfg mongo.Config) (store.RecordStore, error)
	dialAMQP   func(url, exchange, queue string) (services.EventPublisher, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *DefaultFactory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
		openSQLite: func(path string) (store.RecordStore, error) {
			return sqlite.Open(path)
		},
		openMongo: func(ctx context.Context, cfg mongo.Config) (store.RecordStore, error) {
			return mongo.Open(ctx, cfg)
		},
		dialAMQP: func(url, exchange, queue string) (services.EventPublisher, error) {
			client, err := amqp.NewClient(url, exchange, queue)
			if err != nil {
				return nil, err
			}
			return client.WithLogger(logger), nil
		},
	}
}

// CreateBackend opens the configured store, falling back to the ephemeral
// store when allowed, and wires the optional event publisher.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s, err := f.openStore(ctx, config)
	fallback := false
	if err != nil {
		if !config.Fallback {
			return nil, fmt.Errorf("open %s store: %w", config.Type, err)
		}
		f.logger.Warn("Durable store unavailable, falling back to memory store",
			applog.FieldStore, config.Type.String(),
			applog.FieldError, err)
		s = memory.New()
		fallback = true
	}

	var pub services.EventPublisher
	if config.AMQPURL != "" {
		client, err := f.dialAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", applog.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			pub = client
		}
	}

	service := services.NewFinanceService(s, pub, f.logger)

	f.logger.Info("Initialized record store",
		applog.FieldStore, s.Name(),
		"fallback", fallback,
		"events_enabled", pub != nil)

	return &BackendResult{
		Service:  service,
		Store:    s,
		Fallback: fallback,
		Events:   pub != nil,
		Cleanup:  service.Close,
	}, nil
}

func (f *DefaultFactory) openStore(ctx context.Context, config Config) (store.RecordStore, error) {
	switch config.Type {
	case SQLiteBackend:
		return f.openSQLite(config.SQLiteDBPath)
	case MongoBackend:
		return f.openMongo(ctx, mongo.Config{
			URI:            config.MongoURI,
			Database:       config.MongoDatabase,
			ConnectTimeout: config.MongoTimeout,
		})
	case MemoryBackend:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
