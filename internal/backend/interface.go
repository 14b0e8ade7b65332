package backend

import (
	"context"
	"time"

	"fintrack/internal/services"
	"fintrack/internal/store"
)

// BackendType selects the record store implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MongoBackend  BackendType = "mongo"
)

func (t BackendType) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, MongoBackend:
		return true
	}
	return false
}

func (t BackendType) String() string {
	return string(t)
}

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult is a ready-to-use finance service plus what it was built from.
type BackendResult struct {
	Service *services.FinanceService
	Store   store.RecordStore
	// Fallback is set when the configured durable store could not be opened
	// and the ephemeral store is serving instead.
	Fallback bool
	// Events reports whether change events are being published.
	Events  bool
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type     BackendType
	Fallback bool

	SQLiteDBPath string

	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// Empty AMQPURL disables change events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}
