// Package storage persists the deployment configuration and the last
// published state of every output, so ledgers survive restarts.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// ErrConfigNotFound is returned by GetConfig when no configuration has been
// stored yet.
var ErrConfigNotFound = errors.New("config not found")

// Database defines the interface for persisting configuration and output
// state.
type Database interface {
	// Config
	GetConfig(ctx context.Context) (types.Config, int, error)
	SetConfig(ctx context.Context, cfg types.Config, version int) error

	// Output state persistence
	UpsertOutputState(ctx context.Context, st types.OutputState) error
	GetOutputState(ctx context.Context, id types.OutputID) (*types.OutputState, error)
	ListOutputStates(ctx context.Context) ([]types.OutputState, error)
	DeleteOutputState(ctx context.Context, id types.OutputID) error

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, memory)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Database = fs
		case "memory":
			p.Database = NewMemoryProvider()
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
