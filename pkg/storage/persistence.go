package storage

import (
	"context"

	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// Persistence adapts a Database to the engine's publish/restore contracts:
// every published output state is upserted, and restore reads the last
// upserted state back.
type Persistence struct {
	db Database
}

// NewPersistence returns a Persistence over the database.
func NewPersistence(db Database) *Persistence {
	return &Persistence{db: db}
}

// Publish implements host.Publisher.
func (p *Persistence) Publish(ctx context.Context, out types.OutputState) error {
	return p.db.UpsertOutputState(ctx, out)
}

// LoadLast implements host.Restorer.
func (p *Persistence) LoadLast(ctx context.Context, id types.OutputID) (*types.OutputState, error) {
	return p.db.GetOutputState(ctx, id)
}
