package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

type txMarker struct{}

// Snapshotter is a store whose content a rolled back transaction restores
type Snapshotter interface {
	Snapshot() func()
}

// MockPostgresClient runs transactions one at a time against the in-memory
// stores and restores their content when fn fails.
type MockPostgresClient struct {
	mu     sync.Mutex
	stores []Snapshotter
	logger *logger.Logger
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger, stores ...Snapshotter) *MockPostgresClient {
	return &MockPostgresClient{
		stores: stores,
		logger: logger,
	}
}

// InTx reports whether ctx carries a transaction of MockPostgresClient
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txMarker{}).(bool)
	return ok
}

// WithTx executes the given function within a transaction
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	// If we're already in a transaction, reuse it
	if InTx(ctx) {
		return fn(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	restores := make([]func(), 0, len(c.stores))
	for _, s := range c.stores {
		restores = append(restores, s.Snapshot())
	}

	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		c.logger.Debugw("rolling back in-memory transaction", "error", err)
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}
