// Package session keeps one backend-backed store per session key.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/i474232898/cycle-tracker/internal/cycle"
	"github.com/i474232898/cycle-tracker/internal/logger"
)

// ErrNoSession is returned when a request carries no session key.
var ErrNoSession = errors.New("missing session key")

const defaultMaxSessions = 10_000

// Factory builds the store for a session key.
type Factory func(sessionKey string) (cycle.Store, error)

// Registry caches stores by session key. Entries expire after ttl of
// inactivity and are rebuilt on the next request.
type Registry struct {
	factory Factory
	clients *otter.Cache[string, cycle.Store]
}

func NewRegistry(factory Factory, ttl time.Duration) *Registry {
	return &Registry{
		factory: factory,
		clients: otter.Must(&otter.Options[string, cycle.Store]{
			MaximumSize:      defaultMaxSessions,
			ExpiryCalculator: otter.ExpiryAccessing[string, cycle.Store](ttl),
		}),
	}
}

// Resolve returns the store bound to sessionKey, creating it on first use.
func (r *Registry) Resolve(_ context.Context, sessionKey string) (cycle.Store, error) {
	if sessionKey == "" {
		return nil, ErrNoSession
	}
	if store, ok := r.clients.GetIfPresent(sessionKey); ok {
		return store, nil
	}

	store, err := r.factory(sessionKey)
	if err != nil {
		return nil, err
	}
	r.clients.Set(sessionKey, store)
	logger.Log.Debug("session: backend client created")
	return store, nil
}

// Forget drops the store for a session, e.g. on logout.
func (r *Registry) Forget(sessionKey string) {
	r.clients.Invalidate(sessionKey)
}

// Len reports how many sessions currently hold a store.
func (r *Registry) Len() int {
	return r.clients.EstimatedSize()
}
