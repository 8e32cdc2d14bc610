package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/cycle-tracker/internal/cycle"
	"github.com/i474232898/cycle-tracker/internal/store"
)

func TestRegistry_ReusesStorePerSession(t *testing.T) {
	built := map[string]int{}
	r := NewRegistry(func(key string) (cycle.Store, error) {
		built[key]++
		return store.NewMemoryStore(0), nil
	}, time.Hour)

	ctx := context.Background()
	a1, err := r.Resolve(ctx, "a")
	require.NoError(t, err)
	a2, err := r.Resolve(ctx, "a")
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "b")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, built)
}

func TestRegistry_ForgetRebuilds(t *testing.T) {
	calls := 0
	r := NewRegistry(func(string) (cycle.Store, error) {
		calls++
		return store.NewMemoryStore(0), nil
	}, time.Hour)

	ctx := context.Background()
	first, err := r.Resolve(ctx, "a")
	require.NoError(t, err)
	r.Forget("a")
	second, err := r.Resolve(ctx, "a")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, calls)
}

func TestRegistry_Errors(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(func(string) (cycle.Store, error) { return nil, boom }, time.Hour)

	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = r.Resolve(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.Len())
}
