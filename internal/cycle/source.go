package cycle

import "context"

// Source is the read side of the sample backend.
type Source interface {
	// ListBetween returns the user's samples of the given categories dated in [from, to).
	ListBetween(ctx context.Context, userID string, categories []Category, from, to DateKey) ([]Sample, error)
	// ListAll returns every sample of one category regardless of date.
	ListAll(ctx context.Context, userID string, category Category) ([]Sample, error)
}

// Store is the contract the in-memory, postgres and remote backends satisfy.
type Store interface {
	Source
	// SaveSamples creates samples without an ID and replaces those with one.
	// It returns the stored samples with IDs and timestamps filled in.
	SaveSamples(ctx context.Context, samples []Sample) ([]Sample, error)
	// DeleteSamples removes the given samples of a user. Unknown IDs yield ErrNotFound.
	DeleteSamples(ctx context.Context, userID string, ids []string) error
}

// UserLister is implemented by stores that can enumerate their users.
type UserLister interface {
	Users(ctx context.Context) ([]string, error)
}

// StoreResolver hands out the store that serves a given user or session.
type StoreResolver interface {
	Resolve(ctx context.Context, userID string) (Store, error)
}

type staticResolver struct {
	store Store
}

// StaticResolver serves every user from the same store.
func StaticResolver(store Store) StoreResolver {
	return staticResolver{store: store}
}

func (r staticResolver) Resolve(context.Context, string) (Store, error) {
	return r.store, nil
}
