// Package resolve turns polymorphic (kind, id) references into stored actors.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"discussion_syncer/internal/domain"
)

type ActorStore interface {
	GetActor(ctx context.Context, ref domain.Ref) (*domain.Actor, error)
	UpsertActors(ctx context.Context, actors []domain.Actor) error
}

// Fetcher fetches actors of a single kind from the remote API.
type Fetcher interface {
	FetchActors(ctx context.Context, ids []int64) ([]domain.Actor, error)
}

// Registry maps every supported kind to its remote fetcher.
type Registry map[domain.Kind]Fetcher

// Hints indexes actor snapshots batched in the payload being processed.
type Hints map[domain.Ref]domain.Actor

func NewHints(actors ...domain.Actor) Hints {
	return lo.SliceToMap(actors, func(a domain.Actor) (domain.Ref, domain.Actor) {
		return a.Ref, a
	})
}

func (h Hints) Add(actors ...domain.Actor) {
	for _, a := range actors {
		h[a.Ref] = a
	}
}

type Resolver struct {
	store    ActorStore
	registry Registry
	logger   *slog.Logger
}

func New(store ActorStore, registry Registry, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Resolve looks ref up in the payload hints, then in the store, then on the
// remote API. Whatever is found outside the store is persisted. A reference
// with no Kind is tried against every registered kind, falling back to
// fallback for the remote fetch. It fails with *domain.MissingReferenceError
// when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, ref domain.Ref, hints Hints, fallback domain.Kind) (domain.Actor, error) {
	if ref.IsZero() {
		return domain.Actor{}, &domain.MissingReferenceError{Ref: ref}
	}

	candidates := []domain.Ref{ref}
	if ref.Kind == "" {
		candidates = lo.FilterMap(domain.Kinds, func(k domain.Kind, _ int) (domain.Ref, bool) {
			_, ok := r.registry[k]
			return domain.Ref{Kind: k, ID: ref.ID}, ok
		})
	}

	for _, c := range candidates {
		if a, ok := hints[c]; ok {
			if err := r.store.UpsertActors(ctx, []domain.Actor{a}); err != nil {
				return domain.Actor{}, fmt.Errorf("save %s: %w", c, err)
			}
			return a, nil
		}
	}

	for _, c := range candidates {
		a, err := r.store.GetActor(ctx, c)
		if err == nil {
			return *a, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Actor{}, fmt.Errorf("get %s: %w", c, err)
		}
	}

	kind := ref.Kind
	if kind == "" {
		kind = fallback
	}
	return r.fetch(ctx, domain.Ref{Kind: kind, ID: ref.ID})
}

// ResolveAuthor resolves an author whose id may equal the already resolved
// owner. That case returns the owner without any lookup.
func (r *Resolver) ResolveAuthor(ctx context.Context, author domain.Ref, owner domain.Actor, hints Hints, fallback domain.Kind) (domain.Actor, error) {
	if author.ID == owner.ID && (author.Kind == "" || author.Kind == owner.Kind) {
		return owner, nil
	}
	return r.Resolve(ctx, author, hints, fallback)
}

// Remember persists every hint so later lookups hit the store.
func (r *Resolver) Remember(ctx context.Context, hints Hints) error {
	if len(hints) == 0 {
		return nil
	}
	return r.store.UpsertActors(ctx, lo.Values(hints))
}

func (r *Resolver) fetch(ctx context.Context, ref domain.Ref) (domain.Actor, error) {
	fetcher, ok := r.registry[ref.Kind]
	if !ok {
		return domain.Actor{}, &domain.MissingReferenceError{Ref: ref}
	}

	r.logger.Debug("fetching missing reference", "ref", ref.String())

	actors, err := fetcher.FetchActors(ctx, []int64{ref.ID})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("fetch %s: %w", ref, err)
	}

	a, ok := lo.Find(actors, func(a domain.Actor) bool { return a.ID == ref.ID })
	if !ok {
		return domain.Actor{}, &domain.MissingReferenceError{Ref: ref}
	}
	a.Kind = ref.Kind

	if err := r.store.UpsertActors(ctx, []domain.Actor{a}); err != nil {
		return domain.Actor{}, fmt.Errorf("save %s: %w", ref, err)
	}
	return a, nil
}
