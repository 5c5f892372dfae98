package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"discussion_syncer/internal/domain"
)

// Caller performs one remote API call. Every endpoint goes through it.
type Caller interface {
	Call(ctx context.Context, method string, params map[string]string) (map[string]any, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, discussion *domain.Discussion, isNew bool) error
	Close() error
}
