package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"discussion_syncer/internal/config"
	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/metrics"
	"discussion_syncer/internal/paginate"
	"discussion_syncer/internal/resolve"
)

type SyncService struct {
	api       Caller
	stores    Stores
	resolver  *resolve.Resolver
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig
}

func NewSyncService(
	api Caller,
	stores Stores,
	resolver *resolve.Resolver,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		api:       api,
		stores:    stores,
		resolver:  resolver,
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
		config:    cfg,
	}
}

// Sync fetches the discussions of every configured owner, and their comments
// when enabled. Owners are synced concurrently; a failing owner is counted
// and logged without stopping the others.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()

	owners := make([]domain.Ref, 0, len(s.config.Owners))
	for _, o := range s.config.Owners {
		ref, err := o.Ref()
		if err != nil {
			return nil, fmt.Errorf("owner config: %w", err)
		}
		owners = append(owners, ref)
	}

	s.logger.Info("starting sync",
		"owners", len(owners),
		"max_pages", s.config.MaxPagesPerSync,
		"fetch_comments", s.config.FetchComments,
	)

	var (
		mu    sync.Mutex
		stats = &domain.SyncStats{Owners: len(owners)}
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.config.Concurrency, 1))

	for _, owner := range owners {
		owner := owner
		g.Go(func() error {
			ownerStats := s.syncOwner(gCtx, owner)

			mu.Lock()
			stats.Discussions += ownerStats.Discussions
			stats.New += ownerStats.New
			stats.Updated += ownerStats.Updated
			stats.Comments += ownerStats.Comments
			stats.Errors += ownerStats.Errors
			stats.Published += ownerStats.Published
			mu.Unlock()

			// cancellation of the parent aborts the remaining owners
			return ctx.Err()
		})
	}

	err := g.Wait()
	stats.Duration = time.Since(startTime)
	metrics.SyncDuration.Observe(stats.Duration.Seconds())
	if err != nil {
		return stats, err
	}

	s.logger.Info("sync completed",
		"discussions", stats.Discussions,
		"new", stats.New,
		"updated", stats.Updated,
		"comments", stats.Comments,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) syncOwner(ctx context.Context, owner domain.Ref) domain.SyncStats {
	var stats domain.SyncStats
	logger := s.logger.With("owner", owner.String())

	result, err := s.fetchDiscussionsForOwner(ctx, owner)
	if err != nil {
		logger.Error("owner sync failed", "error", err)
		stats.Errors++
		return stats
	}

	stats.Discussions = len(result.discussions)
	stats.New = result.created
	stats.Updated = len(result.discussions) - result.created
	stats.Published = result.published

	if s.config.FetchComments {
		for i := range result.discussions {
			comments, err := s.FetchComments(ctx, &result.discussions[i])
			if err != nil {
				logger.Error("comments sync failed",
					"discussion_id", result.discussions[i].ID,
					"error", err,
				)
				stats.Errors++
				continue
			}
			stats.Comments += len(comments)
		}
	}

	if err := s.updateSyncState(ctx, owner, len(result.discussions)); err != nil {
		logger.Error("update sync state failed", "error", err)
		stats.Errors++
	}

	return stats
}

func (s *SyncService) updateSyncState(ctx context.Context, owner domain.Ref, synced int) error {
	state, err := s.stores.SyncState.Get(ctx, owner)
	if err != nil {
		return err
	}

	state.OwnerKind = string(owner.Kind)
	state.OwnerID = owner.ID
	state.LastSyncedAt = time.Now()
	state.TotalSynced += int64(synced)

	return s.stores.SyncState.Update(ctx, state)
}

func (s *SyncService) pager(policy paginate.Policy, pageSize int) paginate.Paginator {
	return paginate.Paginator{
		Policy:   policy,
		PageSize: pageSize,
		MaxPages: s.config.MaxPagesPerSync,
		Logger:   s.logger,
	}
}

// publish announces committed discussions. Failures are logged and counted
// but never undo the sync.
func (s *SyncService) publish(ctx context.Context, discussions []domain.Discussion, isNew []bool) int {
	if s.publisher == nil {
		return 0
	}
	published := 0
	for i := range discussions {
		if err := s.publisher.Publish(ctx, &discussions[i], isNew[i]); err != nil {
			s.logger.Warn("publish failed", "discussion_id", discussions[i].ID, "error", err)
			continue
		}
		published++
	}
	return published
}

// degrade reports whether err is an unresolvable reference that the caller
// may leave unset, logging it when so.
func (s *SyncService) degrade(err error, field string, attrs ...any) bool {
	var missing *domain.MissingReferenceError
	if !errors.As(err, &missing) {
		return false
	}
	metrics.DegradedReferences.WithLabelValues(field).Inc()
	s.logger.Warn("unresolvable reference left unset",
		append([]any{"field", field, "ref", missing.Ref.String()}, attrs...)...,
	)
	return true
}
