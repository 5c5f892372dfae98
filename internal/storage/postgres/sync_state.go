package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"discussion_syncer/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

func (s *SyncStateStore) Get(ctx context.Context, owner domain.Ref) (*domain.SyncState, error) {
	var state domain.SyncState
	query := `
		SELECT id, owner_kind, owner_id, COALESCE(last_synced_at, 'epoch') AS last_synced_at, total_synced
		FROM sync_state
		WHERE owner_kind = $1 AND owner_id = $2`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, string(owner.Kind), owner.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for new owners
		return &domain.SyncState{
			OwnerKind: string(owner.Kind),
			OwnerID:   owner.ID,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SyncStateStore) Update(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_state (owner_kind, owner_id, last_synced_at, total_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_kind, owner_id) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			total_synced = EXCLUDED.total_synced`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.OwnerKind,
		state.OwnerID,
		state.LastSyncedAt,
		state.TotalSynced,
	)
	return err
}
