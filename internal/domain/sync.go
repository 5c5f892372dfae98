package domain

import "time"

// SyncStats holds statistics about a sync operation.
type SyncStats struct {
	Owners      int
	Discussions int
	New         int
	Updated     int
	Comments    int
	Errors      int
	Published   int
	Duration    time.Duration
}

// SyncState is the persisted per-owner bookkeeping of past syncs.
type SyncState struct {
	ID           int64     `db:"id"`
	OwnerKind    string    `db:"owner_kind"`
	OwnerID      int64     `db:"owner_id"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	TotalSynced  int64     `db:"total_synced"`
}
