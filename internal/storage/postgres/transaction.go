package postgres

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"discussion_syncer/internal/domain"
)

type ctxKey string

const txKey ctxKey = "tx"

type TransactionManager struct {
	db *sqlx.DB
}

func NewTransactionManager(db *sqlx.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// WithTransaction runs fn in a transaction carried by the context. Stores
// called with that context join it; a nested call reuses the outer one.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if GetTxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := tm.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func GetTxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey).(*sqlx.Tx)
	return tx
}

func GetExecutor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx := GetTxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// nullJSON maps an empty blob to NULL.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullKind(r domain.Ref) any {
	if r.IsZero() || r.Kind == "" {
		return nil
	}
	return string(r.Kind)
}

func nullID(r domain.Ref) any {
	if r.IsZero() || r.Kind == "" {
		return nil
	}
	return r.ID
}

func refOf(kind *string, id *int64) domain.Ref {
	if kind == nil || id == nil {
		return domain.Ref{}
	}
	return domain.Ref{Kind: domain.Kind(*kind), ID: *id}
}
