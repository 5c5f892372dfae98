package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"discussion_syncer/internal/domain"
)

type likeTable struct {
	relation string
	column   string
	idType   string
	parent   string
}

var likeTables = map[domain.LikeTargetKind]likeTable{
	domain.LikeTargetDiscussion: {relation: "discussion_likes", column: "discussion_id", idType: "bigint", parent: "discussions"},
	domain.LikeTargetComment:    {relation: "comment_likes", column: "comment_id", idType: "varchar", parent: "comments"},
}

type LikeStore struct {
	db *sqlx.DB
}

func NewLikeStore(db *sqlx.DB) *LikeStore {
	return &LikeStore{db: db}
}

func (s *LikeStore) table(target domain.LikeTarget) (likeTable, error) {
	t, ok := likeTables[target.Kind]
	if !ok {
		return likeTable{}, fmt.Errorf("unsupported like target %q", target.Kind)
	}
	return t, nil
}

func (s *LikeStore) ClearLikes(ctx context.Context, target domain.LikeTarget) error {
	t, err := s.table(target)
	if err != nil {
		return err
	}
	_, err = GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM "+t.relation+" WHERE "+t.column+" = $1", target.ID)
	return err
}

func (s *LikeStore) AddLikes(ctx context.Context, target domain.LikeTarget, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	t, err := s.table(target)
	if err != nil {
		return err
	}
	_, err = GetExecutor(ctx, s.db).ExecContext(ctx,
		"INSERT INTO "+t.relation+" ("+t.column+", user_id) SELECT $1::"+t.idType+", unnest($2::bigint[]) ON CONFLICT DO NOTHING",
		target.ID, pq.Array(userIDs),
	)
	return err
}

func (s *LikeStore) SetLikesCount(ctx context.Context, target domain.LikeTarget, count int) error {
	t, err := s.table(target)
	if err != nil {
		return err
	}
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE "+t.parent+" SET likes_count = $2, updated_at = NOW() WHERE id = $1",
		target.ID, count,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}
