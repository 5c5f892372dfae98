package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"discussion_syncer/internal/domain"
)

type discussionRow struct {
	ID                 int64      `db:"id"`
	Type               string     `db:"type"`
	OwnerKind          string     `db:"owner_kind"`
	OwnerID            int64      `db:"owner_id"`
	AuthorKind         *string    `db:"author_kind"`
	AuthorID           *int64     `db:"author_id"`
	Title              string     `db:"title"`
	Message            string     `db:"message"`
	Date               *time.Time `db:"date"`
	LastActivityDate   *time.Time `db:"last_activity_date"`
	LastUserAccessDate *time.Time `db:"last_user_access_date"`
	NewCommentsCount   int        `db:"new_comments_count"`
	CommentsCount      int        `db:"comments_count"`
	LikesCount         int        `db:"likes_count"`
	ResharesCount      int        `db:"reshares_count"`
	VotesCount         int        `db:"votes_count"`
	LastVoteDate       *time.Time `db:"last_vote_date"`
	Question           string     `db:"question"`
	LikedIt            bool       `db:"liked_it"`
	Entities           []byte     `db:"entities"`
	RefObjects         []byte     `db:"ref_objects"`
	Attrs              []byte     `db:"attrs"`
}

func (r discussionRow) toDomain() *domain.Discussion {
	d := &domain.Discussion{
		ID:                 r.ID,
		Type:               domain.DiscussionType(r.Type),
		Owner:              domain.Ref{Kind: domain.Kind(r.OwnerKind), ID: r.OwnerID},
		Author:             refOf(r.AuthorKind, r.AuthorID),
		Title:              r.Title,
		Message:            r.Message,
		LastActivityDate:   r.LastActivityDate,
		LastUserAccessDate: r.LastUserAccessDate,
		NewCommentsCount:   r.NewCommentsCount,
		CommentsCount:      r.CommentsCount,
		LikesCount:         r.LikesCount,
		ResharesCount:      r.ResharesCount,
		VotesCount:         r.VotesCount,
		LastVoteDate:       r.LastVoteDate,
		Question:           r.Question,
		LikedIt:            r.LikedIt,
		Entities:           r.Entities,
		RefObjects:         r.RefObjects,
		Attrs:              r.Attrs,
	}
	if r.Date != nil {
		d.Date = *r.Date
	}
	return d
}

type DiscussionStore struct {
	db *sqlx.DB
}

func NewDiscussionStore(db *sqlx.DB) *DiscussionStore {
	return &DiscussionStore{db: db}
}

func (s *DiscussionStore) GetDiscussion(ctx context.Context, id int64) (*domain.Discussion, error) {
	var row discussionRow
	query := `
		SELECT id, type, owner_kind, owner_id, author_kind, author_id, title, message,
			date, last_activity_date, last_user_access_date, new_comments_count,
			comments_count, likes_count, reshares_count, votes_count, last_vote_date,
			question, liked_it, entities, ref_objects, attrs
		FROM discussions
		WHERE id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// UpsertDiscussion overwrites every denormalized field. A NULL entities blob
// keeps the stored one.
func (s *DiscussionStore) UpsertDiscussion(ctx context.Context, d *domain.Discussion) error {
	query := `
		INSERT INTO discussions (
			id, type, owner_kind, owner_id, author_kind, author_id, title, message,
			date, last_activity_date, last_user_access_date, new_comments_count,
			comments_count, likes_count, reshares_count, votes_count, last_vote_date,
			question, liked_it, entities, ref_objects, attrs
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			owner_kind = EXCLUDED.owner_kind,
			owner_id = EXCLUDED.owner_id,
			author_kind = EXCLUDED.author_kind,
			author_id = EXCLUDED.author_id,
			title = EXCLUDED.title,
			message = EXCLUDED.message,
			date = EXCLUDED.date,
			last_activity_date = EXCLUDED.last_activity_date,
			last_user_access_date = EXCLUDED.last_user_access_date,
			new_comments_count = EXCLUDED.new_comments_count,
			comments_count = EXCLUDED.comments_count,
			likes_count = EXCLUDED.likes_count,
			reshares_count = EXCLUDED.reshares_count,
			votes_count = EXCLUDED.votes_count,
			last_vote_date = EXCLUDED.last_vote_date,
			question = EXCLUDED.question,
			liked_it = EXCLUDED.liked_it,
			entities = COALESCE(EXCLUDED.entities, discussions.entities),
			ref_objects = EXCLUDED.ref_objects,
			attrs = EXCLUDED.attrs,
			updated_at = NOW()`

	var date *time.Time
	if !d.Date.IsZero() {
		date = &d.Date
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		d.ID,
		string(d.Type),
		string(d.Owner.Kind),
		d.Owner.ID,
		nullKind(d.Author),
		nullID(d.Author),
		d.Title,
		d.Message,
		date,
		d.LastActivityDate,
		d.LastUserAccessDate,
		d.NewCommentsCount,
		d.CommentsCount,
		d.LikesCount,
		d.ResharesCount,
		d.VotesCount,
		d.LastVoteDate,
		d.Question,
		d.LikedIt,
		nullJSON(d.Entities),
		nullJSON(d.RefObjects),
		nullJSON(d.Attrs),
	)
	return err
}

func (s *DiscussionStore) SetCommentsCount(ctx context.Context, id int64, count int) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE discussions SET comments_count = $2, updated_at = NOW() WHERE id = $1",
		id, count,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
