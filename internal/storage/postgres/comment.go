package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"discussion_syncer/internal/domain"
)

type commentRow struct {
	ID                string     `db:"id"`
	DiscussionID      int64      `db:"discussion_id"`
	OwnerKind         string     `db:"owner_kind"`
	OwnerID           int64      `db:"owner_id"`
	AuthorKind        *string    `db:"author_kind"`
	AuthorID          *int64     `db:"author_id"`
	ReplyToCommentID  *string    `db:"reply_to_comment_id"`
	ReplyToAuthorKind *string    `db:"reply_to_author_kind"`
	ReplyToAuthorID   *int64     `db:"reply_to_author_id"`
	Type              string     `db:"type"`
	Text              string     `db:"text"`
	Date              *time.Time `db:"date"`
	LikesCount        int        `db:"likes_count"`
	LikedIt           bool       `db:"liked_it"`
	Attrs             []byte     `db:"attrs"`
}

func (r commentRow) toDomain() *domain.Comment {
	c := &domain.Comment{
		ID:               r.ID,
		DiscussionID:     r.DiscussionID,
		Owner:            domain.Ref{Kind: domain.Kind(r.OwnerKind), ID: r.OwnerID},
		Author:           refOf(r.AuthorKind, r.AuthorID),
		ReplyToCommentID: r.ReplyToCommentID,
		Type:             r.Type,
		Text:             r.Text,
		LikesCount:       r.LikesCount,
		LikedIt:          r.LikedIt,
		Attrs:            r.Attrs,
	}
	if ref := refOf(r.ReplyToAuthorKind, r.ReplyToAuthorID); !ref.IsZero() {
		c.ReplyToAuthor = &ref
	}
	if r.Date != nil {
		c.Date = *r.Date
	}
	return c
}

type CommentStore struct {
	db *sqlx.DB
}

func NewCommentStore(db *sqlx.DB) *CommentStore {
	return &CommentStore{db: db}
}

func (s *CommentStore) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	var row commentRow
	query := `
		SELECT id, discussion_id, owner_kind, owner_id, author_kind, author_id,
			reply_to_comment_id, reply_to_author_kind, reply_to_author_id,
			type, text, date, likes_count, liked_it, attrs
		FROM comments
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

func (s *CommentStore) UpsertComment(ctx context.Context, c *domain.Comment) error {
	query := `
		INSERT INTO comments (
			id, discussion_id, owner_kind, owner_id, author_kind, author_id,
			reply_to_comment_id, reply_to_author_kind, reply_to_author_id,
			type, text, date, likes_count, liked_it, attrs
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (id) DO UPDATE SET
			owner_kind = EXCLUDED.owner_kind,
			owner_id = EXCLUDED.owner_id,
			author_kind = EXCLUDED.author_kind,
			author_id = EXCLUDED.author_id,
			reply_to_comment_id = EXCLUDED.reply_to_comment_id,
			reply_to_author_kind = EXCLUDED.reply_to_author_kind,
			reply_to_author_id = EXCLUDED.reply_to_author_id,
			type = EXCLUDED.type,
			text = EXCLUDED.text,
			date = EXCLUDED.date,
			likes_count = EXCLUDED.likes_count,
			liked_it = EXCLUDED.liked_it,
			attrs = EXCLUDED.attrs,
			updated_at = NOW()`

	var replyTo domain.Ref
	if c.ReplyToAuthor != nil {
		replyTo = *c.ReplyToAuthor
	}
	var date *time.Time
	if !c.Date.IsZero() {
		date = &c.Date
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		c.ID,
		c.DiscussionID,
		string(c.Owner.Kind),
		c.Owner.ID,
		nullKind(c.Author),
		nullID(c.Author),
		c.ReplyToCommentID,
		nullKind(replyTo),
		nullID(replyTo),
		c.Type,
		c.Text,
		date,
		c.LikesCount,
		c.LikedIt,
		nullJSON(c.Attrs),
	)
	return err
}

func (s *CommentStore) CountComments(ctx context.Context, discussionID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count,
		"SELECT COUNT(*) FROM comments WHERE discussion_id = $1", discussionID)
	return count, err
}
