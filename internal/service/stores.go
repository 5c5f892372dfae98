package service

import (
	"context"

	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/resolve"
)

type DiscussionStore interface {
	GetDiscussion(ctx context.Context, id int64) (*domain.Discussion, error)
	UpsertDiscussion(ctx context.Context, d *domain.Discussion) error
	SetCommentsCount(ctx context.Context, id int64, count int) error
}

type CommentStore interface {
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	UpsertComment(ctx context.Context, c *domain.Comment) error
	CountComments(ctx context.Context, discussionID int64) (int, error)
}

type PollStore interface {
	GetPoll(ctx context.Context, id int64) (*domain.Poll, error)
	// DeleteStalePolls removes polls other than p that share its owner or
	// its discussion, returning how many were removed.
	DeleteStalePolls(ctx context.Context, p *domain.Poll) (int64, error)
	UpsertPoll(ctx context.Context, p *domain.Poll) error
	// DeleteStaleAnswers removes answers of pollID whose id is not in keep.
	DeleteStaleAnswers(ctx context.Context, pollID int64, keep []int64) (int64, error)
	UpsertAnswer(ctx context.Context, a *domain.Answer) error
	SetAnswerVotes(ctx context.Context, answerID int64, votes int, rate float64) error
	ClearVoters(ctx context.Context, answerID int64) error
	AddVoters(ctx context.Context, answerID int64, userIDs []int64) error
}

type LikeStore interface {
	ClearLikes(ctx context.Context, target domain.LikeTarget) error
	AddLikes(ctx context.Context, target domain.LikeTarget, userIDs []int64) error
	SetLikesCount(ctx context.Context, target domain.LikeTarget, count int) error
}

type SyncStateStore interface {
	Get(ctx context.Context, owner domain.Ref) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

// Stores groups the persistence ports the service writes through.
type Stores struct {
	Actors      resolve.ActorStore
	Discussions DiscussionStore
	Comments    CommentStore
	Polls       PollStore
	Likes       LikeStore
	SyncState   SyncStateStore
}
