package service

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"github.com/samber/lo"

	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/metrics"
	"discussion_syncer/internal/normalize"
	"discussion_syncer/internal/paginate"
	"discussion_syncer/internal/resolve"
)

// relation describes one incrementally fetched user set hanging off an
// entity, together with its aggregate counter.
type relation struct {
	name     string
	policy   paginate.Policy
	pageSize int
	call     func(ctx context.Context, cur paginate.Cursor) (map[string]any, error)
	clear    func(ctx context.Context) error
	add      func(ctx context.Context, userIDs []int64) error
	setCount func(ctx context.Context, count int) error
}

// FetchDiscussionLikes rebuilds the set of users liking d.
func (s *SyncService) FetchDiscussionLikes(ctx context.Context, d *domain.Discussion) ([]domain.Ref, error) {
	if d.Type == "" {
		d.Type = domain.DefaultDiscussionType
	}
	target := domain.LikeTarget{Kind: domain.LikeTargetDiscussion, ID: strconv.FormatInt(d.ID, 10)}

	refs, count, err := s.syncRelation(ctx, s.likesRelation(target, methodDiscussionLikes, map[string]string{
		"discussionId":   target.ID,
		"discussionType": string(d.Type),
	}))
	if err != nil {
		return nil, fmt.Errorf("sync likes of discussion %d: %w", d.ID, err)
	}
	d.LikesCount = count
	return refs, nil
}

// FetchCommentLikes rebuilds the set of users liking c.
func (s *SyncService) FetchCommentLikes(ctx context.Context, c *domain.Comment) ([]domain.Ref, error) {
	d, err := s.stores.Discussions.GetDiscussion(ctx, c.DiscussionID)
	if err != nil {
		return nil, fmt.Errorf("get discussion %d of comment %s: %w", c.DiscussionID, c.ID, err)
	}
	target := domain.LikeTarget{Kind: domain.LikeTargetComment, ID: c.ID}

	refs, count, err := s.syncRelation(ctx, s.likesRelation(target, methodCommentLikes, map[string]string{
		"discussionId":   strconv.FormatInt(d.ID, 10),
		"discussionType": string(d.Type),
		"comment_id":     c.ID,
	}))
	if err != nil {
		return nil, fmt.Errorf("sync likes of comment %s: %w", c.ID, err)
	}
	c.LikesCount = count
	return refs, nil
}

func (s *SyncService) likesRelation(target domain.LikeTarget, method string, base map[string]string) relation {
	return relation{
		name:     string(target.Kind) + "_likes",
		policy:   paginate.StopWithoutIndicator,
		pageSize: s.config.PageSize,
		call: func(ctx context.Context, cur paginate.Cursor) (map[string]any, error) {
			params := maps.Clone(base)
			params["count"] = strconv.Itoa(cur.Count)
			if cur.Anchor != "" {
				params["anchor"] = cur.Anchor
			}
			return s.api.Call(ctx, method, params)
		},
		clear: func(ctx context.Context) error {
			return s.stores.Likes.ClearLikes(ctx, target)
		},
		add: func(ctx context.Context, userIDs []int64) error {
			return s.stores.Likes.AddLikes(ctx, target, userIDs)
		},
		setCount: func(ctx context.Context, count int) error {
			return s.stores.Likes.SetLikesCount(ctx, target, count)
		},
	}
}

// FetchPollVoters rebuilds the set of users who voted for a. Pages are
// requested by offset until one comes back short.
func (s *SyncService) FetchPollVoters(ctx context.Context, a *domain.Answer) ([]domain.Ref, error) {
	rel := relation{
		name:     "answer_voters",
		policy:   paginate.StopOnShortPage,
		pageSize: s.config.VotersPageSize,
		call: func(ctx context.Context, cur paginate.Cursor) (map[string]any, error) {
			return s.api.Call(ctx, methodPollAnswerVoters, map[string]string{
				"poll_id":   strconv.FormatInt(a.PollID, 10),
				"answer_id": strconv.FormatInt(a.ID, 10),
				"offset":    strconv.Itoa(cur.Offset),
				"count":     strconv.Itoa(cur.Count),
			})
		},
		clear: func(ctx context.Context) error {
			return s.stores.Polls.ClearVoters(ctx, a.ID)
		},
		add: func(ctx context.Context, userIDs []int64) error {
			return s.stores.Polls.AddVoters(ctx, a.ID, userIDs)
		},
		setCount: func(ctx context.Context, count int) error {
			poll, err := s.stores.Polls.GetPoll(ctx, a.PollID)
			if err != nil {
				return fmt.Errorf("get poll %d: %w", a.PollID, err)
			}
			a.VotesCount = count
			a.Rate = domain.AnswerRate(count, poll.VotesCount)
			return s.stores.Polls.SetAnswerVotes(ctx, a.ID, count, a.Rate)
		},
	}

	refs, _, err := s.syncRelation(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("sync voters of answer %d: %w", a.ID, err)
	}
	return refs, nil
}

// syncRelation runs the incremental fetch of rel. The first page clears the
// stored set and sets the counter from the remote total; later pages only
// add to the set. Every page commits on its own, so a failure on a later
// page leaves the counter correct and the set partially rebuilt. When no
// page reports a total the counter is set to the size of the fetched set.
func (s *SyncService) syncRelation(ctx context.Context, rel relation) ([]domain.Ref, int, error) {
	var (
		ids   []int64
		total *int
	)

	fetch := func(ctx context.Context, cur paginate.Cursor) (paginate.Page[domain.Actor], error) {
		resp, err := rel.call(ctx, cur)
		if err != nil {
			return paginate.Page[domain.Actor]{}, err
		}
		// without users the anchor is not a continuation
		if _, ok := resp["users"]; !ok {
			return paginate.Page[domain.Actor]{}, nil
		}
		page, err := normalize.Users(resp)
		if err != nil {
			return paginate.Page[domain.Actor]{}, err
		}
		if cur.Index == 0 {
			total = page.Total
		}
		anchor, hasMore := normalize.PageInfo(resp)
		return paginate.Page[domain.Actor]{Items: page.Users, Anchor: anchor, HasMore: hasMore}, nil
	}

	visit := func(ctx context.Context, cur paginate.Cursor, page paginate.Page[domain.Actor]) error {
		pageIDs := lo.Map(page.Items, func(a domain.Actor, _ int) int64 { return a.ID })

		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.resolver.Remember(txCtx, resolve.NewHints(page.Items...)); err != nil {
				return fmt.Errorf("save users: %w", err)
			}
			if cur.Index == 0 {
				if err := rel.clear(txCtx); err != nil {
					return fmt.Errorf("clear %s: %w", rel.name, err)
				}
				if total != nil {
					if err := rel.setCount(txCtx, *total); err != nil {
						return fmt.Errorf("set %s count: %w", rel.name, err)
					}
				}
			}
			if len(pageIDs) == 0 {
				return nil
			}
			return rel.add(txCtx, pageIDs)
		})
		if err != nil {
			return err
		}

		ids = append(ids, pageIDs...)
		return nil
	}

	if err := paginate.Walk(ctx, s.pager(rel.policy, rel.pageSize), fetch, visit); err != nil {
		return nil, 0, err
	}

	ids = lo.Uniq(ids)
	count := len(ids)
	if total != nil {
		count = *total
	} else {
		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return rel.setCount(txCtx, count)
		})
		if err != nil {
			return nil, 0, fmt.Errorf("set %s count: %w", rel.name, err)
		}
	}

	metrics.EntitiesSaved.WithLabelValues(rel.name).Add(float64(len(ids)))
	s.logger.Debug("relation synced", "relation", rel.name, "users", len(ids), "count", count)

	refs := lo.Map(ids, func(id int64, _ int) domain.Ref {
		return domain.Ref{Kind: domain.KindUser, ID: id}
	})
	return refs, count, nil
}
