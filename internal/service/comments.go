package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/metrics"
	"discussion_syncer/internal/normalize"
	"discussion_syncer/internal/paginate"
	"discussion_syncer/internal/resolve"
)

type commentPage struct {
	comments []domain.Comment
	hints    []domain.Actor
}

// FetchComments pages through the comments of d and persists them
// oldest-first in one transaction, so reply targets from earlier pages are
// already stored when their replies are saved. The discussion's comment
// counter is recomputed from the stored rows.
func (s *SyncService) FetchComments(ctx context.Context, d *domain.Discussion) ([]domain.Comment, error) {
	if d.Type == "" {
		d.Type = domain.DefaultDiscussionType
	}

	hints := resolve.NewHints()
	fetch := func(ctx context.Context, cur paginate.Cursor) (paginate.Page[domain.Comment], error) {
		params := map[string]string{
			"discussionId":   strconv.FormatInt(d.ID, 10),
			"discussionType": string(d.Type),
			"count":          strconv.Itoa(cur.Count),
		}
		if cur.Anchor != "" {
			params["anchor"] = cur.Anchor
		}

		resp, err := s.api.Call(ctx, methodComments, params)
		if err != nil {
			return paginate.Page[domain.Comment]{}, err
		}
		comments, actors, err := normalize.Comments(resp, d.ID)
		if err != nil {
			return paginate.Page[domain.Comment]{}, err
		}
		hints.Add(actors...)

		anchor, hasMore := normalize.PageInfo(resp)
		return paginate.Page[domain.Comment]{Items: comments, Anchor: anchor, HasMore: hasMore}, nil
	}

	comments, err := paginate.Collect(ctx, s.pager(paginate.StopOnHasMore, s.config.PageSize), fetch)
	if err != nil {
		return nil, fmt.Errorf("fetch comments of discussion %d: %w", d.ID, err)
	}

	// pages arrive newest first
	slices.Reverse(comments)
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Date.Before(comments[j].Date)
	})

	var count int
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.resolver.Remember(txCtx, hints); err != nil {
			return fmt.Errorf("save comment entities: %w", err)
		}
		for i := range comments {
			if err := s.saveComment(txCtx, &comments[i], d, hints); err != nil {
				return err
			}
		}

		var err error
		if count, err = s.stores.Comments.CountComments(txCtx, d.ID); err != nil {
			return fmt.Errorf("count comments of discussion %d: %w", d.ID, err)
		}
		return s.stores.Discussions.SetCommentsCount(txCtx, d.ID, count)
	})
	if err != nil {
		return nil, err
	}

	d.CommentsCount = count
	metrics.EntitiesSaved.WithLabelValues("comment").Add(float64(len(comments)))
	s.logger.Debug("comments synced", "discussion_id", d.ID, "fetched", len(comments), "stored", count)

	return comments, nil
}

func (s *SyncService) saveComment(ctx context.Context, c *domain.Comment, d *domain.Discussion, hints resolve.Hints) error {
	if d.Owner.IsZero() {
		return fmt.Errorf("comment %s: %w", c.ID, &domain.MissingReferenceError{Ref: d.Owner})
	}
	c.Owner = d.Owner

	if c.Author.IsZero() {
		c.Author = d.Owner
	} else {
		author, err := s.resolver.ResolveAuthor(ctx, c.Author, domain.Actor{Ref: d.Owner}, hints, domain.KindUser)
		switch {
		case err == nil:
			c.Author = author.Ref
		case s.degrade(err, "comment.author", "comment_id", c.ID):
			c.Author = domain.Ref{}
		default:
			return fmt.Errorf("resolve author of comment %s: %w", c.ID, err)
		}
	}

	if c.ReplyToAuthor != nil {
		author, err := s.resolver.Resolve(ctx, *c.ReplyToAuthor, hints, domain.KindUser)
		switch {
		case err == nil:
			c.ReplyToAuthor = &author.Ref
		case s.degrade(err, "comment.reply_to_author", "comment_id", c.ID):
			c.ReplyToAuthor = nil
		default:
			return fmt.Errorf("resolve reply author of comment %s: %w", c.ID, err)
		}
	}

	if c.ReplyToCommentID != nil {
		_, err := s.stores.Comments.GetComment(ctx, *c.ReplyToCommentID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			conflict := &domain.IntegrityConflictError{
				Entity: "comment",
				ID:     c.ID,
				Parent: "comment " + *c.ReplyToCommentID,
			}
			metrics.DegradedReferences.WithLabelValues("comment.reply_to_comment").Inc()
			s.logger.Warn("dangling reply dropped", "comment_id", c.ID, "error", conflict)
			c.ReplyToCommentID = nil
		case err != nil:
			return fmt.Errorf("get reply target of comment %s: %w", c.ID, err)
		}
	}

	if err := s.stores.Comments.UpsertComment(ctx, c); err != nil {
		return fmt.Errorf("upsert comment %s: %w", c.ID, err)
	}
	return nil
}
