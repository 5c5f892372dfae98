package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/metrics"
	"discussion_syncer/internal/normalize"
	"discussion_syncer/internal/paginate"
	"discussion_syncer/internal/resolve"
)

// FetchDiscussion fetches one discussion by id and type and reconciles it,
// together with its poll, in a single transaction.
func (s *SyncService) FetchDiscussion(ctx context.Context, id int64, typ string) (*domain.Discussion, error) {
	discussionType, err := domain.ParseDiscussionType(typ)
	if err != nil {
		return nil, err
	}

	resp, err := s.api.Call(ctx, methodDiscussionGet, map[string]string{
		"discussionId":   strconv.FormatInt(id, 10),
		"discussionType": string(discussionType),
		"fields":         discussionFields,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch discussion %d: %w", id, err)
	}

	rec, err := normalize.Discussion(resp)
	if err != nil {
		return nil, fmt.Errorf("normalize discussion %d: %w", id, err)
	}
	if rec.Discussion.Type == "" {
		rec.Discussion.Type = discussionType
	}

	saved, isNew, err := s.saveDiscussions(ctx, []normalize.DiscussionRecord{rec})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, saved, isNew)

	return &saved[0], nil
}

// FetchDiscussionsForOwner pages through the owner's stream and reconciles
// every posted discussion in one transaction.
func (s *SyncService) FetchDiscussionsForOwner(ctx context.Context, owner domain.Ref) ([]domain.Discussion, error) {
	result, err := s.fetchDiscussionsForOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	return result.discussions, nil
}

type ownerResult struct {
	discussions []domain.Discussion
	created     int
	published   int
}

func (s *SyncService) fetchDiscussionsForOwner(ctx context.Context, owner domain.Ref) (*ownerResult, error) {
	ownerParam, ok := map[domain.Kind]string{domain.KindGroup: "gid", domain.KindUser: "uid"}[owner.Kind]
	if !ok || owner.ID <= 0 {
		return nil, &domain.ValidationError{Field: "owner", Value: owner.String()}
	}

	fetch := func(ctx context.Context, cur paginate.Cursor) (paginate.Page[normalize.DiscussionRecord], error) {
		params := map[string]string{
			ownerParam: strconv.FormatInt(owner.ID, 10),
			"patterns": "POST",
			"count":    strconv.Itoa(cur.Count),
			"fields":   streamFields,
		}
		if cur.Anchor != "" {
			params["anchor"] = cur.Anchor
		}

		resp, err := s.api.Call(ctx, methodStream, params)
		if err != nil {
			return paginate.Page[normalize.DiscussionRecord]{}, err
		}
		// a stream without feeds carries no usable anchor
		if _, ok := resp["feeds"]; !ok {
			return paginate.Page[normalize.DiscussionRecord]{}, nil
		}

		records, err := normalize.Feeds(resp, owner)
		if err != nil {
			return paginate.Page[normalize.DiscussionRecord]{}, err
		}
		anchor, hasMore := normalize.PageInfo(resp)
		return paginate.Page[normalize.DiscussionRecord]{Items: records, Anchor: anchor, HasMore: hasMore}, nil
	}

	records, err := paginate.Collect(ctx, s.pager(paginate.StopWithoutIndicator, s.config.PageSize), fetch)
	if err != nil {
		return nil, fmt.Errorf("fetch stream of %s: %w", owner, err)
	}
	records = lo.UniqBy(records, func(r normalize.DiscussionRecord) int64 { return r.Discussion.ID })

	s.logger.Debug("fetched owner stream", "owner", owner.String(), "discussions", len(records))

	saved, isNew, err := s.saveDiscussions(ctx, records)
	if err != nil {
		return nil, err
	}

	return &ownerResult{
		discussions: saved,
		created:     lo.Count(isNew, true),
		published:   s.publish(ctx, saved, isNew),
	}, nil
}

// FetchMediaTopics fetches media topics by id and reconciles them as
// discussions along with the polls they carry.
func (s *SyncService) FetchMediaTopics(ctx context.Context, ids []int64) ([]domain.Discussion, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	resp, err := s.api.Call(ctx, methodMediaTopicsByIDs, map[string]string{
		"topic_ids":   joinIDs(ids),
		"media_limit": mediaLimit,
		"fields":      mediaTopicFields,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch media topics: %w", err)
	}

	records, err := normalize.MediaTopics(resp)
	if err != nil {
		return nil, fmt.Errorf("normalize media topics: %w", err)
	}
	for i := range records {
		if records[i].Discussion.Type == "" {
			records[i].Discussion.Type = domain.DefaultDiscussionType
		}
	}

	saved, isNew, err := s.saveDiscussions(ctx, records)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, saved, isNew)

	return saved, nil
}

// saveDiscussions reconciles records in one transaction. Nothing is
// persisted when any record fails.
func (s *SyncService) saveDiscussions(ctx context.Context, records []normalize.DiscussionRecord) ([]domain.Discussion, []bool, error) {
	saved := make([]domain.Discussion, 0, len(records))
	isNew := make([]bool, 0, len(records))

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		saved, isNew = saved[:0], isNew[:0]
		for i := range records {
			created, err := s.saveDiscussion(txCtx, &records[i])
			if err != nil {
				return err
			}
			saved = append(saved, records[i].Discussion)
			isNew = append(isNew, created)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.EntitiesSaved.WithLabelValues("discussion").Add(float64(len(saved)))
	return saved, isNew, nil
}

func (s *SyncService) saveDiscussion(ctx context.Context, rec *normalize.DiscussionRecord) (bool, error) {
	d := &rec.Discussion
	hints := resolve.NewHints(rec.Hints...)

	if rec.UnknownType != "" {
		s.logger.Warn("unsupported discussion type replaced",
			"discussion_id", d.ID,
			"type", rec.UnknownType,
			"stored_type", string(d.Type),
		)
	}

	if err := s.resolver.Remember(ctx, hints); err != nil {
		return false, fmt.Errorf("save entities of discussion %d: %w", d.ID, err)
	}

	if d.Owner.IsZero() {
		return false, fmt.Errorf("discussion %d: %w", d.ID, &domain.MissingReferenceError{Ref: d.Owner})
	}
	owner, err := s.resolver.Resolve(ctx, d.Owner, hints, domain.KindGroup)
	if err != nil {
		return false, fmt.Errorf("resolve owner of discussion %d: %w", d.ID, err)
	}
	d.Owner = owner.Ref

	if d.Author.IsZero() {
		d.Author = d.Owner
	} else {
		author, err := s.resolver.ResolveAuthor(ctx, d.Author, owner, hints, domain.KindUser)
		switch {
		case err == nil:
			d.Author = author.Ref
		case s.degrade(err, "discussion.author", "discussion_id", d.ID):
			d.Author = domain.Ref{}
		default:
			return false, fmt.Errorf("resolve author of discussion %d: %w", d.ID, err)
		}
	}

	existing, err := s.stores.Discussions.GetDiscussion(ctx, d.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("get discussion %d: %w", d.ID, err)
	}
	if existing != nil && d.Entities == nil {
		d.Entities = existing.Entities
	}

	if err := s.stores.Discussions.UpsertDiscussion(ctx, d); err != nil {
		return false, fmt.Errorf("upsert discussion %d: %w", d.ID, err)
	}

	if rec.Poll != nil {
		if err := s.savePoll(ctx, rec.Poll, d, hints); err != nil {
			return false, err
		}
	}

	return existing == nil, nil
}

func joinIDs(ids []int64) string {
	return strings.Join(lo.Map(ids, func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	}), ",")
}
