package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/samber/lo"

	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/metrics"
	"discussion_syncer/internal/normalize"
	"discussion_syncer/internal/resolve"
)

// FetchPoll fetches the poll attached to the media topic behind d and
// persists it with its answers in one transaction.
func (s *SyncService) FetchPoll(ctx context.Context, d *domain.Discussion) (*domain.Poll, error) {
	resp, err := s.api.Call(ctx, methodMediaTopicsByIDs, map[string]string{
		"topic_ids":   strconv.FormatInt(d.ID, 10),
		"media_limit": mediaLimit,
		"fields":      pollFields,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch poll of discussion %d: %w", d.ID, err)
	}

	records, err := normalize.MediaTopics(resp)
	if err != nil {
		return nil, fmt.Errorf("normalize poll of discussion %d: %w", d.ID, err)
	}

	var rec *normalize.DiscussionRecord
	for i := range records {
		if records[i].Poll != nil && (records[i].Discussion.ID == d.ID || len(records) == 1) {
			rec = &records[i]
			break
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("poll of discussion %d: %w", d.ID, domain.ErrNotFound)
	}

	poll := rec.Poll
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		hints := resolve.NewHints(rec.Hints...)
		if err := s.resolver.Remember(txCtx, hints); err != nil {
			return fmt.Errorf("save poll entities: %w", err)
		}
		return s.savePoll(txCtx, poll, d, hints)
	})
	if err != nil {
		return nil, err
	}

	return poll, nil
}

// savePoll supersedes older polls of the same owner or discussion and
// upserts p with its answers.
func (s *SyncService) savePoll(ctx context.Context, p *domain.Poll, d *domain.Discussion, hints resolve.Hints) error {
	p.DiscussionID = d.ID

	if p.Owner.IsZero() || p.Owner.ID == d.Owner.ID {
		p.Owner = d.Owner
	} else {
		owner, err := s.resolver.Resolve(ctx, p.Owner, hints, domain.KindGroup)
		if err != nil {
			return fmt.Errorf("resolve owner of poll %d: %w", p.ID, err)
		}
		p.Owner = owner.Ref
	}

	removed, err := s.stores.Polls.DeleteStalePolls(ctx, p)
	if err != nil {
		return fmt.Errorf("delete stale polls of %s: %w", p.Owner, err)
	}
	if removed > 0 {
		s.logger.Info("superseded stale polls", "poll_id", p.ID, "owner", p.Owner.String(), "removed", removed)
	}

	if err := s.stores.Polls.UpsertPoll(ctx, p); err != nil {
		return fmt.Errorf("upsert poll %d: %w", p.ID, err)
	}

	keep := lo.Map(p.Answers, func(a domain.Answer, _ int) int64 { return a.ID })
	dropped, err := s.stores.Polls.DeleteStaleAnswers(ctx, p.ID, keep)
	if err != nil {
		return fmt.Errorf("delete stale answers of poll %d: %w", p.ID, err)
	}
	if dropped > 0 {
		s.logger.Info("dropped answers gone from poll", "poll_id", p.ID, "removed", dropped)
	}

	for i := range p.Answers {
		a := &p.Answers[i]
		a.PollID = p.ID
		a.Rate = domain.AnswerRate(a.VotesCount, p.VotesCount)
		if err := s.stores.Polls.UpsertAnswer(ctx, a); err != nil {
			return fmt.Errorf("upsert answer %d: %w", a.ID, err)
		}
	}

	metrics.EntitiesSaved.WithLabelValues("poll").Inc()
	metrics.EntitiesSaved.WithLabelValues("answer").Add(float64(len(p.Answers)))
	return nil
}
