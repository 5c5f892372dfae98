package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"

	"discussion_syncer/internal/domain"
)

// memStore is an in-memory implementation of every store port. Its
// withTransaction restores a snapshot when fn fails, mirroring a rollback.
type memStore struct {
	actors      map[domain.Ref]domain.Actor
	discussions map[int64]domain.Discussion
	comments    map[string]domain.Comment
	polls       map[int64]domain.Poll
	answers     map[int64]domain.Answer
	voters      map[int64]map[int64]bool
	likes       map[domain.LikeTarget]map[int64]bool
	likeCounts  map[domain.LikeTarget]int
	states      map[domain.Ref]domain.SyncState

	upserts int
	commits int
}

func newMemStore() *memStore {
	return &memStore{
		actors:      map[domain.Ref]domain.Actor{},
		discussions: map[int64]domain.Discussion{},
		comments:    map[string]domain.Comment{},
		polls:       map[int64]domain.Poll{},
		answers:     map[int64]domain.Answer{},
		voters:      map[int64]map[int64]bool{},
		likes:       map[domain.LikeTarget]map[int64]bool{},
		likeCounts:  map[domain.LikeTarget]int{},
		states:      map[domain.Ref]domain.SyncState{},
	}
}

func (m *memStore) stores() Stores {
	return Stores{
		Actors:      m,
		Discussions: m,
		Comments:    m,
		Polls:       m,
		Likes:       m,
		SyncState:   m,
	}
}

func cloneSets[K comparable](in map[K]map[int64]bool) map[K]map[int64]bool {
	out := make(map[K]map[int64]bool, len(in))
	for k, v := range in {
		out[k] = maps.Clone(v)
	}
	return out
}

func (m *memStore) snapshot() *memStore {
	return &memStore{
		actors:      maps.Clone(m.actors),
		discussions: maps.Clone(m.discussions),
		comments:    maps.Clone(m.comments),
		polls:       maps.Clone(m.polls),
		answers:     maps.Clone(m.answers),
		voters:      cloneSets(m.voters),
		likes:       cloneSets(m.likes),
		likeCounts:  maps.Clone(m.likeCounts),
		states:      maps.Clone(m.states),
	}
}

func (m *memStore) restore(s *memStore) {
	m.actors = s.actors
	m.discussions = s.discussions
	m.comments = s.comments
	m.polls = s.polls
	m.answers = s.answers
	m.voters = s.voters
	m.likes = s.likes
	m.likeCounts = s.likeCounts
	m.states = s.states
}

func (m *memStore) withTransaction(ctx context.Context, fn func(context.Context) error) error {
	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	m.commits++
	return nil
}

func (m *memStore) GetActor(_ context.Context, ref domain.Ref) (*domain.Actor, error) {
	a, ok := m.actors[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) UpsertActors(_ context.Context, actors []domain.Actor) error {
	for _, a := range actors {
		m.actors[a.Ref] = a
	}
	return nil
}

func (m *memStore) GetDiscussion(_ context.Context, id int64) (*domain.Discussion, error) {
	d, ok := m.discussions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (m *memStore) UpsertDiscussion(_ context.Context, d *domain.Discussion) error {
	if _, ok := m.actors[d.Owner]; !ok {
		return fmt.Errorf("owner %s: foreign key violation", d.Owner)
	}
	m.discussions[d.ID] = *d
	m.upserts++
	return nil
}

func (m *memStore) SetCommentsCount(_ context.Context, id int64, count int) error {
	d, ok := m.discussions[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.CommentsCount = count
	m.discussions[id] = d
	return nil
}

func (m *memStore) GetComment(_ context.Context, id string) (*domain.Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) UpsertComment(_ context.Context, c *domain.Comment) error {
	if _, ok := m.discussions[c.DiscussionID]; !ok {
		return fmt.Errorf("discussion %d: foreign key violation", c.DiscussionID)
	}
	if c.ReplyToCommentID != nil {
		if _, ok := m.comments[*c.ReplyToCommentID]; !ok {
			return fmt.Errorf("reply target %s: foreign key violation", *c.ReplyToCommentID)
		}
	}
	m.comments[c.ID] = *c
	m.upserts++
	return nil
}

func (m *memStore) CountComments(_ context.Context, discussionID int64) (int, error) {
	n := 0
	for _, c := range m.comments {
		if c.DiscussionID == discussionID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetPoll(_ context.Context, id int64) (*domain.Poll, error) {
	p, ok := m.polls[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) DeleteStalePolls(_ context.Context, p *domain.Poll) (int64, error) {
	var removed int64
	for id, old := range m.polls {
		if id == p.ID || (old.Owner != p.Owner && old.DiscussionID != p.DiscussionID) {
			continue
		}
		delete(m.polls, id)
		for aid, a := range m.answers {
			if a.PollID == id {
				delete(m.answers, aid)
				delete(m.voters, aid)
			}
		}
		removed++
	}
	return removed, nil
}

func (m *memStore) UpsertPoll(_ context.Context, p *domain.Poll) error {
	stored := *p
	stored.Answers = nil
	m.polls[p.ID] = stored
	m.upserts++
	return nil
}

func (m *memStore) DeleteStaleAnswers(_ context.Context, pollID int64, keep []int64) (int64, error) {
	var removed int64
	for id, a := range m.answers {
		if a.PollID != pollID || slices.Contains(keep, id) {
			continue
		}
		delete(m.answers, id)
		delete(m.voters, id)
		removed++
	}
	return removed, nil
}

func (m *memStore) UpsertAnswer(_ context.Context, a *domain.Answer) error {
	if _, ok := m.polls[a.PollID]; !ok {
		return fmt.Errorf("poll %d: foreign key violation", a.PollID)
	}
	m.answers[a.ID] = *a
	return nil
}

func (m *memStore) SetAnswerVotes(_ context.Context, answerID int64, votes int, rate float64) error {
	a, ok := m.answers[answerID]
	if !ok {
		return domain.ErrNotFound
	}
	a.VotesCount = votes
	a.Rate = rate
	m.answers[answerID] = a
	return nil
}

func (m *memStore) ClearVoters(_ context.Context, answerID int64) error {
	delete(m.voters, answerID)
	return nil
}

func (m *memStore) AddVoters(_ context.Context, answerID int64, userIDs []int64) error {
	if m.voters[answerID] == nil {
		m.voters[answerID] = map[int64]bool{}
	}
	for _, id := range userIDs {
		m.voters[answerID][id] = true
	}
	return nil
}

func (m *memStore) ClearLikes(_ context.Context, target domain.LikeTarget) error {
	delete(m.likes, target)
	return nil
}

func (m *memStore) AddLikes(_ context.Context, target domain.LikeTarget, userIDs []int64) error {
	if m.likes[target] == nil {
		m.likes[target] = map[int64]bool{}
	}
	for _, id := range userIDs {
		m.likes[target][id] = true
	}
	return nil
}

func (m *memStore) SetLikesCount(_ context.Context, target domain.LikeTarget, count int) error {
	m.likeCounts[target] = count
	if target.Kind == domain.LikeTargetDiscussion {
		id, err := strconv.ParseInt(target.ID, 10, 64)
		if err != nil {
			return err
		}
		if d, ok := m.discussions[id]; ok {
			d.LikesCount = count
			m.discussions[id] = d
		}
	}
	return nil
}

func (m *memStore) Get(_ context.Context, owner domain.Ref) (*domain.SyncState, error) {
	st := m.states[owner]
	return &st, nil
}

func (m *memStore) Update(_ context.Context, state *domain.SyncState) error {
	m.states[domain.Ref{Kind: domain.Kind(state.OwnerKind), ID: state.OwnerID}] = *state
	return nil
}

func (m *memStore) commentIDs() []string {
	ids := make([]string, 0, len(m.comments))
	for id := range m.comments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeFetcher struct {
	known map[int64]domain.Actor
	calls int
	err   error
}

func (f *fakeFetcher) FetchActors(_ context.Context, ids []int64) ([]domain.Actor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Actor
	for _, id := range ids {
		if a, ok := f.known[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}
