package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"discussion_syncer/internal/config"
	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/resolve"
	"discussion_syncer/internal/service/mocks"
)

var (
	club = domain.Actor{Ref: domain.Ref{Kind: domain.KindGroup, ID: 7}, Name: "Club"}
	ann  = domain.Actor{Ref: domain.Ref{Kind: domain.KindUser, ID: 55}, Name: "Ann Lee"}
)

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller
	ctx  context.Context

	api       *mocks.MockCaller
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	store  *memStore
	users  *fakeFetcher
	groups *fakeFetcher

	service *SyncService
	cfg     config.SyncConfig
	logger  *slog.Logger
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ctx = context.Background()

	s.api = mocks.NewMockCaller(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.store = newMemStore()
	s.users = &fakeFetcher{known: map[int64]domain.Actor{}}
	s.groups = &fakeFetcher{known: map[int64]domain.Actor{}}

	s.cfg = config.SyncConfig{
		PageSize:        100,
		VotersPageSize:  100,
		MaxPagesPerSync: 10,
		Concurrency:     1,
		Owners:          []config.OwnerConfig{{Kind: "group", ID: 7}},
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(s.store.withTransaction).AnyTimes()

	s.service = s.newService(s.publisher)
}

func (s *SyncServiceTestSuite) newService(publisher Publisher) *SyncService {
	resolver := resolve.New(s.store, resolve.Registry{
		domain.KindUser:  s.users,
		domain.KindGroup: s.groups,
	}, s.logger)

	return NewSyncService(s.api, s.store.stores(), resolver, s.txManager, publisher, s.logger, s.cfg)
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) seedDiscussion() *domain.Discussion {
	s.store.actors[club.Ref] = club
	s.store.actors[ann.Ref] = ann
	d := domain.Discussion{ID: 100, Type: domain.DiscussionGroupTopic, Owner: club.Ref, Author: club.Ref}
	s.store.discussions[d.ID] = d
	return &d
}

func discussionPayload() map[string]any {
	return map[string]any{
		"discussion": map[string]any{
			"object_id":   "100",
			"object_type": "GROUP_TOPIC",
			"owner_uid":   "55",
		},
		"entities": map[string]any{
			"media_topics": []any{map[string]any{
				"id":        "100",
				"owner_ref": "group:7",
				"media":     []any{map[string]any{"type": "text", "text": "Poll inside"}},
			}},
			"polls": []any{map[string]any{
				"id":           "900",
				"question":     "Yes or no?",
				"vote_summary": map[string]any{"count": 10},
				"answers": []any{
					map[string]any{"id": "1", "text": "yes", "vote_summary": map[string]any{"count": 7}},
					map[string]any{"id": "2", "text": "no", "vote_summary": map[string]any{"count": 3}},
				},
			}},
			"groups": []any{map[string]any{"uid": "7", "name": "Club"}},
			"users":  []any{map[string]any{"uid": "55", "first_name": "Ann", "last_name": "Lee"}},
		},
	}
}

func userItems(from, n int) []any {
	items := make([]any, 0, n)
	for i := from; i < from+n; i++ {
		items = append(items, map[string]any{"uid": strconv.Itoa(i)})
	}
	return items
}

func (s *SyncServiceTestSuite) TestFetchDiscussion_InvalidType() {
	_, err := s.service.FetchDiscussion(s.ctx, 100, "BLOG_POST")

	var validation *domain.ValidationError
	s.Require().True(errors.As(err, &validation))
	s.Equal("BLOG_POST", validation.Value)
	s.Empty(s.store.discussions)
}

func (s *SyncServiceTestSuite) TestFetchDiscussion_Idempotent() {
	params := map[string]string{
		"discussionId":   "100",
		"discussionType": "GROUP_TOPIC",
		"fields":         discussionFields,
	}
	s.api.EXPECT().Call(gomock.Any(), methodDiscussionGet, params).Return(discussionPayload(), nil)
	s.api.EXPECT().Call(gomock.Any(), methodDiscussionGet, params).Return(discussionPayload(), nil)

	gomock.InOrder(
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil),
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), false).Return(nil),
	)

	first, err := s.service.FetchDiscussion(s.ctx, 100, "GROUP_TOPIC")
	s.Require().NoError(err)
	afterFirst := s.store.snapshot()

	second, err := s.service.FetchDiscussion(s.ctx, 100, "GROUP_TOPIC")
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(afterFirst.discussions, s.store.discussions)
	s.Equal(afterFirst.polls, s.store.polls)
	s.Equal(afterFirst.answers, s.store.answers)
	s.Equal(afterFirst.actors, s.store.actors)

	d := s.store.discussions[100]
	s.Equal(club.Ref, d.Owner)
	s.Equal(ann.Ref, d.Author)
	s.Equal("Poll inside", d.Title)

	s.Len(s.store.polls, 1)
	s.Equal(club.Ref, s.store.polls[900].Owner)
	s.Len(s.store.answers, 2)
	s.InDelta(70.0, s.store.answers[1].Rate, 0.001)
	s.Zero(s.users.calls + s.groups.calls)
}

func (s *SyncServiceTestSuite) TestFetchDiscussion_UnresolvableOwnerRollsBack() {
	s.api.EXPECT().Call(gomock.Any(), methodDiscussionGet, gomock.Any()).Return(map[string]any{
		"discussion": map[string]any{"object_id": "5", "owner_ref": "group:9"},
		"entities": map[string]any{
			"users": []any{map[string]any{"uid": "1", "name": "Bob"}},
		},
	}, nil)

	_, err := s.service.FetchDiscussion(s.ctx, 5, "GROUP_TOPIC")

	var missing *domain.MissingReferenceError
	s.Require().True(errors.As(err, &missing))
	s.Equal(domain.Ref{Kind: domain.KindGroup, ID: 9}, missing.Ref)
	s.Equal(1, s.groups.calls)
	s.Empty(s.store.discussions)
	s.Empty(s.store.actors)
}

func (s *SyncServiceTestSuite) TestFetchDiscussion_MissingOwner() {
	s.api.EXPECT().Call(gomock.Any(), methodDiscussionGet, gomock.Any()).Return(map[string]any{
		"discussion": map[string]any{"object_id": "5"},
	}, nil)

	_, err := s.service.FetchDiscussion(s.ctx, 5, "GROUP_TOPIC")

	var missing *domain.MissingReferenceError
	s.Require().True(errors.As(err, &missing))
	s.Empty(s.store.discussions)
}

func (s *SyncServiceTestSuite) TestFetchDiscussion_UnresolvableAuthorLeftUnset() {
	s.groups.known[7] = club
	s.api.EXPECT().Call(gomock.Any(), methodDiscussionGet, gomock.Any()).Return(map[string]any{
		"discussion": map[string]any{"object_id": "5", "owner_ref": "group:7", "author_ref": "user:77"},
	}, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)

	d, err := s.service.FetchDiscussion(s.ctx, 5, "GROUP_TOPIC")
	s.Require().NoError(err)

	s.True(d.Author.IsZero())
	s.Equal(club.Ref, s.store.discussions[5].Owner)
	s.True(s.store.discussions[5].Author.IsZero())
	s.Equal(1, s.users.calls)
}

func (s *SyncServiceTestSuite) TestFetchDiscussion_AuthorDefaultsToOwner() {
	s.store.actors[club.Ref] = club
	s.api.EXPECT().Call(gomock.Any(), methodDiscussionGet, gomock.Any()).Return(map[string]any{
		"discussion": map[string]any{"object_id": "5", "owner_ref": "group:7"},
	}, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)

	d, err := s.service.FetchDiscussion(s.ctx, 5, "GROUP_TOPIC")
	s.Require().NoError(err)

	s.Equal(club.Ref, d.Author)
	s.Equal(club.Ref, s.store.discussions[5].Author)
}

func (s *SyncServiceTestSuite) TestFetchDiscussion_TransportErrorSavesNothing() {
	s.api.EXPECT().Call(gomock.Any(), methodDiscussionGet, gomock.Any()).
		Return(nil, &domain.TransportError{Method: methodDiscussionGet, Code: 500, Err: errors.New("boom")})

	_, err := s.service.FetchDiscussion(s.ctx, 5, "GROUP_TOPIC")

	var transport *domain.TransportError
	s.True(errors.As(err, &transport))
	s.Empty(s.store.discussions)
}

func (s *SyncServiceTestSuite) TestFetchComments_OldestFirstAndDanglingReply() {
	d := s.seedDiscussion()
	base := map[string]string{
		"discussionId":   "100",
		"discussionType": "GROUP_TOPIC",
		"count":          "100",
	}
	withAnchor := map[string]string{
		"discussionId":   "100",
		"discussionType": "GROUP_TOPIC",
		"count":          "100",
		"anchor":         "a1",
	}

	gomock.InOrder(
		s.api.EXPECT().Call(gomock.Any(), methodComments, base).Return(map[string]any{
			"comments": []any{
				map[string]any{"id": "c3", "author_id": "55", "date": "2014-01-03 00:00:00", "reply_to_comment_id": "c2"},
				map[string]any{"id": "c2", "author_id": "55", "date": "2014-01-02 00:00:00", "reply_to_comment_id": "gone"},
			},
			"anchor":   "a1",
			"has_more": true,
		}, nil),
		s.api.EXPECT().Call(gomock.Any(), methodComments, withAnchor).Return(map[string]any{
			"comments": []any{
				map[string]any{"id": "c1", "author_id": "56", "date": "2014-01-01 00:00:00"},
			},
			"entities": map[string]any{
				"users": []any{map[string]any{"uid": "56", "name": "Kim"}},
			},
			"has_more": false,
		}, nil),
	)

	comments, err := s.service.FetchComments(s.ctx, d)
	s.Require().NoError(err)

	s.Require().Len(comments, 3)
	s.Equal([]string{"c1", "c2", "c3"}, []string{comments[0].ID, comments[1].ID, comments[2].ID})
	s.Equal([]string{"c1", "c2", "c3"}, s.store.commentIDs())

	s.Nil(s.store.comments["c2"].ReplyToCommentID)
	s.Require().NotNil(s.store.comments["c3"].ReplyToCommentID)
	s.Equal("c2", *s.store.comments["c3"].ReplyToCommentID)

	s.Equal(club.Ref, s.store.comments["c1"].Owner)
	s.Equal(domain.Ref{Kind: domain.KindUser, ID: 56}, s.store.comments["c1"].Author)
	s.Equal(3, s.store.discussions[100].CommentsCount)
	s.Equal(3, d.CommentsCount)
}

func (s *SyncServiceTestSuite) TestFetchComments_CountIncludesEarlierComments() {
	d := s.seedDiscussion()
	s.store.comments["old"] = domain.Comment{ID: "old", DiscussionID: 100, Owner: club.Ref}

	s.api.EXPECT().Call(gomock.Any(), methodComments, gomock.Any()).Return(map[string]any{
		"comments": []any{map[string]any{"id": "new", "author_id": "7", "author_type": "GROUP"}},
	}, nil)

	_, err := s.service.FetchComments(s.ctx, d)
	s.Require().NoError(err)

	s.Equal(club.Ref, s.store.comments["new"].Author)
	s.Equal(2, s.store.discussions[100].CommentsCount)
}

func (s *SyncServiceTestSuite) TestFetchPollVoters_CounterFromFirstPageTotal() {
	s.seedDiscussion()
	s.store.polls[900] = domain.Poll{ID: 900, DiscussionID: 100, Owner: club.Ref, VotesCount: 474}
	s.store.answers[1] = domain.Answer{ID: 1, PollID: 900}
	s.store.voters[1] = map[int64]bool{999: true}

	voterParams := func(offset int) map[string]string {
		return map[string]string{
			"poll_id":   "900",
			"answer_id": "1",
			"offset":    strconv.Itoa(offset),
			"count":     "100",
		}
	}
	gomock.InOrder(
		s.api.EXPECT().Call(gomock.Any(), methodPollAnswerVoters, voterParams(0)).Return(map[string]any{
			"users": map[string]any{"count": 237, "items": userItems(1, 100)},
		}, nil),
		s.api.EXPECT().Call(gomock.Any(), methodPollAnswerVoters, voterParams(100)).Return(map[string]any{
			"users": map[string]any{"items": userItems(101, 100)},
		}, nil),
		s.api.EXPECT().Call(gomock.Any(), methodPollAnswerVoters, voterParams(200)).Return(map[string]any{
			"users": map[string]any{"items": userItems(201, 37)},
		}, nil),
	)

	answer := s.store.answers[1]
	voters, err := s.service.FetchPollVoters(s.ctx, &answer)
	s.Require().NoError(err)

	s.Len(voters, 237)
	s.Len(s.store.voters[1], 237)
	s.False(s.store.voters[1][999])
	s.Equal(237, s.store.answers[1].VotesCount)
	s.InDelta(50.0, s.store.answers[1].Rate, 0.001)
	s.Equal(237, answer.VotesCount)
}

func (s *SyncServiceTestSuite) TestFetchPollVoters_InterruptedPageKeepsCounter() {
	s.seedDiscussion()
	s.store.polls[900] = domain.Poll{ID: 900, DiscussionID: 100, Owner: club.Ref, VotesCount: 237}
	s.store.answers[1] = domain.Answer{ID: 1, PollID: 900, VotesCount: 12}

	gomock.InOrder(
		s.api.EXPECT().Call(gomock.Any(), methodPollAnswerVoters, gomock.Any()).Return(map[string]any{
			"users": map[string]any{"count": 237, "items": userItems(1, 100)},
		}, nil),
		s.api.EXPECT().Call(gomock.Any(), methodPollAnswerVoters, gomock.Any()).Return(map[string]any{
			"users": map[string]any{"items": userItems(101, 100)},
		}, nil),
		s.api.EXPECT().Call(gomock.Any(), methodPollAnswerVoters, gomock.Any()).
			Return(nil, &domain.TransportError{Method: methodPollAnswerVoters, Err: context.DeadlineExceeded}),
	)

	answer := s.store.answers[1]
	_, err := s.service.FetchPollVoters(s.ctx, &answer)

	var transport *domain.TransportError
	s.Require().True(errors.As(err, &transport))
	s.Equal(237, s.store.answers[1].VotesCount)
	s.InDelta(100.0, s.store.answers[1].Rate, 0.001)
	s.Len(s.store.voters[1], 200)
}

func (s *SyncServiceTestSuite) TestFetchDiscussionLikes_CounterFromUnionWithoutTotal() {
	d := s.seedDiscussion()
	target := domain.LikeTarget{Kind: domain.LikeTargetDiscussion, ID: "100"}
	s.store.likes[target] = map[int64]bool{999: true}

	gomock.InOrder(
		s.api.EXPECT().Call(gomock.Any(), methodDiscussionLikes, map[string]string{
			"discussionId":   "100",
			"discussionType": "GROUP_TOPIC",
			"count":          "100",
		}).Return(map[string]any{
			"users":    userItems(1, 3),
			"anchor":   "l1",
			"has_more": true,
		}, nil),
		s.api.EXPECT().Call(gomock.Any(), methodDiscussionLikes, map[string]string{
			"discussionId":   "100",
			"discussionType": "GROUP_TOPIC",
			"count":          "100",
			"anchor":         "l1",
		}).Return(map[string]any{
			"users":    userItems(3, 2),
			"has_more": false,
		}, nil),
	)

	likers, err := s.service.FetchDiscussionLikes(s.ctx, d)
	s.Require().NoError(err)

	s.Len(likers, 4)
	s.Len(s.store.likes[target], 4)
	s.False(s.store.likes[target][999])
	s.Equal(4, s.store.likeCounts[target])
	s.Equal(4, s.store.discussions[100].LikesCount)
	s.Equal(4, d.LikesCount)
}

func (s *SyncServiceTestSuite) TestFetchCommentLikes() {
	s.seedDiscussion()
	c := domain.Comment{ID: "c1", DiscussionID: 100, Owner: club.Ref}
	s.store.comments[c.ID] = c

	s.api.EXPECT().Call(gomock.Any(), methodCommentLikes, map[string]string{
		"discussionId":   "100",
		"discussionType": "GROUP_TOPIC",
		"comment_id":     "c1",
		"count":          "100",
	}).Return(map[string]any{
		"users":       userItems(1, 2),
		"total_count": 40,
	}, nil)

	likers, err := s.service.FetchCommentLikes(s.ctx, &c)
	s.Require().NoError(err)

	target := domain.LikeTarget{Kind: domain.LikeTargetComment, ID: "c1"}
	s.Len(likers, 2)
	s.Equal(40, s.store.likeCounts[target])
	s.Equal(40, c.LikesCount)
}

func (s *SyncServiceTestSuite) TestFetchPoll_SupersedesStalePoll() {
	d := s.seedDiscussion()
	s.store.polls[800] = domain.Poll{ID: 800, DiscussionID: 50, Owner: club.Ref}
	s.store.answers[80] = domain.Answer{ID: 80, PollID: 800}

	s.api.EXPECT().Call(gomock.Any(), methodMediaTopicsByIDs, map[string]string{
		"topic_ids":   "100",
		"media_limit": mediaLimit,
		"fields":      pollFields,
	}).Return(map[string]any{
		"media_topics": []any{map[string]any{
			"id":        "100",
			"owner_ref": "group:7",
			"media":     []any{map[string]any{"type": "poll", "poll_refs": []any{"poll:900"}}},
		}},
		"entities": map[string]any{
			"polls": []any{map[string]any{
				"id":           "900",
				"question":     "Q",
				"vote_summary": map[string]any{"count": 4},
				"answers":      []any{map[string]any{"id": "3", "vote_summary": map[string]any{"count": 1}}},
			}},
		},
	}, nil)

	poll, err := s.service.FetchPoll(s.ctx, d)
	s.Require().NoError(err)

	s.Equal(int64(900), poll.ID)
	s.Len(s.store.polls, 1)
	s.Contains(s.store.polls, int64(900))
	s.NotContains(s.store.answers, int64(80))
	s.InDelta(25.0, s.store.answers[3].Rate, 0.001)
}

func (s *SyncServiceTestSuite) TestFetchPoll_NoPoll() {
	d := s.seedDiscussion()
	s.api.EXPECT().Call(gomock.Any(), methodMediaTopicsByIDs, gomock.Any()).Return(map[string]any{
		"media_topics": []any{map[string]any{"id": "100", "owner_ref": "group:7"}},
	}, nil)

	_, err := s.service.FetchPoll(s.ctx, d)

	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *SyncServiceTestSuite) TestFetchMediaTopics() {
	s.api.EXPECT().Call(gomock.Any(), methodMediaTopicsByIDs, map[string]string{
		"topic_ids":   "1,2",
		"media_limit": mediaLimit,
		"fields":      mediaTopicFields,
	}).Return(map[string]any{
		"media_topics": []any{
			map[string]any{"id": "1", "owner_ref": "group:7"},
			map[string]any{"id": "2", "owner_ref": "group:7", "author_ref": "user:55"},
		},
		"entities": map[string]any{
			"groups": []any{map[string]any{"uid": "7", "name": "Club"}},
			"users":  []any{map[string]any{"uid": "55", "name": "Ann Lee"}},
		},
	}, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil).Times(2)

	topics, err := s.service.FetchMediaTopics(s.ctx, []int64{1, 2})
	s.Require().NoError(err)

	s.Len(topics, 2)
	s.Equal(domain.DefaultDiscussionType, s.store.discussions[1].Type)
	s.Equal(club.Ref, s.store.discussions[1].Author)
	s.Equal(ann.Ref, s.store.discussions[2].Author)
}

func (s *SyncServiceTestSuite) TestSync_Stats() {
	s.store.actors[club.Ref] = club
	s.store.discussions[11] = domain.Discussion{ID: 11, Owner: club.Ref}

	s.api.EXPECT().Call(gomock.Any(), methodStream, map[string]string{
		"gid":      "7",
		"patterns": "POST",
		"count":    "100",
		"fields":   streamFields,
	}).Return(map[string]any{
		"feeds": []any{
			map[string]any{"pattern": "POST", "message": "{media_topic:11}"},
			map[string]any{"pattern": "POST", "message": "{media_topic:12}"},
			map[string]any{"pattern": "POST", "message": "{media_topic:12}"},
		},
	}, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), false).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(errors.New("broker down"))

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)

	s.Equal(1, stats.Owners)
	s.Equal(2, stats.Discussions)
	s.Equal(1, stats.New)
	s.Equal(1, stats.Updated)
	s.Equal(1, stats.Published)
	s.Zero(stats.Errors)

	state := s.store.states[club.Ref]
	s.Equal(int64(2), state.TotalSynced)
	s.WithinDuration(time.Now(), state.LastSyncedAt, time.Minute)
}

func (s *SyncServiceTestSuite) TestSync_OwnerFailureCounted() {
	s.cfg.FetchComments = true
	service := s.newService(nil)

	s.api.EXPECT().Call(gomock.Any(), methodStream, gomock.Any()).
		Return(nil, &domain.TransportError{Method: methodStream, Code: 100, Err: errors.New("PARAM")})

	stats, err := service.Sync(s.ctx)
	s.Require().NoError(err)

	s.Equal(1, stats.Errors)
	s.Zero(stats.Discussions)
	s.Empty(s.store.states)
}

func (s *SyncServiceTestSuite) TestSync_FetchesCommentsWithoutPublisher() {
	s.cfg.FetchComments = true
	service := s.newService(nil)
	s.store.actors[club.Ref] = club

	s.api.EXPECT().Call(gomock.Any(), methodStream, gomock.Any()).Return(map[string]any{
		"feeds": []any{map[string]any{"pattern": "POST", "message": "{media_topic:11}"}},
	}, nil)
	s.api.EXPECT().Call(gomock.Any(), methodComments, gomock.Any()).Return(map[string]any{
		"comments": []any{map[string]any{"id": "x1", "author_id": "7", "author_type": "GROUP"}},
	}, nil)

	stats, err := service.Sync(s.ctx)
	s.Require().NoError(err)

	s.Equal(1, stats.New)
	s.Equal(1, stats.Comments)
	s.Zero(stats.Published)
	s.Equal(1, s.store.discussions[11].CommentsCount)
}

func (s *SyncServiceTestSuite) TestFetchDiscussion_UnknownTypeFallsBackToRequested() {
	payload := discussionPayload()
	payload["discussion"].(map[string]any)["object_type"] = "HOLOGRAM"

	s.api.EXPECT().Call(gomock.Any(), methodDiscussionGet, gomock.Any()).Return(payload, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)

	d, err := s.service.FetchDiscussion(s.ctx, 100, "USER_STATUS")
	s.Require().NoError(err)

	s.Equal(domain.DiscussionUserStatus, d.Type)
	s.Equal(domain.DiscussionUserStatus, s.store.discussions[100].Type)
}

func (s *SyncServiceTestSuite) TestFetchComments_MalformedPageAbortsBatch() {
	d := s.seedDiscussion()
	d.CommentsCount = 5
	s.store.discussions[100] = *d

	gomock.InOrder(
		s.api.EXPECT().Call(gomock.Any(), methodComments, gomock.Any()).Return(map[string]any{
			"comments": []any{map[string]any{"id": "c1", "author_id": "55"}},
			"anchor":   "a1",
			"has_more": true,
		}, nil),
		s.api.EXPECT().Call(gomock.Any(), methodComments, gomock.Any()).Return(map[string]any{
			"comments": []any{map[string]any{"author_id": "55", "text": "no id"}},
			"has_more": false,
		}, nil),
	)

	_, err := s.service.FetchComments(s.ctx, d)

	var malformed *domain.MalformedPayloadError
	s.Require().True(errors.As(err, &malformed))
	s.Equal("comment", malformed.Entity)
	s.Empty(s.store.comments)
	s.Equal(5, s.store.discussions[100].CommentsCount)
	s.Equal(5, d.CommentsCount)
}

func (s *SyncServiceTestSuite) TestFetchDiscussionLikes_StopsWhenUsersMissing() {
	d := s.seedDiscussion()
	target := domain.LikeTarget{Kind: domain.LikeTargetDiscussion, ID: "100"}

	gomock.InOrder(
		s.api.EXPECT().Call(gomock.Any(), methodDiscussionLikes, gomock.Any()).Return(map[string]any{
			"users":  userItems(1, 1),
			"anchor": "a1",
		}, nil),
		s.api.EXPECT().Call(gomock.Any(), methodDiscussionLikes, gomock.Any()).Return(map[string]any{
			"anchor": "a2",
		}, nil),
	)

	likers, err := s.service.FetchDiscussionLikes(s.ctx, d)
	s.Require().NoError(err)

	s.Equal([]domain.Ref{{Kind: domain.KindUser, ID: 1}}, likers)
	s.Equal(1, s.store.likeCounts[target])
}

func (s *SyncServiceTestSuite) TestFetchPoll_DropsAnswersGoneRemotely() {
	d := s.seedDiscussion()
	s.store.polls[900] = domain.Poll{ID: 900, DiscussionID: 100, Owner: club.Ref}
	s.store.answers[3] = domain.Answer{ID: 3, PollID: 900}
	s.store.answers[4] = domain.Answer{ID: 4, PollID: 900}
	s.store.voters[4] = map[int64]bool{55: true}

	s.api.EXPECT().Call(gomock.Any(), methodMediaTopicsByIDs, gomock.Any()).Return(map[string]any{
		"media_topics": []any{map[string]any{
			"id":        "100",
			"owner_ref": "group:7",
			"media":     []any{map[string]any{"type": "poll", "poll_refs": []any{"poll:900"}}},
		}},
		"entities": map[string]any{
			"polls": []any{map[string]any{
				"id":           "900",
				"question":     "Q",
				"vote_summary": map[string]any{"count": 2},
				"answers":      []any{map[string]any{"id": "3", "vote_summary": map[string]any{"count": 2}}},
			}},
		},
	}, nil)

	_, err := s.service.FetchPoll(s.ctx, d)
	s.Require().NoError(err)

	s.Contains(s.store.answers, int64(3))
	s.NotContains(s.store.answers, int64(4))
	s.NotContains(s.store.voters, int64(4))
	s.InDelta(100.0, s.store.answers[3].Rate, 0.001)
}

func (s *SyncServiceTestSuite) TestSync_CanceledRunStillTimed() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	s.api.EXPECT().Call(gomock.Any(), methodStream, gomock.Any()).
		Return(nil, &domain.TransportError{Method: methodStream, Err: context.Canceled}).AnyTimes()

	stats, err := s.service.Sync(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Require().NotNil(stats)
	s.Positive(stats.Duration)
}
