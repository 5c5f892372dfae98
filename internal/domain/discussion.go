package domain

import (
	"encoding/json"
	"time"
)

type DiscussionType string

const (
	DiscussionGroupTopic     DiscussionType = "GROUP_TOPIC"
	DiscussionGroupPhoto     DiscussionType = "GROUP_PHOTO"
	DiscussionUserStatus     DiscussionType = "USER_STATUS"
	DiscussionUserPhoto      DiscussionType = "USER_PHOTO"
	DiscussionUserForum      DiscussionType = "USER_FORUM"
	DiscussionUserAlbum      DiscussionType = "USER_ALBUM"
	DiscussionUser2LvlForum  DiscussionType = "USER_2LVL_FORUM"
	DiscussionMovie          DiscussionType = "MOVIE"
	DiscussionSchoolForum    DiscussionType = "SCHOOL_FORUM"
	DiscussionHappeningTopic DiscussionType = "HAPPENING_TOPIC"
	DiscussionGroupMovie     DiscussionType = "GROUP_MOVIE"
	DiscussionCityNews       DiscussionType = "CITY_NEWS"
	DiscussionChat           DiscussionType = "CHAT"

	DefaultDiscussionType = DiscussionGroupTopic
)

var DiscussionTypes = []DiscussionType{
	DiscussionGroupTopic,
	DiscussionGroupPhoto,
	DiscussionUserStatus,
	DiscussionUserPhoto,
	DiscussionUserForum,
	DiscussionUserAlbum,
	DiscussionUser2LvlForum,
	DiscussionMovie,
	DiscussionSchoolForum,
	DiscussionHappeningTopic,
	DiscussionGroupMovie,
	DiscussionCityNews,
	DiscussionChat,
}

// ParseDiscussionType validates s against the supported discussion kinds.
func ParseDiscussionType(s string) (DiscussionType, error) {
	for _, t := range DiscussionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "type", Value: s}
}

type Discussion struct {
	ID                 int64
	Type               DiscussionType
	Owner              Ref
	Author             Ref
	Title              string
	Message            string
	Date               time.Time
	LastActivityDate   *time.Time
	LastUserAccessDate *time.Time
	NewCommentsCount   int
	CommentsCount      int
	LikesCount         int
	ResharesCount      int
	VotesCount         int
	LastVoteDate       *time.Time
	Question           string
	LikedIt            bool
	Entities           json.RawMessage
	RefObjects         json.RawMessage
	Attrs              json.RawMessage
}

const CommentTypeActiveMessage = "ACTIVE_MESSAGE"

type Comment struct {
	ID               string
	DiscussionID     int64
	Owner            Ref
	Author           Ref
	ReplyToCommentID *string
	ReplyToAuthor    *Ref
	Type             string
	Text             string
	Date             time.Time
	LikesCount       int
	LikedIt          bool
	Attrs            json.RawMessage
}

type Poll struct {
	ID           int64
	DiscussionID int64
	Owner        Ref
	Question     string
	VotesCount   int
	LastVote     *time.Time
	AnswerID     *int64
	Answers      []Answer
}

type Answer struct {
	ID         int64
	PollID     int64
	Text       string
	VotesCount int
	LastVote   *time.Time
	Rate       float64
}

// AnswerRate is the share of poll votes cast for an answer, in percent.
func AnswerRate(answerVotes, pollVotes int) float64 {
	if pollVotes == 0 {
		return 0
	}
	return float64(answerVotes) / float64(pollVotes) * 100
}

// LikeTargetKind names the entity a like relation hangs off.
type LikeTargetKind string

const (
	LikeTargetDiscussion LikeTargetKind = "discussion"
	LikeTargetComment    LikeTargetKind = "comment"
)

type LikeTarget struct {
	Kind LikeTargetKind
	ID   string
}
