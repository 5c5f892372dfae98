package normalize

import (
	"strings"

	"discussion_syncer/internal/domain"
)

// Comment normalizes one comment of discussionID. The author kind comes
// from author_type and defaults to user, as does the reply-to author kind.
func Comment(raw map[string]any, discussionID int64) (domain.Comment, error) {
	authorType := toString(raw["author_type"])

	f, err := CommentStrategy.Apply(raw)
	if err != nil {
		return domain.Comment{}, err
	}

	c := domain.Comment{
		ID:           f.String("id"),
		DiscussionID: discussionID,
		Author:       f.Ref("author_ref"),
		Type:         f.String("type"),
		Text:         f.String("text"),
		LikesCount:   f.Int("likes_count"),
		LikedIt:      f.Bool("liked_it"),
	}
	if t := f.Time("date"); t != nil {
		c.Date = *t
	}
	if c.Type == "" {
		c.Type = domain.CommentTypeActiveMessage
	}

	if c.Author.IsZero() {
		if id, ok := f.Int64("author_id"); ok {
			kind := domain.KindUser
			if strings.EqualFold(authorType, "GROUP") {
				kind = domain.KindGroup
			}
			c.Author = domain.Ref{Kind: kind, ID: id}
		}
	}
	if id, ok := f.Int64("reply_to_author_id"); ok && id > 0 {
		c.ReplyToAuthor = &domain.Ref{Kind: domain.KindUser, ID: id}
	}
	if id := f.String("reply_to_comment_id"); id != "" {
		c.ReplyToCommentID = &id
	}
	if c.Attrs, err = f.Raw("attrs"); err != nil {
		return domain.Comment{}, &domain.MalformedPayloadError{Entity: "comment", Key: "attrs", Reason: err.Error()}
	}

	return c, nil
}

// Comments normalizes a discussions.getComments page together with the
// user and group snapshots batched next to it.
func Comments(resp map[string]any, discussionID int64) ([]domain.Comment, []domain.Actor, error) {
	hints, err := Actors(toMap(resp["entities"]))
	if err != nil {
		return nil, nil, err
	}

	raws := toMaps(resp["comments"])
	comments := make([]domain.Comment, 0, len(raws))
	for _, raw := range raws {
		c, err := Comment(raw, discussionID)
		if err != nil {
			return nil, nil, err
		}
		comments = append(comments, c)
	}
	return comments, hints, nil
}
