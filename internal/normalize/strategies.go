package normalize

var DiscussionStrategy = Strategy{
	Entity: "discussion",
	IDKey:  "id",
	Renames: []Rename{
		{To: "id", From: []string{"id", "object_id"}},
		{To: "type", From: []string{"object_type", "type"}},
		{To: "author_id", From: []string{"author_id", "owner_uid"}},
		{To: "likes_count", From: []string{"likes_count", "like_count", "like_summary.count"}},
		{To: "liked_it", From: []string{"liked_it", "like_summary.self"}},
		{To: "reshares_count", From: []string{"reshares_count", "reshare_summary.count"}},
		{To: "comments_count", From: []string{"comments_count", "total_comments_count", "discussion_summary.comments_count"}},
		{To: "votes_count", From: []string{"votes_count", "vote_summary.count"}},
		{To: "last_vote_date", From: []string{"last_vote_date", "vote_summary.last_vote_date_ms"}},
		{To: "date", From: []string{"date", "created_ms", "creation_date"}},
		{To: "last_activity_date", From: []string{"last_activity_date", "last_activity_date_ms"}},
		{To: "last_user_access_date", From: []string{"last_user_access_date", "last_user_access_date_ms"}},
	},
	Drop:      []string{"like_summary", "reshare_summary", "discussion_summary", "vote_summary"},
	RefKeys:   []string{"owner_ref", "author_ref"},
	TimeKeys:  []string{"date", "last_activity_date", "last_user_access_date", "last_vote_date"},
	TokenKeys: []string{"message", "title"},
}

var CommentStrategy = Strategy{
	Entity: "comment",
	IDKey:  "id",
	Renames: []Rename{
		{To: "likes_count", From: []string{"likes_count", "like_count", "like_summary.count"}},
		{To: "liked_it", From: []string{"liked_it", "like_summary.self"}},
		{To: "reply_to_author_id", From: []string{"reply_to_author_id", "reply_to_id"}},
		{To: "date", From: []string{"date", "created_ms"}},
	},
	Drop:     []string{"like_summary", "author_name"},
	RefKeys:  []string{"author_ref"},
	TimeKeys: []string{"date"},
}

var PollStrategy = Strategy{
	Entity: "poll",
	IDKey:  "id",
	Renames: []Rename{
		{To: "votes_count", From: []string{"votes_count", "vote_summary.count"}},
		{To: "last_vote", From: []string{"last_vote", "vote_summary.last_vote_date_ms"}},
	},
	Drop:     []string{"vote_summary"},
	RefKeys:  []string{"owner_ref", "author_ref"},
	TimeKeys: []string{"last_vote"},
}

var AnswerStrategy = Strategy{
	Entity: "answer",
	IDKey:  "id",
	Renames: []Rename{
		{To: "votes_count", From: []string{"votes_count", "vote_summary.count"}},
		{To: "last_vote", From: []string{"last_vote", "vote_summary.last_vote_date_ms"}},
		{To: "voted", From: []string{"voted", "vote_summary.self"}},
	},
	Drop:     []string{"vote_summary"},
	TimeKeys: []string{"last_vote"},
}

var UserStrategy = Strategy{
	Entity: "user",
	IDKey:  "id",
	Renames: []Rename{
		{To: "id", From: []string{"uid", "id"}},
		{To: "photo_url", From: []string{"pic_1", "pic50x50", "pic_base"}},
	},
}

var GroupStrategy = Strategy{
	Entity: "group",
	IDKey:  "id",
	Renames: []Rename{
		{To: "id", From: []string{"uid", "id", "group_id"}},
		{To: "photo_url", From: []string{"picAvatar", "pic_avatar", "pic50x50"}},
	},
}
