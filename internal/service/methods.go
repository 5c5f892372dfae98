package service

// Remote methods and requested field sets.
const (
	methodDiscussionGet    = "discussions.get"
	methodDiscussionLikes  = "discussions.getDiscussionLikes"
	methodComments         = "discussions.getComments"
	methodCommentLikes     = "discussions.getCommentLikes"
	methodStream           = "stream.get"
	methodMediaTopicsByIDs = "mediatopic.getByIds"
	methodPollAnswerVoters = "polls.getPollAnswerVoters"

	discussionFields = "discussion.*,media_topic.*,group.*,user.*,theme.*,poll.*,group_photo.*"
	streamFields     = "feed.*,media_topic.*,group.*,user.*"
	mediaTopicFields = "media_topic.*,group.*,user.*,poll.*"
	pollFields       = "poll.*,media_topic.media,media_topic.media_poll_refs"
	mediaLimit       = "3"
)
