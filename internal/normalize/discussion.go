package normalize

import (
	"strings"

	"discussion_syncer/internal/domain"
)

// DiscussionRecord is a normalized discussion whose Owner and Author are
// still unresolved references. A zero Author means the payload named none;
// an Author without Kind carries only an id.
type DiscussionRecord struct {
	Discussion domain.Discussion
	Hints      []domain.Actor
	Poll       *domain.Poll
	// UnknownType holds a payload type outside the supported set. The
	// discussion's Type is left empty so the caller's default applies.
	UnknownType string
}

// Discussion normalizes a discussions.get response, a media topic or a feed item.
func Discussion(raw map[string]any) (DiscussionRecord, error) {
	rec := clone(raw)

	if inner := toMap(rec["discussion"]); inner != nil {
		delete(rec, "discussion")
		for k, v := range inner {
			rec[k] = v
		}
	}

	entities := clone(toMap(rec["entities"]))
	if topics := toMaps(entities["media_topics"]); len(topics) == 1 {
		delete(entities, "media_topics")
		for k, v := range topics[0] {
			if k == "entities" {
				fillMissing(entities, toMap(v))
				continue
			}
			rec[k] = v
		}
	}

	var rawPoll map[string]any
	if polls := toMaps(entities["polls"]); len(polls) == 1 {
		delete(entities, "polls")
		rawPoll = polls[0]
		for k, v := range rawPoll {
			if _, ok := rec[k]; ok || k == "id" || k == "answers" {
				continue
			}
			rec[k] = v
		}
	}
	delete(rec, "entities")
	delete(rec, "answers")

	if media := toMaps(rec["media"]); len(media) > 0 {
		if text := toString(media[0]["text"]); text != "" {
			rec["title"] = text
		}
	}
	delete(rec, "media")

	if _, ok := rec["owner_ref"]; !ok {
		if owner, ok := ownerFromRefObjects(rec["ref_objects"]); ok {
			rec["owner_ref"] = owner
		}
	}

	f, err := DiscussionStrategy.Apply(rec)
	if err != nil {
		return DiscussionRecord{}, err
	}

	id, ok := f.Int64("id")
	if !ok {
		return DiscussionRecord{}, &domain.MalformedPayloadError{Entity: "discussion", Key: "id", Reason: "not an integer"}
	}

	d := domain.Discussion{
		ID:                 id,
		Owner:              f.Ref("owner_ref"),
		Author:             f.Ref("author_ref"),
		Title:              f.String("title"),
		Message:            f.String("message"),
		LastActivityDate:   f.Time("last_activity_date"),
		LastUserAccessDate: f.Time("last_user_access_date"),
		NewCommentsCount:   f.Int("new_comments_count"),
		CommentsCount:      f.Int("comments_count"),
		LikesCount:         f.Int("likes_count"),
		ResharesCount:      f.Int("reshares_count"),
		VotesCount:         f.Int("votes_count"),
		LastVoteDate:       f.Time("last_vote_date"),
		Question:           f.String("question"),
		LikedIt:            f.Bool("liked_it"),
	}
	if t := f.Time("date"); t != nil {
		d.Date = *t
	}
	var unknownType string
	if raw := strings.ToUpper(f.String("type")); raw != "" {
		if typ, err := domain.ParseDiscussionType(raw); err == nil {
			d.Type = typ
		} else {
			unknownType = raw
		}
	}
	if d.Author.IsZero() {
		if authorID, ok := f.Int64("author_id"); ok {
			d.Author = domain.Ref{ID: authorID}
		}
	}

	if len(entities) > 0 {
		if d.Entities, err = jsonAPI.Marshal(entities); err != nil {
			return DiscussionRecord{}, &domain.MalformedPayloadError{Entity: "discussion", Key: "entities", Reason: err.Error()}
		}
	}
	if d.RefObjects, err = f.Raw("ref_objects"); err != nil {
		return DiscussionRecord{}, &domain.MalformedPayloadError{Entity: "discussion", Key: "ref_objects", Reason: err.Error()}
	}
	if d.Attrs, err = f.Raw("attrs"); err != nil {
		return DiscussionRecord{}, &domain.MalformedPayloadError{Entity: "discussion", Key: "attrs", Reason: err.Error()}
	}

	out := DiscussionRecord{Discussion: d, UnknownType: unknownType}
	if out.Hints, err = Actors(entities); err != nil {
		return DiscussionRecord{}, err
	}

	if rawPoll != nil {
		p, err := Poll(rawPoll)
		if err != nil {
			return DiscussionRecord{}, err
		}
		p.DiscussionID = d.ID
		out.Poll = &p
	}

	return out, nil
}

// ownerFromRefObjects picks the first user or group entry of ref_objects.
func ownerFromRefObjects(v any) (domain.Ref, bool) {
	for _, obj := range toMaps(v) {
		kind, ok := refKinds[strings.ToLower(toString(obj["type"]))]
		if !ok {
			continue
		}
		if id, ok := toInt64(obj["id"]); ok && id > 0 {
			return domain.Ref{Kind: kind, ID: id}, true
		}
	}
	return domain.Ref{}, false
}

// MediaTopics normalizes a mediatopic.getByIds response. Polls batched under
// entities are attached to the topic whose media references them.
func MediaTopics(resp map[string]any) ([]DiscussionRecord, error) {
	entities := toMap(resp["entities"])
	hints, err := Actors(entities)
	if err != nil {
		return nil, err
	}

	polls := make(map[string]map[string]any)
	for _, p := range toMaps(entities["polls"]) {
		polls[toString(p["id"])] = p
	}

	topics := toMaps(resp["media_topics"])
	records := make([]DiscussionRecord, 0, len(topics))
	for _, topic := range topics {
		rec, err := Discussion(topic)
		if err != nil {
			return nil, err
		}
		rec.Hints = append(rec.Hints, hints...)

		if rec.Poll == nil {
			raw, ok := polls[pollRefID(topic)]
			if !ok && len(topics) == 1 && len(polls) == 1 {
				for _, only := range polls {
					raw, ok = only, true
				}
			}
			if ok {
				p, err := Poll(raw)
				if err != nil {
					return nil, err
				}
				p.DiscussionID = rec.Discussion.ID
				rec.Poll = &p
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// pollRefID finds the poll id a topic's media points at.
func pollRefID(topic map[string]any) string {
	for _, m := range toMaps(topic["media"]) {
		refs := toSlice(m["poll_refs"])
		if ref := toString(m["poll_ref"]); ref != "" {
			refs = append(refs, ref)
		}
		for _, r := range refs {
			if _, id, ok := strings.Cut(toString(r), ":"); ok {
				return id
			}
		}
	}
	return ""
}

// Feeds normalizes a stream.get page into discussions owned by owner. Only
// POST feeds are kept; a feed is enriched with the media topic its message
// points at when the page batches it.
func Feeds(resp map[string]any, owner domain.Ref) ([]DiscussionRecord, error) {
	entities := toMap(resp["entities"])
	hints, err := Actors(entities)
	if err != nil {
		return nil, err
	}

	topics := make(map[string]map[string]any)
	for _, t := range toMaps(entities["media_topics"]) {
		topics[toString(t["id"])] = t
	}

	var records []DiscussionRecord
	for _, feed := range toMaps(resp["feeds"]) {
		if toString(feed["pattern"]) != "POST" {
			continue
		}
		item := clone(feed)
		delete(item, "pattern")
		if m := mediaTopicToken.FindStringSubmatch(toString(item["message"])); m != nil {
			if topic, ok := topics[m[1]]; ok {
				fillMissing(item, topic)
			}
		}

		rec, err := Discussion(item)
		if err != nil {
			return nil, err
		}
		if rec.Discussion.Owner.IsZero() {
			rec.Discussion.Owner = owner
		}
		if rec.Discussion.Type == "" {
			rec.Discussion.Type = defaultTypeFor(owner.Kind)
		}
		rec.Hints = append(rec.Hints, hints...)
		records = append(records, rec)
	}
	return records, nil
}

func defaultTypeFor(kind domain.Kind) domain.DiscussionType {
	if kind == domain.KindUser {
		return domain.DiscussionUserStatus
	}
	return domain.DefaultDiscussionType
}

func fillMissing(dst, src map[string]any) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}
