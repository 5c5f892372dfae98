package normalize

import (
	"discussion_syncer/internal/domain"
)

// Poll normalizes a poll together with its nested answers. Answer rates are
// computed against the poll's total vote count.
func Poll(raw map[string]any) (domain.Poll, error) {
	f, err := PollStrategy.Apply(raw)
	if err != nil {
		return domain.Poll{}, err
	}
	id, ok := f.Int64("id")
	if !ok {
		return domain.Poll{}, &domain.MalformedPayloadError{Entity: "poll", Key: "id", Reason: "not an integer"}
	}

	p := domain.Poll{
		ID:         id,
		Owner:      f.Ref("owner_ref"),
		Question:   f.String("question"),
		VotesCount: f.Int("votes_count"),
		LastVote:   f.Time("last_vote"),
	}
	if answerID, ok := f.Int64("answer_id"); ok {
		p.AnswerID = &answerID
	}

	for _, rawAnswer := range toMaps(raw["answers"]) {
		af, err := AnswerStrategy.Apply(rawAnswer)
		if err != nil {
			return domain.Poll{}, err
		}
		answerID, ok := af.Int64("id")
		if !ok {
			return domain.Poll{}, &domain.MalformedPayloadError{Entity: "answer", Key: "id", Reason: "not an integer"}
		}
		a := domain.Answer{
			ID:         answerID,
			PollID:     p.ID,
			Text:       af.String("text"),
			VotesCount: af.Int("votes_count"),
			LastVote:   af.Time("last_vote"),
			Rate:       domain.AnswerRate(af.Int("votes_count"), p.VotesCount),
		}
		if af.Bool("voted") && p.AnswerID == nil {
			p.AnswerID = &a.ID
		}
		p.Answers = append(p.Answers, a)
	}

	return p, nil
}
