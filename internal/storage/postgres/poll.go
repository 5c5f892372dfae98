package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"discussion_syncer/internal/domain"
)

type pollRow struct {
	ID           int64      `db:"id"`
	DiscussionID int64      `db:"discussion_id"`
	OwnerKind    string     `db:"owner_kind"`
	OwnerID      int64      `db:"owner_id"`
	Question     string     `db:"question"`
	VotesCount   int        `db:"votes_count"`
	LastVote     *time.Time `db:"last_vote"`
	AnswerID     *int64     `db:"answer_id"`
}

type answerRow struct {
	ID         int64      `db:"id"`
	PollID     int64      `db:"poll_id"`
	Text       string     `db:"text"`
	VotesCount int        `db:"votes_count"`
	LastVote   *time.Time `db:"last_vote"`
	Rate       float64    `db:"rate"`
}

type PollStore struct {
	db *sqlx.DB
}

func NewPollStore(db *sqlx.DB) *PollStore {
	return &PollStore{db: db}
}

// GetPoll loads a poll with its answers ordered by id.
func (s *PollStore) GetPoll(ctx context.Context, id int64) (*domain.Poll, error) {
	exec := GetExecutor(ctx, s.db)

	var row pollRow
	err := sqlx.GetContext(ctx, exec, &row, `
		SELECT id, discussion_id, owner_kind, owner_id, question, votes_count, last_vote, answer_id
		FROM polls
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var answers []answerRow
	err = sqlx.SelectContext(ctx, exec, &answers, `
		SELECT id, poll_id, text, votes_count, last_vote, rate
		FROM answers
		WHERE poll_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}

	p := &domain.Poll{
		ID:           row.ID,
		DiscussionID: row.DiscussionID,
		Owner:        domain.Ref{Kind: domain.Kind(row.OwnerKind), ID: row.OwnerID},
		Question:     row.Question,
		VotesCount:   row.VotesCount,
		LastVote:     row.LastVote,
		AnswerID:     row.AnswerID,
	}
	for _, a := range answers {
		p.Answers = append(p.Answers, domain.Answer(a))
	}
	return p, nil
}

// DeleteStalePolls serializes writers of one owner with a transaction-scoped
// advisory lock, then removes every other poll of that owner or discussion.
func (s *PollStore) DeleteStalePolls(ctx context.Context, p *domain.Poll) (int64, error) {
	exec := GetExecutor(ctx, s.db)

	if _, err := exec.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "poll:"+p.Owner.String()); err != nil {
		return 0, err
	}

	res, err := exec.ExecContext(ctx, `
		DELETE FROM polls
		WHERE id <> $1 AND ((owner_kind = $2 AND owner_id = $3) OR discussion_id = $4)`,
		p.ID, string(p.Owner.Kind), p.Owner.ID, p.DiscussionID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PollStore) UpsertPoll(ctx context.Context, p *domain.Poll) error {
	query := `
		INSERT INTO polls (id, discussion_id, owner_kind, owner_id, question, votes_count, last_vote, answer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			discussion_id = EXCLUDED.discussion_id,
			owner_kind = EXCLUDED.owner_kind,
			owner_id = EXCLUDED.owner_id,
			question = EXCLUDED.question,
			votes_count = EXCLUDED.votes_count,
			last_vote = EXCLUDED.last_vote,
			answer_id = EXCLUDED.answer_id,
			updated_at = NOW()`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		p.ID,
		p.DiscussionID,
		string(p.Owner.Kind),
		p.Owner.ID,
		p.Question,
		p.VotesCount,
		p.LastVote,
		p.AnswerID,
	)
	return err
}

// DeleteStaleAnswers removes answers of pollID missing from keep. Their
// voters go with them.
func (s *PollStore) DeleteStaleAnswers(ctx context.Context, pollID int64, keep []int64) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		DELETE FROM answers
		WHERE poll_id = $1 AND NOT (id = ANY($2::bigint[]))`,
		pollID, pq.Array(keep),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PollStore) UpsertAnswer(ctx context.Context, a *domain.Answer) error {
	query := `
		INSERT INTO answers (id, poll_id, text, votes_count, last_vote, rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			poll_id = EXCLUDED.poll_id,
			text = EXCLUDED.text,
			votes_count = EXCLUDED.votes_count,
			last_vote = EXCLUDED.last_vote,
			rate = EXCLUDED.rate`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		a.ID, a.PollID, a.Text, a.VotesCount, a.LastVote, a.Rate,
	)
	return err
}

func (s *PollStore) SetAnswerVotes(ctx context.Context, answerID int64, votes int, rate float64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE answers SET votes_count = $2, rate = $3 WHERE id = $1",
		answerID, votes, rate,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *PollStore) ClearVoters(ctx context.Context, answerID int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM answer_voters WHERE answer_id = $1", answerID)
	return err
}

func (s *PollStore) AddVoters(ctx context.Context, answerID int64, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO answer_voters (answer_id, user_id)
		SELECT $1::bigint, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`,
		answerID, pq.Array(userIDs),
	)
	return err
}
