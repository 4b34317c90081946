package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/astromechza/questionsync/pkg/state"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)

type database struct {
	db *sql.DB
}

func (d *database) init(ctx context.Context) error {
	for _, stmt := range []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS tags (
			id integer primary key autoincrement,
			text text not null unique
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id text not null primary key,
			title text not null,
			details text not null,
			author_id text not null,
			author_name text not null
		)`,
		`CREATE TABLE IF NOT EXISTS question_tags (
			question_id text not null references questions(id) on delete cascade,
			tag_id integer not null references tags(id) on delete cascade,
			primary key (question_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS answers (
			id text not null primary key,
			question_id text not null references questions(id) on delete cascade,
			author_id text not null,
			text text not null,
			votes integer not null default 0
		)`,
	} {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (d *database) listTags(ctx context.Context) ([]state.Tag, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, text FROM tags ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()
	tags := make([]state.Tag, 0)
	for rows.Next() {
		var tag state.Tag
		if err := rows.Scan(&tag.ID, &tag.Text); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (d *database) createTag(ctx context.Context, text string) (state.Tag, error) {
	res, err := d.db.ExecContext(ctx, `INSERT OR IGNORE INTO tags (text) VALUES (?)`, text)
	if err != nil {
		return state.Tag{}, fmt.Errorf("failed to insert tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return state.Tag{}, fmt.Errorf("%w: tag %q exists", ErrConflict, text)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return state.Tag{}, fmt.Errorf("failed to read tag id: %w", err)
	}
	return state.Tag{ID: id, Text: text}, nil
}

func (d *database) deleteTag(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *database) tagsFor(ctx context.Context, questionID string) ([]state.Tag, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT t.id, t.text FROM tags t INNER JOIN question_tags qt ON qt.tag_id = t.id WHERE qt.question_id = ? ORDER BY t.id`,
		questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query question tags: %w", err)
	}
	defer rows.Close()
	tags := make([]state.Tag, 0)
	for rows.Next() {
		var tag state.Tag
		if err := rows.Scan(&tag.ID, &tag.Text); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (d *database) listQuestions(ctx context.Context) ([]state.QuestionSummary, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, title, author_name FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	questions := make([]state.QuestionSummary, 0)
	for rows.Next() {
		var q state.QuestionSummary
		if err := rows.Scan(&q.ID, &q.Title, &q.AuthorFullName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].Tags, err = d.tagsFor(ctx, questions[i].ID); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

func (d *database) createQuestion(ctx context.Context, author user, title string, details string, tagIDs []int64) (string, error) {
	if strings.TrimSpace(title) == "" || len(tagIDs) == 0 {
		return "", fmt.Errorf("%w: a question needs a title and at least one tag", ErrConflict)
	}
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to start tx: %w", err)
	}
	defer tx.Rollback()

	id := ulid.Make().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO questions (id, title, details, author_id, author_name) VALUES (?, ?, ?, ?, ?)`,
		id, title, details, author.ID, author.FullName,
	); err != nil {
		return "", fmt.Errorf("failed to insert question: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO question_tags (question_id, tag_id) VALUES (?, ?)`, id, tagID); err != nil {
			return "", fmt.Errorf("failed to tag question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

func (d *database) deleteQuestion(ctx context.Context, author user, id string) error {
	var owner string
	if err := d.db.QueryRowContext(ctx, `SELECT author_id FROM questions WHERE id = ?`, id).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to query question: %w", err)
	}
	if owner != author.ID {
		return ErrForbidden
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return nil
}

func (d *database) thread(ctx context.Context, id string) (*state.QuestionThread, error) {
	thread := &state.QuestionThread{Answers: make([]state.Answer, 0)}
	if err := d.db.QueryRowContext(ctx,
		`SELECT id, title, details FROM questions WHERE id = ?`, id,
	).Scan(&thread.Question.ID, &thread.Question.Title, &thread.Question.Details); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query question: %w", err)
	}
	tags, err := d.tagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	thread.Question.Tags = tags

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, author_id, text, votes FROM answers WHERE question_id = ? ORDER BY votes DESC, id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a state.Answer
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.Text, &a.Votes); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		thread.Answers = append(thread.Answers, a)
	}
	return thread, rows.Err()
}

func (d *database) createAnswer(ctx context.Context, author user, questionID string, text string) (string, error) {
	var exists int
	if err := d.db.QueryRowContext(ctx, `SELECT count(*) FROM questions WHERE id = ?`, questionID).Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to query question: %w", err)
	}
	if exists == 0 {
		return "", ErrNotFound
	}
	id := ulid.Make().String()
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO answers (id, question_id, author_id, text) VALUES (?, ?, ?, ?)`, id, questionID, author.ID, text,
	); err != nil {
		return "", fmt.Errorf("failed to insert answer: %w", err)
	}
	return id, nil
}

func (d *database) ownAnswer(ctx context.Context, author user, questionID string, answerID string) error {
	var owner string
	if err := d.db.QueryRowContext(ctx,
		`SELECT author_id FROM answers WHERE id = ? AND question_id = ?`, answerID, questionID,
	).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to query answer: %w", err)
	}
	if owner != author.ID {
		return ErrForbidden
	}
	return nil
}

func (d *database) updateAnswer(ctx context.Context, author user, questionID string, answerID string, text string) error {
	if err := d.ownAnswer(ctx, author, questionID, answerID); err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, `UPDATE answers SET text = ? WHERE id = ?`, text, answerID); err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}
	return nil
}

func (d *database) deleteAnswer(ctx context.Context, author user, questionID string, answerID string) error {
	if err := d.ownAnswer(ctx, author, questionID, answerID); err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM answers WHERE id = ?`, answerID); err != nil {
		return fmt.Errorf("failed to delete answer: %w", err)
	}
	return nil
}

func (d *database) vote(ctx context.Context, questionID string, answerID string, delta int) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE answers SET votes = votes + ? WHERE id = ? AND question_id = ?`, delta, answerID, questionID,
	)
	if err != nil {
		return fmt.Errorf("failed to vote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
