package interview

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource loads the question catalog from Postgres once at startup.
// An empty table is seeded with the default script so a fresh database works
// out of the box.
type PostgresSource struct {
	pool      *pgxpool.Pool
	questions []Question
}

func NewPostgresSource(ctx context.Context, databaseURL string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	src := &PostgresSource{pool: pool}
	if err := src.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return src, nil
}

func (s *PostgresSource) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interview_questions (
			id INTEGER PRIMARY KEY,
			text TEXT NOT NULL,
			type TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interview_questions_id ON interview_questions (id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init question schema failed on %q: %w", stmt, err)
		}
	}

	loaded, err := s.load(ctx)
	if err != nil {
		return err
	}
	if len(loaded) == 0 {
		if err := s.seed(ctx, DefaultQuestions()); err != nil {
			return err
		}
		loaded, err = s.load(ctx)
		if err != nil {
			return err
		}
	}
	s.questions = loaded
	return nil
}

func (s *PostgresSource) load(ctx context.Context) ([]Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, type FROM interview_questions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0, 16)
	for rows.Next() {
		var (
			q   Question
			typ string
		)
		if err := rows.Scan(&q.ID, &q.Text, &typ); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		q.Type = QuestionType(typ)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question rows: %w", err)
	}
	return out, nil
}

func (s *PostgresSource) seed(ctx context.Context, questions []Question) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, q := range questions {
		_, err := tx.Exec(ctx,
			`INSERT INTO interview_questions (id, text, type) VALUES ($1,$2,$3)
			 ON CONFLICT (id) DO NOTHING`,
			q.ID, q.Text, string(q.Type),
		)
		if err != nil {
			return fmt.Errorf("seed question %d: %w", q.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresSource) Questions() []Question {
	out := make([]Question, len(s.questions))
	copy(out, s.questions)
	return out
}

func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}
