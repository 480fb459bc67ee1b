package content

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists host-managed game content in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository over an existing connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateQuestionSet(ctx context.Context, name string) (*QuestionSet, error) {
	set := QuestionSet{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO question_sets (id, name, created_at) VALUES ($1, $2, $3)`,
		set.ID, set.Name, set.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create question set: %w", err)
	}
	return &set, nil
}

func (r *Repository) AddQuestion(ctx context.Context, setID uuid.UUID, text, answer string) (*Question, error) {
	q := Question{ID: uuid.New(), SetID: setID, Text: text, Answer: answer}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions (id, set_id, text, answer) VALUES ($1, $2, $3, $4)`,
		q.ID, q.SetID, q.Text, q.Answer)
	if err != nil {
		return nil, fmt.Errorf("add question to set %s: %w", setID, err)
	}
	return &q, nil
}

func (r *Repository) DeleteQuestionSet(ctx context.Context, id uuid.UUID) error {
	// Questions cascade via the FK
	if _, err := r.pool.Exec(ctx, `DELETE FROM question_sets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete question set %s: %w", id, err)
	}
	return nil
}

func (r *Repository) CreateItemSet(ctx context.Context, name string) (*ItemSet, error) {
	set := ItemSet{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO item_sets (id, name, created_at) VALUES ($1, $2, $3)`,
		set.ID, set.Name, set.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create item set: %w", err)
	}
	return &set, nil
}

func (r *Repository) AddItem(ctx context.Context, setID uuid.UUID, label string) (*Item, error) {
	item := Item{ID: uuid.New(), SetID: setID, Label: label}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO items (id, set_id, label) VALUES ($1, $2, $3)`,
		item.ID, item.SetID, item.Label)
	if err != nil {
		return nil, fmt.Errorf("add item to set %s: %w", setID, err)
	}
	return &item, nil
}

func (r *Repository) DeleteItemSet(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM item_sets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete item set %s: %w", id, err)
	}
	return nil
}

func (r *Repository) ListChallenges(ctx context.Context) ([]GuessingChallenge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, answer, reveal_at, revealed FROM guessing_challenges ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []GuessingChallenge
	for rows.Next() {
		var c GuessingChallenge
		if err := rows.Scan(&c.ID, &c.Prompt, &c.Answer, &c.RevealAt, &c.Revealed); err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenges: %w", err)
	}
	return challenges, nil
}

func (r *Repository) RevealChallenge(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE guessing_challenges SET revealed = TRUE WHERE id = $1 AND NOT revealed`, id)
	if err != nil {
		return fmt.Errorf("reveal challenge %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("challenge %s not found or already revealed", id)
	}
	return nil
}

// CheckAutoReveal flips every challenge whose reveal time has passed and
// returns how many changed.
func (r *Repository) CheckAutoReveal(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE guessing_challenges SET revealed = TRUE WHERE NOT revealed AND reveal_at IS NOT NULL AND reveal_at <= $1`,
		now)
	if err != nil {
		return 0, fmt.Errorf("auto-reveal check: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
