package content

import (
	"time"

	"github.com/google/uuid"
)

// QuestionSet groups trivia questions under a host-managed name.
type QuestionSet struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Question is one trivia prompt with its accepted answer.
type Question struct {
	ID     uuid.UUID `json:"id"`
	SetID  uuid.UUID `json:"set_id"`
	Text   string    `json:"text"`
	Answer string    `json:"answer"`
}

// ItemSet groups bingo/emoji items under a host-managed name.
type ItemSet struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Items     []Item    `json:"items,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is one callable entry in an item set.
type Item struct {
	ID    uuid.UUID `json:"id"`
	SetID uuid.UUID `json:"set_id"`
	Label string    `json:"label"`
}

// GuessingChallenge is a prompt that is revealed either by the host or
// automatically once its reveal time has passed.
type GuessingChallenge struct {
	ID       uuid.UUID  `json:"id"`
	Prompt   string     `json:"prompt"`
	Answer   string     `json:"answer"`
	RevealAt *time.Time `json:"reveal_at,omitempty"`
	Revealed bool       `json:"revealed"`
}
