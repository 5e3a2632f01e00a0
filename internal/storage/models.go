package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Corpus is a piece of training text submitted for a bot and category.
type Corpus struct {
	ID        string
	Bot       string
	Category  string
	Title     string
	Source    string // "text", "file", "url"
	Content   string
	CreatedAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Turn is one completed dialogue exchange: the user's reply and the
// question the bot asked next.
type Turn struct {
	ID        string
	CreatedAt time.Time
	User      string
	Bot       string
	Category  string // category of the question being answered, empty when idle
	Reply     string
	Skipped   bool
	Answered  string // question retired by this reply
	Question  string // next question asked
}
