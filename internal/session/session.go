// Package session runs the quiz dialogue for the selected user and bot:
// it scores replies, retires answered questions, picks the next question
// and keeps memory and storage in step.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/learnbot/internal/annotate"
	"github.com/kalambet/learnbot/internal/learning"
	"github.com/kalambet/learnbot/internal/pools"
	"github.com/kalambet/learnbot/internal/profile"
	"github.com/kalambet/learnbot/internal/selection"
	"github.com/kalambet/learnbot/internal/storage"
	"github.com/kalambet/learnbot/internal/tracker"
)

var (
	// ErrEmptyReply is returned for a blank reply. The dialogue does not move.
	ErrEmptyReply = errors.New("empty reply")
	// ErrPersist wraps a store failure that aborted a turn. In-memory state
	// is rolled back to what was last written.
	ErrPersist = errors.New("persisting state")
	// ErrInvalidName is returned for malformed user, bot or category names.
	ErrInvalidName = profile.ErrInvalidName
)

// TurnLog records completed turns.
// Implemented by storage.Store.
type TurnLog interface {
	SaveTurn(t storage.Turn) error
	GetRecentTurns(user, bot string, limit int) ([]storage.Turn, error)
}

// Speaker identifies who said a transcript line.
type Speaker string

const (
	SpeakerBot  Speaker = "bot"
	SpeakerUser Speaker = "user"
)

// Message is one transcript line.
type Message struct {
	From Speaker `json:"from"`
	Text string  `json:"text"`
}

// Reply is one user input. Skip marks "I didn't understand": the reply is
// not scored, but the pending question still counts as answered.
type Reply struct {
	Text string `json:"text"`
	Skip bool   `json:"skip,omitempty"`
}

// Turn is the outcome of one reply.
type Turn struct {
	ID         string   `json:"id"`
	Reply      string   `json:"reply"`
	Skipped    bool     `json:"skipped"`
	Scored     bool     `json:"scored"`
	Delta      int      `json:"delta"`
	Recognized []string `json:"recognized,omitempty"`
	Answered   string   `json:"answered,omitempty"`
	Category   string   `json:"category,omitempty"`
	Question   string   `json:"question"`
	Dialogue   Dialogue `json:"dialogue"`
}

// Config wires a Session to its collaborators.
type Config struct {
	Profiles  *profile.Manager
	Turns     TurnLog
	Annotator annotate.Annotator
	// Rand drives category and question choice. Nil seeds a PCG from the clock.
	Rand selection.Rand
	// CompoundSentiment moves a category counter once more per recognized
	// vocabulary word, on top of the once-per-sentence move.
	CompoundSentiment bool
	Templates         []string
}

// Session is the dialogue of the currently selected user and bot. All
// public methods serialize on one mutex, so a turn always completes
// before the next begins.
type Session struct {
	profiles  *profile.Manager
	turns     TurnLog
	extractor *learning.Extractor
	tracker   *tracker.Tracker
	policy    *selection.Policy
	rnd       selection.Rand
	logger    *slog.Logger

	mu         sync.Mutex
	user       string
	bot        string
	pools      *pools.Pools
	dialogue   Dialogue
	transcript []Message
}

// New creates a Session for the persisted current selection.
func New(cfg Config) (*Session, error) {
	rnd := cfg.Rand
	if rnd == nil {
		now := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(now, now>>32))
	}
	s := &Session{
		profiles:  cfg.Profiles,
		turns:     cfg.Turns,
		extractor: learning.NewExtractor(cfg.Annotator),
		tracker:   tracker.New(cfg.Annotator, cfg.CompoundSentiment),
		policy:    selection.NewPolicy(rnd, cfg.Templates),
		rnd:       rnd,
		logger:    slog.Default(),
	}

	settings, err := s.profiles.Settings()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	p, err := s.load(settings.CurrentUser, settings.CurrentBot)
	if err != nil {
		return nil, err
	}
	s.install(settings.CurrentUser, settings.CurrentBot, p)
	return s, nil
}

// Greeting is the first transcript line for user.
func Greeting(user string) string {
	return fmt.Sprintf("Hello %s! I want to ask you some questions.", user)
}

func (s *Session) load(user, bot string) (*pools.Pools, error) {
	b, err := s.profiles.LoadBot(bot)
	if err != nil {
		return nil, fmt.Errorf("loading bot %q: %w", bot, err)
	}
	u, err := s.profiles.LoadUser(user, bot)
	if err != nil {
		return nil, fmt.Errorf("loading user %q: %w", user, err)
	}
	return pools.New(b, u), nil
}

// install replaces all in-memory state. Callers hold mu or own s exclusively.
func (s *Session) install(user, bot string, p *pools.Pools) {
	s.user = user
	s.bot = bot
	s.pools = p
	s.dialogue = Dialogue{}
	s.transcript = []Message{{From: SpeakerBot, Text: Greeting(user)}}
	s.logger.Debug("session loaded", "user", user, "bot", bot, "categories", p.Bot.Categories.Len())
}

// Reply runs one turn. A blank reply is rejected with ErrEmptyReply
// before anything changes. Any failure leaves the session as it was.
func (s *Session) Reply(ctx context.Context, r Reply) (Turn, error) {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return Turn{}, ErrEmptyReply
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pools.Clone()
	prev := s.dialogue
	turn := Turn{ID: uuid.New().String(), Reply: text, Skipped: r.Skip}

	if prev.Scores() {
		if prev.Pending != "" {
			s.pools.Retire(prev.Category, prev.Pending)
			turn.Answered = prev.Pending
		}
		if !r.Skip {
			out, err := s.tracker.Score(ctx, text, prev.Category, s.pools.Vocab(), s.pools.User.Sentiment, s.pools.User.Counters)
			if err != nil {
				s.pools = snapshot
				return Turn{}, fmt.Errorf("scoring reply: %w", err)
			}
			turn.Scored = true
			turn.Delta = out.Delta
			turn.Recognized = out.Recognized
		}
	}

	step := s.next()
	if prev.Scores() || step.Category != "" {
		if err := s.profiles.SaveUser(s.pools.User, s.bot); err != nil {
			s.pools = snapshot
			return Turn{}, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}

	s.dialogue = prev.Advance(step)
	s.transcript = append(s.transcript,
		Message{From: SpeakerUser, Text: text},
		Message{From: SpeakerBot, Text: step.Text},
	)
	turn.Category = step.Category
	turn.Question = step.Text
	turn.Dialogue = s.dialogue

	s.logTurn(turn, prev.Category)
	return turn, nil
}

// next chooses a uniformly random category and asks the policy for a question.
func (s *Session) next() Step {
	cats := s.pools.Categories()
	if len(cats) == 0 {
		return Step{Text: selection.NoMoreQuestions}
	}
	cat := cats[s.rnd.IntN(len(cats))]
	q, ok := s.policy.Next(cat, s.pools.Material(cat), s.pools.User.Sentiment)
	if !ok {
		s.logger.Debug("category has no material", "category", cat)
		return Step{Category: cat, Text: selection.NoMoreQuestions}
	}
	return Step{Category: cat, Question: q, Text: q}
}

// logTurn appends the turn to the history. The user state is already
// durable at this point, so a failure here does not fail the turn.
func (s *Session) logTurn(t Turn, answeredCategory string) {
	if s.turns == nil {
		return
	}
	err := s.turns.SaveTurn(storage.Turn{
		ID:        t.ID,
		CreatedAt: time.Now().UTC(),
		User:      s.user,
		Bot:       s.bot,
		Category:  answeredCategory,
		Reply:     t.Reply,
		Skipped:   t.Skipped,
		Answered:  t.Answered,
		Question:  t.Question,
	})
	if err != nil {
		s.logger.Warn("failed to record turn", "id", t.ID, "error", err)
	}
}

// Switch selects user and bot, persists the selection and reloads all
// state from storage. The dialogue returns to Idle.
func (s *Session) Switch(ctx context.Context, user, bot string) (profile.Settings, error) {
	if err := profile.ValidateName(user); err != nil {
		return profile.Settings{}, err
	}
	if err := profile.ValidateName(bot); err != nil {
		return profile.Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(user, bot)
	if err != nil {
		return profile.Settings{}, err
	}
	settings, err := s.profiles.Select(user, bot)
	if err != nil {
		return profile.Settings{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.install(user, bot, p)
	s.logger.Info("switched profile", "user", user, "bot", bot)
	return settings, nil
}

// Reset reloads the current user and bot from storage and returns to Idle.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(s.user, s.bot)
	if err != nil {
		return err
	}
	s.install(s.user, s.bot, p)
	return nil
}

// ImportProfile replaces a stored profile with e. When e is the profile in
// use, the session reloads it and returns to Idle.
func (s *Session) ImportProfile(ctx context.Context, e profile.Export) (reloaded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.profiles.Import(e); err != nil {
		return false, err
	}
	inUse := (e.Kind == profile.KindBot && e.Name == s.bot) ||
		(e.Kind == profile.KindUser && e.Name == s.user && e.Bot == s.bot)
	if !inUse {
		return false, nil
	}

	p, err := s.load(s.user, s.bot)
	if err != nil {
		return false, err
	}
	s.install(s.user, s.bot, p)
	return true, nil
}

// Profile returns the selected user and bot.
func (s *Session) Profile() (user, bot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.bot
}

// Dialogue returns the current state machine value.
func (s *Session) Dialogue() Dialogue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogue
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transcript)
}

// History returns up to limit recorded turns of the selected profile, newest first.
func (s *Session) History(limit int) ([]storage.Turn, error) {
	user, bot := s.Profile()
	if s.turns == nil {
		return nil, nil
	}
	return s.turns.GetRecentTurns(user, bot, limit)
}
