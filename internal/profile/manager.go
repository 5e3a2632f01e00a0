package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/learnbot/internal/annotate"
	"github.com/kalambet/learnbot/internal/pools"
)

const (
	DefaultUser = "defaultUser"
	DefaultBot  = "defaultBot"
)

// ErrInvalidName is returned for empty or malformed user, bot and category names.
var ErrInvalidName = errors.New("invalid name")

// Settings keys.
const (
	keyUsers       = "users"
	keyBots        = "bots"
	keyCurrentUser = "current.user"
	keyCurrentBot  = "current.bot"
)

// Bot keys.
const (
	keyCategories   = "categories"
	prefixWords     = "words."
	prefixQuestions = "questions."
)

// User keys. Word sentiment is stored as two parallel lists sorted by word.
const (
	keyWordsUsed      = "words.used"
	keyWordsSentiment = "words.sentiment"
	prefixAnswered    = "answered."
	prefixCounter     = "counter."
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Settings is the global selection state.
type Settings struct {
	Users       []string `json:"users"`
	Bots        []string `json:"bots"`
	CurrentUser string   `json:"current_user"`
	CurrentBot  string   `json:"current_bot"`
}

// Manager maps bot and user pools onto scoped profile keys and keeps a
// short-lived cache of the global settings.
type Manager struct {
	store  ProfileStore
	clock  Clock
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	cached   *Settings
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second settings cache.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		ttl:    ttl,
		logger: slog.Default(),
	}
}

// ValidateName checks a user or bot name. Names become part of scope keys
// and must not contain '/'.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("%w: %q has surrounding spaces", ErrInvalidName, name)
	}
	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidName, name)
	}
	return nil
}

// ValidateCategory checks a category name.
func ValidateCategory(cat string) error {
	if strings.TrimSpace(cat) == "" {
		return fmt.Errorf("%w: empty category", ErrInvalidName)
	}
	return nil
}

// Settings returns the known users and bots and the current selection.
// The default user and bot are always listed.
func (m *Manager) Settings() (Settings, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		s := copySettings(m.cached)
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsLocked()
}

// settingsLocked returns the cached settings or reloads them. m.mu must be
// held for writing.
func (m *Manager) settingsLocked() (Settings, error) {
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return copySettings(m.cached), nil
	}

	keys, err := Open(m.store, SettingsScope).LoadAll()
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		Users:       withMember(keys.Collection(keyUsers), DefaultUser),
		Bots:        withMember(keys.Collection(keyBots), DefaultBot),
		CurrentUser: keys.String(keyCurrentUser, DefaultUser),
		CurrentBot:  keys.String(keyCurrentBot, DefaultBot),
	}
	m.cached = &s
	m.cachedAt = m.clock.Now()
	return copySettings(&s), nil
}

// Select records user and bot as the current selection, registering both names.
func (m *Manager) Select(user, bot string) (Settings, error) {
	if err := ValidateName(user); err != nil {
		return Settings{}, err
	}
	if err := ValidateName(bot); err != nil {
		return Settings{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.settingsLocked()
	if err != nil {
		return Settings{}, err
	}
	s.Users = withMember(s.Users, user)
	s.Bots = withMember(s.Bots, bot)
	s.CurrentUser = user
	s.CurrentBot = bot

	if err := m.saveSettingsLocked(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Register adds a name to the known users or bots without changing the selection.
func (m *Manager) Register(kind Kind, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.settingsLocked()
	if err != nil {
		return err
	}
	switch kind {
	case KindUser:
		if slices.Contains(s.Users, name) {
			return nil
		}
		s.Users = withMember(s.Users, name)
	case KindBot:
		if slices.Contains(s.Bots, name) {
			return nil
		}
		s.Bots = withMember(s.Bots, name)
	default:
		return fmt.Errorf("unknown profile kind %q", kind)
	}
	return m.saveSettingsLocked(s)
}

// saveSettingsLocked writes s and drops the cache. m.mu must be held for writing.
func (m *Manager) saveSettingsLocked(s Settings) error {
	b := Open(m.store, SettingsScope).Batch()
	b.SaveCollection(keyUsers, s.Users)
	b.SaveCollection(keyBots, s.Bots)
	b.SaveString(keyCurrentUser, s.CurrentUser)
	b.SaveString(keyCurrentBot, s.CurrentBot)
	if err := b.Commit(); err != nil {
		return err
	}
	m.cached = nil
	return nil
}

// LoadBot reads a bot's categories, vocabulary and questions. An unknown
// bot loads as empty.
func (m *Manager) LoadBot(name string) (pools.Bot, error) {
	keys, err := Open(m.store, BotScope(name)).LoadAll()
	if err != nil {
		return pools.Bot{}, err
	}

	bot := pools.NewBot(name)
	for _, cat := range keys.Collection(keyCategories) {
		bot.Categories.Add(cat)
		bot.Words.Add(cat, keys.Collection(prefixWords+cat)...)
		bot.Questions.Add(cat, keys.Collection(prefixQuestions+cat)...)
	}
	return bot, nil
}

// SaveBotCategory writes the category list and one category's material.
func (m *Manager) SaveBotCategory(bot pools.Bot, cat string) error {
	b := Open(m.store, BotScope(bot.Name)).Batch()
	b.SaveCollection(keyCategories, bot.Categories.Items())
	b.SaveCollection(prefixWords+cat, bot.Words.Get(cat).Items())
	b.SaveCollection(prefixQuestions+cat, bot.Questions.Get(cat).Items())
	return b.Commit()
}

// LoadUser reads one user's progress against bot. Malformed values are
// logged and skipped.
func (m *Manager) LoadUser(user, bot string) (pools.User, error) {
	keys, err := Open(m.store, UserScope(user, bot)).LoadAll()
	if err != nil {
		return pools.User{}, err
	}

	u := pools.NewUser(user)
	for key, raw := range keys {
		switch {
		case strings.HasPrefix(key, prefixAnswered):
			u.Answered.Add(strings.TrimPrefix(key, prefixAnswered), DecodeCollection(raw)...)
		case strings.HasPrefix(key, prefixCounter):
			n, err := strconv.Atoi(raw)
			if err != nil {
				m.logger.Warn("malformed counter, skipping", "scope", UserScope(user, bot), "key", key, "error", err)
				continue
			}
			u.Counters[strings.TrimPrefix(key, prefixCounter)] = n
		}
	}

	words := keys.Collection(keyWordsUsed)
	labels := keys.Collection(keyWordsSentiment)
	if len(words) != len(labels) {
		m.logger.Warn("word sentiment lists differ in length, skipping", "scope", UserScope(user, bot), "words", len(words), "labels", len(labels))
		return u, nil
	}
	for i, w := range words {
		s, err := annotate.ParseSentiment(labels[i])
		if err != nil {
			m.logger.Warn("malformed word sentiment, skipping", "word", w, "error", err)
			continue
		}
		u.Sentiment[w] = s
	}
	return u, nil
}

// SaveUser writes a user's complete progress against bot in one transaction.
func (m *Manager) SaveUser(u pools.User, bot string) error {
	b := Open(m.store, UserScope(u.Name, bot)).Batch()
	for cat, answered := range u.Answered {
		b.SaveCollection(prefixAnswered+cat, answered.Items())
	}
	for cat, n := range u.Counters {
		b.SaveInt(prefixCounter+cat, n)
	}

	words := make([]string, 0, len(u.Sentiment))
	for w := range u.Sentiment {
		words = append(words, w)
	}
	slices.Sort(words)
	labels := make([]string, len(words))
	for i, w := range words {
		labels[i] = u.Sentiment[w].String()
	}
	b.SaveCollection(keyWordsUsed, words)
	b.SaveCollection(keyWordsSentiment, labels)
	return b.Commit()
}

func withMember(list []string, name string) []string {
	if slices.Contains(list, name) {
		return list
	}
	return append(slices.Clone(list), name)
}

func copySettings(s *Settings) Settings {
	cp := *s
	cp.Users = slices.Clone(s.Users)
	cp.Bots = slices.Clone(s.Bots)
	return cp
}
