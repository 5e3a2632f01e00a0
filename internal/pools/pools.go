// Package pools holds the in-memory learning material of one bot and the
// progress of one user against it.
package pools

import (
	"maps"

	"github.com/kalambet/learnbot/internal/annotate"
)

// Bot is the material a bot has learned: per-category vocabulary and questions.
type Bot struct {
	Name       string
	Categories Set
	Words      Categorized
	Questions  Categorized
}

// NewBot returns an empty bot profile.
func NewBot(name string) Bot {
	return Bot{
		Name:       name,
		Categories: make(Set),
		Words:      make(Categorized),
		Questions:  make(Categorized),
	}
}

// Vocab is the union of all category vocabularies.
func (b Bot) Vocab() Set {
	v := make(Set)
	for _, words := range b.Words {
		for w := range words {
			v[w] = struct{}{}
		}
	}
	return v
}

func (b Bot) Clone() Bot {
	return Bot{
		Name:       b.Name,
		Categories: b.Categories.Clone(),
		Words:      b.Words.Clone(),
		Questions:  b.Questions.Clone(),
	}
}

// WordSentiment records the last sentiment observed for each word.
type WordSentiment map[string]annotate.Sentiment

// Counters holds a signed sentiment score per category.
type Counters map[string]int

// User is one user's progress against one bot.
type User struct {
	Name      string
	Answered  Categorized
	Sentiment WordSentiment
	Counters  Counters
}

// NewUser returns an empty user profile.
func NewUser(name string) User {
	return User{
		Name:      name,
		Answered:  make(Categorized),
		Sentiment: make(WordSentiment),
		Counters:  make(Counters),
	}
}

func (u User) Clone() User {
	return User{
		Name:      u.Name,
		Answered:  u.Answered.Clone(),
		Sentiment: maps.Clone(u.Sentiment),
		Counters:  maps.Clone(u.Counters),
	}
}

// Pools is the working state of a session: the bot's material with
// answered questions retired, the user's progress, and the derived vocab.
type Pools struct {
	Bot   Bot
	User  User
	vocab Set
}

// New combines a loaded bot and user. Questions the user already answered
// are removed from the retrievable pool.
func New(bot Bot, user User) *Pools {
	p := &Pools{Bot: bot, User: user}
	if p.User.Sentiment == nil {
		p.User.Sentiment = make(WordSentiment)
	}
	if p.User.Counters == nil {
		p.User.Counters = make(Counters)
	}
	for cat, answered := range p.User.Answered {
		for q := range answered {
			p.Bot.Questions.Remove(cat, q)
		}
	}
	p.RecomputeVocab()
	return p
}

// Vocab returns the current derived vocabulary.
func (p *Pools) Vocab() Set {
	return p.vocab
}

// RecomputeVocab rebuilds the vocabulary from the bot's word pools.
func (p *Pools) RecomputeVocab() {
	p.vocab = p.Bot.Vocab()
}

// Categories returns the bot's categories in ascending order.
func (p *Pools) Categories() []string {
	return p.Bot.Categories.Items()
}

// Merge adds learned material under cat. Questions already answered by
// the user stay out of the retrievable pool.
func (p *Pools) Merge(cat string, words, questions Set) {
	p.Bot.Categories.Add(cat)
	p.Bot.Words.Add(cat, words.Items()...)
	p.Bot.Questions.Add(cat, questions.Minus(p.User.Answered.Get(cat))...)
	p.RecomputeVocab()
}

// Retire moves question q of cat from the retrievable pool to the answered
// set. Retiring the same question twice has no further effect.
func (p *Pools) Retire(cat, q string) {
	p.User.Answered.Add(cat, q)
	p.Bot.Questions.Remove(cat, q)
}

// Material returns what SelectionPolicy may draw from for cat.
func (p *Pools) Material(cat string) Material {
	return Material{
		Questions: p.Bot.Questions.Get(cat),
		Answered:  p.User.Answered.Get(cat),
		Words:     p.Bot.Words.Get(cat),
	}
}

func (p *Pools) Clone() *Pools {
	return &Pools{
		Bot:   p.Bot.Clone(),
		User:  p.User.Clone(),
		vocab: p.vocab.Clone(),
	}
}

// Material is one category's view of the pools.
type Material struct {
	Questions Set
	Answered  Set
	Words     Set
}
