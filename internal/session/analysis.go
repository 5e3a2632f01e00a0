package session

import (
	"sort"

	"github.com/kalambet/learnbot/internal/annotate"
)

// CategoryScore is one category's sentiment counter, clamped at zero.
type CategoryScore struct {
	Category string `json:"category"`
	Score    int    `json:"score"`
}

// WordScore is the last sentiment recorded for a vocabulary word.
type WordScore struct {
	Word      string             `json:"word"`
	Sentiment annotate.Sentiment `json:"sentiment"`
}

// Analysis summarizes the selected user's progress against the selected bot.
type Analysis struct {
	User       string          `json:"user"`
	Bot        string          `json:"bot"`
	Categories []CategoryScore `json:"categories"`
	// ScoreTotal is the sum of the clamped scores, at least 1.
	ScoreTotal int `json:"score_total"`
	// BotPotential counts the bot's words and questions, answered ones
	// included, at least 1.
	BotPotential int `json:"bot_potential"`
	// UsedPotential counts words the user has met and questions answered,
	// at most BotPotential.
	UsedPotential int         `json:"used_potential"`
	Words         []WordScore `json:"words"`
}

// Analysis builds the progress report from in-memory state.
func (s *Session) Analysis() Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pools
	a := Analysis{
		User:       s.user,
		Bot:        s.bot,
		Categories: []CategoryScore{},
		Words:      []WordScore{},
	}

	for _, cat := range p.Categories() {
		score := max(p.User.Counters[cat], 0)
		a.Categories = append(a.Categories, CategoryScore{Category: cat, Score: score})
		a.ScoreTotal += score
	}
	a.ScoreTotal = max(a.ScoreTotal, 1)

	answered := p.User.Answered.Total()
	a.BotPotential = max(p.Bot.Words.Total()+p.Bot.Questions.Total()+answered, 1)
	a.UsedPotential = min(len(p.User.Sentiment)+answered, a.BotPotential)

	for w, label := range p.User.Sentiment {
		a.Words = append(a.Words, WordScore{Word: w, Sentiment: label})
	}
	sort.Slice(a.Words, func(i, j int) bool { return a.Words[i].Word < a.Words[j].Word })
	return a
}
