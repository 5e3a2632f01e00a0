// Package selection decides which question to ask next.
package selection

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/kalambet/learnbot/internal/annotate"
	"github.com/kalambet/learnbot/internal/pools"
)

// NoMoreQuestions is said when a category has nothing left to ask about.
const NoMoreQuestions = "Tell me more."

// DefaultTemplates are the prompts used to generate a question about a word.
// Each has exactly one %s.
var DefaultTemplates = []string{
	"Tell me what you know about %s.",
	"What do you think of %s?",
	"Tell me something about %s.",
	"Do you remember about %s?",
	"Finish this for me: %s is...",
	"Please describe %s.",
	"Explain to me the term %s.",
	"Do you know about %s?",
	"Do you work with %s?",
	"Do you have experience with %s?",
	"What is your opinion on %s?",
	"Tell me your opinion about %s please.",
}

// Rand is the source of uniform choices.
type Rand interface {
	IntN(n int) int
}

// Policy alternates between retrieving learned questions and generating
// new ones from vocabulary.
type Policy struct {
	rnd       Rand
	templates []string
	logger    *slog.Logger
}

// NewPolicy creates a Policy. A nil rnd uses the global math/rand/v2 source;
// empty templates use DefaultTemplates.
func NewPolicy(rnd Rand, templates []string) *Policy {
	if rnd == nil {
		rnd = globalRand{}
	}
	if len(templates) == 0 {
		templates = DefaultTemplates
	}
	return &Policy{
		rnd:       rnd,
		templates: templates,
		logger:    slog.Default(),
	}
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Next returns a question for category, or ok == false when the category
// has neither unanswered questions nor words. Generating a question marks
// its subject in wordsUsed as neutral.
func (p *Policy) Next(category string, m pools.Material, wordsUsed pools.WordSentiment) (question string, ok bool) {
	candidates := m.Questions.Minus(m.Answered)
	if len(candidates) == 0 && m.Words.Len() == 0 {
		return "", false
	}

	if p.rnd.IntN(2) == 0 && len(candidates) > 0 {
		p.logger.Debug("retrieved question", "category", category)
		return candidates[p.rnd.IntN(len(candidates))], true
	}
	return p.generate(category, m.Words, wordsUsed), true
}

// generate fills a template with an unused word, or with the category name
// when every word has been used.
func (p *Policy) generate(category string, words pools.Set, wordsUsed pools.WordSentiment) string {
	subject := category
	unused := words.Filter(func(w string) bool {
		_, used := wordsUsed[w]
		return !used
	})
	if len(unused) > 0 {
		subject = unused[p.rnd.IntN(len(unused))]
	}
	wordsUsed[subject] = annotate.Neutral

	tmpl := p.templates[p.rnd.IntN(len(p.templates))]
	p.logger.Debug("generated question", "category", category, "subject", subject)
	return fmt.Sprintf(tmpl, subject)
}
