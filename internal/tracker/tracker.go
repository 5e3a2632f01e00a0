// Package tracker scores user replies for sentiment per category and per word.
package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/learnbot/internal/annotate"
	"github.com/kalambet/learnbot/internal/pools"
)

// Tracker applies reply sentiment to category counters and word labels.
type Tracker struct {
	annotator annotate.Annotator
	compound  bool
	logger    *slog.Logger
}

// New creates a Tracker. With compound set, each recognized vocabulary word
// moves the category counter again in its sentence's direction, on top of
// the once-per-sentence move.
func New(annotator annotate.Annotator, compound bool) *Tracker {
	return &Tracker{
		annotator: annotator,
		compound:  compound,
		logger:    slog.Default(),
	}
}

// Outcome summarizes what one reply changed.
type Outcome struct {
	Sentences  int
	Delta      int
	Recognized []string // vocabulary words seen, in reply order, with repeats
}

// Score annotates reply and updates counters[category] and words. Nothing
// is modified when annotation fails.
func (t *Tracker) Score(ctx context.Context, reply, category string, vocab pools.Set, words pools.WordSentiment, counters pools.Counters) (Outcome, error) {
	sentences, err := t.annotator.Annotate(ctx, reply)
	if err != nil {
		return Outcome{}, fmt.Errorf("annotating reply: %w", err)
	}

	out := Outcome{Sentences: len(sentences)}
	for _, s := range sentences {
		dir := s.Sentiment.Direction()
		out.Delta += dir
		for _, tok := range s.Tokens {
			w := pools.NormalizeWord(tok.Word)
			if !vocab.Has(w) {
				continue
			}
			words[w] = s.Sentiment
			out.Recognized = append(out.Recognized, w)
			if t.compound {
				out.Delta += dir
			}
		}
	}
	counters[category] += out.Delta

	t.logger.Debug("scored reply", "category", category, "sentences", out.Sentences, "delta", out.Delta, "recognized", len(out.Recognized))
	return out, nil
}
