package annotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/tsawler/prose/v3"
)

// Lemmatizer reduces an inflected word to its base form.
type Lemmatizer interface {
	Lemma(word string) string
}

// ProseConfig configures the prose-backed annotator.
type ProseConfig struct {
	// Timeout bounds a single Annotate call. Zero means 10s.
	Timeout time.Duration
	// LexiconPath optionally points at an external sentiment lexicon.
	LexiconPath string
}

// Prose annotates English text with github.com/tsawler/prose for
// segmentation, tagging and sentiment, and golem for lemmas.
type Prose struct {
	analyzer *prose.SentimentAnalyzer
	lemmas   Lemmatizer
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProse loads the English lemma dictionary and sentiment lexicon.
func NewProse(cfg ProseConfig) (*Prose, error) {
	lemmatizer, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("loading lemma dictionary: %w", err)
	}

	sentimentCfg := prose.DefaultSentimentConfig()
	sentimentCfg.UseML = false

	var analyzer *prose.SentimentAnalyzer
	if cfg.LexiconPath != "" {
		analyzer, err = prose.NewSentimentAnalyzerWithExternal(prose.English, sentimentCfg, cfg.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("loading sentiment lexicon %s: %w", cfg.LexiconPath, err)
		}
	} else {
		analyzer = prose.NewSentimentAnalyzer(prose.English, sentimentCfg)
	}

	return newProse(analyzer, lemmatizer, cfg.Timeout), nil
}

func newProse(analyzer *prose.SentimentAnalyzer, lemmas Lemmatizer, timeout time.Duration) *Prose {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prose{
		analyzer: analyzer,
		lemmas:   lemmas,
		timeout:  timeout,
		logger:   slog.Default(),
	}
}

// Annotate segments text into sentences. Blank text yields no sentences.
func (p *Prose) Annotate(ctx context.Context, text string) ([]Sentence, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	doc, err := prose.NewDocument(text,
		prose.WithContext(ctx),
		prose.WithTimeout(p.timeout),
		prose.WithExtraction(false),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("annotating text: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorpusFormat, err)
	}

	// Tokens and sentences are both ordered by offset, so one cursor walks
	// the tokens across all sentences.
	docTokens := doc.Tokens()
	var sentences []Sentence
	next := 0
	for _, ps := range doc.Sentences() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("annotating text: %w", err)
		}
		lo, hi := sentenceTokens(docTokens, next, ps)
		next = hi
		s := p.sentence(text, ps, docTokens[lo:hi])
		if len(s.Tokens) == 0 {
			continue
		}
		sentences = append(sentences, s)
	}

	p.logger.Debug("annotated text", "bytes", len(text), "sentences", len(sentences))
	return sentences, nil
}

// sentenceTokens returns the range of tokens, scanning from index from,
// that start inside ps. Tokens before ps are skipped.
func sentenceTokens(tokens []prose.Token, from int, ps prose.Sentence) (lo, hi int) {
	lo = from
	for lo < len(tokens) && tokens[lo].Start < ps.Start {
		lo++
	}
	hi = lo
	for hi < len(tokens) && tokens[hi].Start < ps.End {
		hi++
	}
	return lo, hi
}

// sentence builds one Sentence from the tokens that start inside ps.
// Tokens running past the end of ps are dropped.
func (p *Prose) sentence(text string, ps prose.Sentence, tokens []prose.Token) Sentence {
	s := Sentence{Text: ps.Text}
	offset := ps.Start
	if ps.Start >= 0 && ps.Start <= ps.End && ps.End <= len(text) {
		s.Text = text[ps.Start:ps.End]
	}

	for _, t := range tokens {
		if t.End > ps.End {
			continue
		}
		s.Tokens = append(s.Tokens, Token{
			Word:  t.Text,
			Tag:   t.Tag,
			Lemma: p.lemmas.Lemma(strings.ToLower(t.Text)),
			Start: t.Start - offset,
			End:   t.End - offset,
		})
	}

	s.Sentiment = fromScore(p.analyzer.AnalyzeSentence(ps, tokens))
	return s
}

// fromScore collapses a prose score onto the 5-point scale. Mixed
// sentiment counts as neutral.
func fromScore(score prose.SentimentScore) Sentiment {
	switch score.Dominant {
	case prose.StrongPositive:
		return VeryPositive
	case prose.Positive:
		return Positive
	case prose.Neutral, prose.Mixed:
		return Neutral
	case prose.Negative:
		return Negative
	case prose.StrongNegative:
		return VeryNegative
	}

	switch {
	case score.Polarity >= 0.5:
		return VeryPositive
	case score.Polarity >= 0.1:
		return Positive
	case score.Polarity <= -0.5:
		return VeryNegative
	case score.Polarity <= -0.1:
		return Negative
	default:
		return Neutral
	}
}
