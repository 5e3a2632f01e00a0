// Package annotate turns raw text into sentences of part-of-speech tagged,
// lemmatized tokens with a sentence-level sentiment label.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCorpusFormat is returned when text cannot be segmented or tagged.
var ErrCorpusFormat = errors.New("corpus cannot be annotated")

// Annotator segments text into annotated sentences.
type Annotator interface {
	Annotate(ctx context.Context, text string) ([]Sentence, error)
}

// Sentiment is a 5-point sentiment label, ordered from most negative to most positive.
type Sentiment int

const (
	VeryNegative Sentiment = iota
	Negative
	Neutral
	Positive
	VeryPositive
)

var sentimentNames = [...]string{"very_negative", "negative", "neutral", "positive", "very_positive"}

func (s Sentiment) String() string {
	if s < VeryNegative || s > VeryPositive {
		return fmt.Sprintf("sentiment(%d)", int(s))
	}
	return sentimentNames[s]
}

// Direction maps a label onto -1, 0 or +1.
func (s Sentiment) Direction() int {
	switch {
	case s == Neutral:
		return 0
	case s > Neutral:
		return 1
	default:
		return -1
	}
}

// ParseSentiment is the inverse of Sentiment.String.
func ParseSentiment(s string) (Sentiment, error) {
	for i, name := range sentimentNames {
		if name == s {
			return Sentiment(i), nil
		}
	}
	return Neutral, fmt.Errorf("unknown sentiment %q", s)
}

func (s Sentiment) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Sentiment) UnmarshalText(b []byte) error {
	v, err := ParseSentiment(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Token is one word or punctuation mark. Start and End are byte offsets
// into the owning Sentence's Text.
type Token struct {
	Word  string
	Tag   string // Penn Treebank tag
	Lemma string
	Start int
	End   int
}

// Sentence is a segmented, annotated span of text.
type Sentence struct {
	Text      string
	Tokens    []Token
	Sentiment Sentiment
}

// Substring returns Text[from:to] with both bounds clamped to the sentence.
func (s Sentence) Substring(from, to int) string {
	from = max(0, min(from, len(s.Text)))
	to = max(from, min(to, len(s.Text)))
	return s.Text[from:to]
}

// ParseTagged builds a Sentence from "word/TAG" or "word/TAG/lemma" fields
// separated by spaces. Punctuation tokens attach to the previous word.
// Lemmas default to the lower-cased word.
func ParseTagged(tagged string, sentiment Sentiment) Sentence {
	var b strings.Builder
	var tokens []Token
	for _, field := range strings.Fields(tagged) {
		parts := strings.SplitN(field, "/", 3)
		tok := Token{Word: parts[0]}
		if len(parts) > 1 {
			tok.Tag = parts[1]
		}
		if len(parts) > 2 {
			tok.Lemma = parts[2]
		} else {
			tok.Lemma = strings.ToLower(tok.Word)
		}
		if b.Len() > 0 && !IsPunctuation(tok) {
			b.WriteByte(' ')
		}
		tok.Start = b.Len()
		b.WriteString(tok.Word)
		tok.End = b.Len()
		tokens = append(tokens, tok)
	}
	return Sentence{Text: b.String(), Tokens: tokens, Sentiment: sentiment}
}

var punctuationTags = map[string]bool{
	".": true, ",": true, ":": true, "``": true, "''": true, "#": true, "$": true,
}

// IsPunctuation reports whether tok is a punctuation mark.
func IsPunctuation(tok Token) bool {
	if punctuationTags[tok.Tag] {
		return true
	}
	if tok.Word == "" {
		return false
	}
	return strings.Trim(tok.Word, ".,;:!?\"'`") == ""
}
