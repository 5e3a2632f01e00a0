// Package learning extracts vocabulary and questions from training text.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/learnbot/internal/annotate"
	"github.com/kalambet/learnbot/internal/pools"
)

var nounTags = map[string]bool{"NN": true, "NNS": true, "NNP": true, "NNPS": true}

var verbTags = map[string]bool{"VB": true, "VBD": true, "VBG": true, "VBN": true, "VBP": true, "VBZ": true}

var bracketReplacer = strings.NewReplacer("-LRB-", "(", "-RRB-", ")")

// Result is the union of existing and newly extracted material.
type Result struct {
	Words     pools.Set
	Questions pools.Set
}

// Extractor turns a corpus into nouns and "Do you ...?" questions.
type Extractor struct {
	annotator annotate.Annotator
	logger    *slog.Logger
}

// NewExtractor creates an Extractor backed by annotator.
func NewExtractor(annotator annotate.Annotator) *Extractor {
	return &Extractor{
		annotator: annotator,
		logger:    slog.Default(),
	}
}

// Extract annotates corpus and returns existingWords and existingQuestions
// extended with what the corpus contributes. The inputs are not modified.
// Blank input yields the existing sets unchanged.
func (e *Extractor) Extract(ctx context.Context, corpus, category string, existingWords, existingQuestions pools.Set) (Result, error) {
	res := Result{
		Words:     existingWords.Clone(),
		Questions: existingQuestions.Clone(),
	}
	if strings.TrimSpace(corpus) == "" {
		return res, nil
	}

	sentences, err := e.annotator.Annotate(ctx, corpus)
	if err != nil {
		return Result{}, fmt.Errorf("annotating corpus for %q: %w", category, err)
	}

	var added int
	for _, s := range sentences {
		words, question := scanSentence(s)
		for _, w := range words {
			if !res.Words.Has(w) {
				res.Words.Add(w)
				added++
			}
		}
		if question != "" && !res.Questions.Has(question) {
			res.Questions.Add(question)
			added++
		}
	}

	e.logger.Debug("extracted corpus", "category", category, "sentences", len(sentences), "added", added)
	return res, nil
}

// scanSentence collects the nouns of s and the question built from its
// first verb. A form of "be" uses up the verb slot without a question.
func scanSentence(s annotate.Sentence) (words []string, question string) {
	verbSeen := false
	for i, tok := range s.Tokens {
		switch {
		case nounTags[tok.Tag]:
			if w := pools.NormalizeWord(tok.Word); w != "" {
				words = append(words, w)
			}
		case verbTags[tok.Tag] && !verbSeen:
			verbSeen = true
			lemma := pools.NormalizeWord(tok.Lemma)
			if lemma == "" {
				lemma = pools.NormalizeWord(tok.Word)
			}
			if lemma == "be" {
				continue
			}
			question = buildQuestion(s, i, lemma)
		}
	}
	return words, question
}

func buildQuestion(s annotate.Sentence, verb int, lemma string) string {
	end := len(s.Text)
	for j := len(s.Tokens) - 1; j > verb && annotate.IsPunctuation(s.Tokens[j]); j-- {
		end = s.Tokens[j].Start
	}
	remainder := strings.TrimSpace(bracketReplacer.Replace(s.Substring(s.Tokens[verb].End, end)))
	if remainder == "" {
		return ""
	}
	return fmt.Sprintf("Do you %s %s?", lemma, remainder)
}
