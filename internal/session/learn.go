package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/learnbot/internal/profile"
)

// LearnRequest feeds a corpus to a bot under a category. An empty Bot
// means the currently selected bot.
type LearnRequest struct {
	Bot      string `json:"bot,omitempty"`
	Category string `json:"category"`
	Corpus   string `json:"corpus"`
}

// LearnResult reports what a corpus added.
type LearnResult struct {
	Bot            string `json:"bot"`
	Category       string `json:"category"`
	AddedWords     int    `json:"added_words"`
	AddedQuestions int    `json:"added_questions"`
	Words          int    `json:"words"`
	Questions      int    `json:"questions"`
}

// Learn extracts material from req.Corpus and merges it into the bot's
// persisted pools. When the bot is the selected one, the in-memory pools
// are merged too. A corpus the annotator rejects leaves everything
// unchanged and returns an error wrapping annotate.ErrCorpusFormat.
func (s *Session) Learn(ctx context.Context, req LearnRequest) (LearnResult, error) {
	category := strings.TrimSpace(req.Category)
	if err := profile.ValidateCategory(category); err != nil {
		return LearnResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	botName := req.Bot
	if botName == "" {
		botName = s.bot
	}
	if err := profile.ValidateName(botName); err != nil {
		return LearnResult{}, err
	}

	bot, err := s.profiles.LoadBot(botName)
	if err != nil {
		return LearnResult{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	words, questions := bot.Words.Get(category), bot.Questions.Get(category)

	res, err := s.extractor.Extract(ctx, req.Corpus, category, words, questions)
	if err != nil {
		return LearnResult{}, err
	}

	out := LearnResult{
		Bot:            botName,
		Category:       category,
		AddedWords:     res.Words.Len() - words.Len(),
		AddedQuestions: res.Questions.Len() - questions.Len(),
		Words:          res.Words.Len(),
		Questions:      res.Questions.Len(),
	}

	bot.Categories.Add(category)
	bot.Words[category] = res.Words
	bot.Questions[category] = res.Questions
	if err := s.profiles.SaveBotCategory(bot, category); err != nil {
		return LearnResult{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := s.profiles.Register(profile.KindBot, botName); err != nil {
		return LearnResult{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if botName == s.bot {
		s.pools.Merge(category, res.Words, res.Questions)
	}
	s.logger.Info("learned corpus",
		"bot", botName,
		"category", category,
		"added_words", out.AddedWords,
		"added_questions", out.AddedQuestions,
	)
	return out, nil
}
