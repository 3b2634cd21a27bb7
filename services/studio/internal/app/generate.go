package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"chapterquiz/internal/util"
	"chapterquiz/pkg/ai"
	"chapterquiz/pkg/domain"
	"chapterquiz/pkg/prompt"
)

const (
	DefaultCountMCQ        = 5
	DefaultCountSubjective = 3
	DefaultCountTF         = 2
	MaxQuestionCount       = 50
)

// QuizOptions are the caller-chosen quiz parameters. Nil counts take the
// defaults.
type QuizOptions struct {
	Difficulty      string
	QuestionType    string
	CountMCQ        *int
	CountSubjective *int
	CountTF         *int
}

// CheatSheetOptions are the caller-chosen cheat sheet parameters.
type CheatSheetOptions struct {
	Level string
}

// Generation is one generated artifact. Text is free-form and never parsed.
type Generation struct {
	Chapter     domain.ChapterSummary
	Text        string
	Truncated   bool
	SourceChars int
}

// GenerateQuiz builds a quiz from one of owner's chapters.
func (a *App) GenerateQuiz(ctx context.Context, owner domain.Identity, chapterID int64, opts QuizOptions) (Generation, error) {
	req, err := opts.request()
	if err != nil {
		return Generation{}, err
	}
	if a.generator == nil {
		return Generation{}, ErrGeneratorUnavailable
	}
	chapter, err := a.GetChapter(ctx, owner, chapterID)
	if err != nil {
		return Generation{}, err
	}
	req.SourceText = chapter.Content
	req.ChapterLabel = chapter.ChapterLabel
	payload, err := prompt.BuildQuiz(req)
	if err != nil {
		return Generation{}, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	return a.generate(ctx, "quiz", chapter, payload, QuizTemperature)
}

// GenerateCheatSheet builds a cheat sheet from one of owner's chapters.
func (a *App) GenerateCheatSheet(ctx context.Context, owner domain.Identity, chapterID int64, opts CheatSheetOptions) (Generation, error) {
	level, err := pick("level", opts.Level, domain.LevelUndergraduate, domain.Levels)
	if err != nil {
		return Generation{}, err
	}
	if a.generator == nil {
		return Generation{}, ErrGeneratorUnavailable
	}
	chapter, err := a.GetChapter(ctx, owner, chapterID)
	if err != nil {
		return Generation{}, err
	}
	payload := prompt.BuildCheatSheet(domain.CheatSheetRequest{
		SourceText:   chapter.Content,
		ChapterLabel: chapter.ChapterLabel,
		Level:        level,
	})
	return a.generate(ctx, "cheat_sheet", chapter, payload, CheatSheetTemperature)
}

func (a *App) generate(ctx context.Context, artifact string, chapter domain.Chapter, payload prompt.Payload, temperature float32) (Generation, error) {
	logger := util.LoggerFromContext(ctx).With("artifact", artifact, "chapter_id", chapter.ID)
	if payload.Truncated {
		logger.Info("source text truncated", "source_chars", payload.SourceRunes, "kept_chars", prompt.MaxSourceRunes)
	}
	text, err := a.generator.Generate(ctx, payload.Text, temperature)
	if err != nil {
		logger.Error("generation failed", "err", err)
		if !errors.Is(err, ai.ErrGenerationFailed) {
			err = &ai.GenerationError{Provider: "generator", Attempts: 1, Err: err}
		}
		return Generation{}, fmt.Errorf("generate %s: %w", artifact, err)
	}
	logger.Info("generation completed", "chars", len([]rune(text)))
	return Generation{
		Chapter:     chapter.Summary(),
		Text:        text,
		Truncated:   payload.Truncated,
		SourceChars: payload.SourceRunes,
	}, nil
}

func (o QuizOptions) request() (domain.QuizRequest, error) {
	difficulty, err := pick("difficulty", o.Difficulty, domain.DifficultyMedium, domain.Difficulties)
	if err != nil {
		return domain.QuizRequest{}, err
	}
	qt, ok := domain.ParseQuestionType(strings.TrimSpace(o.QuestionType))
	if !ok {
		return domain.QuizRequest{}, fmt.Errorf("%w: question type %q", ErrInvalidOption, o.QuestionType)
	}
	req := domain.QuizRequest{Difficulty: difficulty, QuestionType: qt}
	counts := []struct {
		name string
		in   *int
		def  int
		out  *int
	}{
		{"countMcq", o.CountMCQ, DefaultCountMCQ, &req.CountMCQ},
		{"countSubjective", o.CountSubjective, DefaultCountSubjective, &req.CountSubjective},
		{"countTf", o.CountTF, DefaultCountTF, &req.CountTF},
	}
	for _, c := range counts {
		n := c.def
		if c.in != nil {
			n = *c.in
		}
		if n < 0 || n > MaxQuestionCount {
			return domain.QuizRequest{}, fmt.Errorf("%w: %s must be between 0 and %d", ErrInvalidOption, c.name, MaxQuestionCount)
		}
		*c.out = n
	}
	return req, nil
}

func pick(name, value, def string, allowed []string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	if !slices.Contains(allowed, value) {
		return "", fmt.Errorf("%w: %s must be one of %s", ErrInvalidOption, name, strings.Join(allowed, ", "))
	}
	return value, nil
}
