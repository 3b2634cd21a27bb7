package prompt

import (
	"errors"
	"strings"
	"testing"

	"chapterquiz/pkg/domain"
)

func requirementLines(t *testing.T, text string) []string {
	t.Helper()
	start := strings.Index(text, "Requirements:\n")
	end := strings.Index(text, "\n\nFormat them clearly")
	if start < 0 || end < 0 || end < start {
		t.Fatalf("requirements block not found in %q", text)
	}
	block := text[start+len("Requirements:\n") : end]
	return strings.Split(block, "\n")
}

func TestBuildQuizOmitsZeroCountTypes(t *testing.T) {
	p, err := BuildQuiz(domain.QuizRequest{
		SourceText:      "Cells are the basic unit of life.",
		ChapterLabel:    "Chapter 1",
		Difficulty:      domain.DifficultyMedium,
		QuestionType:    domain.QuestionMixed,
		CountMCQ:        5,
		CountSubjective: 0,
		CountTF:         2,
	})
	if err != nil {
		t.Fatalf("build quiz: %v", err)
	}
	lines := requirementLines(t, p.Text)
	if len(lines) != 2 {
		t.Fatalf("requirement lines = %q, want 2", lines)
	}
	if lines[0] != "- 5 multiple-choice questions with 1 correct answer and 3 plausible distractors." {
		t.Fatalf("mcq line = %q", lines[0])
	}
	if lines[1] != "- 2 True/False questions with the correct answer indicated." {
		t.Fatalf("tf line = %q", lines[1])
	}
	if strings.Contains(p.Text, "subjective (short-answer") {
		t.Fatalf("subjective requirement should be omitted")
	}
	if !strings.Contains(p.Text, "Chapter: Chapter 1\nDifficulty: Medium\n") {
		t.Fatalf("missing chapter/difficulty lines in %q", p.Text)
	}
	const formatBlock = `Format them clearly with headings:

## Multiple Choice
Q1. ...
A. ...
B. ...
C. ...
D. ...
Correct: B

## Subjective
Q1. ...
Answer (for teacher only): ...

## True/False
Q1. Statement...
Answer: True
`
	if !strings.HasSuffix(p.Text, formatBlock) {
		t.Fatalf("format section drifted: %q", p.Text)
	}
}

func TestBuildQuizHonorsSelectedType(t *testing.T) {
	p, err := BuildQuiz(domain.QuizRequest{
		SourceText:      "x",
		QuestionType:    domain.QuestionSubjective,
		CountMCQ:        5,
		CountSubjective: 3,
		CountTF:         2,
	})
	if err != nil {
		t.Fatalf("build quiz: %v", err)
	}
	lines := requirementLines(t, p.Text)
	if len(lines) != 1 || lines[0] != "- 3 subjective (short-answer / open-ended) questions." {
		t.Fatalf("requirement lines = %q", lines)
	}
}

func TestBuildQuizNothingRequested(t *testing.T) {
	_, err := BuildQuiz(domain.QuizRequest{SourceText: "x", QuestionType: domain.QuestionTF, CountMCQ: 4})
	if !errors.Is(err, ErrNoQuestionsRequested) {
		t.Fatalf("err = %v, want ErrNoQuestionsRequested", err)
	}
}

func TestBuildQuizTruncatesSource(t *testing.T) {
	head := strings.Repeat("a", MaxSourceRunes)
	tail := strings.Repeat("b", 5000)
	p, err := BuildQuiz(domain.QuizRequest{SourceText: head + tail, CountMCQ: 1})
	if err != nil {
		t.Fatalf("build quiz: %v", err)
	}
	if !strings.Contains(p.Text, `"""`+head+`"""`) {
		t.Fatalf("payload does not embed exactly the first %d characters", MaxSourceRunes)
	}
	if strings.Contains(p.Text, "bbbb") {
		t.Fatalf("payload leaks characters past the limit")
	}
	if !p.Truncated || p.SourceRunes != 20000 {
		t.Fatalf("truncated=%v sourceRunes=%d, want true/20000", p.Truncated, p.SourceRunes)
	}
}

func TestTruncateCountsCharactersNotBytes(t *testing.T) {
	src := strings.Repeat("é", MaxSourceRunes) + "ü"
	got, truncated, total := truncate(src)
	if !truncated || total != MaxSourceRunes+1 {
		t.Fatalf("truncated=%v total=%d", truncated, total)
	}
	if got != strings.Repeat("é", MaxSourceRunes) {
		t.Fatalf("unexpected truncated text length %d bytes", len(got))
	}
}

func TestTruncateExactLimitIsUntouched(t *testing.T) {
	src := strings.Repeat("z", MaxSourceRunes)
	got, truncated, total := truncate(src)
	if truncated || got != src || total != MaxSourceRunes {
		t.Fatalf("truncated=%v total=%d", truncated, total)
	}
}

func TestBuildCheatSheet(t *testing.T) {
	p := BuildCheatSheet(domain.CheatSheetRequest{
		SourceText:   "Mitochondria produce ATP.",
		ChapterLabel: "Chapter 4",
		Level:        domain.LevelHighSchool,
	})
	for _, want := range []string{
		"Chapter: Chapter 4\nLevel: High School\n",
		"- A short overview (2–3 sentences)",
		"- 5–15 bullet points of the MOST important ideas",
		"- Definitions of key terms (if present)",
		"- Optional: small example or analogy where helpful",
		`"""Mitochondria produce ATP."""`,
	} {
		if !strings.Contains(p.Text, want) {
			t.Fatalf("cheat sheet payload missing %q", want)
		}
	}
	if p.Truncated {
		t.Fatalf("short source should not be truncated")
	}
}

func TestBuildCheatSheetTruncates(t *testing.T) {
	p := BuildCheatSheet(domain.CheatSheetRequest{SourceText: strings.Repeat("q", 20000)})
	if !p.Truncated || strings.Count(p.Text, "q") < MaxSourceRunes {
		t.Fatalf("expected truncated payload")
	}
	if !strings.Contains(p.Text, `"""`+strings.Repeat("q", MaxSourceRunes)+`"""`) {
		t.Fatalf("payload does not embed exactly the first %d characters", MaxSourceRunes)
	}
}
