// Package prompt builds the instruction text sent to the generation service.
//
// Source text longer than MaxSourceRunes is cut to its first MaxSourceRunes
// characters before it is embedded. The cut is reported through
// Payload.Truncated, never as an error.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"chapterquiz/pkg/domain"
)

// MaxSourceRunes bounds how much chapter text is embedded in one request.
const MaxSourceRunes = 15000

// ErrNoQuestionsRequested is returned when no question type ends up with a
// positive count.
var ErrNoQuestionsRequested = errors.New("select at least one question type with a count above zero")

// Payload is a fully built instruction for one generation call.
type Payload struct {
	Text string
	// Truncated reports that source text beyond MaxSourceRunes was dropped.
	Truncated bool
	// SourceRunes is the length of the untruncated source text in characters.
	SourceRunes int
}

// BuildQuiz assembles the quiz instruction. A type contributes a requirement
// line only when it is selected and its count is positive.
func BuildQuiz(req domain.QuizRequest) (Payload, error) {
	requirements := quizRequirements(req)
	if len(requirements) == 0 {
		return Payload{}, ErrNoQuestionsRequested
	}
	source, truncated, total := truncate(req.SourceText)
	text := fmt.Sprintf(`You are an expert teacher.

Create quiz questions ONLY from the text below.
Chapter: %s
Difficulty: %s

TEXT:
"""%s"""

Requirements:
%s

Format them clearly with headings:

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
`, req.ChapterLabel, req.Difficulty, source, strings.Join(requirements, "\n"))
	return Payload{Text: text, Truncated: truncated, SourceRunes: total}, nil
}

func quizRequirements(req domain.QuizRequest) []string {
	qt := req.QuestionType
	if qt == "" {
		qt = domain.QuestionMixed
	}
	var lines []string
	if qt.Includes(domain.QuestionMCQ) && req.CountMCQ > 0 {
		lines = append(lines, fmt.Sprintf("- %d multiple-choice questions with 1 correct answer and 3 plausible distractors.", req.CountMCQ))
	}
	if qt.Includes(domain.QuestionSubjective) && req.CountSubjective > 0 {
		lines = append(lines, fmt.Sprintf("- %d subjective (short-answer / open-ended) questions.", req.CountSubjective))
	}
	if qt.Includes(domain.QuestionTF) && req.CountTF > 0 {
		lines = append(lines, fmt.Sprintf("- %d True/False questions with the correct answer indicated.", req.CountTF))
	}
	return lines
}

// BuildCheatSheet assembles the cheat sheet instruction.
func BuildCheatSheet(req domain.CheatSheetRequest) Payload {
	source, truncated, total := truncate(req.SourceText)
	text := fmt.Sprintf(`You are an expert educator.

Summarize the chapter into a cheat sheet for students.

Chapter: %s
Level: %s

Use the text below and create:

- A short overview (2–3 sentences)
- 5–15 bullet points of the MOST important ideas
- Definitions of key terms (if present)
- Optional: small example or analogy where helpful

Keep it student-friendly and concise.

TEXT:
"""%s"""
`, req.ChapterLabel, req.Level, source)
	return Payload{Text: text, Truncated: truncated, SourceRunes: total}
}

// truncate keeps the first MaxSourceRunes characters of s.
func truncate(s string) (string, bool, int) {
	total := utf8.RuneCountInString(s)
	if total <= MaxSourceRunes {
		return s, false, total
	}
	count := 0
	for i := range s {
		if count == MaxSourceRunes {
			return s[:i], true, total
		}
		count++
	}
	return s, false, total
}
