package domain

import "time"

// Identity is a registered owner. Identities are never updated once created.
type Identity struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	CredentialHash string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Chapter is a unit of source text owned by exactly one identity.
type Chapter struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"ownerId"`
	Title        string    `json:"title"`
	ISBN         string    `json:"isbn"`
	ChapterLabel string    `json:"chapterLabel"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ChapterSummary is the list view of a chapter; it never carries content.
type ChapterSummary struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"ownerId"`
	Title        string    `json:"title"`
	ISBN         string    `json:"isbn"`
	ChapterLabel string    `json:"chapterLabel"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary drops the chapter body.
func (c Chapter) Summary() ChapterSummary {
	return ChapterSummary{
		ID:           c.ID,
		OwnerID:      c.OwnerID,
		Title:        c.Title,
		ISBN:         c.ISBN,
		ChapterLabel: c.ChapterLabel,
		CreatedAt:    c.CreatedAt,
	}
}

// NewChapter holds the caller-supplied fields of a chapter before it is stored.
type NewChapter struct {
	Title        string
	ISBN         string
	ChapterLabel string
	Content      string
}

type QuestionType string

const (
	QuestionMCQ        QuestionType = "MCQ"
	QuestionSubjective QuestionType = "Subjective"
	QuestionTF         QuestionType = "TF"
	QuestionMixed      QuestionType = "Mixed"
)

// ParseQuestionType accepts the four known question types; empty means Mixed.
func ParseQuestionType(raw string) (QuestionType, bool) {
	switch QuestionType(raw) {
	case QuestionMCQ, QuestionSubjective, QuestionTF, QuestionMixed:
		return QuestionType(raw), true
	case "":
		return QuestionMixed, true
	default:
		return "", false
	}
}

// Includes reports whether questions of type t are requested under q.
func (q QuestionType) Includes(t QuestionType) bool {
	return q == t || q == QuestionMixed
}

const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"

	LevelMiddleSchool  = "Middle School"
	LevelHighSchool    = "High School"
	LevelUndergraduate = "Undergraduate"
	LevelGraduate      = "Graduate"
)

// Difficulties and Levels list the values offered to callers, in display order.
var (
	Difficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyHard}
	Levels       = []string{LevelMiddleSchool, LevelHighSchool, LevelUndergraduate, LevelGraduate}
)

// QuizRequest describes one quiz generation. It is never persisted.
type QuizRequest struct {
	SourceText      string
	ChapterLabel    string
	Difficulty      string
	QuestionType    QuestionType
	CountMCQ        int
	CountSubjective int
	CountTF         int
}

// CheatSheetRequest describes one cheat sheet generation. It is never persisted.
type CheatSheetRequest struct {
	SourceText   string
	ChapterLabel string
	Level        string
}
