package store

import (
	"time"

	"chapterquiz/pkg/domain"
)

// GORM models used for persistence.
type IdentityModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Email          string    `gorm:"uniqueIndex;not null"`
	CredentialHash string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (IdentityModel) TableName() string { return "identities" }

type ChapterModel struct {
	ID           int64         `gorm:"primaryKey;autoIncrement"`
	OwnerID      int64         `gorm:"not null;index:idx_chapters_owner_created,priority:1"`
	Owner        IdentityModel `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT"`
	Title        string
	ISBN         string `gorm:"column:isbn"`
	ChapterLabel string
	Content      string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_chapters_owner_created,priority:2"`
}

func (ChapterModel) TableName() string { return "chapters" }

// chapterSummaryRow is the list projection; it has no content column.
type chapterSummaryRow struct {
	ID           int64
	OwnerID      int64
	Title        string
	ISBN         string `gorm:"column:isbn"`
	ChapterLabel string
	CreatedAt    time.Time
}

func identityFromModel(m IdentityModel) domain.Identity {
	return domain.Identity{
		ID:             m.ID,
		Email:          m.Email,
		CredentialHash: m.CredentialHash,
		CreatedAt:      m.CreatedAt,
	}
}

func chapterFromModel(m ChapterModel) domain.Chapter {
	return domain.Chapter{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		Title:        m.Title,
		ISBN:         m.ISBN,
		ChapterLabel: m.ChapterLabel,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
	}
}

func summaryFromRow(r chapterSummaryRow) domain.ChapterSummary {
	return domain.ChapterSummary{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Title:        r.Title,
		ISBN:         r.ISBN,
		ChapterLabel: r.ChapterLabel,
		CreatedAt:    r.CreatedAt,
	}
}
