package store

import (
	"context"
	"errors"

	"chapterquiz/pkg/domain"
)

var (
	// ErrAlreadyRegistered is returned when an email already belongs to an identity.
	ErrAlreadyRegistered = errors.New("Email already registered.")
	// ErrValidation is returned when chapter content is empty after trimming.
	ErrValidation = errors.New("chapter content is required")
	// ErrUnknownOwner is returned when a chapter references a missing identity.
	ErrUnknownOwner = errors.New("chapter owner does not exist")
)

// Store persists identities and chapters. Every chapter read is scoped to an
// owner; a chapter id alone never grants access.
type Store interface {
	// identities
	CreateIdentity(ctx context.Context, email, credentialHash string) (domain.Identity, error)
	HasEmail(ctx context.Context, email string) (bool, error)
	GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, bool, error)
	GetIdentityByID(ctx context.Context, id int64) (domain.Identity, bool, error)

	// chapters
	CreateChapter(ctx context.Context, ownerID int64, ch domain.NewChapter) (domain.Chapter, error)
	ListChaptersByOwner(ctx context.Context, ownerID int64) ([]domain.ChapterSummary, error)
	GetChapter(ctx context.Context, id, ownerID int64) (domain.Chapter, bool, error)
}

// SessionStore issues and resolves login tokens.
type SessionStore interface {
	NewSession(ctx context.Context, identityID int64) (string, error)
	IdentityIDByToken(ctx context.Context, token string) (int64, bool, error)
	DeleteSession(ctx context.Context, token string) error
}
