package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chapterquiz/internal/util"
	"chapterquiz/pkg/ai"
	"chapterquiz/pkg/auth"
	"chapterquiz/pkg/domain"
	"chapterquiz/pkg/extract"
	"chapterquiz/pkg/storage"
	"chapterquiz/pkg/store"
)

const (
	QuizTemperature       float32 = 0.3
	CheatSheetTemperature float32 = 0.4
)

// Config wires the application's collaborators. Generator and Objects are
// optional.
type Config struct {
	Store     store.Store
	Sessions  store.SessionStore
	Hasher    auth.CredentialHasher
	Generator ai.Generator
	Objects   storage.ObjectStore
}

// App is the core application service: accounts, chapters and generation.
type App struct {
	store       store.Store
	sessions    store.SessionStore
	credentials *auth.CredentialStore
	generator   ai.Generator
	objects     storage.ObjectStore
	now         func() time.Time
}

// New validates cfg and builds the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.NewBcryptHasher(0)
	}
	return &App{
		store:       cfg.Store,
		sessions:    cfg.Sessions,
		credentials: auth.NewCredentialStore(cfg.Store, hasher),
		generator:   cfg.Generator,
		objects:     cfg.Objects,
		now:         time.Now,
	}, nil
}

// GenerationEnabled reports whether a provider is configured.
func (a *App) GenerationEnabled() bool {
	return a.generator != nil
}

// SignUp registers an identity and opens a session for it.
func (a *App) SignUp(ctx context.Context, email, password, confirmPassword string) (domain.Identity, string, error) {
	if password != confirmPassword {
		return domain.Identity{}, "", ErrPasswordMismatch
	}
	identity, err := a.credentials.Register(ctx, email, password)
	if err != nil {
		return domain.Identity{}, "", err
	}
	token, err := a.sessions.NewSession(ctx, identity.ID)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("create session: %w", err)
	}
	return identity, token, nil
}

// Login verifies credentials and opens a session.
func (a *App) Login(ctx context.Context, email, password string) (domain.Identity, string, error) {
	identity, err := a.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return domain.Identity{}, "", err
	}
	token, err := a.sessions.NewSession(ctx, identity.ID)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("create session: %w", err)
	}
	return identity, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(ctx context.Context, token string) error {
	return a.sessions.DeleteSession(ctx, token)
}

// IdentityFromToken resolves a session token to its identity.
func (a *App) IdentityFromToken(ctx context.Context, token string) (domain.Identity, error) {
	// Invalid, expired and revoked tokens all come back as errors. A revoker
	// outage also lands here and fails closed.
	id, ok, err := a.sessions.IdentityIDByToken(ctx, token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !ok {
		return domain.Identity{}, ErrUnauthorized
	}
	identity, ok, err := a.store.GetIdentityByID(ctx, id)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("load identity: %w", err)
	}
	if !ok {
		return domain.Identity{}, ErrUnauthorized
	}
	return identity, nil
}

// ChapterMeta is the optional descriptive data entered alongside content.
type ChapterMeta struct {
	Title        string
	ISBN         string
	ChapterLabel string
}

// Upload is a chapter source file received from a caller.
type Upload struct {
	Filename  string
	MediaType string
	Data      []byte
}

// SavedChapter is a stored chapter plus what extraction reported.
type SavedChapter struct {
	Chapter    domain.Chapter
	Extraction extract.Result
}

// SaveUpload extracts text from an uploaded file and stores it as a chapter.
// When object storage is configured the original file is archived; archive
// failures are logged and do not fail the save.
func (a *App) SaveUpload(ctx context.Context, owner domain.Identity, meta ChapterMeta, upload Upload) (SavedChapter, error) {
	kind := extract.DetectKind(upload.MediaType, upload.Filename, upload.Data)
	result, err := extract.Extract(upload.Data, kind)
	if err != nil {
		return SavedChapter{}, fmt.Errorf("extract %s: %w", upload.Filename, err)
	}
	chapter, err := a.createChapter(ctx, owner, meta, result.Text)
	if err != nil {
		return SavedChapter{}, err
	}
	logger := util.LoggerFromContext(ctx)
	if len(result.EmptyPages) > 0 {
		logger.Warn("pdf pages without text", "chapter_id", chapter.ID, "pages", result.EmptyPages)
	}
	a.archive(ctx, owner, chapter, upload, kind)
	return SavedChapter{Chapter: chapter, Extraction: result}, nil
}

// SavePaste stores pasted text byte-for-byte as a chapter.
func (a *App) SavePaste(ctx context.Context, owner domain.Identity, meta ChapterMeta, content string) (SavedChapter, error) {
	result := extract.FromPaste(content)
	chapter, err := a.createChapter(ctx, owner, meta, result.Text)
	if err != nil {
		return SavedChapter{}, err
	}
	return SavedChapter{Chapter: chapter, Extraction: result}, nil
}

func (a *App) createChapter(ctx context.Context, owner domain.Identity, meta ChapterMeta, content string) (domain.Chapter, error) {
	chapter, err := a.store.CreateChapter(ctx, owner.ID, domain.NewChapter{
		Title:        strings.TrimSpace(meta.Title),
		ISBN:         strings.TrimSpace(meta.ISBN),
		ChapterLabel: strings.TrimSpace(meta.ChapterLabel),
		Content:      content,
	})
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("save chapter: %w", err)
	}
	util.LoggerFromContext(ctx).Info("chapter saved", "chapter_id", chapter.ID, "owner_id", owner.ID, "chars", len([]rune(content)))
	return chapter, nil
}

func (a *App) archive(ctx context.Context, owner domain.Identity, chapter domain.Chapter, upload Upload, kind extract.Kind) {
	if a.objects == nil {
		return
	}
	key := storage.ArchiveKey(owner.ID, upload.Filename, a.now())
	contentType := mediaTypeFor(kind, upload.MediaType)
	if err := a.objects.Put(ctx, key, bytes.NewReader(upload.Data), int64(len(upload.Data)), contentType); err != nil {
		util.LoggerFromContext(ctx).Warn("archive upload failed", "chapter_id", chapter.ID, "key", key, "err", err)
		return
	}
	util.LoggerFromContext(ctx).Debug("upload archived", "chapter_id", chapter.ID, "key", key)
}

func mediaTypeFor(kind extract.Kind, declared string) string {
	switch kind {
	case extract.KindPDF:
		return extract.MediaTypePDF
	case extract.KindDOCX:
		return extract.MediaTypeDOCX
	case extract.KindText:
		return extract.MediaTypeText + "; charset=utf-8"
	}
	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}

// ListChapters returns the owner's chapters, newest first.
func (a *App) ListChapters(ctx context.Context, owner domain.Identity) ([]domain.ChapterSummary, error) {
	chapters, err := a.store.ListChaptersByOwner(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return chapters, nil
}

// GetChapter returns the chapter only if owner owns it.
func (a *App) GetChapter(ctx context.Context, owner domain.Identity, id int64) (domain.Chapter, error) {
	chapter, ok, err := a.store.GetChapter(ctx, id, owner.ID)
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("get chapter: %w", err)
	}
	if !ok {
		return domain.Chapter{}, ErrChapterNotFound
	}
	return chapter, nil
}
