package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"chapterquiz/pkg/domain"
)

// DefaultDSN is the local SQLite database used when no DSN is configured.
const DefaultDSN = "chapterquiz.db"

// GormStore implements Store using GORM on Postgres or SQLite.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens the DB and runs auto-migrations. DSNs that look like
// Postgres connection strings use the Postgres driver; anything else is
// treated as a SQLite path (":memory:" included).
func NewGormStore(dsn string) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultDSN
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{Logger: gormLog, TranslateError: true}

	var (
		db  *gorm.DB
		err error
	)
	if isPostgresDSN(dsn) {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		db, err = gorm.Open(sqlite.Open(sqliteDSN(dsn)), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if !isPostgresDSN(dsn) {
		// One connection keeps ":memory:" databases shared and the
		// foreign_keys pragma in effect for every statement.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&IdentityModel{}, &ChapterModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateIdentity inserts a new identity. A duplicate email, whether caught by
// the pre-check or by the unique index, yields ErrAlreadyRegistered.
func (s *GormStore) CreateIdentity(ctx context.Context, email, credentialHash string) (domain.Identity, error) {
	exists, err := s.HasEmail(ctx, email)
	if err != nil {
		return domain.Identity{}, err
	}
	if exists {
		return domain.Identity{}, ErrAlreadyRegistered
	}
	model := IdentityModel{
		Email:          email,
		CredentialHash: credentialHash,
		CreatedAt:      s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Identity{}, ErrAlreadyRegistered
		}
		return domain.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return identityFromModel(model), nil
}

// HasEmail checks if email exists. Comparison is exact.
func (s *GormStore) HasEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&IdentityModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count identities: %w", err)
	}
	return count > 0, nil
}

// GetIdentityByEmail looks up an identity by email.
func (s *GormStore) GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, bool, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// GetIdentityByID returns an identity by ID.
func (s *GormStore) GetIdentityByID(ctx context.Context, id int64) (domain.Identity, bool, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// CreateChapter stores content exactly as given and stamps the UTC time.
func (s *GormStore) CreateChapter(ctx context.Context, ownerID int64, ch domain.NewChapter) (domain.Chapter, error) {
	if strings.TrimSpace(ch.Content) == "" {
		return domain.Chapter{}, ErrValidation
	}
	if _, ok, err := s.GetIdentityByID(ctx, ownerID); err != nil {
		return domain.Chapter{}, err
	} else if !ok {
		return domain.Chapter{}, ErrUnknownOwner
	}
	model := ChapterModel{
		OwnerID:      ownerID,
		Title:        ch.Title,
		ISBN:         ch.ISBN,
		ChapterLabel: ch.ChapterLabel,
		Content:      ch.Content,
		CreatedAt:    s.now(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return domain.Chapter{}, ErrUnknownOwner
		}
		return domain.Chapter{}, fmt.Errorf("create chapter: %w", err)
	}
	return chapterFromModel(model), nil
}

// ListChaptersByOwner returns summaries newest first. Chapters created at the
// same instant keep insertion order.
func (s *GormStore) ListChaptersByOwner(ctx context.Context, ownerID int64) ([]domain.ChapterSummary, error) {
	var rows []chapterSummaryRow
	err := s.db.WithContext(ctx).
		Model(&ChapterModel{}).
		Select("id", "owner_id", "title", "isbn", "chapter_label", "created_at").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	res := make([]domain.ChapterSummary, 0, len(rows))
	for _, r := range rows {
		res = append(res, summaryFromRow(r))
	}
	return res, nil
}

// GetChapter returns the chapter only when it belongs to ownerID.
func (s *GormStore) GetChapter(ctx context.Context, id, ownerID int64) (domain.Chapter, bool, error) {
	var model ChapterModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Chapter{}, false, nil
		}
		return domain.Chapter{}, false, err
	}
	return chapterFromModel(model), true, nil
}
