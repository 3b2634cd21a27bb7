package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chapterquiz/pkg/domain"
)

// MemoryStore keeps identities and chapters in-process. Used by tests and
// single-instance local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[int64]domain.Identity
	email      map[string]int64 // email -> identity ID
	chapters   map[int64]domain.Chapter
	orders     []int64 // chapter IDs in insertion order
	nextID     int64
	now        func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[int64]domain.Identity),
		email:      make(map[string]int64),
		chapters:   make(map[int64]domain.Chapter),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) CreateIdentity(_ context.Context, email, credentialHash string) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.email[email]; exists {
		return domain.Identity{}, ErrAlreadyRegistered
	}
	m.nextID++
	identity := domain.Identity{
		ID:             m.nextID,
		Email:          email,
		CredentialHash: credentialHash,
		CreatedAt:      m.now(),
	}
	m.identities[identity.ID] = identity
	m.email[email] = identity.ID
	return identity, nil
}

func (m *MemoryStore) HasEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetIdentityByEmail(_ context.Context, email string) (domain.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.Identity{}, false, nil
	}
	identity, ok := m.identities[id]
	return identity, ok, nil
}

func (m *MemoryStore) GetIdentityByID(_ context.Context, id int64) (domain.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[id]
	return identity, ok, nil
}

func (m *MemoryStore) CreateChapter(_ context.Context, ownerID int64, ch domain.NewChapter) (domain.Chapter, error) {
	if strings.TrimSpace(ch.Content) == "" {
		return domain.Chapter{}, ErrValidation
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[ownerID]; !ok {
		return domain.Chapter{}, ErrUnknownOwner
	}
	m.nextID++
	chapter := domain.Chapter{
		ID:           m.nextID,
		OwnerID:      ownerID,
		Title:        ch.Title,
		ISBN:         ch.ISBN,
		ChapterLabel: ch.ChapterLabel,
		Content:      ch.Content,
		CreatedAt:    m.now(),
	}
	m.chapters[chapter.ID] = chapter
	m.orders = append(m.orders, chapter.ID)
	return chapter, nil
}

func (m *MemoryStore) ListChaptersByOwner(_ context.Context, ownerID int64) ([]domain.ChapterSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChapterSummary, 0)
	for _, id := range m.orders {
		if ch, ok := m.chapters[id]; ok && ch.OwnerID == ownerID {
			res = append(res, ch.Summary())
		}
	}
	// Stable sort on insertion order keeps ties in the order they were saved.
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) GetChapter(_ context.Context, id, ownerID int64) (domain.Chapter, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.chapters[id]
	if !ok || ch.OwnerID != ownerID {
		return domain.Chapter{}, false, nil
	}
	return ch, true, nil
}
