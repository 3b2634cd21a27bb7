package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chapterquiz/pkg/domain"
	"chapterquiz/pkg/store"
)

var (
	// ErrInvalidCredentials never reveals whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")
	// ErrAlreadyRegistered is surfaced verbatim to the caller on signup.
	ErrAlreadyRegistered = store.ErrAlreadyRegistered
	ErrEmailRequired     = errors.New("email is required")
	ErrPasswordRequired  = errors.New("password is required")
)

// IdentityStore is the persistence CredentialStore needs.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, email, credentialHash string) (domain.Identity, error)
	HasEmail(ctx context.Context, email string) (bool, error)
	GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, bool, error)
}

// CredentialStore registers and authenticates owners by email.
type CredentialStore struct {
	identities IdentityStore
	hasher     CredentialHasher
}

func NewCredentialStore(identities IdentityStore, hasher CredentialHasher) *CredentialStore {
	return &CredentialStore{identities: identities, hasher: hasher}
}

// Register stores a new identity with a hashed password. The email is kept
// exactly as given apart from surrounding whitespace.
func (c *CredentialStore) Register(ctx context.Context, email, password string) (domain.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.Identity{}, ErrEmailRequired
	}
	if password == "" {
		return domain.Identity{}, ErrPasswordRequired
	}
	exists, err := c.identities.HasEmail(ctx, email)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Identity{}, ErrAlreadyRegistered
	}
	hash, err := c.hasher.Hash(password)
	if err != nil {
		return domain.Identity{}, err
	}
	identity, err := c.identities.CreateIdentity(ctx, email, hash)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyRegistered) {
			return domain.Identity{}, ErrAlreadyRegistered
		}
		return domain.Identity{}, fmt.Errorf("save identity: %w", err)
	}
	return identity, nil
}

// Authenticate returns the identity only when password verifies against the
// stored hash. Unknown email and wrong password both yield ErrInvalidCredentials.
func (c *CredentialStore) Authenticate(ctx context.Context, email, password string) (domain.Identity, error) {
	identity, ok, err := c.identities.GetIdentityByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !ok || !c.hasher.Verify(identity.CredentialHash, password) {
		return domain.Identity{}, ErrInvalidCredentials
	}
	return identity, nil
}
