package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/civictrack/civictrack-backend/internal/session/domain"
	"github.com/civictrack/civictrack-backend/pkg/kvstore"
)

// Storage keys, suffixed with ":<user id>", ":<lowercased email>" and ":<token id>".
// EmailKey maps an email to the id of the user that owns it.
const (
	UserKey       = "civictrack_user"
	EmailKey      = "civictrack_user_email"
	CredentialKey = "civictrack_credentials"
	SessionKey    = "civictrack_session"
)

// ErrCorrupt is returned when a stored value cannot be decoded. The value
// has already been removed.
var ErrCorrupt = errors.New("corrupt session record")

// UserRepository persists users and credentials in the key-value store
type UserRepository struct {
	store kvstore.Store
}

// NewUserRepository creates a new user repository
func NewUserRepository(store kvstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

// GetUser loads a user. A missing user returns kvstore.ErrNotFound.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := r.load(ctx, userKey(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUser writes the user record and points its email at it
func (r *UserRepository) SaveUser(ctx context.Context, u *domain.User) error {
	if err := kvstore.SetJSON(ctx, r.store, userKey(u.ID), u); err != nil {
		return err
	}
	return kvstore.SetJSON(ctx, r.store, emailKey(u.Email), u.ID)
}

// GetUserByEmail loads the user that owns email. A stale index entry
// returns kvstore.ErrNotFound.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var id string
	if err := r.load(ctx, emailKey(email), &id); err != nil {
		return nil, err
	}
	u, err := r.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(u.Email), strings.TrimSpace(email)) {
		return nil, kvstore.ErrNotFound
	}
	return u, nil
}

// ReleaseEmail drops the email index entry if it still points at userID
func (r *UserRepository) ReleaseEmail(ctx context.Context, email, userID string) error {
	var id string
	if err := r.load(ctx, emailKey(email), &id); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) || errors.Is(err, ErrCorrupt) {
			return nil
		}
		return err
	}
	if id != userID {
		return nil
	}
	return r.store.Delete(ctx, emailKey(email))
}

// DeleteUser removes the user record
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	return r.store.Delete(ctx, userKey(id))
}

// GetCredential loads the credential for email
func (r *UserRepository) GetCredential(ctx context.Context, email string) (*domain.Credential, error) {
	var c domain.Credential
	if err := r.load(ctx, credentialKey(email), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCredential writes the credential
func (r *UserRepository) SaveCredential(ctx context.Context, c *domain.Credential) error {
	return kvstore.SetJSON(ctx, r.store, credentialKey(c.Email), c)
}

// GetSession loads a session by token id
func (r *UserRepository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var sess domain.Session
	if err := r.load(ctx, SessionKey+":"+id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SaveSession writes the session
func (r *UserRepository) SaveSession(ctx context.Context, sess *domain.Session) error {
	return kvstore.SetJSON(ctx, r.store, SessionKey+":"+sess.ID, sess)
}

// DeleteSession revokes the session
func (r *UserRepository) DeleteSession(ctx context.Context, id string) error {
	return r.store.Delete(ctx, SessionKey+":"+id)
}

// DeleteCredential removes the credential for email
func (r *UserRepository) DeleteCredential(ctx context.Context, email string) error {
	return r.store.Delete(ctx, credentialKey(email))
}

func (r *UserRepository) load(ctx context.Context, key string, v interface{}) error {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		_ = r.store.Delete(ctx, key)
		return ErrCorrupt
	}
	return nil
}

func userKey(id string) string {
	return UserKey + ":" + id
}

func emailKey(email string) string {
	return EmailKey + ":" + normalizeEmail(email)
}

func credentialKey(email string) string {
	return CredentialKey + ":" + normalizeEmail(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
