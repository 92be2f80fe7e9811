package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/civictrack/civictrack-backend/internal/notification/domain"
	sessiondomain "github.com/civictrack/civictrack-backend/internal/session/domain"
	"github.com/civictrack/civictrack-backend/internal/session/jwt"
	"github.com/civictrack/civictrack-backend/internal/session/repository"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	pkgerrors "github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/httputil"
	"github.com/civictrack/civictrack-backend/pkg/kvstore"
	"github.com/civictrack/civictrack-backend/pkg/logger"
)

// Google sign-in returns this fixed account
const (
	GoogleName   = "John Doe"
	GoogleEmail  = "john.doe@gmail.com"
	GoogleAvatar = "/placeholder-user.jpg"
)

// Sink receives the confirmation messages shown after each action
type Sink interface {
	Notify(ctx context.Context, event domain.Event)
}

// SessionService signs users in and out and keeps their profile
type SessionService struct {
	users  *repository.UserRepository
	tokens *jwt.Manager
	sink   Sink
	delay  time.Duration
	logger *logger.Logger
	now    func() time.Time

	mu     sync.Mutex
	lastID int64
}

// NewSessionService creates a new session service. delay simulates the
// latency of an identity provider; sink may be nil.
func NewSessionService(users *repository.UserRepository, tokens *jwt.Manager, sink Sink, delay time.Duration, log *logger.Logger) *SessionService {
	return &SessionService{
		users:  users,
		tokens: tokens,
		sink:   sink,
		delay:  delay,
		logger: log.WithComponent("session"),
		now:    time.Now,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest represents a signup request
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Language string `json:"language,omitempty" validate:"omitempty,min=2,max=10"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	User      *sessiondomain.User `json:"user"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expiresAt"`
	TokenType string              `json:"tokenType"`
}

// Login signs in with email and password. An email registered through
// Signup must present the matching password; any other email is accepted,
// reusing the account it signed in with before.
func (s *SessionService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if err := httputil.Validate(req); err != nil {
		return nil, err
	}
	if err := s.wait(ctx, s.delay); err != nil {
		return nil, err
	}

	user, err := s.registeredUser(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if user, err = s.knownUser(ctx, req.Email); err != nil {
			return nil, err
		}
	}
	if user == nil {
		user = s.newUser("user_", req.Email)
		user.Name = strings.SplitN(req.Email, "@", 2)[0]
		if strings.Contains(req.Email, actor.RoleAuthority) {
			user.Role = actor.RoleAuthority
		}
		user.Verified = true
		if err := s.users.SaveUser(ctx, user); err != nil {
			return nil, fmt.Errorf("save user: %w", err)
		}
	}

	return s.start(ctx, user, "Welcome back!", "You have successfully logged in.")
}

// LoginWithGoogle signs in with the Google account
func (s *SessionService) LoginWithGoogle(ctx context.Context) (*LoginResponse, error) {
	if err := s.wait(ctx, s.delay+s.delay/2); err != nil {
		return nil, err
	}

	user, err := s.knownUser(ctx, GoogleEmail)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = s.newUser("google_", GoogleEmail)
		user.Name = GoogleName
		user.Avatar = GoogleAvatar
		user.Verified = true
		if err := s.users.SaveUser(ctx, user); err != nil {
			return nil, fmt.Errorf("save user: %w", err)
		}
	}

	return s.start(ctx, user, "Welcome!", "You have successfully logged in with Google.")
}

// Signup registers a citizen account and signs it in
func (s *SessionService) Signup(ctx context.Context, req *SignupRequest) (*LoginResponse, error) {
	if err := httputil.Validate(req); err != nil {
		return nil, err
	}
	if err := s.wait(ctx, s.delay); err != nil {
		return nil, err
	}

	if _, err := s.users.GetCredential(ctx, req.Email); err == nil {
		return nil, pkgerrors.Conflict("an account with this email already exists")
	} else if !errors.Is(err, kvstore.ErrNotFound) && !errors.Is(err, repository.ErrCorrupt) {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = sessiondomain.DefaultLanguage
	}
	user := s.newUser("user_", req.Email)
	// a passwordless account for this email keeps its id and history
	existing, err := s.knownUser(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		user.ID = existing.ID
		user.JoinedAt = existing.JoinedAt
	}
	user.Name = req.Name
	user.Language = lang
	user.Preferences = sessiondomain.DefaultPreferences(lang)

	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	if err := s.users.SaveCredential(ctx, &sessiondomain.Credential{
		UserID:       user.ID,
		Email:        user.Email,
		PasswordHash: string(hash),
	}); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("account created")
	return s.start(ctx, user, "Account created!", "Welcome to CivicTrack. Please verify your email.")
}

// Logout revokes the session the token belongs to
func (s *SessionService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return err
	}
	if err := s.users.DeleteSession(ctx, claims.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.notify(actor.WithActor(ctx, &actor.Actor{ID: claims.UserID, Name: claims.Name, Email: claims.Email, Role: claims.Role}),
		domain.KindInfo, "Logged out", "You have been successfully logged out.")
	return nil
}

// UpdateProfile merges updates into the current user
func (s *SessionService) UpdateProfile(ctx context.Context, updates sessiondomain.ProfileUpdate) (*sessiondomain.User, error) {
	if err := httputil.Validate(&updates); err != nil {
		return nil, err
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	oldEmail := user.Email
	updates.Apply(user)

	emailChanged := !strings.EqualFold(oldEmail, user.Email)
	if emailChanged {
		if err := s.moveCredential(ctx, user.ID, oldEmail, user.Email); err != nil {
			return nil, err
		}
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	if emailChanged {
		if err := s.users.ReleaseEmail(ctx, oldEmail, user.ID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to release old email")
		}
	}

	s.notify(actor.WithActor(ctx, user.Actor()), domain.KindSuccess, "Profile updated", "Your profile has been successfully updated.")
	return user, nil
}

// CurrentActor returns the actor of the request, nil when anonymous
func (s *SessionService) CurrentActor(ctx context.Context) *actor.Actor {
	a := actor.FromContext(ctx)
	if a.IsAnonymous() {
		return nil
	}
	return a
}

// CurrentUser loads the signed-in user
func (s *SessionService) CurrentUser(ctx context.Context) (*sessiondomain.User, error) {
	a := s.CurrentActor(ctx)
	if a == nil {
		return nil, pkgerrors.Unauthorized("sign in required")
	}
	user, err := s.users.GetUser(ctx, a.ID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) || errors.Is(err, repository.ErrCorrupt) {
			return nil, pkgerrors.Unauthorized("sign in required")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// PushEnabled reports whether the current user wants push notifications.
// Anonymous reporters have no preferences and get none.
func (s *SessionService) PushEnabled(ctx context.Context) bool {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return false
	}
	return user.Preferences.Notifications.Push
}

// Authenticate resolves a bearer token to its actor. Tokens whose session
// was logged out are rejected.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*actor.Actor, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetSession(ctx, claims.ID); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) || errors.Is(err, repository.ErrCorrupt) {
			return nil, pkgerrors.TokenInvalid()
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) || errors.Is(err, repository.ErrCorrupt) {
			return nil, pkgerrors.TokenInvalid()
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	return user.Actor(), nil
}

// registeredUser checks the password of a signed-up account. It returns
// nil without error when the email has no credential.
func (s *SessionService) registeredUser(ctx context.Context, email, password string) (*sessiondomain.User, error) {
	cred, err := s.users.GetCredential(ctx, email)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		if errors.Is(err, repository.ErrCorrupt) {
			s.logger.Warn().Str("email", email).Msg("discarded corrupt credential")
			return nil, nil
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		s.logger.Info().Str("user_id", cred.UserID).Msg("login rejected: password mismatch")
		return nil, pkgerrors.InvalidCredentials()
	}

	user, err := s.users.GetUser(ctx, cred.UserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, kvstore.ErrNotFound) && !errors.Is(err, repository.ErrCorrupt) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	// the profile was lost; rebuild a default one around the credential
	user = s.newUser("user_", cred.Email)
	user.ID = cred.UserID
	user.Name = strings.SplitN(cred.Email, "@", 2)[0]
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// knownUser returns the account already using email, or nil
func (s *SessionService) knownUser(ctx context.Context, email string) (*sessiondomain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, kvstore.ErrNotFound) || errors.Is(err, repository.ErrCorrupt) {
		return nil, nil
	}
	return nil, fmt.Errorf("load user by email: %w", err)
}

func (s *SessionService) moveCredential(ctx context.Context, userID, from, to string) error {
	if existing, err := s.users.GetCredential(ctx, to); err == nil && existing.UserID != userID {
		return pkgerrors.Conflict("an account with this email already exists")
	}
	owner, err := s.knownUser(ctx, to)
	if err != nil {
		return err
	}
	if owner != nil && owner.ID != userID {
		return pkgerrors.Conflict("an account with this email already exists")
	}

	cred, err := s.users.GetCredential(ctx, from)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) || errors.Is(err, repository.ErrCorrupt) {
			return nil
		}
		return fmt.Errorf("load credential: %w", err)
	}

	cred.Email = to
	if err := s.users.SaveCredential(ctx, cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return s.users.DeleteCredential(ctx, from)
}

func (s *SessionService) start(ctx context.Context, user *sessiondomain.User, title, message string) (*LoginResponse, error) {
	tok, err := s.tokens.Generate(jwt.UserInfo{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role})
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	if err := s.users.SaveSession(ctx, &sessiondomain.Session{
		ID:        tok.ID,
		UserID:    user.ID,
		CreatedAt: s.now(),
		ExpiresAt: tok.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("signed in")
	s.notify(actor.WithActor(ctx, user.Actor()), domain.KindSuccess, title, message)

	return &LoginResponse{
		User:      user,
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
		TokenType: tok.TokenType,
	}, nil
}

// newUser builds a citizen with default preferences and a time-based id
// that is never reused within this process.
func (s *SessionService) newUser(prefix, email string) *sessiondomain.User {
	now := s.now()

	s.mu.Lock()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	s.mu.Unlock()

	return &sessiondomain.User{
		ID:          fmt.Sprintf("%s%d", prefix, id),
		Email:       email,
		Role:        actor.RoleCitizen,
		Language:    sessiondomain.DefaultLanguage,
		JoinedAt:    now.UTC(),
		Preferences: sessiondomain.DefaultPreferences(sessiondomain.DefaultLanguage),
	}
}

func (s *SessionService) notify(ctx context.Context, kind domain.Kind, title, message string) {
	if s.sink == nil {
		return
	}
	s.sink.Notify(ctx, domain.Event{Title: title, Message: message, Kind: kind})
}

func (s *SessionService) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
