package domain

import (
	"time"

	"github.com/civictrack/civictrack-backend/internal/report"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	"github.com/civictrack/civictrack-backend/pkg/permissions"
)

// Themes
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// DefaultLanguage is used when a signup does not name one
const DefaultLanguage = "en"

// User is the signed-in citizen or authority
type User struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Role        string           `json:"role"`
	Avatar      string           `json:"avatar,omitempty"`
	Language    string           `json:"language"`
	Location    *report.Location `json:"location,omitempty"`
	Verified    bool             `json:"verified"`
	JoinedAt    time.Time        `json:"joinedAt"`
	Preferences Preferences      `json:"preferences"`
}

// Preferences are the user's settings
type Preferences struct {
	Notifications NotificationPreferences `json:"notifications"`
	Language      string                  `json:"language"`
	Theme         string                  `json:"theme"`
}

// NotificationPreferences selects delivery channels
type NotificationPreferences struct {
	Push  bool `json:"push"`
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

// DefaultPreferences returns the preferences every new account starts with
func DefaultPreferences(language string) Preferences {
	return Preferences{
		Notifications: NotificationPreferences{Push: true, Email: true, SMS: false},
		Language:      language,
		Theme:         ThemeSystem,
	}
}

// Actor converts the user into the request actor
func (u *User) Actor() *actor.Actor {
	if u == nil {
		return nil
	}
	return &actor.Actor{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: permissions.ForRole(u.Role),
	}
}

// Credential is the stored login secret for an email address
type Credential struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

// ProfileUpdate carries the fields a user may change. Nil fields are kept.
type ProfileUpdate struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Email       *string          `json:"email,omitempty" validate:"omitempty,email"`
	Language    *string          `json:"language,omitempty" validate:"omitempty,min=2,max=10"`
	Avatar      *string          `json:"avatar,omitempty"`
	Location    *report.Location `json:"location,omitempty"`
	Preferences *Preferences     `json:"preferences,omitempty"`
}

// Apply merges the update into u
func (p ProfileUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Language != nil {
		u.Language = *p.Language
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Location != nil {
		loc := *p.Location
		u.Location = &loc
	}
	if p.Preferences != nil {
		u.Preferences = *p.Preferences
	}
}

// Session is a signed-in token. Logging out deletes it, which revokes the token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
