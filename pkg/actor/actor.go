// Package actor identifies who is performing an action: an authenticated
// citizen or authority, or an anonymous reporter.
//
// The wizard accepts anonymous submissions, so a missing actor is never an
// error on its own. Handlers that need an identity check IsAnonymous.
package actor

import (
	"context"
	"fmt"
)

// Roles
const (
	RoleCitizen   = "citizen"
	RoleAuthority = "authority"
	RoleAdmin     = "admin"
)

// AnonymousName is shown wherever a reporter name is needed for an anonymous actor
const AnonymousName = "Anonymous"

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// Name is the display name
	Name string `json:"name"`

	// Email is the actor's email address
	Email string `json:"email"`

	// Role is one of citizen, authority, admin
	Role string `json:"role"`

	// Permissions granted to the role, see pkg/permissions
	Permissions []string `json:"permissions,omitempty"`
}

// DisplayName returns the actor's name, or AnonymousName for a nil actor
func (a *Actor) DisplayName() string {
	if a == nil || a.Name == "" {
		return AnonymousName
	}
	return a.Name
}

// ShortName renders "John D." style names used on the dashboard
func (a *Actor) ShortName() string {
	name := a.DisplayName()
	first, last := name, ""
	for i, r := range name {
		if r == ' ' {
			first, last = name[:i], name[i+1:]
			break
		}
	}
	if last == "" {
		return first
	}
	return fmt.Sprintf("%s %c.", first, []rune(last)[0])
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "anonymous"
	}
	return fmt.Sprintf("%s (%s)", a.DisplayName(), a.Email)
}

// IsAnonymous returns true when there is no authenticated actor
func (a *Actor) IsAnonymous() bool {
	return a == nil || a.ID == ""
}

// IsAuthority returns true for authority and admin roles
func (a *Actor) IsAuthority() bool {
	return a != nil && (a.Role == RoleAuthority || a.Role == RoleAdmin)
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (anonymous).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}
