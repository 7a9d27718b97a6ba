package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNoSession          = errors.New("no active session")
	ErrResetTokenInvalid  = errors.New("reset token invalid or expired")
)

type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type Session struct {
	AccessToken string
	Credential  string
	ExpiresAt   time.Time
	User        Profile
}

type Update struct {
	FullName *string
	Password *string
}

// Provider is the identity collaborator consumed by the session guard:
// credential exchange, session restore and change notifications.
type Provider interface {
	SignUp(ctx context.Context, email, password, fullName string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	CurrentSession(ctx context.Context) (*Session, error)
	CurrentUser(ctx context.Context) (*Profile, error)
	UpdateUser(ctx context.Context, update Update) (*Profile, error)
	SendPasswordReset(ctx context.Context, email string) error
	OnSessionChange(fn func(*Session)) (cancel func())
}
