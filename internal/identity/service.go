package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"smartclassroom/server/internal/auth"
	"smartclassroom/server/internal/crypto"
	"smartclassroom/server/internal/mail"
	"smartclassroom/server/internal/model"
)

type Config struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration
	ResetTokenTTL  time.Duration
	ResetBaseURL   string
}

// Service is the postgres-backed identity provider. Like the hosted SDK it
// replaces, it holds the live session in memory and pushes change events to
// subscribers; the database owns users and revocable session rows.
type Service struct {
	pool   *pgxpool.Pool
	redis  *redis.Client
	mailer mail.Mailer
	cfg    Config

	mu      sync.Mutex
	current *Session
	subs    map[int]func(*Session)
	nextSub int
}

var _ Provider = (*Service)(nil)

func NewService(pool *pgxpool.Pool, redisClient *redis.Client, mailer mail.Mailer, cfg Config) *Service {
	if mailer == nil {
		mailer = mail.ConsoleMailer{}
	}
	return &Service{
		pool:   pool,
		redis:  redisClient,
		mailer: mailer,
		cfg:    cfg,
		subs:   make(map[int]func(*Session)),
	}
}

func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.createUser(ctx, user); err != nil {
		return nil, err
	}

	// Registration auto-establishes a session, matching sign-in.
	return s.establishSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.establishSession(ctx, user)
}

func (s *Service) SignOut(ctx context.Context) error {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return nil
	}

	// Revoke first: clearing local state while the server-side session stays
	// live would leave a stale credential active.
	if err := s.RevokeCredential(ctx, current.Credential); err != nil {
		return err
	}

	s.setCurrent(nil)
	return nil
}

// RevokeCredential invalidates one session row by its opaque credential.
func (s *Service) RevokeCredential(ctx context.Context, credential string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE auth_sessions SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL
	`, time.Now().UTC(), crypto.HashToken(credential))
	return err
}

// UpdateProfile applies an update to a user identified by id, bypassing the
// in-memory session. Request handlers that authenticated via JWT use this.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update Update) (*Profile, error) {
	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name != "" {
			_, err := s.pool.Exec(ctx, `
				UPDATE users SET full_name = $1, updated_at = $2 WHERE id = $3
			`, name, time.Now().UTC(), userID)
			if err != nil {
				return nil, err
			}
		}
	}
	if update.Password != nil && strings.TrimSpace(*update.Password) != "" {
		hash, err := crypto.HashPassword(*update.Password)
		if err != nil {
			return nil, err
		}
		_, err = s.pool.Exec(ctx, `
			UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3
		`, hash, time.Now().UTC(), userID)
		if err != nil {
			return nil, err
		}
	}
	return s.UserByID(ctx, userID)
}

// UserByID resolves a profile directly, without going through the in-memory
// session. Request handlers that already authenticated via JWT use this.
func (s *Service) UserByID(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.getUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	profile := profileOf(user)
	return &profile, nil
}

func (s *Service) CurrentSession(_ context.Context) (*Session, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return nil, nil
	}
	if time.Now().UTC().After(current.ExpiresAt) {
		s.setCurrent(nil)
		return nil, nil
	}
	return current, nil
}

func (s *Service) CurrentUser(ctx context.Context) (*Profile, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	user, err := s.getUserByID(ctx, session.User.ID)
	if err != nil {
		return nil, err
	}
	profile := profileOf(user)
	return &profile, nil
}

func (s *Service) UpdateUser(ctx context.Context, update Update) (*Profile, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}

	profile, err := s.UpdateProfile(ctx, session.User.ID, update)
	if err != nil {
		return nil, err
	}

	updated := *session
	updated.User = *profile
	s.setCurrent(&updated)
	return profile, nil
}

func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No account enumeration: an unknown address is not an error.
			return nil
		}
		return err
	}
	if s.redis == nil {
		return errors.New("reset not configured")
	}

	token, err := crypto.NewSessionToken()
	if err != nil {
		return err
	}
	key := resetKey(crypto.HashToken(token))
	if err := s.redis.Set(ctx, key, user.ID, s.cfg.ResetTokenTTL).Err(); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.ResetBaseURL, "/"), token)
	return s.mailer.Send(ctx, mail.Message{
		To:      user.Email,
		Subject: "Password reset",
		Text:    fmt.Sprintf("Hello %s,\n\nReset your password here: %s\n\nThe link expires in %s.", user.FullName, link, s.cfg.ResetTokenTTL),
	})
}

// ConsumePasswordReset redeems a reset token exactly once and sets the new
// password.
func (s *Service) ConsumePasswordReset(ctx context.Context, token, newPassword string) error {
	if s.redis == nil {
		return errors.New("reset not configured")
	}
	userID, err := s.redis.GetDel(ctx, resetKey(crypto.HashToken(token))).Result()
	if err == redis.Nil {
		return ErrResetTokenInvalid
	}
	if err != nil {
		return err
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3
	`, hash, time.Now().UTC(), userID)
	return err
}

func (s *Service) OnSessionChange(fn func(*Session)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Internals

func (s *Service) establishSession(ctx context.Context, user model.User) (*Session, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID:   user.ID,
		Email:    user.Email,
		FullName: user.FullName,
	})
	if err != nil {
		return nil, err
	}
	credential, err := crypto.NewSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := model.AuthSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(credential),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO auth_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, row.ID, row.UserID, row.TokenHash, row.CreatedAt, row.ExpiresAt, row.RevokedAt, row.UserAgent, row.IPAddress)
	if err != nil {
		return nil, err
	}

	session := &Session{
		AccessToken: accessToken,
		Credential:  credential,
		ExpiresAt:   row.ExpiresAt,
		User:        profileOf(user),
	}
	s.setCurrent(session)
	return session, nil
}

func (s *Service) setCurrent(session *Session) {
	s.mu.Lock()
	s.current = session
	callbacks := make([]func(*Session), 0, len(s.subs))
	for _, fn := range s.subs {
		callbacks = append(callbacks, fn)
	}
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(session)
	}
}

func (s *Service) createUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.FullName, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (s *Service) getUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, full_name, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *Service) getUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, full_name, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func profileOf(user model.User) Profile {
	return Profile{ID: user.ID, Email: user.Email, FullName: user.FullName}
}

func resetKey(tokenHash string) string {
	return fmt.Sprintf("password_reset:%s", tokenHash)
}
