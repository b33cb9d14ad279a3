package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/account-service/internal/auth"
)

// Service orchestrates registration and the session token lifecycle.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	Login(ctx context.Context, email, password string) (*User, error)
	Logout(ctx context.Context, user *User) (*User, error)
	// Authenticate resolves the user a presented token belongs to.
	Authenticate(ctx context.Context, token string) (*User, error)
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
	Verify(token string) (*auth.Claims, error)
}

type Option func(*service)

// WithStrictSessions makes Authenticate accept only the token currently
// stored for the user, so that logout revokes it immediately.
func WithStrictSessions(strict bool) Option {
	return func(s *service) {
		s.strictSessions = strict
	}
}

type service struct {
	repo           Repository
	hasher         auth.PasswordHasher
	tokens         TokenIssuer
	strictSessions bool
}

func NewService(repo Repository, hasher auth.PasswordHasher, tokens TokenIssuer, opts ...Option) Service {
	s := &service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email := NormalizeEmail(input.Email)

	if err := requireFields(map[string]string{
		"first_name": input.FirstName,
		"last_name":  input.LastName,
		"email":      email,
		"password":   input.Password,
	}); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailExists
	case !errors.Is(err, ErrNotFound):
		log.Error().Err(err).Msg("failed to check email uniqueness")
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("internal error hashing password: %w", err)
	}

	user := &User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        email,
		PasswordHash: passwordHash,
	}

	createdID, err := s.repo.Create(ctx, user)
	if err != nil {
		// The unique index catches registrations that raced past the lookup above.
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Msg("failed to create user in repository")
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	user.ID = createdID

	return user, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)

	if err := requireFields(map[string]string{"email": email, "password": password}); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		log.Error().Err(err).Msg("failed to get user by email in repository")
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID.String(), user.Email)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", user.ID).Msg("failed to issue token")
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	user.Token = &token

	if err := s.repo.UpdateToken(ctx, user); err != nil {
		log.Error().Err(err).Stringer("user_id", user.ID).Msg("failed to store token")
		return nil, fmt.Errorf("failed to store token for user '%s': %w", user.ID, err)
	}

	return user, nil
}

func (s *service) Logout(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}

	updated := *user
	updated.Token = nil

	if err := s.repo.UpdateToken(ctx, &updated); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		log.Error().Err(err).Stringer("user_id", user.ID).Msg("failed to clear token")
		return nil, fmt.Errorf("failed to clear token for user '%s': %w", user.ID, err)
	}

	return &updated, nil
}

func (s *service) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(claims.Email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		log.Error().Err(err).Msg("failed to resolve token owner")
		return nil, fmt.Errorf("failed to resolve token owner: %w", err)
	}

	if s.strictSessions && (!user.HasToken() || *user.Token != token) {
		return nil, fmt.Errorf("%w: token is not the active session", ErrUnauthorized)
	}

	return user, nil
}

// requireFields reports every empty field, in a stable order. Only the
// password is taken verbatim; whitespace is a valid secret.
func requireFields(fields map[string]string) error {
	var missing []string
	for _, name := range []string{"first_name", "last_name", "email", "password"} {
		value, ok := fields[name]
		if !ok {
			continue
		}
		if name != "password" {
			value = strings.TrimSpace(value)
		}
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
