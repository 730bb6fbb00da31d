package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docsummary/internal/auth"
	"docsummary/internal/domain"
	"docsummary/internal/store"
)

type Service struct {
	store  store.Store
	issuer *auth.Issuer
	log    *slog.Logger
	now    func() time.Time
}

func New(s store.Store, issuer *auth.Issuer, log *slog.Logger) *Service {
	return &Service{
		store:  s,
		issuer: issuer,
		log:    log,
		now:    time.Now,
	}
}

// Session is the result of a successful registration or login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

func (s *Service) Register(ctx context.Context, email, password, name string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if err = validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err = s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	s.log.InfoContext(ctx, "User is registered",
		"userID", user.ID)

	return s.session(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if err = auth.CheckPassword(user.PasswordHash, password); err != nil {
		s.log.InfoContext(ctx, "Login is rejected",
			"userID", user.ID)

		return nil, err
	}

	return s.session(user)
}

func (s *Service) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return user, nil
}

// UpdateProfile changes the name and, when password is non-empty, the
// password of the user.
func (s *Service) UpdateProfile(ctx context.Context, userID, name, password string) (*domain.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}

	if password != "" {
		if err = validatePassword(password); err != nil {
			return nil, err
		}

		if user.PasswordHash, err = auth.HashPassword(password); err != nil {
			return nil, err
		}
	}

	user.UpdatedAt = s.now().UTC()

	if err = s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return user, nil
}

func (s *Service) session(user *domain.User) (*Session, error) {
	token, expiresAt, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email %q is malformed", domain.ErrInvalidInput, email)
	}

	return email, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < auth.MinPasswordLength {
		return fmt.Errorf(
			"%w: password must be at least %d characters",
			domain.ErrInvalidInput,
			auth.MinPasswordLength,
		)
	}

	return nil
}
