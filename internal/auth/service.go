package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/credential"
	"github.com/hearth-cms/hearth/internal/platform/httpx"
)

// Service wraps account business rules.
type Service struct {
	repo     Repository
	verifier *credential.Verifier
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, verifier *credential.Verifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, verifier: verifier, logger: logger}
}

// Signup registers a new account with role user.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Nickname = strings.TrimSpace(in.Nickname)
	if err := httpx.Validate(in); err != nil {
		return nil, err
	}
	if !hasLetterAndDigit(in.Password) {
		return nil, httpx.NewValidationError("password", "must contain a letter and a digit")
	}

	exists, err := s.repo.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("auth: check email: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: email", httpx.ErrDuplicate)
	}
	if in.Nickname != "" {
		taken, err := s.repo.NicknameExists(ctx, NicknameKey(in.Nickname))
		if err != nil {
			return nil, fmt.Errorf("auth: check nickname: %w", err)
		}
		if taken {
			return nil, fmt.Errorf("%w: nickname", httpx.ErrDuplicate)
		}
	}

	hash, err := s.verifier.Hash(in.Password)
	if err != nil {
		return nil, httpx.NewValidationError("password", err.Error())
	}
	user := &User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Phone:        in.Phone,
		Nickname:     in.Nickname,
		Role:         access.RoleUser,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, httpx.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	s.logger.Info("user registered", slog.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate validates email/password credentials. Unknown emails burn a
// dummy comparison so response times do not reveal registered addresses.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.verifier.CompareDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if user.PasswordHash == "" {
		s.verifier.CompareDummy(password)
		return nil, ErrInvalidCredentials
	}
	ok, err := s.verifier.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("auth: verify user %d: %w", user.ID, err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// NicknameAvailable reports whether nickname can be registered. Nicknames
// outside the length bounds are reported available; length is a form
// concern checked on signup.
func (s *Service) NicknameAvailable(ctx context.Context, nickname string) (bool, error) {
	if strings.TrimSpace(nickname) == "" {
		return false, httpx.NewValidationError("nickname", "is required")
	}
	if !nicknameLengthOK(nickname) {
		return true, nil
	}
	taken, err := s.repo.NicknameExists(ctx, NicknameKey(nickname))
	if err != nil {
		return false, fmt.Errorf("auth: check nickname: %w", err)
	}
	return !taken, nil
}

// Promote grants role to the account registered under email.
func (s *Service) Promote(ctx context.Context, email string, role access.Role) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.repo.SetRole(ctx, email, role); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("auth: promote: %w", err)
	}
	s.logger.Info("user role changed", slog.String("role", string(role)))
	return nil
}

// DisplayNames resolves author ids to nicknames for listings.
func (s *Service) DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	return s.repo.Nicknames(ctx, ids)
}

func hasLetterAndDigit(password string) bool {
	var letter, digit bool
	for _, r := range password {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
