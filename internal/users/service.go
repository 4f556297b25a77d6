package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/appforge/appforge/internal/auth"
	"github.com/appforge/appforge/internal/models"
	"gorm.io/gorm"
)

// ErrEmailTaken is returned when registration hits the email uniqueness
// constraint. The HTTP layer reports it as a conflict, distinct from
// validation failures.
var ErrEmailTaken = errors.New("email already registered")

// ErrInvalidCredentials is returned for any authentication failure.
// "No such user" and "wrong password" are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("incorrect username or password")

// Service implements user registration and authentication on top of the
// persisted credential store.
type Service struct {
	db *gorm.DB
}

// NewService creates a user service bound to the given database.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Register hashes the password and persists a new user. Emails are
// case-insensitive: they are normalized to lower case before storage and
// lookup. A duplicate email yields ErrEmailTaken and no second row.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:          NormalizeEmail(email),
		HashedPassword: hash,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate looks up a user by email and verifies the password against
// the stored bcrypt hash. Both failure causes map to ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if err := auth.CheckPassword(password, user.HashedPassword); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// NormalizeEmail lower-cases an email address for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
