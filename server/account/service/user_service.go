package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"reno_server/server/account/domain"
	"reno_server/server/account/repository"
	commonauth "reno_server/server/common/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type userStore interface {
	Create(ctx context.Context, user domain.User) (string, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID string) (domain.User, error)
	Search(ctx context.Context, q string, limit int) ([]domain.User, error)
}

type UserService struct {
	store userStore
	auth  *commonauth.Service
}

func NewUserService(store userStore, auth *commonauth.Service) *UserService {
	return &UserService{store: store, auth: auth}
}

type RegisterInput struct {
	Email    string
	Name     string
	Phone    string
	Role     domain.Role
	Password string
}

func (s *UserService) Register(ctx context.Context, input RegisterInput) (string, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return "", errors.New("a valid email is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return "", errors.New("name is required")
	}
	if len(input.Password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	if input.Role == "" {
		input.Role = domain.RoleUser
	}
	if !domain.ValidRole(input.Role) {
		return "", fmt.Errorf("unknown role %q", input.Role)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return s.store.Create(ctx, domain.User{
		Email:        input.Email,
		Name:         strings.TrimSpace(input.Name),
		Phone:        strings.TrimSpace(input.Phone),
		Role:         input.Role,
		PasswordHash: string(hashed),
	})
}

// Login verifies the password and issues an access token. A missing
// user and a wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (string, domain.User, error) {
	user, err := s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", domain.User{}, ErrInvalidCredentials
		}
		return "", domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", domain.User{}, ErrInvalidCredentials
	}
	token, err := s.auth.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return "", domain.User{}, err
	}
	return token, user, nil
}

func (s *UserService) Profile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) Search(ctx context.Context, q string, limit int) ([]domain.User, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.store.Search(ctx, strings.TrimSpace(q), limit)
}
