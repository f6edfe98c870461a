package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reno_server/server/account/domain"
	"reno_server/server/account/repository"
	commonauth "reno_server/server/common/auth"
)

type fakeUserStore struct {
	byEmail map[string]domain.User
	byID    map[string]domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: map[string]domain.User{}, byID: map[string]domain.User{}}
}

func (s *fakeUserStore) Create(ctx context.Context, user domain.User) (string, error) {
	user.ID = fmt.Sprintf("u-%d", len(s.byID)+1)
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return user.ID, nil
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (s *fakeUserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (s *fakeUserStore) Search(ctx context.Context, q string, limit int) ([]domain.User, error) {
	return nil, nil
}

func newUserService() (*UserService, *fakeUserStore) {
	store := newFakeUserStore()
	return NewUserService(store, commonauth.NewService("test-secret", 60)), store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store := newUserService()

	id, err := svc.Register(context.Background(), RegisterInput{
		Email:    "Crew@Reno.Test",
		Name:     "Crew Member",
		Password: "long-enough",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Email is normalized and the hash never stores the plaintext.
	stored := store.byID[id]
	assert.Equal(t, "crew@reno.test", stored.Email)
	assert.NotContains(t, stored.PasswordHash, "long-enough")
	assert.Equal(t, domain.RoleUser, stored.Role)

	token, user, err := svc.Login(context.Background(), "crew@reno.test", "long-enough")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, id, user.ID)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newUserService()
	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "crew@reno.test",
		Name:     "Crew",
		Password: "long-enough",
	})
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "crew@reno.test", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "nobody@reno.test", "long-enough")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "not-an-email", Name: "x", Password: "long-enough"})
	assert.Error(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.c", Name: "", Password: "long-enough"})
	assert.Error(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.c", Name: "x", Password: "short"})
	assert.Error(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.c", Name: "x", Password: "long-enough", Role: "supervisor"})
	assert.Error(t, err)
}
