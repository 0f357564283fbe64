package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plantops/valve-ledger-api/internal/config"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	repository.UserRepository
	mockFindByUsername func(ctx context.Context, username string) (*models.User, error)
	mockFindByID       func(ctx context.Context, id uint) (*models.User, error)
	touched            []uint
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.mockFindByUsername(ctx, username)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	return m.mockFindByID(ctx, id)
}

func (m *mockUserRepo) TouchLastLogin(ctx context.Context, userID uint, at time.Time) error {
	m.touched = append(m.touched, userID)
	return nil
}

type mockRTRepo struct {
	repository.RefreshTokenRepository
	mockFindByToken func(ctx context.Context, token string) (*models.RefreshToken, error)
	deleted         []string
	created         []*models.RefreshToken
}

func (m *mockRTRepo) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	return m.mockFindByToken(ctx, token)
}

func (m *mockRTRepo) Delete(ctx context.Context, token string) error {
	m.deleted = append(m.deleted, token)
	return nil
}

func (m *mockRTRepo) Create(ctx context.Context, rt *models.RefreshToken) error {
	m.created = append(m.created, rt)
	return nil
}

func testAuthConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpirationHours: 2}
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := HashPassword(password)
	require.NoError(t, err)
	return h
}

func TestAuthService_Login_Success(t *testing.T) {
	users := &mockUserRepo{}
	tokens := &mockRTRepo{}
	service := NewAuthService(users, tokens, nil, testAuthConfig())

	users.mockFindByUsername = func(ctx context.Context, username string) (*models.User, error) {
		return &models.User{
			ID:           7,
			Username:     "leader",
			Role:         models.RoleLeader,
			Status:       models.StatusActive,
			PasswordHash: hashed(t, "leader123"),
		}, nil
	}

	result, err := service.Login(context.Background(), " leader ", "leader123")
	require.NoError(t, err)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, []uint{7}, users.touched)
	require.Len(t, tokens.created, 1)
	assert.Equal(t, uint(7), tokens.created[0].UserID)

	parsed, err := jwt.Parse(result.Token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "leader", claims["username"])
	assert.Equal(t, models.RoleLeader, claims["role"])
	assert.Equal(t, float64(7), claims["user_id"])
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	users := &mockUserRepo{}
	service := NewAuthService(users, &mockRTRepo{}, nil, testAuthConfig())

	users.mockFindByUsername = func(ctx context.Context, username string) (*models.User, error) {
		return &models.User{Username: username, Status: models.StatusActive, PasswordHash: hashed(t, "right")}, nil
	}

	result, err := service.Login(context.Background(), "user1", "wrong")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Empty(t, users.touched)
}

func TestAuthService_Login_InactiveUser(t *testing.T) {
	users := &mockUserRepo{}
	service := NewAuthService(users, &mockRTRepo{}, nil, testAuthConfig())

	users.mockFindByUsername = func(ctx context.Context, username string) (*models.User, error) {
		return &models.User{Username: username, Status: models.StatusInactive, PasswordHash: hashed(t, "password")}, nil
	}

	result, err := service.Login(context.Background(), "inactive", "password")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.Contains(t, err.Error(), "账号已停用")
}

func TestAuthService_RefreshToken_InactiveUser(t *testing.T) {
	users := &mockUserRepo{}
	tokens := &mockRTRepo{}
	service := NewAuthService(users, tokens, nil, testAuthConfig())

	tokens.mockFindByToken = func(ctx context.Context, token string) (*models.RefreshToken, error) {
		return &models.RefreshToken{UserID: 1}, nil
	}
	users.mockFindByID = func(ctx context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Status: models.StatusInactive}, nil
	}

	result, err := service.RefreshToken(context.Background(), "token")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestAuthService_RefreshToken_ExpiredIsDeleted(t *testing.T) {
	tokens := &mockRTRepo{}
	service := NewAuthService(&mockUserRepo{}, tokens, nil, testAuthConfig())

	past := time.Now().Add(-time.Hour)
	tokens.mockFindByToken = func(ctx context.Context, token string) (*models.RefreshToken, error) {
		return &models.RefreshToken{UserID: 1, ExpiresAt: &past}, nil
	}

	result, err := service.RefreshToken(context.Background(), "old")
	assert.Nil(t, result)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, []string{"old"}, tokens.deleted)
}

func TestAuthService_RefreshToken_Rotates(t *testing.T) {
	users := &mockUserRepo{}
	tokens := &mockRTRepo{}
	service := NewAuthService(users, tokens, nil, testAuthConfig())

	tokens.mockFindByToken = func(ctx context.Context, token string) (*models.RefreshToken, error) {
		return &models.RefreshToken{UserID: 3}, nil
	}
	users.mockFindByID = func(ctx context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Username: "user1", Status: models.StatusActive}, nil
	}

	result, err := service.RefreshToken(context.Background(), "current")
	require.NoError(t, err)
	assert.Equal(t, []string{"current"}, tokens.deleted)
	assert.NotEqual(t, "current", result.RefreshToken)
}
