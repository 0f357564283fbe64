package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plantops/valve-ledger-api/internal/config"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

const refreshTokenTTL = 30 * 24 * time.Hour

var (
	errBadCredentials = fmt.Errorf("%w: %s", ErrUnauthorized, "用户名或密码错误")
	errInactive       = fmt.Errorf("%w: %s", ErrForbidden, "账号已停用")
	errBadToken       = fmt.Errorf("%w: %s", ErrUnauthorized, "令牌无效或已过期")
)

// AuthService handles authentication operations
type AuthService struct {
	userRepo         repository.UserRepository
	refreshTokenRepo repository.RefreshTokenRepository
	auditSvc         *AuditService
	cfg              *config.Config
	now              func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo repository.UserRepository, rtRepo repository.RefreshTokenRepository, auditSvc *AuditService, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:         userRepo,
		refreshTokenRepo: rtRepo,
		auditSvc:         auditSvc,
		cfg:              cfg,
		now:              time.Now,
	}
}

// LoginResult represents the result of a login attempt
type LoginResult struct {
	Token        string              `json:"token"`
	RefreshToken string              `json:"refresh_token"`
	ExpiresAt    time.Time           `json:"expires_at"`
	User         models.UserResponse `json:"user"`
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, errBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errBadCredentials
	}

	if !user.IsActive() {
		return nil, errInactive
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		logger.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}
	result.User.LastLoginAt = &now

	if s.auditSvc != nil {
		s.auditSvc.Log(ctx, user.ID, AuditLogin, "User", user.ID, user.Username)
	}
	return result, nil
}

// RefreshToken rotates a refresh token and returns new tokens
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*LoginResult, error) {
	rt, err := s.refreshTokenRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, errBadToken
	}

	if rt.IsExpired() {
		_ = s.refreshTokenRepo.Delete(ctx, refreshToken)
		return nil, errBadToken
	}

	user, err := s.userRepo.FindByID(ctx, rt.UserID)
	if err != nil {
		return nil, errBadToken
	}
	if !user.IsActive() {
		return nil, errInactive
	}

	if err := s.refreshTokenRepo.Delete(ctx, refreshToken); err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.refreshTokenRepo.Delete(ctx, refreshToken)
}

// PurgeExpiredTokens removes refresh tokens past their expiry
func (s *AuthService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.refreshTokenRepo.DeleteExpired(ctx, s.now())
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*LoginResult, error) {
	token, expiresAt, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &LoginResult{
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         user.ToResponse(),
	}, nil
}

// generateJWT creates a new JWT token for a user
func (s *AuthService) generateJWT(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour)
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      expiresAt.Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	return signed, expiresAt, err
}

// generateRefreshToken creates a new refresh token
func (s *AuthService) generateRefreshToken(ctx context.Context, userID uint) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	expiresAt := s.now().Add(refreshTokenTTL)
	rt := &models.RefreshToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: &expiresAt,
	}
	if err := s.refreshTokenRepo.Create(ctx, rt); err != nil {
		return "", err
	}
	return token, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// VerifyPassword compares a password with a hash
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsAuthError reports errors that should map to 401
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
