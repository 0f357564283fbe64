package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

const minPasswordLength = 6

// CreateUserInput is the admin payload for a new account. An empty password
// falls back to the default_password setting and forces a change on first login.
type CreateUserInput struct {
	Username string `json:"username" binding:"required,min=2,max=50"`
	Password string `json:"password"`
	Role     string `json:"role" binding:"omitempty,valve_role"`
	RealName string `json:"real_name" binding:"max=50"`
	Dept     string `json:"dept" binding:"max=50"`
}

// UpdateUserInput changes profile fields and role; nil fields are left alone
type UpdateUserInput struct {
	RealName *string `json:"real_name"`
	Dept     *string `json:"dept"`
	Role     *string `json:"role" binding:"omitempty,valve_role"`
}

// UserService handles user-related business logic
type UserService struct {
	repos    *repository.Repositories
	settings *SettingService
	auditSvc *AuditService
}

func NewUserService(repos *repository.Repositories, settings *SettingService, auditSvc *AuditService) *UserService {
	return &UserService{repos: repos, settings: settings, auditSvc: auditSvc}
}

func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.repos.User.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error) {
	return s.repos.User.List(ctx, query)
}

func (s *UserService) Create(ctx context.Context, actorID uint, in CreateUserInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, invalid("用户名不能为空")
	}
	role := in.Role
	if role == "" {
		role = models.RoleEmployee
	}
	if !isValidRole(role) {
		return nil, invalid("无效的角色")
	}

	password := in.Password
	mustChange := false
	if password == "" {
		password = s.settings.DefaultPassword(ctx)
		mustChange = true
	}
	if len(password) < minPasswordLength {
		return nil, invalid(fmt.Sprintf("密码长度至少 %d 位", minPasswordLength))
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:           username,
		PasswordHash:       hash,
		Role:               role,
		RealName:           strings.TrimSpace(in.RealName),
		Dept:               strings.TrimSpace(in.Dept),
		Status:             models.StatusActive,
		MustChangePassword: mustChange,
	}
	if err := s.repos.User.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, invalid(err.Error())
		}
		return nil, err
	}

	s.auditSvc.Log(ctx, actorID, AuditCreate, "User", user.ID, fmt.Sprintf("%s (%s)", user.Username, user.Role))
	return user, nil
}

func (s *UserService) Update(ctx context.Context, actorID, id uint, in UpdateUserInput) (*models.User, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.RealName != nil {
		user.RealName = strings.TrimSpace(*in.RealName)
	}
	if in.Dept != nil {
		user.Dept = strings.TrimSpace(*in.Dept)
	}
	if in.Role != nil && *in.Role != user.Role {
		if !isValidRole(*in.Role) {
			return nil, invalid("无效的角色")
		}
		if err := s.keepOneAdmin(ctx, user); err != nil {
			return nil, err
		}
		user.Role = *in.Role
	}

	if err := s.repos.User.Update(ctx, user); err != nil {
		return nil, err
	}
	s.auditSvc.Log(ctx, actorID, AuditUpdate, "User", id, user.Username)
	return user, nil
}

// ToggleStatus activates or deactivates an account. Deactivation revokes refresh tokens.
func (s *UserService) ToggleStatus(ctx context.Context, actorID, id uint) (*models.User, error) {
	if actorID == id {
		return nil, invalid("不能停用自己的账号")
	}
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.Status == models.StatusActive {
		if err := s.keepOneAdmin(ctx, user); err != nil {
			return nil, err
		}
		user.Status = models.StatusInactive
	} else {
		user.Status = models.StatusActive
	}
	if err := s.repos.User.Update(ctx, user); err != nil {
		return nil, err
	}
	if user.Status == models.StatusInactive {
		s.revokeTokens(ctx, id)
	}

	s.auditSvc.Log(ctx, actorID, AuditToggleStatus, "User", id, user.Status)
	return user, nil
}

// ResetPassword sets the default password and forces a change on next login
func (s *UserService) ResetPassword(ctx context.Context, actorID, id uint) error {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	hash, err := HashPassword(s.settings.DefaultPassword(ctx))
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.MustChangePassword = true
	if err := s.repos.User.Update(ctx, user); err != nil {
		return err
	}
	s.revokeTokens(ctx, id)

	s.auditSvc.Log(ctx, actorID, AuditResetPassword, "User", id, user.Username)
	return nil
}

// ChangePassword lets a user replace their own password
func (s *UserService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidPassword
	}
	if len(newPassword) < minPasswordLength {
		return invalid(fmt.Sprintf("密码长度至少 %d 位", minPasswordLength))
	}
	if newPassword == currentPassword {
		return invalid("新密码不能与原密码相同")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.MustChangePassword = false
	if err := s.repos.User.Update(ctx, user); err != nil {
		return err
	}
	s.auditSvc.Log(ctx, userID, AuditChangePassword, "User", userID, user.Username)
	return nil
}

// keepOneAdmin refuses to demote or disable the last active admin
func (s *UserService) keepOneAdmin(ctx context.Context, user *models.User) error {
	if !user.IsAdmin() {
		return nil
	}
	admins, err := s.repos.User.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return invalid("至少保留一个管理员")
	}
	return nil
}

func (s *UserService) revokeTokens(ctx context.Context, userID uint) {
	if err := s.repos.RefreshToken.DeleteByUser(ctx, userID); err != nil {
		logger.Warn("failed to revoke refresh tokens", "user_id", userID, "error", err)
	}
}

func isValidRole(role string) bool {
	for _, r := range models.ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}
