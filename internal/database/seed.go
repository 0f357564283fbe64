package database

import (
	"context"
	"errors"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

type seedUser struct {
	username string
	password string
	role     string
	realName string
}

var demoUsers = []seedUser{
	{"leader", "leader123", models.RoleLeader, "审核负责人"},
	{"user1", "user123", models.RoleEmployee, "录入员"},
}

// Seed stores missing default settings and the initial accounts.
// It is safe to run on every start.
func Seed(ctx context.Context, repos *repository.Repositories, settings *services.SettingService, withDemoUsers bool) error {
	if err := settings.EnsureDefaults(ctx); err != nil {
		return err
	}

	admins, err := repos.User.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return err
	}
	if admins == 0 {
		if err := createUser(ctx, repos.User, seedUser{"admin", "admin123", models.RoleAdmin, "系统管理员"}); err != nil {
			return err
		}
	}

	if withDemoUsers {
		for _, u := range demoUsers {
			if err := createUser(ctx, repos.User, u); err != nil {
				return err
			}
		}
	}
	return nil
}

func createUser(ctx context.Context, users repository.UserRepository, u seedUser) error {
	if _, err := users.FindByUsername(ctx, u.username); err == nil {
		return nil
	} else if !repository.IsNotFound(err) {
		return err
	}

	hash, err := services.HashPassword(u.password)
	if err != nil {
		return err
	}
	err = users.Create(ctx, &models.User{
		Username:     u.username,
		PasswordHash: hash,
		Role:         u.role,
		RealName:     u.realName,
		Status:       models.StatusActive,
	})
	if errors.Is(err, repository.ErrUsernameTaken) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Seeded user", "username", u.username, "role", u.role)
	return nil
}
