package repository

import (
	"context"
	"errors"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	"gorm.io/gorm"
)

// ErrUsernameTaken is returned when a username already exists
var ErrUsernameTaken = errors.New("用户名已存在")

// UserRepository defines the interface for user data access
type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	TouchLastLogin(ctx context.Context, userID uint, at time.Time) error
	List(ctx context.Context, query *ListQuery) ([]models.User, int64, error)
	FindPrivileged(ctx context.Context) ([]models.User, error)
	CountByRole(ctx context.Context, role string) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?)", username).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) TouchLastLogin(ctx context.Context, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at).Error
}

func (r *userRepository) List(ctx context.Context, query *ListQuery) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	db := r.db.WithContext(ctx).Model(&models.User{})

	// Apply search
	if query.Search != "" {
		search := likePattern(query.Search)
		db = db.Where("LOWER(username) LIKE ? OR LOWER(real_name) LIKE ? OR LOWER(dept) LIKE ?",
			search, search, search)
	}

	// Apply role filter
	if query.Filters["role"] != "" {
		db = db.Where("role = ?", query.Filters["role"])
	}

	// Apply status filter
	if query.Filters["status"] != "" {
		db = db.Where("status = ?", query.Filters["status"])
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = applySort(db, query, "created_at DESC", "username", "real_name", "role", "created_at", "last_login_at")
	db = applyPagination(db, query)

	err := db.Find(&users).Error
	return users, total, err
}

func (r *userRepository) FindPrivileged(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("role IN ? AND status = ?", []string{models.RoleLeader, models.RoleAdmin}, models.StatusActive).
		Find(&users).Error
	return users, err
}

func (r *userRepository) CountByRole(ctx context.Context, role string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}
