package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"gorm.io/gorm"
)

// UserService reads the user reference data. Create exists for seeding.
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListByRole returns users with the given role ordered by name; an empty
// role returns everyone.
func (s *UserService) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	var out []model.User
	tx := s.db.WithContext(ctx).Model(&model.User{})
	if role != "" {
		tx = tx.Where("role = ?", role)
	}
	if err := tx.Order("name ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserService) Create(ctx context.Context, u *model.User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.Name == "" {
		return errs.Invalid("name", "is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return errs.Invalid("email", "must be a valid address")
	}
	if !u.Role.Valid() {
		return errs.Invalid("role", "must be one of admin, tecnico, cliente")
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.Invalid("email", "is already taken")
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
