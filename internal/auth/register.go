package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"gorm.io/gorm"
)

// RegisterService handles sign-up and the boot-time admin seed.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
	EnsureAdmin(ctx context.Context, cfg config.AdminConfig) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB             txRunner
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
}

type registerService struct {
	db          txRunner
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	return &registerService{
		db:          params.DB,
		passwordCfg: params.PasswordConfig,
		logg:        params.Logger,
	}, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	email := NormalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if req.Password != req.ConfirmPassword {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "passwords do not match").
			WithDetails(map[string]string{"confirm_password": "must match password"})
	}
	if violations := security.CheckPasswordPolicy(req.Password); len(violations) > 0 {
		details := make(map[string]string, len(violations))
		for _, v := range violations {
			details[v.Rule] = v.Message
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password does not meet policy").WithDetails(details)
	}

	user, err := s.createUser(ctx, email, req.Password, enums.RoleCustomer)
	if err != nil {
		return nil, err
	}
	return users.FromModel(user), nil
}

// EnsureAdmin creates the configured admin account, or promotes an existing
// user with that email. It is a no-op when no admin email is configured.
func (s *registerService) EnsureAdmin(ctx context.Context, cfg config.AdminConfig) error {
	email := NormalizeEmail(cfg.Email)
	if email == "" {
		return nil
	}

	var found, promoted bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := users.NewRepository(tx)
		existing, err := repo.FindByEmail(ctx, email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup admin")
		}
		found = true
		if existing.Role == enums.RoleAdmin {
			return nil
		}
		promoted = true
		if err := repo.SetRole(ctx, existing.ID, enums.RoleAdmin); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promote admin")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if found {
		if promoted && s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "email", email), "existing user promoted to admin")
		}
		return nil
	}

	if strings.TrimSpace(cfg.Password) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "admin password is required to seed the admin account")
	}
	if _, err := s.createUser(ctx, email, cfg.Password, enums.RoleAdmin); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil
		}
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "email", email), "admin account seeded")
	}
	return nil
}

func (s *registerService) createUser(ctx context.Context, email, password string, role enums.Role) (*models.User, error) {
	passwordHash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *models.User
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err := userRepo.Create(ctx, users.NewUser{
			Email:        email,
			PasswordHash: passwordHash,
			Role:         role,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
