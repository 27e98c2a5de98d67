package user

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
)

// ErrNotFound is returned when no directory entry has the requested id.
var ErrNotFound = core.NewNotFoundError("user not found")

type (
	Repository interface {
		// CreateUser inserts the user, or updates its name and role if the id exists.
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
		CountUsers(ctx context.Context, exec ...core.DBExecutor) (int, error)
		// ListAudience returns the ids of the users matching filter, in no particular order.
		ListAudience(ctx context.Context, filter AudienceFilter, exec ...core.DBExecutor) ([]string, error)
	}

	Service struct {
		repo       Repository
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(repo Repository, validate *validator.Validate, translator ut.Translator) *Service {
	return &Service{repo: repo, validate: validate, translator: translator}
}

// Add adds or refreshes a directory entry.
func (svc *Service) Add(ctx context.Context, nu NewUser) (User, error) {
	nu.ID = core.CleanString(nu.ID)
	nu.Name = core.CleanString(nu.Name)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, core.NewFieldValidationError(err, svc.translator)
	}

	usr := User{
		ID:        nu.ID,
		Name:      nu.Name,
		Role:      nu.Role,
		CreatedAt: core.Now(),
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *Service) Get(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, id)
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountUsers(ctx)
}
