package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/user"
)

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

// trapNoRowsErr maps sql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := core.GetExec(repo.exec, exec)
	q := `INSERT INTO users (id, name, role, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, role = excluded.role`
	if _, err := ex.ExecContext(ctx, q, usr.ID, usr.Name, usr.Role, usr.CreatedAt.UTC()); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.GetUser(ctx, usr.ID, ex)
}

func (repo userRepository) GetUser(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	var usr user.User
	q := "SELECT id, name, role, created_at FROM users WHERE id = ?"
	if err := core.GetExec(repo.exec, exec).GetContext(ctx, &usr, q, id); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "selecting user")
	}
	usr.CreatedAt = usr.CreatedAt.UTC()
	return usr, nil
}

func (repo userRepository) CountUsers(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var count int
	err := core.GetExec(repo.exec, exec).GetContext(ctx, &count, "SELECT COUNT(*) FROM users")
	return count, errors.Wrap(err, "counting users")
}

func (repo userRepository) ListAudience(ctx context.Context, filter user.AudienceFilter, exec ...core.DBExecutor) ([]string, error) {
	var conds []string
	var args []interface{}

	if len(filter.Exclude) > 0 {
		cond, inArgs, err := sqlx.In("id NOT IN (?)", filter.Exclude)
		if err != nil {
			return nil, errors.Wrap(err, "building audience query")
		}
		conds = append(conds, cond)
		args = append(args, inArgs...)
	}
	if !filter.JoinedBy.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.JoinedBy.UTC())
	}

	q := "SELECT id FROM users"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	ids := make([]string, 0)
	if err := core.GetExec(repo.exec, exec).SelectContext(ctx, &ids, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting audience")
	}
	return ids, nil
}
