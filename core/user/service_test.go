package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/user"
	sqlxrepos "github.com/trezcool/babillard/storage/database/sqlx"
	testutil "github.com/trezcool/babillard/tests"
)

func TestService_Add(t *testing.T) {
	db := testutil.PrepareDB(t)
	svc := user.NewService(sqlxrepos.NewUserRepository(db), testutil.NewValidate(), testutil.Translator)
	ctx := context.Background()

	usr, err := svc.Add(ctx, user.NewUser{ID: " s1 ", Name: " Ada ", Role: "Student"})
	require.NoError(t, err)
	assert.Equal(t, "s1", usr.ID)
	assert.Equal(t, "Ada", usr.Name)
	assert.Equal(t, core.RoleStudent, usr.Role)

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, usr.Name, got.Name)

	tests := []struct {
		name  string
		nu    user.NewUser
		field string
	}{
		{"missing id", user.NewUser{Name: "x", Role: core.RoleAdmin}, "id"},
		{"missing name", user.NewUser{ID: "x", Role: core.RoleAdmin}, "name"},
		{"bad role", user.NewUser{ID: "x", Name: "x", Role: "janitor"}, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(ctx, tt.nu)
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Fields[0].Field)
		})
	}

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.Get(ctx, "nope")
	assert.True(t, core.IsNotFound(err))
}
