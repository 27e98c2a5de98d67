package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/babillard/core"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db.DB, EngineSQLite))
	return NewGateway(db, 5*time.Second)
}

const insertUser = "INSERT INTO users (id, name, role, created_at) VALUES (?, ?, ?, ?)"

func countUsers(t *testing.T, gw *Gateway) int {
	t.Helper()
	var count int
	require.NoError(t, gw.GetContext(context.Background(), &count, "SELECT COUNT(*) FROM users"))
	return count
}

func TestGateway_Conflict(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.ExecContext(ctx, insertUser, "u1", "Ada", core.RoleTeacher, core.Now())
	require.NoError(t, err)

	_, err = gw.ExecContext(ctx, insertUser, "u1", "Ada", core.RoleTeacher, core.Now())
	require.Error(t, err)

	var storeErr *core.StoreError
	if assert.True(t, errors.As(err, &storeErr)) {
		assert.Equal(t, "exec", storeErr.Op)
	}
	if !core.IsConflict(err) {
		t.Errorf("IsConflict(%v) = false; want true", err)
	}
	assert.False(t, core.IsTimeout(err))
}

func TestGateway_CheckViolation(t *testing.T) {
	gw := newTestGateway(t)
	start := core.Now()

	q := `INSERT INTO events (id, title, start_at, end_at, event_type, created_by, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := gw.ExecContext(context.Background(), q, "e1", "Sports day", start, start.Add(-time.Hour), "general", "t1", true, start, start)
	require.Error(t, err)

	if !core.IsCheckViolation(err) {
		t.Errorf("IsCheckViolation(%v) = false; want true", err)
	}
	assert.False(t, core.IsConflict(err))
}

func TestGateway_Timeout(t *testing.T) {
	gw := newTestGateway(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	var count int
	err := gw.GetContext(ctx, &count, "SELECT COUNT(*) FROM users")
	require.Error(t, err)
	if !core.IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false; want true", err)
	}

	err = gw.InTx(ctx, func(tx core.DBExecutor) error { return nil })
	if !core.IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false; want true", err)
	}
}

func TestGateway_NoRowsPassesThrough(t *testing.T) {
	gw := newTestGateway(t)

	var name string
	err := gw.GetContext(context.Background(), &name, "SELECT name FROM users WHERE id = ?", "nope")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestGateway_InTx(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	t.Run("rollback on error", func(t *testing.T) {
		err := gw.InTx(ctx, func(tx core.DBExecutor) error {
			if _, err := tx.ExecContext(ctx, insertUser, "u1", "Ada", core.RoleStudent, core.Now()); err != nil {
				return err
			}
			return errBoom
		})
		assert.Equal(t, errBoom, err)
		assert.Equal(t, 0, countUsers(t, gw))
	})

	t.Run("rollback on panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = gw.InTx(ctx, func(tx core.DBExecutor) error {
				if _, err := tx.ExecContext(ctx, insertUser, "u1", "Ada", core.RoleStudent, core.Now()); err != nil {
					return err
				}
				panic("boom")
			})
		})
		assert.Equal(t, 0, countUsers(t, gw))
	})

	t.Run("commit", func(t *testing.T) {
		err := gw.InTx(ctx, func(tx core.DBExecutor) error {
			for _, id := range []string{"u1", "u2"} {
				if _, err := tx.ExecContext(ctx, insertUser, id, "Ada", core.RoleStudent, core.Now()); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, countUsers(t, gw))
	})

	t.Run("conflict inside tx", func(t *testing.T) {
		err := gw.InTx(ctx, func(tx core.DBExecutor) error {
			_, err := tx.ExecContext(ctx, insertUser, "u1", "Ada", core.RoleStudent, core.Now())
			return err
		})
		if !core.IsConflict(err) {
			t.Errorf("IsConflict(%v) = false; want true", err)
		}
		assert.Equal(t, 2, countUsers(t, gw))
	})
}

func Test_gooseDialect(t *testing.T) {
	tests := []struct {
		engine string
		want   string
	}{
		{EnginePostgres, "postgres"},
		{EngineSQLite, "sqlite3"},
	}
	for _, tt := range tests {
		if got := gooseDialect(tt.engine); got != tt.want {
			t.Errorf("failed! gooseDialect(%q) = %q; want %q", tt.engine, got, tt.want)
		}
	}
}
