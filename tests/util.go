package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/user"
	logsvc "github.com/trezcool/babillard/services/logger"
	"github.com/trezcool/babillard/storage/database"
)

// PrepareDB opens a migrated sqlite database private to the test.
func PrepareDB(t *testing.T) *database.Gateway {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, database.EngineSQLite); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return database.NewGateway(db, 5*time.Second)
}

func CreateUser(t *testing.T, repo user.Repository, id, name, role string, createdAt ...time.Time) user.User {
	t.Helper()

	tstamp := core.Now().Add(-time.Hour)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Microsecond)
	}
	usr, err := repo.CreateUser(context.Background(), user.User{
		ID:        id,
		Name:      name,
		Role:      role,
		CreatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// NewLogger returns a logger that discards everything.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{Env: "TEST"})
	logger.Enable(false)
	return logger
}

func NewValidate() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, Translator)
	return validate
}

var Translator = core.NewTranslator()

// Observer records the operations it is notified of.
type Observer struct {
	mu  sync.Mutex
	ops []string
}

var _ core.Observer = (*Observer)(nil)

func (o *Observer) OnOperation(name, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, name+":"+outcome)
}

// Ops returns the "name:outcome" pairs in call order.
func (o *Observer) Ops() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ops...)
}
