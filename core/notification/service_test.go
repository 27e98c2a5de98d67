package notification_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/notification"
	"github.com/trezcool/babillard/core/user"
	sqlxrepos "github.com/trezcool/babillard/storage/database/sqlx"
	testutil "github.com/trezcool/babillard/tests"
)

type fixture struct {
	db     core.DB
	users  user.Repository
	repo   notification.Repository
	svc    *notification.Service
	rs     *notification.ReadState
	broken *notification.Service // fails while inserting recipients
}

func setup(t *testing.T, opts ...notification.Options) fixture {
	t.Helper()

	db := testutil.PrepareDB(t)
	f := fixture{
		db:    db,
		users: sqlxrepos.NewUserRepository(db),
		repo:  sqlxrepos.NewNotificationRepository(db),
	}
	var o notification.Options
	if len(opts) > 0 {
		o = opts[0]
	}
	f.svc = notification.NewService(db, f.repo, f.users, o)
	f.broken = notification.NewService(&faultyDB{DB: db, failOn: "INSERT INTO notification_recipients"}, f.repo, f.users, o)
	f.rs = notification.NewReadState(f.repo)

	testutil.CreateUser(t, f.users, "admin", "Admin", core.RoleAdmin)
	testutil.CreateUser(t, f.users, "t1", "Teacher", core.RoleTeacher)
	testutil.CreateUser(t, f.users, "s1", "Student 1", core.RoleStudent)
	testutil.CreateUser(t, f.users, "s2", "Student 2", core.RoleStudent)
	testutil.CreateUser(t, f.users, "s3", "Student 3", core.RoleStudent)
	return f
}

// faultyDB fails the transactional statements containing failOn.
type faultyDB struct {
	core.DB
	failOn string
}

func (db *faultyDB) InTx(ctx context.Context, fn func(tx core.DBExecutor) error) error {
	return db.DB.InTx(ctx, func(tx core.DBExecutor) error {
		return fn(&faultyExec{DBExecutor: tx, failOn: db.failOn})
	})
}

type faultyExec struct {
	core.DBExecutor
	failOn string
}

func (ex *faultyExec) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if strings.Contains(query, ex.failOn) {
		return nil, &core.StoreError{Op: "exec", Err: errors.Wrap(core.ErrTimeout, "injected")}
	}
	return ex.DBExecutor.ExecContext(ctx, query, args...)
}

func newNotification(createdBy string) notification.Notification {
	return notification.Notification{
		Title:     "New event: Science Fair",
		Message:   "Science Fair starts tomorrow",
		Kind:      notification.KindEvent,
		CreatedBy: createdBy,
	}
}

func count(t *testing.T, svc *notification.Service, userID string, filter notification.Filter) int {
	t.Helper()
	n, err := svc.CountForUser(context.Background(), userID, filter)
	require.NoError(t, err)
	return n
}

func TestService_Publish(t *testing.T) {
	f := setup(t)
	obs := new(testutil.Observer)

	summary, err := f.svc.Publish(context.Background(), newNotification("t1"), obs)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.NotificationID)
	assert.Equal(t, 4, summary.Audience)
	assert.Equal(t, 4, summary.Delivered)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, []string{"notification.fanout:success"}, obs.Ops())

	for _, id := range []string{"admin", "s1", "s2", "s3"} {
		if got := count(t, f.svc, id, notification.FilterUnread); got != 1 {
			t.Errorf("failed! unread(%s) = %d; want 1", id, got)
		}
	}
	assert.Equal(t, 0, count(t, f.svc, "t1", notification.FilterAll))

	n, err := f.svc.Get(context.Background(), summary.NotificationID)
	require.NoError(t, err)
	assert.NotNil(t, n.FannedOutAt)
}

func TestService_FanOut(t *testing.T) {
	f := setup(t, notification.Options{FanOutBatchSize: 2})
	ctx := context.Background()

	t.Run("explicit audience in batches", func(t *testing.T) {
		audience := []string{"s1", "s2", "", "s1", "s3", "t1", "admin"}
		summary, err := f.svc.FanOut(ctx, newNotification("admin"), audience)
		require.NoError(t, err)
		assert.Equal(t, 5, summary.Audience)
		assert.Equal(t, 5, summary.Delivered)

		recipients, err := f.repo.CountRecipients(ctx, summary.NotificationID)
		require.NoError(t, err)
		assert.Equal(t, 5, recipients)
	})

	t.Run("empty audience", func(t *testing.T) {
		obs := new(testutil.Observer)
		summary, err := f.svc.FanOut(ctx, newNotification("admin"), nil, obs)
		require.NoError(t, err)
		assert.NotEmpty(t, summary.NotificationID)
		assert.Equal(t, 0, summary.Audience)
		assert.Equal(t, []string{"notification.fanout:success"}, obs.Ops())

		_, err = f.svc.Get(ctx, summary.NotificationID)
		assert.NoError(t, err)
	})

	t.Run("invalid notification", func(t *testing.T) {
		obs := new(testutil.Observer)
		n := newNotification("admin")
		n.Kind = "shout"
		_, err := f.svc.FanOut(ctx, n, []string{"s1"}, obs)
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.Equal(t, []string{"notification.fanout:failure"}, obs.Ops())
	})
}

func TestService_FailedFanOutLeavesNothingPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	obs := new(testutil.Observer)

	n := newNotification("admin")
	n.ID = "targeted"
	summary, err := f.broken.FanOut(ctx, n, []string{"s1"}, obs)
	require.Error(t, err)
	if !core.IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false; want true", err)
	}
	assert.Empty(t, summary.NotificationID)
	assert.Equal(t, []string{"notification.fanout:failure"}, obs.Ops())

	// the notification was rolled back with its recipients
	_, err = f.svc.Get(ctx, "targeted")
	assert.Equal(t, notification.ErrNotFound, err)
	pending, err := f.repo.ListPendingFanOut(ctx, core.Now().Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// a retry cannot deliver it to the whole directory
	_, err = f.svc.CompleteFanOut(ctx, "targeted")
	assert.Equal(t, notification.ErrNotFound, err)
	results, err := f.svc.RetryPending(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	for _, id := range []string{"s1", "s2", "s3", "t1"} {
		if got := count(t, f.svc, id, notification.FilterAll); got != 0 {
			t.Errorf("failed! count(%s) = %d; want 0", id, got)
		}
	}

	// the same call succeeds once the store is healthy
	summary, err = f.svc.FanOut(ctx, n, []string{"s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 1, count(t, f.svc, "s1", notification.FilterUnread))
	assert.Equal(t, 0, count(t, f.svc, "s2", notification.FilterAll))
}

func TestService_PartialFanOut(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	obs := new(testutil.Observer)

	summary, err := f.broken.Publish(ctx, newNotification("t1"), obs)
	require.Error(t, err)
	if !core.IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false; want true", err)
	}
	require.NotEmpty(t, summary.NotificationID)
	assert.Equal(t, 0, summary.Delivered)
	assert.Equal(t, []string{"notification.fanout:partial"}, obs.Ops())

	// the notification exists, nobody got it and it is still pending
	n, err := f.svc.Get(ctx, summary.NotificationID)
	require.NoError(t, err)
	assert.Nil(t, n.FannedOutAt)
	recipients, err := f.repo.CountRecipients(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, recipients)

	// a late joiner is not part of the audience
	testutil.CreateUser(t, f.users, "s4", "Late", core.RoleStudent, n.CreatedAt.Add(time.Minute))

	obs = new(testutil.Observer)
	done, err := f.svc.CompleteFanOut(ctx, n.ID, obs)
	require.NoError(t, err)
	assert.Equal(t, 4, done.Delivered)
	assert.False(t, done.AlreadyComplete)
	assert.Equal(t, 0, count(t, f.svc, "s4", notification.FilterAll))

	again, err := f.svc.CompleteFanOut(ctx, n.ID, obs)
	require.NoError(t, err)
	assert.True(t, again.AlreadyComplete)
	assert.Equal(t, []string{"notification.complete_fanout:success", "notification.complete_fanout:noop"}, obs.Ops())

	recipients, err = f.repo.CountRecipients(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, recipients)

	_, err = f.svc.CompleteFanOut(ctx, "nope")
	assert.Equal(t, notification.ErrNotFound, err)
}

func TestService_CompleteFanOutConcurrently(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	summary, err := f.broken.Publish(ctx, newNotification("t1"))
	require.Error(t, err)

	const workers = 5
	results := make([]notification.FanOutSummary, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.CompleteFanOut(ctx, summary.NotificationID)
		}(i)
	}
	wg.Wait()

	var completed int
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].AlreadyComplete {
			completed++
			assert.Equal(t, 4, results[i].Delivered)
		}
	}
	assert.Equal(t, 1, completed)

	recipients, err := f.repo.CountRecipients(ctx, summary.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, 4, recipients)
}

func TestService_RetryPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		summary, err := f.broken.Publish(ctx, newNotification("admin"))
		require.Error(t, err)
		ids = append(ids, summary.NotificationID)
	}
	_, err := f.svc.Publish(ctx, newNotification("admin"))
	require.NoError(t, err)

	// nothing is old enough yet
	results, err := f.svc.RetryPending(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	obs := new(testutil.Observer)
	results, err = f.svc.RetryPending(ctx, 0, 10, obs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.NoError(t, res.Err)
		assert.Contains(t, ids, res.Summary.NotificationID)
		assert.Equal(t, 4, res.Summary.Delivered)
	}
	assert.Equal(t, 3, count(t, f.svc, "s1", notification.FilterUnread))

	results, err = f.svc.RetryPending(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_ListForUser(t *testing.T) {
	f := setup(t, notification.Options{PageSize: 2, MaxPageSize: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Publish(ctx, newNotification("admin"))
		require.NoError(t, err)
	}

	var seen []string
	var cursor *notification.Cursor
	for pages := 1; ; pages++ {
		page, err := f.svc.ListForUser(ctx, "s1", notification.FilterAll, 0, cursor)
		require.NoError(t, err)
		for _, it := range page.Items {
			seen = append(seen, it.ID)
		}
		if page.NextCursor == "" {
			assert.Equal(t, 3, pages)
			break
		}
		assert.Len(t, page.Items, 2)
		cursor, err = notification.DecodeCursor(page.NextCursor)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, count(t, f.svc, "s1", notification.FilterAll), len(seen))

	// the page size is capped
	page, err := f.svc.ListForUser(ctx, "s1", notification.FilterAll, 100, nil)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)

	// a user without notifications gets an empty page
	page, err = f.svc.ListForUser(ctx, "admin", notification.FilterUnread, 0, nil)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)
}
