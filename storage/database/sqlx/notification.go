package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/notification"
)

const notificationColumns = "n.id, n.title, n.message, n.kind, n.created_by, n.action_ref, n.created_at, n.fanned_out_at"

type notificationRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Message     string      `db:"message"`
	Kind        string      `db:"kind"`
	CreatedBy   string      `db:"created_by"`
	ActionRef   null.String `db:"action_ref"`
	CreatedAt   time.Time   `db:"created_at"`
	FannedOutAt null.Time   `db:"fanned_out_at"`
}

func (row notificationRow) notification() notification.Notification {
	n := notification.Notification{
		ID:        row.ID,
		Title:     row.Title,
		Message:   row.Message,
		Kind:      row.Kind,
		CreatedBy: row.CreatedBy,
		ActionRef: row.ActionRef.String,
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.FannedOutAt.Valid {
		t := row.FannedOutAt.Time.UTC()
		n.FannedOutAt = &t
	}
	return n
}

type itemRow struct {
	notificationRow
	IsRead bool      `db:"is_read"`
	ReadAt null.Time `db:"read_at"`
}

type recipientRow struct {
	NotificationID string    `db:"notification_id"`
	UserID         string    `db:"user_id"`
	IsRead         bool      `db:"is_read"`
	ReadAt         null.Time `db:"read_at"`
}

func readAt(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type notificationRepository struct {
	exec core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{exec: exec}
}

// trapNoRowsErr maps sql "no rows" err to notErr
func (repo notificationRepository) trapNoRowsErr(err error, notErr error, msg string) error {
	if err == sql.ErrNoRows {
		return notErr
	}
	return errors.Wrap(err, msg)
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) error {
	q := `INSERT INTO notifications (id, title, message, kind, created_by, action_ref, created_at, fanned_out_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := core.GetExec(repo.exec, exec).ExecContext(ctx, q,
		n.ID,
		n.Title,
		n.Message,
		n.Kind,
		n.CreatedBy,
		null.NewString(n.ActionRef, n.ActionRef != ""),
		n.CreatedAt.UTC(),
		null.TimeFromPtr(n.FannedOutAt),
	)
	return errors.Wrap(err, "inserting notification")
}

func (repo notificationRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	var row notificationRow
	q := "SELECT " + notificationColumns + " FROM notifications n WHERE n.id = ?"
	if err := core.GetExec(repo.exec, exec).GetContext(ctx, &row, q, id); err != nil {
		return notification.Notification{}, repo.trapNoRowsErr(err, notification.ErrNotFound, "selecting notification")
	}
	return row.notification(), nil
}

func (repo notificationRepository) ClaimFanOut(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (bool, error) {
	ex := core.GetExec(repo.exec, exec)
	res, err := ex.ExecContext(ctx,
		"UPDATE notifications SET fanned_out_at = ? WHERE id = ? AND fanned_out_at IS NULL", at.UTC(), id)
	if err != nil {
		return false, errors.Wrap(err, "claiming notification fan-out")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "claiming notification fan-out")
	}
	if n > 0 {
		return true, nil
	}

	// already claimed, or missing
	var count int
	if err = ex.GetContext(ctx, &count, "SELECT COUNT(*) FROM notifications WHERE id = ?", id); err != nil {
		return false, errors.Wrap(err, "checking notification")
	}
	if count == 0 {
		return false, notification.ErrNotFound
	}
	return false, nil
}

func (repo notificationRepository) InsertRecipients(ctx context.Context, notificationID string, userIDs []string, exec ...core.DBExecutor) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO notification_recipients (notification_id, user_id, is_read) VALUES ")
	args := make([]interface{}, 0, len(userIDs)*3)
	for i, userID := range userIDs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?)")
		args = append(args, notificationID, userID, false)
	}
	b.WriteString(" ON CONFLICT (notification_id, user_id) DO NOTHING")

	res, err := core.GetExec(repo.exec, exec).ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, errors.Wrap(err, "inserting recipients")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "inserting recipients")
}

func (repo notificationRepository) CountRecipients(ctx context.Context, notificationID string, exec ...core.DBExecutor) (int, error) {
	var count int
	err := core.GetExec(repo.exec, exec).GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notification_recipients WHERE notification_id = ?", notificationID)
	return count, errors.Wrap(err, "counting recipients")
}

func (repo notificationRepository) ListPendingFanOut(ctx context.Context, createdBefore time.Time, limit int, exec ...core.DBExecutor) ([]notification.Notification, error) {
	q := "SELECT " + notificationColumns + " FROM notifications n" +
		" WHERE n.fanned_out_at IS NULL AND n.created_at <= ? ORDER BY n.created_at ASC, n.id ASC"
	args := []interface{}{createdBefore.UTC()}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []notificationRow
	if err := core.GetExec(repo.exec, exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting pending notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notifs = append(notifs, row.notification())
	}
	return notifs, nil
}

// recipientConds is shared by ListForUser and CountForUser so that both always agree.
func recipientConds(userID string, filter notification.Filter) ([]string, []interface{}) {
	conds := []string{"r.user_id = ?"}
	args := []interface{}{userID}
	if filter == notification.FilterUnread {
		conds = append(conds, "r.is_read = ?")
		args = append(args, false)
	}
	return conds, args
}

func (repo notificationRepository) ListForUser(
	ctx context.Context,
	userID string,
	filter notification.Filter,
	limit int,
	after *notification.Cursor,
	exec ...core.DBExecutor,
) ([]notification.Item, error) {
	conds, args := recipientConds(userID, filter)
	if after != nil {
		conds = append(conds, "(n.created_at < ? OR (n.created_at = ? AND n.id < ?))")
		args = append(args, after.CreatedAt.UTC(), after.CreatedAt.UTC(), after.ID)
	}

	q := "SELECT " + notificationColumns + ", r.is_read, r.read_at" +
		" FROM notification_recipients r JOIN notifications n ON n.id = r.notification_id" +
		" WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY n.created_at DESC, n.id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []itemRow
	if err := core.GetExec(repo.exec, exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}
	items := make([]notification.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, notification.Item{
			Notification: row.notification(),
			IsRead:       row.IsRead,
			ReadAt:       readAt(row.ReadAt),
		})
	}
	return items, nil
}

func (repo notificationRepository) CountForUser(ctx context.Context, userID string, filter notification.Filter, exec ...core.DBExecutor) (int, error) {
	conds, args := recipientConds(userID, filter)
	q := "SELECT COUNT(*) FROM notification_recipients r WHERE " + strings.Join(conds, " AND ")

	var count int
	err := core.GetExec(repo.exec, exec).GetContext(ctx, &count, q, args...)
	return count, errors.Wrap(err, "counting notifications")
}

func (repo notificationRepository) GetRecipient(ctx context.Context, notificationID, userID string, exec ...core.DBExecutor) (notification.Recipient, error) {
	var row recipientRow
	q := "SELECT notification_id, user_id, is_read, read_at FROM notification_recipients WHERE notification_id = ? AND user_id = ?"
	if err := core.GetExec(repo.exec, exec).GetContext(ctx, &row, q, notificationID, userID); err != nil {
		return notification.Recipient{}, repo.trapNoRowsErr(err, notification.ErrRecipientNotFound, "selecting recipient")
	}
	return notification.Recipient{
		NotificationID: row.NotificationID,
		UserID:         row.UserID,
		IsRead:         row.IsRead,
		ReadAt:         readAt(row.ReadAt),
	}, nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, notificationID, userID string, at time.Time, exec ...core.DBExecutor) (int64, error) {
	q := "UPDATE notification_recipients SET is_read = ?, read_at = ?" +
		" WHERE notification_id = ? AND user_id = ? AND is_read = ?"
	res, err := core.GetExec(repo.exec, exec).ExecContext(ctx, q, true, at.UTC(), notificationID, userID, false)
	if err != nil {
		return 0, errors.Wrap(err, "marking notification as read")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "marking notification as read")
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time, exec ...core.DBExecutor) (int64, error) {
	q := "UPDATE notification_recipients SET is_read = ?, read_at = ? WHERE user_id = ? AND is_read = ?"
	res, err := core.GetExec(repo.exec, exec).ExecContext(ctx, q, true, at.UTC(), userID, false)
	if err != nil {
		return 0, errors.Wrap(err, "marking all notifications as read")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "marking all notifications as read")
}
