package notification

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
)

// ReadState marks delivered notifications as read. Both operations are idempotent:
// read_at is set once and a read Recipient never reverts to unread.
type ReadState struct {
	repo Repository
}

func NewReadState(repo Repository) *ReadState {
	return &ReadState{repo: repo}
}

// MarkRead reports whether the Recipient changed. Marking an already read notification is a no-op.
// It fails with ErrRecipientNotFound if the notification was never delivered to userID.
func (rs *ReadState) MarkRead(ctx context.Context, notificationID, userID string, obs ...core.Observer) (bool, error) {
	changed, err := rs.repo.MarkRead(ctx, notificationID, userID, core.Now())
	if err != nil {
		core.Observe(obs, OpMarkRead, core.OutcomeFailure)
		return false, errors.Wrap(err, "marking notification as read")
	}
	if changed > 0 {
		core.Observe(obs, OpMarkRead, core.OutcomeSuccess)
		return true, nil
	}

	if _, err = rs.repo.GetRecipient(ctx, notificationID, userID); err != nil {
		core.Observe(obs, OpMarkRead, core.OutcomeFailure)
		return false, err
	}
	core.Observe(obs, OpMarkRead, core.OutcomeNoop)
	return false, nil
}

// MarkAllRead marks every unread notification of userID as read with one bulk update
// and returns how many changed.
func (rs *ReadState) MarkAllRead(ctx context.Context, userID string, obs ...core.Observer) (int64, error) {
	affected, err := rs.repo.MarkAllRead(ctx, userID, core.Now())
	if err != nil {
		core.Observe(obs, OpMarkAllRead, core.OutcomeFailure)
		return 0, errors.Wrap(err, "marking all notifications as read")
	}
	if affected == 0 {
		core.Observe(obs, OpMarkAllRead, core.OutcomeNoop)
	} else {
		core.Observe(obs, OpMarkAllRead, core.OutcomeSuccess)
	}
	return affected, nil
}
