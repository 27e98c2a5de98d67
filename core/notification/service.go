package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/user"
)

// operation names reported to observers
const (
	OpFanOut         = "notification.fanout"
	OpCompleteFanOut = "notification.complete_fanout"
	OpMarkRead       = "notification.mark_read"
	OpMarkAllRead    = "notification.mark_all_read"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("notification not found")
	ErrRecipientNotFound = core.NewNotFoundError("notification not delivered to this user")
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) error
		GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
		// ClaimFanOut marks the notification as fanned out at `at`.
		// It returns false if it already was.
		ClaimFanOut(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (bool, error)
		// InsertRecipients inserts one unread Recipient per user in a single statement,
		// skipping the ones that exist. It returns the number of inserted rows.
		InsertRecipients(ctx context.Context, notificationID string, userIDs []string, exec ...core.DBExecutor) (int64, error)
		CountRecipients(ctx context.Context, notificationID string, exec ...core.DBExecutor) (int, error)
		ListPendingFanOut(ctx context.Context, createdBefore time.Time, limit int, exec ...core.DBExecutor) ([]Notification, error)

		ListForUser(ctx context.Context, userID string, filter Filter, limit int, after *Cursor, exec ...core.DBExecutor) ([]Item, error)
		CountForUser(ctx context.Context, userID string, filter Filter, exec ...core.DBExecutor) (int, error)

		GetRecipient(ctx context.Context, notificationID, userID string, exec ...core.DBExecutor) (Recipient, error)
		// MarkRead and MarkAllRead only touch unread rows and return the number of rows they changed.
		MarkRead(ctx context.Context, notificationID, userID string, at time.Time, exec ...core.DBExecutor) (int64, error)
		MarkAllRead(ctx context.Context, userID string, at time.Time, exec ...core.DBExecutor) (int64, error)
	}

	// AudienceSource lists the users a notification can be delivered to.
	AudienceSource interface {
		ListAudience(ctx context.Context, filter user.AudienceFilter, exec ...core.DBExecutor) ([]string, error)
	}

	Options struct {
		PageSize        int
		MaxPageSize     int
		FanOutBatchSize int
	}

	Service struct {
		db       core.DB
		repo     Repository
		audience AudienceSource
		opts     Options
	}

	audienceFunc func(n Notification, tx core.DBExecutor) ([]string, error)
)

func NewService(db core.DB, repo Repository, audience AudienceSource, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.MaxPageSize < opts.PageSize {
		opts.MaxPageSize = opts.PageSize
	}
	if opts.FanOutBatchSize <= 0 {
		opts.FanOutBatchSize = 500
	}
	return &Service{db: db, repo: repo, audience: audience, opts: opts}
}

// FanOut creates the notification and delivers it to every member of audience, in one transaction.
// Nothing is left behind when it fails: a targeted notification is never pending,
// so a retry cannot widen its audience to the directory.
// An empty audience is not an error.
func (svc *Service) FanOut(ctx context.Context, n Notification, audience []string, obs ...core.Observer) (FanOutSummary, error) {
	n, err := prepare(n)
	if err != nil {
		core.Observe(obs, OpFanOut, core.OutcomeFailure)
		return FanOutSummary{}, err
	}

	ids := dedupe(audience)
	var summary FanOutSummary
	err = svc.db.InTx(ctx, func(tx core.DBExecutor) error {
		if err := svc.repo.CreateNotification(ctx, n, tx); err != nil {
			return errors.Wrap(err, "creating notification")
		}
		var err error
		summary, err = svc.deliverTx(ctx, tx, n, func(Notification, core.DBExecutor) ([]string, error) { return ids, nil })
		return err
	})
	if err != nil {
		core.Observe(obs, OpFanOut, core.OutcomeFailure)
		return FanOutSummary{}, errors.Wrap(err, "fanning out notification")
	}
	core.Observe(obs, OpFanOut, core.OutcomeSuccess)
	return summary, nil
}

// Publish fans the notification out to every user of the directory except its author.
// The notification is written first; the audience is then read and the recipients inserted in a single
// transaction that also marks the notification as fanned out. If that transaction fails the notification
// stays pending, the returned summary still holds its id and CompleteFanOut can finish the work.
func (svc *Service) Publish(ctx context.Context, n Notification, obs ...core.Observer) (FanOutSummary, error) {
	n, err := prepare(n)
	if err != nil {
		core.Observe(obs, OpFanOut, core.OutcomeFailure)
		return FanOutSummary{}, err
	}

	if err := svc.repo.CreateNotification(ctx, n); err != nil {
		core.Observe(obs, OpFanOut, core.OutcomeFailure)
		return FanOutSummary{}, errors.Wrap(err, "creating notification")
	}

	summary, err := svc.deliver(ctx, n, svc.directoryAudience(ctx))
	if err != nil {
		core.Observe(obs, OpFanOut, core.OutcomePartial)
		return summary, errors.Wrap(err, "delivering notification")
	}
	core.Observe(obs, OpFanOut, core.OutcomeSuccess)
	return summary, nil
}

func prepare(n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = core.Now()
	}
	n.FannedOutAt = nil
	return n, n.Validate()
}

// CompleteFanOut delivers a pending notification. It is a no-op for one that was already fanned out,
// so retrying never duplicates the notification nor changes a fixed recipient set.
// Only published notifications are ever pending, so the audience is the directory as of their creation.
func (svc *Service) CompleteFanOut(ctx context.Context, notificationID string, obs ...core.Observer) (FanOutSummary, error) {
	n, err := svc.repo.GetNotification(ctx, notificationID)
	if err != nil {
		core.Observe(obs, OpCompleteFanOut, core.OutcomeFailure)
		return FanOutSummary{NotificationID: notificationID}, err
	}

	summary, err := svc.deliver(ctx, n, svc.directoryAudience(ctx))
	switch {
	case err != nil:
		core.Observe(obs, OpCompleteFanOut, core.OutcomeFailure)
		return summary, errors.Wrap(err, "delivering notification")
	case summary.AlreadyComplete:
		core.Observe(obs, OpCompleteFanOut, core.OutcomeNoop)
	default:
		core.Observe(obs, OpCompleteFanOut, core.OutcomeSuccess)
	}
	return summary, nil
}

// RetryPending completes the fan-out of up to limit notifications still pending olderThan after their creation.
func (svc *Service) RetryPending(ctx context.Context, olderThan time.Duration, limit int, obs ...core.Observer) ([]RetryResult, error) {
	pending, err := svc.repo.ListPendingFanOut(ctx, core.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing pending notifications")
	}

	results := make([]RetryResult, 0, len(pending))
	for _, n := range pending {
		summary, err := svc.CompleteFanOut(ctx, n.ID, obs...)
		results = append(results, RetryResult{Summary: summary, Err: err})
	}
	return results, nil
}

func (svc *Service) deliver(ctx context.Context, n Notification, audience audienceFunc) (FanOutSummary, error) {
	var summary FanOutSummary
	err := svc.db.InTx(ctx, func(tx core.DBExecutor) error {
		var err error
		summary, err = svc.deliverTx(ctx, tx, n, audience)
		return err
	})
	if err != nil {
		return FanOutSummary{NotificationID: n.ID}, err
	}
	return summary, nil
}

// deliverTx claims the notification then inserts its recipients in batches, all through tx.
func (svc *Service) deliverTx(ctx context.Context, tx core.DBExecutor, n Notification, audience audienceFunc) (FanOutSummary, error) {
	summary := FanOutSummary{NotificationID: n.ID}

	claimed, err := svc.repo.ClaimFanOut(ctx, n.ID, core.Now(), tx)
	if err != nil {
		return summary, errors.Wrap(err, "claiming fan-out")
	}
	if !claimed {
		summary.AlreadyComplete = true
		return summary, nil
	}

	ids, err := audience(n, tx)
	if err != nil {
		return summary, errors.Wrap(err, "computing audience")
	}
	summary.Audience = len(ids)

	for start := 0; start < len(ids); start += svc.opts.FanOutBatchSize {
		end := start + svc.opts.FanOutBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		inserted, err := svc.repo.InsertRecipients(ctx, n.ID, ids[start:end], tx)
		if err != nil {
			return summary, errors.Wrap(err, "inserting recipients")
		}
		summary.Delivered += int(inserted)
	}
	summary.Skipped = summary.Audience - summary.Delivered
	return summary, nil
}

// directoryAudience is everyone but the author who had joined when the notification was created.
func (svc *Service) directoryAudience(ctx context.Context) audienceFunc {
	return func(n Notification, tx core.DBExecutor) ([]string, error) {
		ids, err := svc.audience.ListAudience(ctx, user.AudienceFilter{
			Exclude:  []string{n.CreatedBy},
			JoinedBy: n.CreatedAt,
		}, tx)
		return dedupe(ids), err
	}
}

func (svc *Service) Get(ctx context.Context, id string) (Notification, error) {
	return svc.repo.GetNotification(ctx, id)
}

// ListForUser lists the notifications delivered to userID, newest first.
// limit <= 0 means the default page size; it is capped at the max page size.
func (svc *Service) ListForUser(ctx context.Context, userID string, filter Filter, limit int, cursor *Cursor) (Page, error) {
	if limit <= 0 {
		limit = svc.opts.PageSize
	}
	if limit > svc.opts.MaxPageSize {
		limit = svc.opts.MaxPageSize
	}

	// fetch one more row to know whether there is a next page
	items, err := svc.repo.ListForUser(ctx, userID, filter, limit+1, cursor)
	if err != nil {
		return Page{}, errors.Wrap(err, "listing notifications")
	}

	page := Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	if page.Items == nil {
		page.Items = []Item{}
	}
	return page, nil
}

// CountForUser uses the same predicate as ListForUser.
func (svc *Service) CountForUser(ctx context.Context, userID string, filter Filter) (int, error) {
	count, err := svc.repo.CountForUser(ctx, userID, filter)
	return count, errors.Wrap(err, "counting notifications")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
