package dashboard

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/event"
	"github.com/trezcool/babillard/core/notification"
)

// OpSummarize is the operation name reported to observers.
const OpSummarize = "dashboard.summarize"

type (
	UserCounter interface {
		Count(ctx context.Context) (int, error)
	}

	EventReader interface {
		Count(ctx context.Context) (int, error)
		Upcoming(ctx context.Context, actor core.Actor, window time.Duration, limit int) ([]event.Event, error)
	}

	NotificationCounter interface {
		CountForUser(ctx context.Context, userID string, filter notification.Filter) (int, error)
	}

	Options struct {
		UpcomingDays  int
		UpcomingLimit int
	}

	Summary struct {
		TotalUsers          int           `json:"total_users"`
		TotalEvents         int           `json:"total_events"`
		TotalNotifications  int           `json:"total_notifications"`
		UnreadNotifications int           `json:"unread_notifications"`
		UpcomingEvents      []event.Event `json:"upcoming_events"`
	}

	Service struct {
		users  UserCounter
		events EventReader
		notifs NotificationCounter
		opts   Options
	}
)

func NewService(users UserCounter, events EventReader, notifs NotificationCounter, opts Options) *Service {
	if opts.UpcomingDays <= 0 {
		opts.UpcomingDays = 7
	}
	if opts.UpcomingLimit <= 0 {
		opts.UpcomingLimit = 5
	}
	return &Service{users: users, events: events, notifs: notifs, opts: opts}
}

// Summarize reads the dashboard counters of actor. The reads run concurrently;
// the first failure cancels the others and is returned.
// The role only scopes the upcoming events; notification counts are always the actor's own.
func (svc *Service) Summarize(ctx context.Context, actor core.Actor, obs ...core.Observer) (Summary, error) {
	var sum Summary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		sum.TotalUsers, err = svc.users.Count(gctx)
		return errors.Wrap(err, "counting users")
	})
	g.Go(func() (err error) {
		sum.TotalEvents, err = svc.events.Count(gctx)
		return errors.Wrap(err, "counting events")
	})
	g.Go(func() (err error) {
		sum.TotalNotifications, err = svc.notifs.CountForUser(gctx, actor.ID, notification.FilterAll)
		return errors.Wrap(err, "counting notifications")
	})
	g.Go(func() (err error) {
		sum.UnreadNotifications, err = svc.notifs.CountForUser(gctx, actor.ID, notification.FilterUnread)
		return errors.Wrap(err, "counting unread notifications")
	})
	g.Go(func() (err error) {
		window := time.Duration(svc.opts.UpcomingDays) * 24 * time.Hour
		sum.UpcomingEvents, err = svc.events.Upcoming(gctx, actor, window, svc.opts.UpcomingLimit)
		return errors.Wrap(err, "listing upcoming events")
	})

	if err := g.Wait(); err != nil {
		core.Observe(obs, OpSummarize, core.OutcomeFailure)
		return Summary{}, err
	}
	if sum.UpcomingEvents == nil {
		sum.UpcomingEvents = []event.Event{}
	}
	core.Observe(obs, OpSummarize, core.OutcomeSuccess)
	return sum, nil
}
