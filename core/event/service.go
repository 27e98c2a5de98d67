package event

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/notification"
)

// operation names reported to observers
const (
	OpCreate = "event.create"
	OpUpdate = "event.update"
	OpDelete = "event.delete"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("event not found")

	fanOutWarning = "event created but its notification could not be delivered to everyone yet"
	errDatesOrder = core.FieldError{Field: "end_at", Error: "end_at must be after start_at"}
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, ev Event, exec ...core.DBExecutor) (Event, error)
		GetEvent(ctx context.Context, id string, exec ...core.DBExecutor) (Event, error)
		QueryEvents(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Event, error)
		// UpdateEvent merges the non-nil fields of patch into the stored event.
		UpdateEvent(ctx context.Context, id string, patch UpdateEvent, updatedAt time.Time, exec ...core.DBExecutor) (Event, error)
		DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error
		CountEvents(ctx context.Context, exec ...core.DBExecutor) (int, error)
	}

	// Notifier announces new events.
	Notifier interface {
		Publish(ctx context.Context, n notification.Notification, obs ...core.Observer) (notification.FanOutSummary, error)
	}

	Service struct {
		repo       Repository
		notifier   Notifier
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
	}
)

func NewService(
	repo Repository,
	notifier Notifier,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		notifier:   notifier,
		validate:   validate,
		translator: translator,
		logger:     logger,
	}
}

func (svc *Service) validateEvent(ne NewEvent) error {
	if err := svc.validate.Struct(ne); err != nil {
		return core.NewFieldValidationError(err, svc.translator)
	}
	return nil
}

// Create persists the event then announces it to every other user.
// A failed announcement does not undo the event: it is logged and reported in CreateResult.
func (svc *Service) Create(ctx context.Context, ne NewEvent, actor core.Actor, obs ...core.Observer) (CreateResult, error) {
	ne.clean()
	if err := svc.validateEvent(ne); err != nil {
		core.Observe(obs, OpCreate, core.OutcomeFailure)
		return CreateResult{}, err
	}

	now := core.Now()
	ev := Event{
		ID:          uuid.New().String(),
		Title:       ne.Title,
		Description: ne.Description,
		StartAt:     ne.StartAt,
		EndAt:       ne.EndAt,
		Location:    ne.Location,
		EventType:   ne.EventType,
		Color:       ne.Color,
		CreatedBy:   actor.ID,
		IsPublic:    ne.IsPublic == nil || *ne.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ev, err := svc.repo.CreateEvent(ctx, ev)
	if err != nil {
		core.Observe(obs, OpCreate, core.OutcomeFailure)
		return CreateResult{}, errors.Wrap(err, "creating event")
	}

	res := CreateResult{Event: ev}
	summary, err := svc.notifier.Publish(ctx, ev.notification(), obs...)
	if err != nil {
		res.FanOutErr = err
		res.Warning = fanOutWarning
		if summary.NotificationID != "" {
			res.FanOut = &summary
		}
		svc.logger.Warn(
			"event fan-out failed",
			errors.Wrap(err, "publishing event notification"),
			map[string]interface{}{"event_id": ev.ID, "notification_id": summary.NotificationID},
			actor,
		)
		core.Observe(obs, OpCreate, core.OutcomePartial)
		return res, nil
	}

	res.FanOut = &summary
	core.Observe(obs, OpCreate, core.OutcomeSuccess)
	return res, nil
}

// Get hides the events actor may not see.
func (svc *Service) Get(ctx context.Context, id string, actor core.Actor) (Event, error) {
	ev, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if !ev.VisibleTo(actor) {
		return Event{}, ErrNotFound
	}
	return ev, nil
}

// List returns the events visible to actor matching filter.
func (svc *Service) List(ctx context.Context, filter QueryFilter, actor core.Actor) ([]Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	filter.VisibleTo = visibilityScope(actor)
	if !filter.From.IsZero() {
		filter.From = filter.From.UTC()
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.UTC()
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "to", Error: "to must be after from"})
	}

	evs, err := svc.repo.QueryEvents(ctx, filter)
	return evs, errors.Wrap(err, "querying events")
}

// Upcoming returns up to limit events visible to actor that start within window from now.
func (svc *Service) Upcoming(ctx context.Context, actor core.Actor, window time.Duration, limit int) ([]Event, error) {
	now := core.Now()
	evs, err := svc.repo.QueryEvents(ctx, QueryFilter{
		From:      now,
		To:        now.Add(window),
		VisibleTo: visibilityScope(actor),
		Limit:     limit,
	})
	return evs, errors.Wrap(err, "querying upcoming events")
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	count, err := svc.repo.CountEvents(ctx)
	return count, errors.Wrap(err, "counting events")
}

// Update merges patch into the event. It never announces the change.
func (svc *Service) Update(ctx context.Context, id string, patch UpdateEvent, actor core.Actor, obs ...core.Observer) (Event, error) {
	ev, err := svc.update(ctx, id, patch, actor)
	core.ObserveErr(obs, OpUpdate, err)
	return ev, err
}

func (svc *Service) update(ctx context.Context, id string, patch UpdateEvent, actor core.Actor) (Event, error) {
	current, err := svc.getOwned(ctx, id, actor)
	if err != nil {
		return Event{}, err
	}

	patch.clean()
	if err = svc.validateEvent(patch.merge(current)); err != nil {
		return Event{}, err
	}

	ev, err := svc.repo.UpdateEvent(ctx, id, patch, core.Now())
	switch {
	case err == nil:
		return ev, nil
	case err == ErrNotFound:
		return Event{}, err
	case core.IsCheckViolation(err):
		// a concurrent update moved the other date since current was read
		return Event{}, core.NewValidationError(err, errDatesOrder)
	}
	return Event{}, errors.Wrap(err, "updating event")
}

// Delete does not touch the notifications announcing the event.
func (svc *Service) Delete(ctx context.Context, id string, actor core.Actor, obs ...core.Observer) error {
	err := svc.delete(ctx, id, actor)
	core.ObserveErr(obs, OpDelete, err)
	return err
}

func (svc *Service) delete(ctx context.Context, id string, actor core.Actor) error {
	if _, err := svc.getOwned(ctx, id, actor); err != nil {
		return err
	}
	err := svc.repo.DeleteEvent(ctx, id)
	if err != nil && err != ErrNotFound {
		return errors.Wrap(err, "deleting event")
	}
	return err
}

// getOwned returns the event if actor created it or is an admin.
// Events actor cannot see are reported as not found.
func (svc *Service) getOwned(ctx context.Context, id string, actor core.Actor) (Event, error) {
	ev, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if !ev.VisibleTo(actor) {
		return Event{}, ErrNotFound
	}
	if !actor.IsAdmin() && ev.CreatedBy != actor.ID {
		return Event{}, core.ErrForbidden
	}
	return ev, nil
}

// visibilityScope is empty for admins, who see every event.
// Students and teachers share the same scope.
func visibilityScope(actor core.Actor) string {
	if actor.IsAdmin() {
		return ""
	}
	return actor.ID
}
