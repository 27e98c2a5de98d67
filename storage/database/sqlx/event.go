package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/event"
)

const eventColumns = "id, title, description, start_at, end_at, location, event_type, color, created_by, is_public, created_at, updated_at"

type eventRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	StartAt     time.Time   `db:"start_at"`
	EndAt       time.Time   `db:"end_at"`
	Location    null.String `db:"location"`
	EventType   string      `db:"event_type"`
	Color       null.String `db:"color"`
	CreatedBy   string      `db:"created_by"`
	IsPublic    bool        `db:"is_public"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (row eventRow) event() event.Event {
	return event.Event{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description.String,
		StartAt:     row.StartAt.UTC(),
		EndAt:       row.EndAt.UTC(),
		Location:    row.Location.String,
		EventType:   row.EventType,
		Color:       row.Color.String,
		CreatedBy:   row.CreatedBy,
		IsPublic:    row.IsPublic,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type eventRepository struct {
	exec core.DBExecutor
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(exec core.DBExecutor) *eventRepository {
	return &eventRepository{exec: exec}
}

// trapNoRowsErr maps sql "no rows" err to event.ErrNotFound
func (repo eventRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return event.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo eventRepository) CreateEvent(ctx context.Context, ev event.Event, exec ...core.DBExecutor) (event.Event, error) {
	q := "INSERT INTO events (" + eventColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := core.GetExec(repo.exec, exec).ExecContext(ctx, q,
		ev.ID,
		ev.Title,
		null.NewString(ev.Description, ev.Description != ""),
		ev.StartAt.UTC(),
		ev.EndAt.UTC(),
		null.NewString(ev.Location, ev.Location != ""),
		ev.EventType,
		null.NewString(ev.Color, ev.Color != ""),
		ev.CreatedBy,
		ev.IsPublic,
		ev.CreatedAt.UTC(),
		ev.UpdatedAt.UTC(),
	)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	return ev, nil
}

func (repo eventRepository) GetEvent(ctx context.Context, id string, exec ...core.DBExecutor) (event.Event, error) {
	var row eventRow
	q := "SELECT " + eventColumns + " FROM events WHERE id = ?"
	if err := core.GetExec(repo.exec, exec).GetContext(ctx, &row, q, id); err != nil {
		return event.Event{}, repo.trapNoRowsErr(err, "selecting event")
	}
	return row.event(), nil
}

func (repo eventRepository) QueryEvents(ctx context.Context, filter event.QueryFilter, exec ...core.DBExecutor) ([]event.Event, error) {
	var conds []string
	var args []interface{}

	if !filter.From.IsZero() {
		conds = append(conds, "start_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conds = append(conds, "start_at <= ?")
		args = append(args, filter.To.UTC())
	}
	if filter.CreatedBy != "" {
		conds = append(conds, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.VisibleTo != "" {
		conds = append(conds, "(is_public = ? OR created_by = ?)")
		args = append(args, true, filter.VisibleTo)
	}

	q := "SELECT " + eventColumns + " FROM events"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY start_at ASC, id ASC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []eventRow
	if err := core.GetExec(repo.exec, exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting events")
	}
	evs := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		evs = append(evs, row.event())
	}
	return evs, nil
}

func (repo eventRepository) UpdateEvent(ctx context.Context, id string, patch event.UpdateEvent, updatedAt time.Time, exec ...core.DBExecutor) (event.Event, error) {
	ex := core.GetExec(repo.exec, exec)

	var startAt, endAt null.Time
	if patch.StartAt != nil {
		startAt = null.TimeFrom(patch.StartAt.UTC())
	}
	if patch.EndAt != nil {
		endAt = null.TimeFrom(patch.EndAt.UTC())
	}

	q := `UPDATE events SET
		title = COALESCE(?, title),
		description = COALESCE(?, description),
		start_at = COALESCE(?, start_at),
		end_at = COALESCE(?, end_at),
		location = COALESCE(?, location),
		event_type = COALESCE(?, event_type),
		color = COALESCE(?, color),
		is_public = COALESCE(?, is_public),
		updated_at = ?
		WHERE id = ?`
	res, err := ex.ExecContext(ctx, q,
		null.StringFromPtr(patch.Title),
		null.StringFromPtr(patch.Description),
		startAt,
		endAt,
		null.StringFromPtr(patch.Location),
		null.StringFromPtr(patch.EventType),
		null.StringFromPtr(patch.Color),
		null.BoolFromPtr(patch.IsPublic),
		updatedAt.UTC(),
		id,
	)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "updating event")
	}
	if n, err := res.RowsAffected(); err != nil {
		return event.Event{}, errors.Wrap(err, "updating event")
	} else if n == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return repo.GetEvent(ctx, id, ex)
}

func (repo eventRepository) DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := core.GetExec(repo.exec, exec).ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	if n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (repo eventRepository) CountEvents(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var count int
	err := core.GetExec(repo.exec, exec).GetContext(ctx, &count, "SELECT COUNT(*) FROM events")
	return count, errors.Wrap(err, "counting events")
}
