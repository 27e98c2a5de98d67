package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/babillard/core/event"
	"github.com/trezcool/babillard/core/notification"
)

// eventQuery binds the listEvents query params: from, to (RFC3339), created_by, limit.
type eventQuery struct {
	event.QueryFilter
}

func (q *eventQuery) Bind(ctx echo.Context) error {
	return echo.QueryParamsBinder(ctx).
		Time("from", &q.From, time.RFC3339).
		Time("to", &q.To, time.RFC3339).
		String("created_by", &q.CreatedBy).
		Int("limit", &q.Limit).
		BindError()
}

// notificationQuery binds the listNotifications query params: filter, limit, cursor.
type notificationQuery struct {
	Filter notification.Filter
	Limit  int
	Cursor *notification.Cursor
}

func (q *notificationQuery) Bind(ctx echo.Context) error {
	var filter, cursor string
	err := echo.QueryParamsBinder(ctx).
		String("filter", &filter).
		Int("limit", &q.Limit).
		String("cursor", &cursor).
		BindError()
	if err != nil {
		return err
	}

	if q.Filter, err = notification.ParseFilter(filter); err != nil {
		return err
	}
	q.Cursor, err = notification.DecodeCursor(cursor)
	return err
}
