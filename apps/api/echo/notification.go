package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/notification"
)

type notificationApi struct {
	svc *notification.Service
	rs  *notification.ReadState
	obs []core.Observer
}

// broadcastRequest is a custom notification sent by an admin to every other user.
type broadcastRequest struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	ActionRef string `json:"action_ref"`
}

func registerNotificationAPI(g *echo.Group, svc *notification.Service, rs *notification.ReadState, obs []core.Observer) {
	api := notificationApi{svc: svc, rs: rs, obs: obs}

	ng := g.Group("/notifications")
	ng.GET("", api.query)
	ng.GET("/count", api.count)
	ng.POST("/read-all", api.markAllRead)
	ng.POST("/:id/read", api.markRead)

	// admin endpoints
	ng.POST("", api.broadcast, adminMiddleware())
	ng.POST("/:id/fan-out", api.completeFanOut, adminMiddleware())
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	var q notificationQuery
	if err := q.Bind(ctx); err != nil {
		return err
	}

	page, err := api.svc.ListForUser(ctx.Request().Context(), getContextActor(ctx).ID, q.Filter, q.Limit, q.Cursor)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *notificationApi) count(ctx echo.Context) error {
	filter, err := notification.ParseFilter(ctx.QueryParam("filter"))
	if err != nil {
		return err
	}

	count, err := api.svc.CountForUser(ctx.Request().Context(), getContextActor(ctx).ID, filter)
	if err != nil {
		return errors.Wrap(err, "counting notifications")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"count": count})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	changed, err := api.rs.MarkRead(ctx.Request().Context(), ctx.Param("id"), getContextActor(ctx).ID, api.obs...)
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"updated": changed})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	affected, err := api.rs.MarkAllRead(ctx.Request().Context(), getContextActor(ctx).ID, api.obs...)
	if err != nil {
		return errors.Wrap(err, "marking all notifications as read")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"updated": affected})
}

func (api *notificationApi) broadcast(ctx echo.Context) error {
	var data broadcastRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to broadcastRequest")
	}

	kind := core.CleanString(data.Kind, true /* lower */)
	if kind == "" {
		kind = notification.KindInfo
	}
	n := notification.Notification{
		Title:     core.CleanString(data.Title),
		Message:   core.CleanString(data.Message),
		Kind:      kind,
		CreatedBy: getContextActor(ctx).ID,
		ActionRef: core.CleanString(data.ActionRef),
	}
	summary, err := api.svc.Publish(ctx.Request().Context(), n, api.obs...)
	if err != nil {
		return errors.Wrap(err, "publishing notification")
	}
	return ctx.JSON(http.StatusCreated, summary)
}

func (api *notificationApi) completeFanOut(ctx echo.Context) error {
	summary, err := api.svc.CompleteFanOut(ctx.Request().Context(), ctx.Param("id"), api.obs...)
	if err != nil {
		return errors.Wrap(err, "completing fan-out")
	}
	return ctx.JSON(http.StatusOK, summary)
}
