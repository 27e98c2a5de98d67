package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/event"
)

type eventApi struct {
	svc *event.Service
	obs []core.Observer
}

func registerEventAPI(g *echo.Group, svc *event.Service, obs []core.Observer) {
	api := eventApi{svc: svc, obs: obs}

	eg := g.Group("/events")
	eg.POST("", api.create)
	eg.GET("", api.query)

	// detail endpoints
	eg.GET("/:id", api.retrieve)
	eg.PATCH("/:id", api.update) // creator or admin
	eg.DELETE("/:id", api.destroy)
}

// Handlers

func (api *eventApi) create(ctx echo.Context) error {
	var data event.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}

	res, err := api.svc.Create(ctx.Request().Context(), data, getContextActor(ctx), api.obs...)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *eventApi) query(ctx echo.Context) error {
	var q eventQuery
	if err := q.Bind(ctx); err != nil {
		return err
	}

	evs, err := api.svc.List(ctx.Request().Context(), q.QueryFilter, getContextActor(ctx))
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	return ctx.JSON(http.StatusOK, evs)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	ev, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), getContextActor(ctx))
	if err != nil {
		return errors.Wrap(err, "getting event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventApi) update(ctx echo.Context) error {
	var data event.UpdateEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvent")
	}

	ev, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data, getContextActor(ctx), api.obs...)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), getContextActor(ctx), api.obs...); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}
