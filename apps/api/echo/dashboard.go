package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/dashboard"
)

type dashboardApi struct {
	svc *dashboard.Service
	obs []core.Observer
}

func registerDashboardAPI(g *echo.Group, svc *dashboard.Service, obs []core.Observer) {
	api := dashboardApi{svc: svc, obs: obs}
	g.GET("/dashboard", api.summarize)
}

func (api *dashboardApi) summarize(ctx echo.Context) error {
	sum, err := api.svc.Summarize(ctx.Request().Context(), getContextActor(ctx), api.obs...)
	if err != nil {
		return errors.Wrap(err, "summarizing dashboard")
	}
	return ctx.JSON(http.StatusOK, sum)
}
