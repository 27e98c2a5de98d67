package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/babillard/core"
)

// actorMiddleware resolves the Actor of the request from its token claims.
func actorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			actor := claims.Actor()
			if actor.ID == "" || !core.IsValidRole(actor.Role) {
				return errInvalidClaims
			}
			ctx.Set(contextActorKey, actor)
			return next(ctx)
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if getContextActor(ctx).IsAdmin() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
