package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	"github.com/trezcool/schoolerp/core/user"
)

type libraryApi struct {
	deps           *Deps
	signalShutdown func()
}

func registerLibraryAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps, signalShutdown func()) {
	api := libraryApi{deps: deps, signalShutdown: signalShutdown}

	lg := g.Group("/library", jwt)
	lg.POST("/notifications/dispatch", api.dispatch, rolesMiddleware(user.DispatchRoles...))

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.queryNotifications)
	ng.PUT("/:id/read", api.markNotificationRead)
}

// Handlers

// dispatch runs the library notifications pipeline once.
// The run aborting (eg. loans cannot be loaded) is answered with a 500 carrying its message.
func (api *libraryApi) dispatch(ctx echo.Context) error {
	var params dispatchParams
	if err := params.Bind(ctx); err != nil {
		return err
	}

	report, err := api.deps.LibrarySvc.Run(ctx.Request().Context(), params.runOptions())
	if err != nil {
		api.deps.Logger.Error(fmt.Sprintf("library notifications run failed: %v", err), err, actorFromContext(ctx))
		if core.IsShutdown(err) {
			defer api.signalShutdown()
		}
		return ctx.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *libraryApi) queryNotifications(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	notes, err := api.deps.LibrarySvc.QueryNotifications(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, notes)
}

func (api *libraryApi) markNotificationRead(ctx echo.Context) error {
	params := notificationParams{ID: ctx.Param("id")}
	if err := api.deps.Validate.Struct(params); err != nil {
		return err
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.deps.LibrarySvc.MarkNotificationRead(ctx.Request().Context(), usr.ID, params.ID); err != nil {
		if err == library.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func actorFromContext(ctx echo.Context) core.Actor {
	usr, err := getContextUser(ctx)
	if err != nil {
		return core.Actor{}
	}
	return core.Actor{ID: usr.ID, Email: usr.Email}
}
