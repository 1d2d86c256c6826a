package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
)

var dryRunParam = "dry_run"

// dispatchParams are the query params of a dispatch request.
type dispatchParams struct {
	DryRun bool
}

func (p *dispatchParams) Bind(ctx echo.Context) error {
	val := ctx.QueryParam(dryRunParam)
	if val == "" {
		return nil
	}
	dryRun, err := strconv.ParseBool(val)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: dryRunParam, Error: "must be a boolean"})
	}
	p.DryRun = dryRun
	return nil
}

func (p dispatchParams) runOptions() library.RunOptions {
	return library.RunOptions{DryRun: p.DryRun}
}

// notificationParams are the path params of notification detail requests.
type notificationParams struct {
	ID string `json:"id" validate:"required,max=64"`
}
