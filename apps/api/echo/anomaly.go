package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/attenx/attenx/core/anomaly"
)

type anomalyApi struct {
	svc      *anomaly.Service
	validate *validator.Validate
}

func registerAnomalyAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *anomaly.Service, validate *validator.Validate) {
	api := anomalyApi{
		svc:      svc,
		validate: validate,
	}

	// authed endpoints
	ag := g.Group("/anomalies", jwt)
	ag.GET("", api.query)
	ag.GET("/stats/summary", api.stats)

	// detail endpoints
	ag.GET("/:id", api.retrieve)
	ag.PATCH("/:id", api.update, adminMiddleware())
}

// Handlers

func (api *anomalyApi) query(ctx echo.Context) error {
	var filter anomaly.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	var pg anomaly.Pagination
	if err := ctx.Bind(&pg); err != nil {
		return errors.Wrap(err, "binding to Pagination")
	}
	var ord Ordering
	ord.Bind(ctx)

	page, err := api.svc.List(ctx.Request().Context(), &filter, &ord.Ordering, pg)
	if err != nil {
		return errors.Wrap(err, "querying anomalies")
	}
	return ctx.JSON(http.StatusOK, Response{Success: true, Data: page})
}

func (api *anomalyApi) retrieve(ctx echo.Context) error {
	id, err := parseIntParam(ctx, "id")
	if err != nil {
		return err
	}

	an, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, Response{Success: true, Data: an})
}

func (api *anomalyApi) update(ctx echo.Context) error {
	id, err := parseIntParam(ctx, "id")
	if err != nil {
		return err
	}

	var data anomaly.UpdateAnomaly
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAnomaly")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rev, err := contextReviewer(ctx)
	if err != nil {
		return err
	}

	an, err := api.svc.UpdateStatus(ctx.Request().Context(), id, data, rev)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, Response{
		Success: true,
		Data:    an,
		Message: "Anomaly status updated",
	})
}

func (api *anomalyApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context(), ctx.QueryParam("timeframe"))
	if err != nil {
		return errors.Wrap(err, "computing anomaly stats")
	}
	return ctx.JSON(http.StatusOK, Response{Success: true, Data: stats})
}
