package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/attenx/attenx/core/sheet"
)

type sheetApi struct {
	svc      *sheet.Service
	validate *validator.Validate
}

func registerSheetAPI(g *echo.Group, svc *sheet.Service, validate *validator.Validate) {
	api := sheetApi{
		svc:      svc,
		validate: validate,
	}

	ug := g.Group("/upload")

	// un-authed endpoints; anonymous uploads are attributed to the default
	// account by the service
	ug.POST("", api.upload)
	ug.POST("/:id/process", api.process)
	ug.GET("/:id/status", api.status)
}

// Handlers

func (api *sheetApi) upload(ctx echo.Context) error {
	fileHdr, err := ctx.FormFile("file")
	if err != nil {
		return sheet.ErrMissingFile
	}

	data := sheet.NewSheet{
		ShiftType:  ctx.FormValue("shiftType"),
		Department: ctx.FormValue("department"),
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	src, err := fileHdr.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = src.Close() }()

	var uploadedBy int
	if rev, cErr := contextReviewer(ctx); cErr == nil {
		uploadedBy = rev.ID
	}

	up := sheet.Upload{
		Filename:    fileHdr.Filename,
		ContentType: fileHdr.Header.Get(echo.HeaderContentType),
		Size:        fileHdr.Size,
		Content:     src,
	}
	sht, err := api.svc.Upload(ctx.Request().Context(), up, data, uploadedBy)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    sht,
		Message: "File uploaded successfully",
	})
}

func (api *sheetApi) process(ctx echo.Context) error {
	id, err := parseIntParam(ctx, "id")
	if err != nil {
		return err
	}

	task, err := api.svc.Process(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, Response{
		Success: true,
		Data: echo.Map{
			"id":     task.SheetID,
			"status": sheet.StatusProcessing,
		},
		Message: "Processing started",
	})
}

func (api *sheetApi) status(ctx echo.Context) error {
	id, err := parseIntParam(ctx, "id")
	if err != nil {
		return err
	}

	st, err := api.svc.Status(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, Response{Success: true, Data: st})
}

// parseIntParam parses a numeric path param; anything non-numeric is a 404.
func parseIntParam(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}
