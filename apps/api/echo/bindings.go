package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/attenx/attenx/core"
)

var (
	sortByParam    = "sortBy"
	sortOrderParam = "sortOrder"
)

type Ordering struct {
	Ordering core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	field := strings.TrimSpace(ctx.QueryParam(sortByParam))
	if field == "" {
		return
	}
	order := strings.ToLower(strings.TrimSpace(ctx.QueryParam(sortOrderParam)))
	ord.Ordering = core.DBOrdering{Field: field, Ascending: order == "asc"}
}
