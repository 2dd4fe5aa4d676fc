package apiv1

import (
	"net/http"
	"strconv"

	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/doxen-app/doxen/pkg/oauth"
	"github.com/doxen-app/doxen/pkg/sources"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/labstack/echo/v4"
)

type GmailGroup struct {
	routerGroup *echo.Group
	service     *sources.Service
}

func NewGmailGroup(g *echo.Group, handshake *oauth.Handshake, service *sources.Service) *GmailGroup {
	group := &GmailGroup{routerGroup: g, service: service}

	registerOAuthRoutes(g, types.ProviderGmail, handshake)
	g.GET("/threads", auth.WithAuth(group.ListThreads))
	g.POST("/threads/import", auth.WithAuth(group.ImportThread))
	g.POST("/emails/import", auth.WithAuth(group.ImportEmail))

	return group
}

func (g *GmailGroup) ListThreads(c echo.Context) error {
	ctx := c.Request().Context()

	max := 0
	if raw := c.QueryParam("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "maxResults must be a number")
		}
		max = n
	}

	list, err := g.service.ListGmailThreads(ctx, auth.UserId(ctx), c.QueryParam("account"), c.QueryParam("q"), max)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, list)
}

func (g *GmailGroup) ImportThread(c echo.Context) error {
	ctx := c.Request().Context()

	var req sources.GmailThreadImport
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}

	result, err := g.service.ImportGmailThread(ctx, auth.UserId(ctx), req)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, result)
}

func (g *GmailGroup) ImportEmail(c echo.Context) error {
	ctx := c.Request().Context()

	var req sources.GmailEmailImport
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}

	result, err := g.service.ImportGmailEmail(ctx, auth.UserId(ctx), req)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, result)
}
