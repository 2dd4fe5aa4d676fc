package apiv1

import (
	"net/http"

	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/doxen-app/doxen/pkg/oauth"
	"github.com/doxen-app/doxen/pkg/sources"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/labstack/echo/v4"
)

type SlackGroup struct {
	routerGroup *echo.Group
	service     *sources.Service
}

func NewSlackGroup(g *echo.Group, handshake *oauth.Handshake, service *sources.Service) *SlackGroup {
	group := &SlackGroup{routerGroup: g, service: service}

	registerOAuthRoutes(g, types.ProviderSlack, handshake)
	g.GET("/channels", auth.WithAuth(group.ListChannels))
	g.POST("/channels/import", auth.WithAuth(group.ImportChannel))

	return group
}

func (g *SlackGroup) ListChannels(c echo.Context) error {
	ctx := c.Request().Context()

	channels, err := g.service.ListSlackChannels(ctx, auth.UserId(ctx), c.QueryParam("account"))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, map[string]any{"channels": channels})
}

func (g *SlackGroup) ImportChannel(c echo.Context) error {
	ctx := c.Request().Context()

	var req sources.SlackChannelImport
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}

	result, err := g.service.ImportSlackChannel(ctx, auth.UserId(ctx), req)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, result)
}
