package apiv1

import (
	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/doxen-app/doxen/pkg/sources"
	"github.com/labstack/echo/v4"
)

// SourcesGroup exposes the imported documents of a project.
type SourcesGroup struct {
	routerGroup *echo.Group
	service     *sources.Service
}

// NewSourcesGroup expects g to be mounted at /projects/:project_id/sources.
func NewSourcesGroup(g *echo.Group, service *sources.Service) *SourcesGroup {
	group := &SourcesGroup{routerGroup: g, service: service}

	g.GET("", auth.WithAuth(group.List))
	g.DELETE("/:source_id", auth.WithAuth(group.Delete))
	g.GET("/:source_id/archive", auth.WithAuth(group.Archive))

	return group
}

func (g *SourcesGroup) List(c echo.Context) error {
	ctx := c.Request().Context()

	list, err := g.service.ListSources(ctx, auth.UserId(ctx), c.Param("project_id"))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, list)
}

func (g *SourcesGroup) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	if err := g.service.DeleteSource(ctx, auth.UserId(ctx), c.Param("project_id"), c.Param("source_id")); err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, nil)
}

// Archive returns a short-lived download link for the archived document.
func (g *SourcesGroup) Archive(c echo.Context) error {
	ctx := c.Request().Context()

	url, err := g.service.SourceArchiveURL(ctx, auth.UserId(ctx), c.Param("project_id"), c.Param("source_id"))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, map[string]string{"url": url})
}
