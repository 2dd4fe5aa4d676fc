package apiv1

import (
	"net/http"
	"strings"

	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/labstack/echo/v4"
)

type ProjectsGroup struct {
	routerGroup *echo.Group
	store       repository.ProjectRepository
}

func NewProjectsGroup(g *echo.Group, store repository.ProjectRepository) *ProjectsGroup {
	group := &ProjectsGroup{routerGroup: g, store: store}

	g.GET("", auth.WithAuth(group.List))
	g.POST("", auth.WithAuth(group.Create))

	return group
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

func (g *ProjectsGroup) List(c echo.Context) error {
	ctx := c.Request().Context()

	projects, err := g.store.ListProjects(ctx, auth.UserId(ctx))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, projects)
}

func (g *ProjectsGroup) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return ErrorResponse(c, http.StatusBadRequest, "name required")
	}

	project, err := g.store.CreateProject(ctx, auth.UserId(ctx), name)
	if err != nil {
		return HandleError(c, err)
	}
	return c.JSON(http.StatusCreated, Response{Success: true, Data: project})
}
