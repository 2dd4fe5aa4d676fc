package apiv1

import (
	"net/http"

	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type ConnectionsGroup struct {
	g     *echo.Group
	store repository.ConnectionRepository
}

func NewConnectionsGroup(g *echo.Group, store repository.ConnectionRepository) *ConnectionsGroup {
	cg := &ConnectionsGroup{g: g, store: store}
	cg.g.GET("", auth.WithAuth(cg.List))
	cg.g.DELETE("/:connection_id", auth.WithAuth(cg.Delete))
	return cg
}

func (cg *ConnectionsGroup) List(c echo.Context) error {
	ctx := c.Request().Context()

	provider := c.QueryParam("provider")
	if provider != "" && !types.IsKnownProvider(provider) {
		return ErrorResponse(c, http.StatusBadRequest, "unknown provider")
	}

	conns, err := cg.store.ListConnections(ctx, auth.UserId(ctx), provider)
	if err != nil {
		return HandleError(c, err)
	}

	out := make([]types.ConnectionInfo, 0, len(conns))
	for i := range conns {
		out = append(out, conns[i].Info())
	}
	return SuccessResponse(c, out)
}

func (cg *ConnectionsGroup) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	userId := auth.UserId(ctx)
	id := c.Param("connection_id")

	if err := cg.store.DeleteConnection(ctx, userId, id); err != nil {
		return HandleError(c, err)
	}

	log.Info().Str("user_id", userId).Str("connection_id", id).Msg("connection deleted")
	return SuccessResponse(c, nil)
}
