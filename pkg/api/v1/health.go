package apiv1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthGroup struct {
	checks      map[string]Pinger
	routerGroup *echo.Group
}

// NewHealthGroup registers GET "" which probes every named dependency.
func NewHealthGroup(g *echo.Group, checks map[string]Pinger) *HealthGroup {
	group := &HealthGroup{routerGroup: g, checks: checks}

	g.GET("", group.HealthCheck)

	return group
}

func (h *HealthGroup) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			log.Error().Err(err).Str("dependency", name).Msg("health check failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"status": "not ok",
				"error":  name + ": " + err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
