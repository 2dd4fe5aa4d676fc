package apiv1

import (
	"net/http"

	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/doxen-app/doxen/pkg/oauth"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// OAuthRoutes serves the authorize/callback pair for one provider.
type OAuthRoutes struct {
	provider  string
	handshake *oauth.Handshake
}

// registerOAuthRoutes mounts GET /authorize (authenticated) and GET /callback
// (public, browser redirect target) on g.
func registerOAuthRoutes(g *echo.Group, provider string, handshake *oauth.Handshake) *OAuthRoutes {
	r := &OAuthRoutes{provider: provider, handshake: handshake}
	g.GET("/authorize", auth.WithAuth(r.Authorize))
	g.GET("/callback", r.Callback)
	return r
}

type AuthorizeResponse struct {
	URL string `json:"url"`
}

// Authorize returns the provider consent URL. The UI navigates the browser
// there itself since it holds the bearer token.
func (r *OAuthRoutes) Authorize(c echo.Context) error {
	userId := auth.UserId(c.Request().Context())

	url, err := r.handshake.BuildAuthorizeURL(userId, c.QueryParam("returnUrl"), r.provider)
	if err != nil {
		return HandleError(c, err)
	}

	log.Info().Str("provider", r.provider).Str("user_id", userId).Msg("authorization started")
	return SuccessResponse(c, AuthorizeResponse{URL: url})
}

// Callback always redirects, except for a malformed request.
func (r *OAuthRoutes) Callback(c echo.Context) error {
	redirect, err := r.handshake.HandleCallback(c.Request().Context(), r.provider, oauth.CallbackParams{
		Code:             c.QueryParam("code"),
		State:            c.QueryParam("state"),
		Error:            c.QueryParam("error"),
		ErrorDescription: c.QueryParam("error_description"),
	})
	if err != nil {
		msg := err.Error()
		if ie, ok := types.AsIntegrationError(err); ok {
			msg = ie.Message
		}
		log.Warn().Err(err).Str("provider", r.provider).Msg("rejected oauth callback")
		return c.String(http.StatusBadRequest, msg)
	}
	return c.Redirect(http.StatusFound, redirect)
}
