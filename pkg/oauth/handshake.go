package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	errMsgSaveFailed     = "Failed to save connection"
	errMsgIdentifyFailed = "Failed to resolve account"
	errMsgExchangeFailed = "token_exchange_failed"
)

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Handshake builds consent URLs and completes the redirect callback.
type Handshake struct {
	registry *Registry
	state    *StateCodec
	store    repository.ConnectionRepository
}

func NewHandshake(registry *Registry, state *StateCodec, store repository.ConnectionRepository) *Handshake {
	return &Handshake{registry: registry, state: state, store: store}
}

func (h *Handshake) provider(name string) (Provider, error) {
	p, ok := h.registry.GetProvider(name)
	if !ok {
		return nil, types.NewIntegrationError(types.KindInvalidRequest, name, fmt.Sprintf("%s OAuth is not configured", types.ProviderDisplayName(name)))
	}
	return p, nil
}

// BuildAuthorizeURL returns the provider consent URL with a signed state
// token encoding the caller and where to send the browser afterwards.
func (h *Handshake) BuildAuthorizeURL(userId, returnUrl, providerName string) (string, error) {
	p, err := h.provider(providerName)
	if err != nil {
		return "", err
	}

	returnUrl, err = NormalizeReturnUrl(returnUrl)
	if err != nil {
		return "", types.NewIntegrationError(types.KindInvalidRequest, providerName, err.Error())
	}

	state, err := h.state.Encode(StatePayload{UserId: userId, ReturnUrl: returnUrl, Provider: providerName})
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}

	return p.AuthorizeURL(state), nil
}

// HandleCallback returns the URL to redirect the browser to. A non-nil error
// means the request was malformed (bad state, missing code) and the caller
// should answer with a bare 400 instead of redirecting.
func (h *Handshake) HandleCallback(ctx context.Context, providerName string, params CallbackParams) (string, error) {
	payload, err := h.state.Decode(params.State)
	if err != nil {
		return "", types.NewIntegrationError(types.KindInvalidRequest, providerName, "Invalid or expired state")
	}
	if payload.Provider != "" && payload.Provider != providerName {
		return "", types.NewIntegrationError(types.KindInvalidRequest, providerName, "State does not match provider")
	}

	errorKey := providerName + "_error"
	returnUrl := payload.ReturnUrl
	if returnUrl == "" {
		returnUrl = "/"
	}

	if params.Error != "" {
		log.Info().Str("provider", providerName).Str("user_id", payload.UserId).Str("error", params.Error).Msg("authorization denied by provider")
		return AppendQuery(returnUrl, errorKey, params.Error), nil
	}

	if params.Code == "" {
		return "", types.NewIntegrationError(types.KindInvalidRequest, providerName, "Missing code")
	}

	p, err := h.provider(providerName)
	if err != nil {
		return AppendQuery(returnUrl, errorKey, err.(*types.IntegrationError).Message), nil
	}

	creds, err := p.Exchange(ctx, params.Code)
	if err != nil {
		log.Error().Err(err).Str("provider", providerName).Str("user_id", payload.UserId).Msg("token exchange failed")
		msg := errMsgExchangeFailed
		var te *TokenError
		if errors.As(err, &te) {
			msg = te.UserMessage()
		}
		return AppendQuery(returnUrl, errorKey, msg), nil
	}

	identity, err := p.Identify(ctx, creds)
	if err != nil {
		log.Error().Err(err).Str("provider", providerName).Str("user_id", payload.UserId).Msg("failed to resolve account identity")
		return AppendQuery(returnUrl, errorKey, errMsgIdentifyFailed), nil
	}

	conn, err := h.store.SaveConnection(ctx, &types.Connection{
		UserId:            payload.UserId,
		Provider:          providerName,
		ExternalAccountId: identity.ExternalAccountId,
		AccountName:       identity.AccountName,
		AccessToken:       creds.AccessToken,
		RefreshToken:      creds.RefreshToken,
		ExpiresAt:         creds.ExpiresAt,
		Scope:             creds.Scope,
		Extra:             creds.Extra,
	})
	if err != nil {
		log.Error().Err(err).Str("provider", providerName).Str("user_id", payload.UserId).Msg("failed to save connection")
		return AppendQuery(returnUrl, errorKey, errMsgSaveFailed), nil
	}

	log.Info().
		Str("provider", providerName).
		Str("user_id", payload.UserId).
		Str("connection_id", conn.Id).
		Str("account", identity.AccountName).
		Msg("connection saved")

	return AppendQuery(returnUrl, providerName+"_connected", "true"), nil
}
