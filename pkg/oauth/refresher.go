package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doxen-app/doxen/pkg/common"
	"github.com/doxen-app/doxen/pkg/metrics"
	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshMargin  = 60 * time.Second
	DefaultTokenLifetime  = 3600 * time.Second
	refreshLockTTLSeconds = 10
)

// Refresher hands out currently valid access tokens, rotating them through
// the provider's token endpoint when they are about to expire.
type Refresher struct {
	registry        *Registry
	store           repository.ConnectionRepository
	lock            *common.RedisLock
	metrics         metrics.Recorder
	margin          time.Duration
	defaultLifetime time.Duration
	now             func() time.Time
	group           singleflight.Group
}

type RefresherConfig struct {
	Margin          time.Duration
	DefaultLifetime time.Duration
}

// NewRefresher creates a refresher. lock may be nil in local mode.
func NewRefresher(registry *Registry, store repository.ConnectionRepository, lock *common.RedisLock, recorder metrics.Recorder, cfg RefresherConfig) *Refresher {
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultRefreshMargin
	}
	if cfg.DefaultLifetime <= 0 {
		cfg.DefaultLifetime = DefaultTokenLifetime
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	return &Refresher{
		registry:        registry,
		store:           store,
		lock:            lock,
		metrics:         recorder,
		margin:          cfg.Margin,
		defaultLifetime: cfg.DefaultLifetime,
		now:             time.Now,
	}
}

// NeedsRefresh reports whether the stored token expires within the margin.
// Connections without an expiry never need refreshing.
func (r *Refresher) NeedsRefresh(conn *types.Connection) bool {
	if conn.ExpiresAt == nil {
		return false
	}
	return conn.ExpiresAt.Sub(r.now()) <= r.margin
}

type refreshResult struct {
	accessToken string
	expiresAt   time.Time
}

// GetValidAccessToken returns the stored token when it is still valid,
// otherwise refreshes it and persists the new token and expiry. conn is
// updated in place on refresh.
func (r *Refresher) GetValidAccessToken(ctx context.Context, conn *types.Connection) (string, error) {
	if !r.NeedsRefresh(conn) {
		return conn.AccessToken, nil
	}

	if !conn.HasRefreshToken() {
		r.metrics.RecordTokenRefresh(conn.Provider, metrics.ResultReauth)
		return "", types.NewReauthorizationError(conn.Provider)
	}

	// The flight is shared by every waiter, so it must outlive any one
	// caller's cancellation. Each waiter still leaves on its own ctx.
	flight := r.group.DoChan(conn.Id, func() (any, error) {
		return r.refresh(context.WithoutCancel(ctx), conn)
	})

	var out singleflight.Result
	select {
	case out = <-flight:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if out.Err != nil {
		return "", out.Err
	}

	res := out.Val.(*refreshResult)
	conn.AccessToken = res.accessToken
	expiresAt := res.expiresAt
	conn.ExpiresAt = &expiresAt
	return res.accessToken, nil
}

func (r *Refresher) refresh(ctx context.Context, conn *types.Connection) (*refreshResult, error) {
	if r.lock != nil {
		key := common.Keys.RefreshLock(conn.Id)
		if err := r.lock.Acquire(ctx, key, common.RedisLockOptions{TtlS: refreshLockTTLSeconds, Retries: 3}); err != nil {
			// Proceed unlocked; both writers end up with a valid token
			log.Warn().Err(err).Str("connection_id", conn.Id).Msg("refresh lock not obtained, refreshing anyway")
		} else {
			defer r.lock.Release(key)

			// Another gateway may have refreshed while we waited
			if current, err := r.store.GetConnectionById(ctx, conn.Id); err == nil && current != nil && current.ExpiresAt != nil && !r.NeedsRefresh(current) {
				return &refreshResult{accessToken: current.AccessToken, expiresAt: *current.ExpiresAt}, nil
			}
		}
	}

	provider, ok := r.registry.GetProvider(conn.Provider)
	if !ok {
		r.metrics.RecordTokenRefresh(conn.Provider, metrics.ResultFailure)
		return nil, &types.IntegrationError{
			Kind:     types.KindTokenRefreshFailed,
			Provider: conn.Provider,
			Message:  fmt.Sprintf("Token refresh failed: %s OAuth is not configured", types.ProviderDisplayName(conn.Provider)),
		}
	}

	token, err := provider.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		r.metrics.RecordTokenRefresh(conn.Provider, metrics.ResultFailure)
		log.Error().Err(err).Str("provider", conn.Provider).Str("connection_id", conn.Id).Msg("token refresh failed")
		return nil, refreshError(conn.Provider, err)
	}

	lifetime := token.ExpiresIn
	if lifetime <= 0 {
		lifetime = r.defaultLifetime
	}
	expiresAt := r.now().Add(lifetime)

	if err := r.store.UpdateConnectionToken(ctx, conn.Id, token.AccessToken, token.RefreshToken, &expiresAt); err != nil {
		r.metrics.RecordTokenRefresh(conn.Provider, metrics.ResultFailure)
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	r.metrics.RecordTokenRefresh(conn.Provider, metrics.ResultSuccess)
	log.Info().Str("provider", conn.Provider).Str("connection_id", conn.Id).Time("expires_at", expiresAt).Msg("access token refreshed")

	return &refreshResult{accessToken: token.AccessToken, expiresAt: expiresAt}, nil
}

func refreshError(provider string, err error) error {
	var te *TokenError
	if errors.As(err, &te) {
		msg := "Token refresh failed: " + te.Code
		if te.Description != "" {
			msg += " - " + te.Description
		}
		return &types.IntegrationError{Kind: types.KindTokenRefreshFailed, Provider: provider, Status: te.Status, Message: msg, Err: err}
	}
	return &types.IntegrationError{Kind: types.KindTokenRefreshFailed, Provider: provider, Message: "Token refresh failed", Err: err}
}
