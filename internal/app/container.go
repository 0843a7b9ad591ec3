package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ncecere/insights_dashboard/internal/analytics"
	"github.com/ncecere/insights_dashboard/internal/apikeys"
	"github.com/ncecere/insights_dashboard/internal/auth"
	"github.com/ncecere/insights_dashboard/internal/cache"
	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/integrations"
	"github.com/ncecere/insights_dashboard/internal/limits"
	"github.com/ncecere/insights_dashboard/internal/logging"
	"github.com/ncecere/insights_dashboard/internal/observability"
	"github.com/ncecere/insights_dashboard/internal/rbac"
	"github.com/ncecere/insights_dashboard/internal/warehouse"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	DBPool        *pgxpool.Pool
	Redis         *redis.Client
	Users         *auth.PostgresUserStore
	Keys          *apikeys.Service
	Identity      *auth.Identity
	LoginStates   *cache.OneTimeStore
	Authenticator *auth.RequestAuthenticator
	Gate          *rbac.Gate
	Analytics     *analytics.Service
	Limiter       *limits.RateLimiter
	Integrations  *integrations.Registry
	Observability *observability.Provider
}

// NewContainer builds a dependency container from the provided primitives.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if pool == nil {
		return nil, errors.New("db pool is required")
	}
	if redisClient == nil {
		return nil, errors.New("redis client is required")
	}

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	users := auth.NewPostgresUserStore(pool)
	if err := ensureBootstrap(ctx, users, cfg.Bootstrap); err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.Session.JWTSecret, cfg.Auth.Session.TTL, cfg.Auth.Session.Issuer)
	if err != nil {
		return nil, fmt.Errorf("init session tokens: %w", err)
	}
	idOpts := auth.IdentityOptions{LocalEnabled: cfg.Auth.Local.Enabled}
	if cfg.Auth.OIDC.Enabled {
		provider, err := auth.NewOIDCProvider(ctx, cfg.Auth.OIDC)
		if err != nil {
			return nil, fmt.Errorf("init oidc: %w", err)
		}
		idOpts.OIDC = provider
	}
	identity := auth.NewIdentity(users, tokens, cache.NewSessionDenylist(redisClient), idOpts)

	keys := apikeys.NewService(keyStore(cfg.APIKeys, pool), auth.NewKeyCodec(cfg.APIKeys.Prefix), apikeys.Options{
		DefaultTTL: cfg.APIKeys.DefaultTTL,
		Observer:   obsProvider,
	})

	wh, err := warehouse.NewClient(cfg.Analytics.Warehouse, warehouse.WithObserver(obsProvider))
	if err != nil {
		return nil, fmt.Errorf("init warehouse client: %w", err)
	}

	registry, err := newIntegrations(cfg.Integrations, pool, redisClient)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:        cfg,
		DBPool:        pool,
		Redis:         redisClient,
		Users:         users,
		Keys:          keys,
		Identity:      identity,
		LoginStates:   cache.NewOneTimeStore(redisClient, "oidc:login", 10*time.Minute),
		Authenticator: auth.NewRequestAuthenticator(keys, identity),
		Gate:          rbac.NewGate(identity),
		Analytics:     analytics.NewService(wh, analytics.OptionsFromConfig(cfg.Analytics)),
		Limiter:       limits.NewRateLimiter(redisClient, limits.FromConfig(cfg.Analytics.RateLimit)),
		Integrations:  registry,
		Observability: obsProvider,
	}, nil
}

func keyStore(cfg config.APIKeyConfig, pool *pgxpool.Pool) apikeys.Store {
	if cfg.Store == "memory" {
		logging.Warn().Msg("api keys are kept in memory and will not survive a restart")
		return apikeys.NewMemoryStore()
	}
	return apikeys.NewPostgresStore(pool)
}

func newIntegrations(cfg config.IntegrationsConfig, pool *pgxpool.Pool, redisClient *redis.Client) (*integrations.Registry, error) {
	if !cfg.IssueTracker.Enabled {
		return integrations.NewRegistry(cfg, nil, nil), nil
	}
	sealer, err := integrations.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init token sealer: %w", err)
	}
	states := integrations.NewStateStore(cache.NewOneTimeStore(redisClient, "oauth:state", cfg.StateTTL))
	return integrations.NewRegistry(cfg, integrations.NewPostgresTokenStore(pool, sealer), states), nil
}

// Close releases resources owned by the container.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.Observability.Shutdown(ctx)
}
