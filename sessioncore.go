// Package sessioncore wires the Formahub session library: durable session
// vault, session-aware HTTP client, REST gateway, session store, and route
// guard, composed from configuration.
//
// Typical use:
//
//	cfg, err := config.Load(ctx)
//	core, err := sessioncore.New(ctx, cfg, log, sessioncore.WithNavigator(nav))
//	core.Sessions.Initialize(ctx)
//	decision := core.Guard.Evaluate(service.GuardOptions{RequireOnboarded: true})
//
// There is no executable surface; the embedding application owns the event
// loop and the navigation environment.
package sessioncore

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/formahub/session-core/internal/core/ports"
	"github.com/formahub/session-core/internal/core/service"
	"github.com/formahub/session-core/internal/infrastructure/config"
	"github.com/formahub/session-core/internal/infrastructure/queue"
	"github.com/formahub/session-core/internal/infrastructure/vault"
	"github.com/formahub/session-core/internal/transport"
)

// Core bundles the constructed session components.
type Core struct {
	// Sessions is the session store: login, logout, restore, refresh.
	Sessions *service.SessionService
	// Guard decides access to protected views.
	Guard *service.RouteGuard
	// HTTP is the session-aware client every application request should use;
	// it attaches the bearer credential and enforces the 401 contract.
	HTTP *http.Client
	// Gateway is the raw network surface, exposed for advanced consumers.
	Gateway ports.AuthGateway

	redisClient *redis.Client
	mongoClient *mongo.Client
}

// Option customises construction.
type Option func(*settings)

type settings struct {
	navigator ports.Navigator
	vault     ports.SessionVault
}

// WithNavigator injects the navigation handle invoked when the session is
// terminated by a 401. Without one, termination only clears state.
func WithNavigator(nav ports.Navigator) Option {
	return func(s *settings) { s.navigator = nav }
}

// WithVault overrides the configured storage backend with a caller-supplied
// vault.
func WithVault(v ports.SessionVault) Option {
	return func(s *settings) { s.vault = v }
}

// New composes a Core from configuration. The returned Core's session store
// is still loading; call Sessions.Initialize once to resolve it. Close
// releases backend connections.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*Core, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	core := &Core{}

	sessionVault := s.vault
	if sessionVault == nil {
		var err error
		sessionVault, err = core.buildVault(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	client := transport.NewClient(transport.Options{
		Vault:     sessionVault,
		Navigator: s.navigator,
		Timeout:   cfg.HTTPTimeout,
		Logger:    log,
	})
	httpClient := client.HTTPClient()

	gateway := transport.NewRESTGateway(cfg.APIBaseURL, httpClient)

	notifier := queue.NewLogoutNotifier(0, gateway, log)
	notifier.Start(ctx)

	sessions := service.NewSessionService(sessionVault, gateway, notifier, log)
	client.BindSessionClearer(sessions)

	core.Sessions = sessions
	core.Guard = service.NewRouteGuard(sessions, cfg.LoginPath, cfg.OnboardingPath)
	core.HTTP = httpClient
	core.Gateway = gateway
	return core, nil
}

func (c *Core) buildVault(ctx context.Context, cfg *config.Config) (ports.SessionVault, error) {
	switch cfg.Vault.Backend {
	case "memory":
		return vault.NewMemoryVault(), nil

	case "file":
		return vault.NewFileVault(cfg.Vault.Path, cfg.Vault.Passphrase)

	case "redis":
		client, err := vault.ConnectRedis(ctx, vault.RedisConfig{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		c.redisClient = client
		return vault.NewRedisVault(client, cfg.Vault.Scope), nil

	case "mongo":
		client, db, err := vault.ConnectMongo(ctx, vault.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, err
		}
		c.mongoClient = client
		return vault.NewMongoVault(db, cfg.Vault.Scope), nil
	}

	return nil, fmt.Errorf("unknown vault backend %q", cfg.Vault.Backend)
}

// Close releases any backend connections the Core opened.
func (c *Core) Close(ctx context.Context) error {
	var firstErr error
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.mongoClient != nil {
		if err := c.mongoClient.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
