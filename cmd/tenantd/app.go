package main

import (
	"context"

	"github.com/vyrodovalexey/avtenantd/internal/cache"
	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/guard"
	"github.com/vyrodovalexey/avtenantd/internal/httpapi"
	"github.com/vyrodovalexey/avtenantd/internal/lifecycle"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/router"
	"github.com/vyrodovalexey/avtenantd/internal/store"
	"github.com/vyrodovalexey/avtenantd/internal/token"
)

// application holds all application components.
type application struct {
	server *httpapi.Server
	router *router.Router
	driver store.Driver
	cache  cache.Cache
	config *config.ServiceConfig
}

// initApplication wires all components together. Any wiring failure is fatal.
func initApplication(cfg *config.ServiceConfig, logger observability.Logger) *application {
	ctx := context.Background()

	driver, err := store.NewMongoDriver(ctx, store.MongoConfig{
		URI:            cfg.Catalog.URI,
		MasterDatabase: cfg.Catalog.Database,
		ConnectTimeout: cfg.Catalog.ConnectTimeout.Duration(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to catalog store", observability.Error(err))
	}

	// A cache failure at startup degrades to no caching instead of refusing
	// to boot.
	cacheClient, err := cache.New(&cfg.Cache, logger)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", observability.Error(err))
		cacheClient = cache.NewDisabledCache()
	}

	users := catalog.NewUsers(driver.Master(), logger)
	tenants := catalog.NewTenants(driver.Master(), cacheClient, logger)
	if err := catalog.Bootstrap(ctx, users, tenants); err != nil {
		logger.Fatal("failed to bootstrap catalog indexes", observability.Error(err))
	}

	revocations := token.NewRevocations(cacheClient, logger)
	tokens, err := token.NewService(cfg.Auth, users, revocations,
		token.WithServiceLogger(logger),
		token.WithServiceMetrics(token.NewMetrics("tenantd")),
	)
	if err != nil {
		logger.Fatal("failed to create token service", observability.Error(err))
	}

	rtr := router.New(cfg.Router, tenants, driver,
		router.WithLogger(logger),
		router.WithMetrics(router.NewMetrics("tenantd")),
	)

	g := guard.New(tokens, rtr,
		guard.WithLogger(logger),
		guard.WithMetrics(guard.NewMetrics("tenantd")),
	)

	manager := lifecycle.NewManager(tenants, users, driver, rtr, logger)

	server := httpapi.NewServer(cfg.Server, tokens, users, manager, g, driver,
		httpapi.WithLogger(logger),
	)

	return &application{
		server: server,
		router: rtr,
		driver: driver,
		cache:  cacheClient,
		config: cfg,
	}
}
