package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/carousel"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/categories"
	"github.com/angelmondragon/storefront-backend/internal/media"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/lock"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	bootstrap.Main("api", run)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	files, err := media.NewLocalStore(cfg.Media, logg)
	if err != nil {
		return err
	}

	checkoutLock, err := newCheckoutLocker(cfg, redisClient)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		Logger:         logg,
		PasswordConfig: &cfg.Password,
	})
	if err != nil {
		return err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}
	if err := registerService.EnsureAdmin(ctx, cfg.Admin); err != nil {
		return err
	}

	productService, err := product.NewService(product.NewRepository(dbClient.DB()), dbClient, files, logg)
	if err != nil {
		return err
	}
	categoryService, err := categories.NewService(categories.NewRepository(dbClient.DB()), dbClient, files, logg)
	if err != nil {
		return err
	}
	carouselService, err := carousel.NewService(dbClient.DB())
	if err != nil {
		return err
	}
	cartRepo := cart.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cartRepo, dbClient, cfg.DB.TxTimeout)
	if err != nil {
		return err
	}
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(dbClient.DB()),
		Carts:    cartRepo,
		DB:       dbClient,
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Locker:   checkoutLock,
		Metrics:  metrics.NewCheckoutMetrics(registry),
		Checkout: cfg.Checkout,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Dependencies{
		Config:     cfg,
		Logger:     logg,
		Gatherer:   registry,
		HTTP:       metrics.NewHTTPMetrics(registry),
		DB:         dbClient,
		Redis:      redisClient,
		RateStore:  redisClient,
		Sessions:   sessionManager,
		Auth:       authService,
		Register:   registerService,
		Products:   productService,
		Categories: categoryService,
		Carousel:   carouselService,
		Cart:       cartService,
		Orders:     orderService,
		ImagesDir:  files.Dir(),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   server.Addr,
		"sqlite": cfg.FeatureFlags.UseSQLite,
	})
	logg.Info(logCtx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logg.Info(logCtx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// newCheckoutLocker serializes checkouts per user. SQLite runs as a single
// process, so an in-memory lock is enough there; otherwise replicas share Redis.
func newCheckoutLocker(cfg *config.Config, client *redis.Client) (lock.Locker, error) {
	if cfg.FeatureFlags.UseSQLite {
		return lock.NewKeyedMutex(cfg.Checkout.LockWait), nil
	}
	locker, err := lock.NewRedisLocker(client, client, lock.RedisOptions{
		Scope: "checkout",
		TTL:   cfg.Checkout.LockTTL,
		Wait:  cfg.Checkout.LockWait,
	})
	if err != nil {
		return nil, err
	}
	return locker, nil
}
