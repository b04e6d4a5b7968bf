package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/paypal"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

const shutdownTimeout = 15 * time.Second

type services struct {
	cart     cart.Service
	checkout checkout.Service
	payments payments.Service
	orders   orders.Service
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.ApplyOnBoot(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	svcs, err := buildServices(ctx, cfg, logg, dbClient, checkoutMetrics)
	if err != nil {
		logg.Error(ctx, "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID("local"),
	})

	root := chi.NewRouter()
	root.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	root.Mount("/", routes.NewRouter(cfg, logg, dbClient, redisClient, svcs.cart, svcs.checkout, svcs.payments, svcs.orders))

	server := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, checkoutMetrics *metrics.CheckoutMetrics) (*services, error) {
	conn := dbClient.DB()

	catalogRepo := catalog.NewRepository(conn)
	resolver, err := catalog.NewResolver(catalogRepo)
	if err != nil {
		return nil, err
	}

	serverStore, err := cart.NewServerStore(conn, dbClient)
	if err != nil {
		return nil, err
	}
	tokenStore, err := cart.NewTokenStore(cfg.CartToken, logg)
	if err != nil {
		return nil, err
	}
	cartService, err := cart.NewService(serverStore, tokenStore, resolver, checkoutMetrics, logg)
	if err != nil {
		return nil, err
	}

	ordersRepo := orders.NewRepository(conn)
	ordersService, err := orders.NewService(orders.ServiceConfig{
		Repo: ordersRepo,
		Tx:   dbClient,
		Stock: func(tx *gorm.DB) orders.StockRestorer {
			return catalogRepo.WithTx(tx)
		},
		RestockOnCancel: cfg.Checkout.DecrementStock,
	})
	if err != nil {
		return nil, err
	}

	outboxService := outbox.NewQueue(outbox.NewStore(conn), logg)

	writer, err := checkout.NewWriter(checkout.WriterConfig{
		Orders: ordersRepo,
		Stock: func(tx *gorm.DB) checkout.StockDecrementer {
			return catalogRepo.WithTx(tx)
		},
		Outbox:         outboxService,
		Currency:       cfg.Payments.BaseCurrency,
		DecrementStock: cfg.Checkout.DecrementStock,
	})
	if err != nil {
		return nil, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceConfig{
		Carts:   cartService,
		Prefill: ordersService,
		Writer:  writer,
		Tx:      dbClient,
		Tiers:   checkout.TiersFromConfig(cfg.Checkout),
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	gateways, err := buildGateways(ctx, cfg, logg, checkoutMetrics)
	if err != nil {
		return nil, err
	}

	paymentService, err := payments.NewService(payments.Config{
		Checkout: checkoutService,
		Writer:   writer,
		Pending:  payments.NewPendingRepository(conn),
		Tx:       dbClient,
		Outbox:   outboxService,
		Gateways: gateways,
		Payments: cfg.Payments,
		Metrics:  checkoutMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		cart:     cartService,
		checkout: checkoutService,
		payments: paymentService,
		orders:   ordersService,
	}, nil
}

// buildGateways always offers cash on delivery and adds each card or wallet gateway
// whose credentials are configured.
func buildGateways(ctx context.Context, cfg *config.Config, logg *logger.Logger, obs *metrics.CheckoutMetrics) ([]payments.Gateway, error) {
	gateways := []payments.Gateway{payments.CashOnDelivery{}}

	if cfg.PayPal.Enabled() {
		client, err := paypal.NewClient(ctx, cfg.PayPal, logg)
		if err != nil {
			return nil, err
		}
		gateway, err := payments.NewPayPalGateway(client, obs)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gateway)
	} else {
		logg.Warn(ctx, "paypal disabled: credentials not configured")
	}

	if cfg.Square.Enabled() {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		gateway, err := payments.NewSquareGateway(client, obs)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gateway)
	} else {
		logg.Warn(ctx, "square disabled: credentials not configured")
	}

	return gateways, nil
}
