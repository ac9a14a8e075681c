package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voltstore/storefront/internal/auth"
	"github.com/voltstore/storefront/internal/domain/order"
	"github.com/voltstore/storefront/internal/domain/receipt"
	"github.com/voltstore/storefront/internal/handler"
	"github.com/voltstore/storefront/internal/notify"
	"github.com/voltstore/storefront/internal/storage/postgres"
	"github.com/voltstore/storefront/internal/upload"
	"github.com/voltstore/storefront/pkg/health"
	"github.com/voltstore/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the notification
// dispatcher, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	receiptRepo := postgres.NewReceiptRepository(pool)
	settingsStore := postgres.NewSettingsStore(pool)

	// Notification fan-out: email + telegram behind an async dispatcher.
	notifyMetrics, err := notify.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create notify metrics")
	}
	dispatcher := notify.NewDispatcher(lg.Named("notify"), notifyMetrics,
		notify.NewEmail(settingsStore, lg.Named("email")),
		notify.NewTelegram(settingsStore, lg.Named("telegram")),
	)

	// Domain services.
	orderService := order.NewService(productRepo, orderRepo, dispatcher)
	uploads := upload.NewStore(cfg.UploadDir)
	receiptService := receipt.NewService(receiptRepo, orderRepo, uploads, func(msg string, err error) {
		lg.Warn(msg, zap.Error(err))
	})

	verifier := auth.NewTokenVerifier([]byte(cfg.AuthSecret))

	// Router: health endpoints, uploaded files, and the API surface.
	srv := handler.NewServer(orderService, productRepo, receiptService, uploads, lg.Named("http"))
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	srv.Routes(router, verifier)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api"),
			httpmiddleware.LogRequests(),
		),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
