package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parnass/internal/calendar"
	"parnass/internal/config"
	"parnass/internal/events"
	"parnass/internal/gateway"
	"parnass/internal/idempotency"
	"parnass/internal/middleware"
	"parnass/internal/modules/live"
	"parnass/internal/modules/settlement"
	"parnass/internal/modules/sponsorship"
	"parnass/internal/pkg/jwt"
	"parnass/internal/pkg/response"
	"parnass/internal/pkg/telemetry"
	"parnass/internal/repository"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := bootstrap(migrate)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "run database migrations on startup")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		MetricInterval: cfg.OTel.MetricInterval,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	reservations := repository.NewReservationRepository(a.db)
	settings := repository.NewSettingsRepository(a.db)
	settlements := repository.NewSettlementRepository(a.db)
	idemRepo := repository.NewIdempotencyRepository(a.db)

	var idem sponsorship.IdempotencyStore = idemRepo
	if cfg.Redis.Addr != "" {
		client, err := idempotency.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		idem = idempotency.NewRedisStore(client, cfg.App.Name+":")
		a.log.Info("idempotency keys in redis", zap.String("addr", cfg.Redis.Addr))
	}

	broker, err := a.publisher()
	if err != nil {
		return err
	}
	hub := live.NewHub(a.log)
	publisher := events.Fanout{broker, hub}
	defer func() {
		if err := publisher.Close(); err != nil {
			a.log.Warn("close publishers failed", zap.Error(err))
		}
	}()

	conv, err := calendar.New(cfg.Calendar)
	if err != nil {
		return err
	}

	sponsorships := sponsorship.NewService(reservations, settings, idem, publisher, conv, a.log)
	sponsorships.SetIdempotencyTTL(cfg.Idempotency.TTL)

	settle := settlement.NewService(reservations, settlements, settings, nil, publisher, a.log)
	configurePayments(cfg.Payment, settle, a.log)

	sweeper := sponsorship.NewSweeper(sponsorships, sponsorship.SweeperConfig{
		Interval:  cfg.Sweep.Interval,
		BatchSize: cfg.Sweep.BatchSize,
	})
	stopSweep := sweeper.Schedule(ctx)
	defer close(stopSweep)
	if cfg.Redis.Addr == "" {
		go purgeIdempotencyKeys(ctx, idemRepo, cfg.Sweep.Interval, a.log)
	}

	j := jwt.New(cfg.JWT.Secret, cfg.JWT.TTL)
	auth := middleware.JWTAuth(j)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(a.log), middleware.CORS(cfg.CORSOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := a.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			response.Error(c, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
			return
		}
		response.Success(c, http.StatusOK, gin.H{
			"status":  "ok",
			"version": cfg.App.Version,
			"sweeper": sweeper.Stats(),
		})
	})

	if cfg.Payment.WebhookSecret == "" {
		a.log.Warn("SETTLEMENT_WEBHOOK_SECRET is empty, the settlement webhook accepts unsigned requests")
	}

	v1 := router.Group("/api/v1")
	sponsorship.NewHandler(sponsorships).RegisterRoutes(v1, auth, middleware.OptionalJWTAuth(j))
	settlement.NewHandler(settle).RegisterRoutes(v1, middleware.WebhookSignature(cfg.Payment.WebhookSecret, a.log))
	live.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(v1, auth)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// websocket streams are hijacked and not tracked by Shutdown
	_ = hub.Close()
	return srv.Shutdown(shutdownCtx)
}

// configurePayments picks the processor that opens sessions and enables the
// webhooks whose secrets are configured.
func configurePayments(p config.PaymentConfig, svc *settlement.Service, log *zap.Logger) {
	var processor gateway.Processor = gateway.Manual{}

	if p.StripeSecretKey != "" && p.StripeWebhookSecret != "" {
		stripe := gateway.NewStripe(gateway.StripeConfig{
			SecretKey:     p.StripeSecretKey,
			WebhookSecret: p.StripeWebhookSecret,
			SuccessURL:    p.StripeSuccessURL,
			CancelURL:     p.StripeCancelURL,
		})
		svc.SetStripe(stripe)
		if p.Provider == config.ProviderStripe {
			processor = stripe
		}
	}
	if p.MidtransServerKey != "" {
		midtrans := gateway.NewMidtrans(p.MidtransServerKey, p.MidtransProduction)
		svc.SetMidtrans(midtrans)
		if p.Provider == config.ProviderMidtrans {
			processor = midtrans
		}
	}

	svc.SetProcessor(processor)
	log.Info("payment processor configured", zap.String("processor", processor.Name()))
}

func purgeIdempotencyKeys(ctx context.Context, repo *repository.IdempotencyRepository, every time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purge idempotency keys failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged idempotency keys", zap.Int64("count", n))
			}
		}
	}
}
