// README: Entry point; loads config, builds the pricing snapshot, wires quote flow and serves HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fleetfare/internal/config"
	httptransport "fleetfare/internal/http"
	"fleetfare/internal/infra"
	"fleetfare/internal/maps"
	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/modules/quote"
)

func main() {
	// .env is optional; real env vars win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := infra.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := serve(ctx, cfg, logger)
	stop()
	os.Exit(code)
}

// serve runs the service and returns the process exit code once every
// deferred cleanup in run has finished and the logger is flushed.
func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) int {
	err := run(ctx, cfg, logger)
	if err != nil {
		logger.Error("fare-api stopped", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	switch {
	case errors.Is(err, infra.ErrAuthDisabled):
		logger.Warn("firebase project not set; protected routes will reject every request")
		verifier = infra.DenyAllVerifier{}
	case err != nil:
		return fmt.Errorf("firebase init: %w", err)
	}

	loader, closeLoader, err := newLoader(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLoader()

	snap, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("initial pricing load: %w", err)
	}
	holder := pricing.NewSnapshotHolder(snap)
	logger.Info("pricing snapshot loaded", zap.String("source", cfg.Pricing.Source), zap.Time("loaded_at", snap.LoadedAt()))
	if cfg.Pricing.RefreshInterval > 0 {
		go holder.RunRefresher(ctx, cfg.Pricing.RefreshInterval, loader, logger)
	}
	pricingSvc := pricing.NewService(holder, logger)

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
	defer redisClient.Close()

	var events quote.Publisher = quote.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := quote.NewKafkaPublisher(cfg.Kafka.Brokers, logger)
		defer kp.Close()
		events = kp
	} else {
		logger.Info("kafka brokers not set; fare events are dropped")
	}

	var routes quote.RouteFinder
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Language, cfg.Maps.Region)
		if err != nil {
			return fmt.Errorf("maps init: %w", err)
		}
		routes = rs
	} else {
		logger.Info("maps api key not set; estimates must carry distance and duration")
	}

	quoteSvc := quote.NewService(quote.NewRedisStore(redisClient), pricingSvc, routes, events, cfg.Quote, logger)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Pricing:   pricingSvc,
		Snapshots: holder,
		Loader:    loader,
		Quotes:    quoteSvc,
		Verifier:  verifier,
		Logger:    logger,
	})
	return httptransport.NewServer(cfg.HTTP, router, logger).Run(ctx)
}

func newLoader(ctx context.Context, cfg config.Config) (pricing.Loader, func(), error) {
	switch cfg.Pricing.Source {
	case config.SourceFile:
		return pricing.FileLoader{Path: cfg.Pricing.RateSheet}, func() {}, nil
	default:
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pricing.NewStore(db), db.Close, nil
	}
}
