package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	c "github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	cartgrpc "github.com/fjod/go_cart/storefront/internal/grpc"
	carthttp "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/poller"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/repository"
	s "github.com/fjod/go_cart/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("cart service failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := pricing.Policy{
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
		DeliveryFee:           cfg.DeliveryFee,
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Error("failed to close store", zap.Error(err))
		}
	}()
	repo := repository.NewBreakerRepository(store, repository.BreakerSettings{
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
	}, log)

	cache, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	service := s.NewCartService(repo, cache, pricing.NewEngine(policy), log)

	// HTTP
	router := carthttp.NewRouter(carthttp.NewCartHandler(service, log), log, carthttp.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer, healthServer := cartgrpc.NewServer(cartgrpc.NewCartServiceServer(service), log)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("grpc server listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// Checkout consumer
	var wg sync.WaitGroup
	var checkoutPoller *poller.Poller
	if len(cfg.KafkaBrokers) > 0 {
		reader := poller.NewKafkaReader(poller.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
		checkoutPoller = poller.NewPoller(service, reader, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkoutPoller.Run(ctx)
		}()
		log.Info("checkout consumer started",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down cart service")
	case runErr = <-errCh:
		log.Error("server stopped unexpectedly", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	wg.Wait()
	if checkoutPoller != nil {
		checkoutPoller.Close()
	}

	log.Info("cart service stopped")
	return runErr
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repository.CartRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		store, err := repository.NewPostgresStore(connectCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		log.Info("connected to postgres")
		return store, nil
	case config.BackendSQLite:
		store, err := repository.NewSQLiteStore(connectCtx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Info("opened sqlite database", zap.String("path", cfg.SQLitePath))
		return store, nil
	case config.BackendMemory:
		log.Warn("using in-memory cart store; carts are lost on restart")
		return repository.NewMemoryRepository(), nil
	default:
		store, err := repository.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		log.Info("connected to mongodb", zap.String("database", cfg.MongoDBName))
		return store, nil
	}
}

// openCache returns a no-op cache when Redis is not configured. An unreachable
// Redis at startup is logged, not fatal: reads fall back to the store.
func openCache(ctx context.Context, cfg config.Config, log *zap.Logger) (c.CartCache, func()) {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, cart cache disabled")
		return c.Noop{}, func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	}

	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis client", zap.Error(err))
		}
	}
	return c.NewRedisCache(redisClient, cfg.CacheTTL), closeFn
}
