package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/htrc/data-api/pkg/audit"
	"github.com/htrc/data-api/pkg/cache"
	"github.com/htrc/data-api/pkg/config"
	"github.com/htrc/data-api/pkg/dispatch"
	"github.com/htrc/data-api/pkg/gateway"
	"github.com/htrc/data-api/pkg/logging"
	"github.com/htrc/data-api/pkg/retrieval"
	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/store/blobstore"
	"github.com/htrc/data-api/pkg/store/memstore"
	"github.com/htrc/data-api/pkg/store/redisstore"
	"github.com/htrc/data-api/pkg/store/s3store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("DATA_API_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// run wires the pipeline, serves until ctx is done and shuts down the HTTP
// server before the dispatch pool.
func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger("main")

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	}

	backend, closeBackend, err := openBackend(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeBackend()

	svc, pool := newService(cfg, backend, redisClient, audit.FromLogger(log.Logger))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newServer(svc, audit.FromLogger(log.Logger), cfg.Compression()).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Str("backend", cfg.StorageBackend).
			Int("workers", pool.Workers()).
			Msg("Starting data API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Dispatch pool shutdown incomplete")
	}
	return nil
}

// newService builds the gateway, the shared dispatch pool and the
// retrieval service over backend. The caller owns the pool's shutdown.
func newService(cfg *config.Config, backend store.Backend, redisClient *redis.Client, auditor retrieval.Auditor) (*retrieval.Service, *dispatch.Pool) {
	opts := []gateway.Option{gateway.WithFetchTimeout(cfg.FetchTimeout())}
	if ttl := cfg.CacheTTL(); ttl > 0 && redisClient != nil {
		opts = append(opts, gateway.WithCache(cache.NewManager(redisClient, ttl)))
	}
	gw := gateway.New(backend, cfg.Retry(), opts...)

	pool := dispatch.NewPool(gw, cfg.Pool())
	svc := retrieval.NewService(pool, gw, cfg.Checkers(), auditor, cfg.Retrieval())
	return svc, pool
}

// openBackend opens the configured column store. The returned func
// releases it.
func openBackend(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (store.Backend, func(), error) {
	noop := func() {}

	switch cfg.StorageBackend {
	case config.BackendRedis:
		return redisstore.New(redisClient, cfg.StoragePrefix), noop, nil

	case config.BackendS3:
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		st, err := s3store.New(client, s3store.Config{Bucket: cfg.S3Bucket, Prefix: cfg.StoragePrefix})
		if err != nil {
			return nil, nil, err
		}
		return st, noop, nil

	case config.BackendBlob:
		st, err := blobstore.Open(ctx, cfg.BlobURL, cfg.StoragePrefix)
		if err != nil {
			return nil, nil, err
		}
		return st, closeWith(st), nil

	case config.BackendMemory:
		return memstore.New(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func closeWith(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close storage backend")
		}
	}
}
