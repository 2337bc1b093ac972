package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/api"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/feed"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/provider"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/scheduler"
	"github.com/shubham-shewale/quote-stream/pkg/config"
)

var configModule = fx.Module("config",
	fx.Provide(
		config.LoadConfig,
		func(cfg *config.Config) (*zap.Logger, error) {
			return config.NewLogger(cfg.Logger)
		},
		newBaseContext,
	),
)

var streamModule = fx.Module("stream",
	fx.Provide(
		newQuoteProvider,
		hub.NewRegistry,
		func(reg *hub.Registry, p provider.QuoteProvider, logger *zap.Logger, cfg *config.Config) *hub.Hub {
			return hub.NewHub(reg, p, logger, cfg.Scheduler.FetchTimeout)
		},
		func(h *hub.Hub, p provider.QuoteProvider, pub *feed.Publisher, logger *zap.Logger, cfg *config.Config) *scheduler.Scheduler {
			return scheduler.New(h, p, pub, logger, scheduler.Options{
				Interval:       cfg.Scheduler.Interval,
				MaxConcurrency: cfg.Scheduler.MaxConcurrency,
				FetchTimeout:   cfg.Scheduler.FetchTimeout,
			})
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, s *scheduler.Scheduler, h *hub.Hub) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				s.Start(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				s.Stop()
				h.Shutdown()
				return nil
			},
		})
	}),
)

var feedModule = fx.Module("feed",
	fx.Provide(
		newRedisClient,
		newSnapshotStore,
		newRateLimiter,
		newKafkaWriter,
		newPublisher,
	),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, pub *feed.Publisher, rdb *redis.Client, logger *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if cfg.Kafka.Enabled {
					dialer := feed.NetDialer{Dialer: &kafka.Dialer{Timeout: cfg.Scheduler.FetchTimeout}}
					spec := feed.TopicSpec{Name: cfg.Kafka.Topic, Partitions: cfg.Kafka.Partitions}
					err := feed.NewTopicCreator(logger, dialer, feed.RealClock{}).Ensure(ctx, cfg.Kafka.Brokers, spec)
					if err != nil {
						// the writer surfaces a missing topic on its own
						logger.Warn("Could not ensure tick topic", zap.String("topic", spec.Name), zap.Error(err))
					}
				}
				pub.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				err := pub.Stop()
				if rdb != nil {
					err = multierr.Append(err, rdb.Close())
				}
				return err
			},
		})
	}),
)

var httpModule = fx.Module("http",
	fx.Provide(
		func(ctx context.Context, h *hub.Hub, p provider.QuoteProvider, store repository.SnapshotStore,
			limiter repository.RateLimiter, logger *zap.Logger, cfg *config.Config) *api.Handler {
			return api.NewHandler(ctx, h, p, store, limiter, logger, gateway.OptionsFromConfig(cfg.Gateway))
		},
		func(h *api.Handler, cfg *config.Config, logger *zap.Logger) *http.Server {
			return &http.Server{
				Addr:    cfg.App.Port,
				Handler: api.NewRouter(h, cfg.Gateway.AllowedOrigins, logger),
			}
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, srv *http.Server, logger *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					return err
				}
				go func() {
					logger.Info("Server Started", zap.String("port", srv.Addr))
					if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
						logger.Error("HTTP Error", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				// hijacked websocket conns are closed by the hub, not here
				err := srv.Shutdown(ctx)
				logger.Info("Shutdown Complete")
				return err
			},
		})
	}),
)

// newBaseContext lives as long as the app and bounds work done for websocket
// clients after their HTTP request has returned.
func newBaseContext(lc fx.Lifecycle) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return ctx
}

func newQuoteProvider(cfg *config.Config, logger *zap.Logger) provider.QuoteProvider {
	if cfg.Provider.Kind == "simulated" {
		return provider.NewSimulatedProvider(logger, cfg.Provider.BasePrices, provider.NewRealRand(), provider.RealClock{})
	}
	return provider.NewYahooProvider(logger, cfg.Provider.RequestsPerSecond)
}

// newRedisClient returns nil when the snapshot cache is disabled.
func newRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func newSnapshotStore(rdb *redis.Client, logger *zap.Logger) repository.SnapshotStore {
	if rdb == nil {
		return nil
	}
	return repository.NewRedisStore(rdb, logger)
}

func newRateLimiter(rdb *redis.Client, cfg *config.Config) repository.RateLimiter {
	if rdb == nil || cfg.Gateway.ConnectLimit <= 0 {
		return nil
	}
	return repository.NewRedisRateLimiter(rdb, cfg.Gateway.ConnectLimit, cfg.Gateway.ConnectWindow)
}

func newKafkaWriter(cfg *config.Config, logger *zap.Logger) feed.KafkaWriter {
	if !cfg.Kafka.Enabled {
		return nil
	}
	return feed.NewKafkaWriter(cfg.Kafka, logger)
}

func newPublisher(rdb *redis.Client, writer feed.KafkaWriter, logger *zap.Logger, cfg *config.Config) *feed.Publisher {
	// a nil *redis.Client must not become a non-nil interface
	var cache feed.RedisClient
	if rdb != nil {
		cache = rdb
	}
	return feed.NewPublisher(logger, cache, writer, feed.Options{
		NumWorkers:  cfg.Feed.NumWorkers,
		QueueSize:   cfg.Feed.QueueSize,
		SnapshotTTL: cfg.Redis.SnapshotTTL,
	})
}
