package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/api/handlers/campaign"
	"github.com/aliskhannn/notify-engine/internal/api/handlers/notification"
	"github.com/aliskhannn/notify-engine/internal/api/handlers/webhook"
	"github.com/aliskhannn/notify-engine/internal/api/router"
	"github.com/aliskhannn/notify-engine/internal/api/server"
	"github.com/aliskhannn/notify-engine/internal/backoff"
	"github.com/aliskhannn/notify-engine/internal/config"
	eventmsg "github.com/aliskhannn/notify-engine/internal/rabbitmq/handlers/event"
	"github.com/aliskhannn/notify-engine/internal/rabbitmq/queue"
	"github.com/aliskhannn/notify-engine/internal/ratelimit"
	"github.com/aliskhannn/notify-engine/internal/reconciler"
	"github.com/aliskhannn/notify-engine/internal/render"
	campaignsvc "github.com/aliskhannn/notify-engine/internal/service/campaign"
	notifsvc "github.com/aliskhannn/notify-engine/internal/service/notification"
	"github.com/aliskhannn/notify-engine/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Retries, cfg.RabbitMQ.Pause)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to open channel")
	}

	eq, err := queue.NewEventQueue(ch, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create event queue")
	}

	st, err := openStores(cfg)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open storage")
	}

	routes, err := buildRoutes(ctx, cfg)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to register channel adapters")
	}

	factory := ratelimit.Factory(ratelimit.MemoryFactory)
	if cfg.RateLimit.Backend == config.RateLimitRedis {
		dbNum, err := strconv.Atoi(cfg.Redis.Database)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to parse redis database")
		}

		rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, dbNum)
		if err = rdb.Ping(ctx).Err(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to close redis")
			}
		}()

		factory = ratelimit.RedisFactory(rdb)
	}
	limiters := ratelimit.NewRegistry(factory, routes.Bindings())

	renderer, err := render.NewRenderer(cfg.Templates)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to compile templates")
	}

	notifService := notifsvc.NewService(st.notifications, renderer, routes, cfg.Dispatch.MaxRetries)
	campaignService := campaignsvc.NewService(st.notifications, st.campaigns, renderer, routes, campaignsvc.Config{
		EnqueuePerSecond: cfg.Campaign.EnqueuePerSecond,
		StatsInterval:    cfg.Campaign.StatsInterval,
		MaxRetries:       cfg.Dispatch.MaxRetries,
	})

	pool := worker.NewPool(st.notifications, renderer, routes, limiters,
		backoff.Policy{BaseDelay: cfg.Dispatch.BackoffBase, CapDelay: cfg.Dispatch.BackoffCap},
		worker.Config{
			Workers:           cfg.Dispatch.Workers,
			BatchSize:         cfg.Dispatch.BatchSize,
			PollInterval:      cfg.Dispatch.PollInterval,
			SendTimeout:       cfg.Dispatch.SendTimeout,
			ProcessingTimeout: cfg.Dispatch.ProcessingTimeout,
			SweepInterval:     cfg.Dispatch.SweepInterval,
			RateLimitMaxWait:  cfg.Dispatch.RateLimitMaxWait,
		},
	)

	rec := reconciler.New(st.notifications, cfg.Webhook.Reconcile)
	messageHandler := eventmsg.NewHandler(rec, eq, cfg.RabbitMQ.MaxAttempts)
	consumer := worker.NewEventConsumer(eq, messageHandler)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		pool.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		campaignService.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(ctx, cfg.Retry, cfg.Webhook.Workers)
	}()

	r := router.New(
		notification.NewHandler(notifService, val),
		campaign.NewHandler(campaignService, val),
		webhook.NewHandler(eq, cfg.Retry),
	)
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Str("storage", cfg.Storage.Driver).Msg("starting server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// in-flight sends finish before the store goes away
	wg.Wait()

	st.close()

	if err := ch.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ channel")
	}

	if err := conn.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ connection")
	}
}
