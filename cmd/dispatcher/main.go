package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/reminder-dispatcher/internal/api/handlers/dispatch"
	reminderhandler "github.com/aliskhannn/reminder-dispatcher/internal/api/handlers/reminder"
	"github.com/aliskhannn/reminder-dispatcher/internal/api/router"
	"github.com/aliskhannn/reminder-dispatcher/internal/api/server"
	"github.com/aliskhannn/reminder-dispatcher/internal/cache"
	"github.com/aliskhannn/reminder-dispatcher/internal/channel"
	"github.com/aliskhannn/reminder-dispatcher/internal/config"
	"github.com/aliskhannn/reminder-dispatcher/internal/metrics"
	"github.com/aliskhannn/reminder-dispatcher/internal/model"
	reminderrepo "github.com/aliskhannn/reminder-dispatcher/internal/repository/reminder"
	remindersvc "github.com/aliskhannn/reminder-dispatcher/internal/service/reminder"
	"github.com/aliskhannn/reminder-dispatcher/internal/worker"
	"github.com/aliskhannn/reminder-dispatcher/pkg/email"
	"github.com/aliskhannn/reminder-dispatcher/pkg/fcm"
	"github.com/aliskhannn/reminder-dispatcher/pkg/telegram"
)

type closer struct {
	name  string
	close func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	var closers []closer

	var store reminderrepo.Store
	switch cfg.Store.Driver {
	case "postgres":
		opts := &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}

		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
		}

		closers = append(closers, closer{"master db", db.Master.Close})
		for i, s := range db.Slaves {
			closers = append(closers, closer{fmt.Sprintf("slave db %d", i), s.Close})
		}

		store = reminderrepo.NewRepository(db)
	case "memory":
		zlog.Logger.Warn().Msg("using in-memory reminder store, records are lost on restart")
		store = reminderrepo.NewMemoryStore()
	}

	loc, err := time.LoadLocation(cfg.Dispatcher.Timezone)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to load timezone")
	}

	registry := channel.NewRegistry(buildChannels(cfg, loc), model.Channel(cfg.Dispatcher.DefaultChannel))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(reg)

	columns := remindersvc.NewColumnResolver(
		store,
		cfg.Store.DueColumn,
		cfg.Store.ProbeDueColumn,
		cfg.Store.DueColumnCandidates,
		gocache.New(gocache.NoExpiration, 10*time.Minute),
	)

	dispatcherOpts := []remindersvc.Option{remindersvc.WithMetrics(recorder)}
	service := remindersvc.NewService(store, columns, nil, cfg.Retry)

	if cfg.Redis.Address != "" {
		rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.Database)

		if err := rdb.Ping(ctx).Err(); err != nil {
			if cfg.Dispatcher.RunLock.Enabled {
				zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
			}
			zlog.Logger.Warn().Err(err).Msg("redis unavailable, status cache disabled")
			_ = rdb.Close()
		} else {
			closers = append(closers, closer{"redis", rdb.Close})

			statusCache := cache.NewStatusCache(rdb.Client, cfg.Redis.StatusTTL)
			dispatcherOpts = append(dispatcherOpts, remindersvc.WithCache(statusCache))
			service = remindersvc.NewService(store, columns, statusCache, cfg.Retry)

			if cfg.Dispatcher.RunLock.Enabled {
				lock := remindersvc.NewRunLock(rdb.Client, cfg.Dispatcher.RunLock.Key, cfg.Dispatcher.RunLock.TTL)
				dispatcherOpts = append(dispatcherOpts, remindersvc.WithRunLock(lock))
			}
		}
	}

	dispatcher := remindersvc.NewDispatcher(store, registry, columns, remindersvc.Options{
		Concurrency:     cfg.Dispatcher.Concurrency,
		DeliveryTimeout: cfg.Dispatcher.DeliveryTimeout,
		ErrorPreview:    cfg.Dispatcher.ErrorPreview,
		RetryFailed:     cfg.Dispatcher.RetryFailed,
		MaxAttempts:     cfg.Dispatcher.MaxAttempts,
		Retry:           cfg.Retry,
	}, dispatcherOpts...)

	var wg sync.WaitGroup
	if cfg.Scheduler.Interval > 0 {
		scheduler := worker.NewScheduler(dispatcher, cfg.Scheduler.Interval)

		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	}

	r := router.New(dispatch.NewHandler(dispatcher), reminderhandler.NewHandler(service), router.Options{
		Secret:       cfg.Auth.Secret,
		AllowOrigins: cfg.Server.AllowOrigins,
		Gatherer:     reg,
	})
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("starting server")
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

	wg.Wait()

	var result *multierror.Error
	for _, c := range closers {
		if err := c.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to release resources")
	}
}

func buildChannels(cfg *config.Config, loc *time.Location) map[model.Channel]channel.Channel {
	channels := make(map[model.Channel]channel.Channel)

	if cfg.Email.Enabled {
		var sender channel.Sender
		switch cfg.Email.Transport {
		case "smtp":
			sender = email.NewSMTPClient(
				cfg.Email.SMTPHost,
				cfg.Email.SMTPPort,
				cfg.Email.Username,
				cfg.Email.Password,
				cfg.Email.From,
				cfg.Email.Timeout,
			)
		default:
			sender = email.NewAPIClient(cfg.Email.APIURL, cfg.Email.APIKey, cfg.Email.From, cfg.Email.Timeout)
		}
		channels[model.ChannelEmail] = channel.NewEmail(sender, loc)
	}

	if cfg.Telegram.Enabled {
		channels[model.ChannelChat] = channel.NewChat(
			telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIURL, cfg.Telegram.Timeout),
			loc,
		)
	}

	if cfg.FCM.Enabled {
		channels[model.ChannelPush] = channel.NewPush(
			fcm.NewClient(cfg.FCM.ServerKey, cfg.FCM.URL, cfg.FCM.Timeout),
			loc,
		)
	}

	return channels
}
