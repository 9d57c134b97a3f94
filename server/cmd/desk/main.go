package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/navid-fn/flowscope/configs"
	"github.com/navid-fn/flowscope/internal/analysis"
	"github.com/navid-fn/flowscope/internal/cache"
	"github.com/navid-fn/flowscope/internal/engine"
	"github.com/navid-fn/flowscope/internal/feed"
	"github.com/navid-fn/flowscope/internal/logger"
	"github.com/navid-fn/flowscope/internal/models"
	"github.com/navid-fn/flowscope/internal/publisher"
	"github.com/navid-fn/flowscope/internal/recorder"
	"github.com/navid-fn/flowscope/internal/repository"
	"github.com/navid-fn/flowscope/internal/retry"
	"github.com/navid-fn/flowscope/internal/storage"
	"github.com/navid-fn/flowscope/server/internal/handler"
	"github.com/navid-fn/flowscope/server/internal/router"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/clickhouse"
	"gorm.io/gorm"
)

func main() {
	cfg, err := configs.AppLoad()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sinks   []recorder.Sink
		history handler.PlanHistory
		closers []func() error
	)

	if cfg.ClickHouse.Enabled {
		store, err := storage.NewClickHouseStorage(cfg.ClickHouse.DSN())
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		closers = append(closers, store.Close)
		sinks = append(sinks, storage.NewSink(store))

		db, err := gorm.Open(clickhouse.Open(cfg.ClickHouse.DSN()), &gorm.Config{})
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		plans := repository.NewGormPlanRepository(db)
		sinks = append(sinks, repository.NewPlanSink(plans))
		history = plans
	}

	if cfg.Kafka.Enabled {
		sender := publisher.NewSender(publisher.NewWriter(cfg.Kafka.Broker), log)
		closers = append(closers, sender.Close)
		sinks = append(sinks, publisher.NewSink(sender, cfg.Kafka.CandleTopic, cfg.Kafka.PlanTopic))
	}

	rec := recorder.New(recorder.Config{
		BatchSize:    cfg.Recorder.BatchSize,
		BatchTimeout: cfg.Recorder.BatchTimeout,
		Buffer:       cfg.Recorder.Buffer,
		Retry: retry.Config{
			MaxAttempts: cfg.Recorder.MaxAttempts,
			BaseDelay:   cfg.Recorder.RetryDelay,
		},
		Breaker: retry.BreakerConfig{
			MaxFailures: cfg.Recorder.BreakerFailures,
			OpenTimeout: cfg.Recorder.BreakerTimeout,
		},
	}, log, sinks...)

	var analyst analysis.Analyst = analysis.MockAnalyst{}
	if cfg.AI.APIKey != "" {
		analyst = analysis.NewGeminiClient(analysis.GeminiConfig{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		}, log)
	} else {
		log.Warn("AI_API_KEY is not set, using the local analyst")
	}

	feedCfg := feed.Config{
		BinanceURL:              cfg.Feed.BinanceURL,
		LiveSymbols:             cfg.Feed.LiveSymbols,
		SimulatedTicksPerSecond: cfg.Feed.SimulatedTicksPerSecond,
	}
	desk, err := engine.New(engine.Config{
		Bot: models.BotConfig{
			Symbol:         cfg.Desk.Symbol,
			AccountBalance: cfg.Desk.AccountBalance,
			Leverage:       cfg.Desk.Leverage,
			RiskPercentage: cfg.Desk.RiskPercentage,
		},
		CandleInterval:    cfg.Desk.CandleInterval,
		OrderFlowInterval: cfg.Desk.OrderFlowInterval,
		HistorySize:       cfg.Desk.HistorySize,
		PriceStep:         cfg.Desk.PriceStep,
		PublishInterval:   cfg.Desk.PublishInterval,
		AnalysisTimeout:   cfg.AI.Timeout,
		Cooldown:          cfg.AI.Cooldown,
		FallbackCooldown:  cfg.AI.FallbackCooldown,
		FallbackRetry:     cfg.AI.FallbackRetry,
		AutoAnalyze:       cfg.AI.AutoAnalyze,
	}, engine.Deps{
		Sources: func(symbol string) feed.Source {
			return feed.NewSource(feedCfg, symbol, log)
		},
		Analyst:  analyst,
		Recorder: rec,
		Logger:   log,
	})
	if err != nil {
		log.Fatalf("Invalid desk config: %v", err)
	}
	if history == nil {
		history = desk
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: router.NewRouter(&router.Config{
			MarketHandler:   handler.NewMarketHandler(desk),
			AnalysisHandler: handler.NewAnalysisHandler(desk, history),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return desk.Run(gctx) })
	g.Go(func() error { return rec.Run(gctx) })
	if cfg.Redis.Enabled {
		redisCfg := cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Interval: cfg.Redis.Interval,
		}
		client, err := cache.NewClient(ctx, redisCfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		closers = append(closers, client.Close)
		mirror := cache.NewMirror(client, desk, redisCfg, log)
		g.Go(func() error { return mirror.Run(gctx) })
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.WithFields(logrus.Fields{
		"addr":   cfg.Server.Addr,
		"symbol": cfg.Desk.Symbol,
		"sinks":  len(sinks),
	}).Info("Desk API listening")

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Desk stopped with error")
	}
	for _, c := range closers {
		if err := c(); err != nil {
			log.WithError(err).Warn("Close failed")
		}
	}
	log.Info("Desk shutdown complete")
}
