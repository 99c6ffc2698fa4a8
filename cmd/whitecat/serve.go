package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/whitecathq/whitecat/internal/bot"
	"github.com/whitecathq/whitecat/internal/channel"
	"github.com/whitecathq/whitecat/internal/channel/adapters/telegram"
	"github.com/whitecathq/whitecat/internal/config"
	"github.com/whitecathq/whitecat/internal/fetch"
	"github.com/whitecathq/whitecat/internal/genai"
	"github.com/whitecathq/whitecat/internal/handlers"
	"github.com/whitecathq/whitecat/internal/logger"
	"github.com/whitecathq/whitecat/internal/pipeline"
	"github.com/whitecathq/whitecat/internal/resolver"
	"github.com/whitecathq/whitecat/internal/server"
	"github.com/whitecathq/whitecat/internal/trigger"
	"github.com/whitecathq/whitecat/internal/videosvc"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideResolver,
			provideFetcher,
			provideCompleter,
			provideAdapter,
			provideTriggers,
			providePipeline,
			providePingHandler,
			provideServer,
		),
		fx.Invoke(
			startTelegram,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return slog.Default()
}

func provideResolver(log *slog.Logger, cfg config.Config) (*resolver.Resolver, error) {
	r := resolver.NewResolver(log, time.Duration(cfg.Video.AttemptTimeoutSec)*time.Second)
	if err := videosvc.RegisterGroups(log, r, providerSettings(cfg)); err != nil {
		return nil, fmt.Errorf("register video providers: %w", err)
	}
	return r, nil
}

// providerSettings folds the per-provider config overrides into the
// registration settings. Group and provider names share one namespace
// in the [providers] table since they never collide.
func providerSettings(cfg config.Config) videosvc.Settings {
	s := videosvc.Settings{
		RapidAPIKey:       cfg.Video.RapidAPIKey,
		ProviderTimeout:   time.Duration(cfg.Video.ProviderTimeoutSec) * time.Second,
		GroupPriority:     make(map[string]int),
		ProviderPriority:  make(map[string]int),
		DisabledProviders: make(map[string]bool),
	}
	for name, override := range cfg.Providers {
		if override.Priority != nil {
			s.GroupPriority[name] = *override.Priority
			s.ProviderPriority[name] = *override.Priority
		}
		if !override.IsEnabled(true) {
			s.DisabledProviders[name] = true
		}
	}
	return s
}

func provideFetcher(log *slog.Logger, cfg config.Config) (*fetch.Fetcher, error) {
	return fetch.NewFetcher(log, cfg.Video.MaxBytes, time.Duration(cfg.Video.FetchTimeoutSec)*time.Second)
}

func provideCompleter(log *slog.Logger, cfg config.Config) *genai.Client {
	return genai.NewClient(log, genai.Config{
		BaseURL:     cfg.GenAI.BaseURL,
		APIKey:      cfg.GenAI.APIKey,
		Model:       cfg.GenAI.Model,
		Instruction: cfg.GenAI.Instruction,
		Temperature: cfg.GenAI.Temperature,
		Timeout:     time.Duration(cfg.GenAI.TimeoutSec) * time.Second,
	})
}

func provideAdapter(log *slog.Logger, cfg config.Config) (*telegram.Adapter, error) {
	return telegram.New(log, cfg.Telegram.Token, telegram.Options{
		UpdateTimeout:  cfg.Telegram.UpdateTimeout,
		DropPendingAge: cfg.Telegram.DropPendingAge,
	})
}

func provideTriggers(log *slog.Logger, cfg config.Config, adapter *telegram.Adapter) (*trigger.Registry, error) {
	reg := trigger.NewRegistry(log)
	rules := []struct {
		rule trigger.Rule
		prio int
	}{
		{bot.NewCommandRule(nil), bot.PriorityCommandRule},
		{bot.NewMentionRule(adapter.BotUsername()), bot.PriorityMentionRule},
		{bot.NewReplyRule(), bot.PriorityReplyRule},
	}
	for _, r := range rules {
		override := cfg.Triggers[r.rule.Name()]
		if err := reg.Register(r.rule, override.PriorityOr(r.prio), override.IsEnabled(true)); err != nil {
			return nil, fmt.Errorf("register trigger %s: %w", r.rule.Name(), err)
		}
	}
	return reg, nil
}

func providePipeline(log *slog.Logger, cfg config.Config, res *resolver.Resolver, fetcher *fetch.Fetcher, completer *genai.Client, adapter *telegram.Adapter, triggers *trigger.Registry) (*pipeline.Pipeline, error) {
	aiUnit, err := bot.NewAIUnit(log, triggers, completer, adapter, cfg.GenAI.ChatWindow)
	if err != nil {
		return nil, fmt.Errorf("ai unit: %w", err)
	}
	summaryUnit, err := bot.NewSummaryUnit(log, completer, adapter, cfg.Summary.HistoryWindow, cfg.Summary.Keywords)
	if err != nil {
		return nil, fmt.Errorf("summary unit: %w", err)
	}
	videoUnit := bot.NewVideoUnit(log, res, fetcher, adapter, "@"+adapter.BotUsername())

	p := pipeline.New(log)
	units := []struct {
		unit pipeline.Unit
		prio int
	}{
		{videoUnit, bot.PriorityVideoUnit},
		{summaryUnit, bot.PrioritySummaryUnit},
		{aiUnit, bot.PriorityAIUnit},
	}
	for _, u := range units {
		override := cfg.Units[u.unit.Name()]
		if err := p.Register(u.unit, override.PriorityOr(u.prio), override.IsEnabled(true)); err != nil {
			return nil, fmt.Errorf("register unit %s: %w", u.unit.Name(), err)
		}
	}
	return p, nil
}

func providePingHandler(log *slog.Logger, p *pipeline.Pipeline, r *resolver.Resolver, t *trigger.Registry) *handlers.PingHandler {
	return handlers.NewPingHandler(log, p, r, t)
}

func provideServer(cfg config.Config, ping *handlers.PingHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, ping)
}

func startTelegram(lc fx.Lifecycle, logger *slog.Logger, adapter *telegram.Adapter, p *pipeline.Pipeline) {
	var conn channel.Connection
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			c, err := adapter.Connect(context.Background(), func(ctx context.Context, msg channel.InboundMessage) {
				p.Dispatch(ctx, msg)
			})
			if err != nil {
				return fmt.Errorf("telegram connect: %w", err)
			}
			conn = c
			logger.Info("telegram connected", slog.String("bot", adapter.BotUsername()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if conn == nil {
				return nil
			}
			return conn.Stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
