package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steamfamilyzap/kgbot/internal/agent"
	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/channels/discord"
	"github.com/steamfamilyzap/kgbot/internal/channels/telegram"
	"github.com/steamfamilyzap/kgbot/internal/channels/whatsapp"
	"github.com/steamfamilyzap/kgbot/internal/config"
	kghttp "github.com/steamfamilyzap/kgbot/internal/http"
	"github.com/steamfamilyzap/kgbot/internal/library"
	"github.com/steamfamilyzap/kgbot/internal/prompts"
	"github.com/steamfamilyzap/kgbot/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot on the configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// limitedChannel is a channel that accepts an inbound rate limiter.
type limitedChannel interface {
	channels.Channel
	SetLimiter(l *channels.SenderLimiter)
}

func newChannel(cfg *config.Config, msgBus *bus.MessageBus) (limitedChannel, error) {
	var (
		ch  limitedChannel
		err error
	)
	switch cfg.Channels.Active {
	case config.ChannelWhatsApp:
		ch, err = whatsapp.New(cfg.Channels.WhatsApp, msgBus, msgBus)
	case config.ChannelTelegram:
		ch, err = telegram.New(cfg.Channels.Telegram, msgBus)
	case config.ChannelDiscord:
		ch, err = discord.New(cfg.Channels.Discord, msgBus)
	default:
		return nil, fmt.Errorf("unknown channel %q", cfg.Channels.Active)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s channel: %w", cfg.Channels.Active, err)
	}
	return ch, nil
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	prompt, err := a.newPromptBuilder(cfg.Channels.Active)
	if err != nil {
		return err
	}
	bot, err := a.newAgent(ctx, prompt)
	if err != nil {
		return err
	}

	sched, err := library.NewScheduler(
		a.library.FamilyJob(cfg.Sync.FamilySchedule),
		a.library.CatalogJob(cfg.Sync.CatalogSchedule),
	)
	if err != nil {
		return err
	}

	msgBus := bus.New()
	ch, err := newChannel(cfg, msgBus)
	if err != nil {
		return err
	}
	ch.SetLimiter(channels.NewSenderLimiter(cfg.Gateway.RateLimitRPM, 0))

	channelMgr := channels.NewManager(msgBus)
	channelMgr.RegisterChannel(ch)

	status := kghttp.NewServer(kghttp.Deps{
		Stores:   a.stores,
		Channels: channelMgr,
		Events:   msgBus,
		Token:    cfg.Gateway.Token,
		Version:  Version,
	})

	if err := channelMgr.StartAll(ctx); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = channelMgr.StopAll(sctx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bot.Run(gctx, msgBus, agent.ChannelTokens(channelMgr))
		return nil
	})
	g.Go(func() error {
		addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
		slog.Info("status server listening", "addr", addr)
		return status.ListenAndServe(gctx, addr)
	})
	if sched.Len() > 0 {
		g.Go(func() error {
			sched.Run(gctx)
			return nil
		})
	}
	if cfg.Bot.PromptFile != "" {
		w, err := prompts.NewWatcher(config.ExpandHome(cfg.Bot.PromptFile), prompt)
		if err != nil {
			slog.Warn("prompt hot reload disabled", "error", err)
		} else {
			g.Go(func() error {
				w.Run(gctx)
				return nil
			})
		}
	}

	slog.Info("kgbot started",
		"version", Version,
		"channel", cfg.Channels.Active,
		"provider", cfg.Bot.Provider,
		"model", bot.Model(),
		"database", databaseName(cfg),
		"scheduled_jobs", sched.Len(),
	)

	err = g.Wait()
	slog.Info("graceful shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func databaseName(cfg *config.Config) string {
	if cfg.Database.UsePostgres() {
		return "postgres"
	}
	return "sqlite"
}
