package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tb "gopkg.in/telebot.v3"

	"github.com/graynk/stickerbot/bot"
	"github.com/graynk/stickerbot/dispatch"
	"github.com/graynk/stickerbot/stats"
	"github.com/graynk/stickerbot/transcoder"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.BotToken == "" {
		return errors.New("bot token is not set")
	}
	if cfg.AdminID == 0 {
		logger.Warn("admin id is not set, stats commands are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := stats.InitDB(cfg.StatsDBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := tb.NewBot(tb.Settings{
		Token: cfg.BotToken,
		Poller: tb.NewMiddlewarePoller(&tb.LongPoller{Timeout: 10 * time.Second}, func(update *tb.Update) bool {
			return update.Message != nil
		}),
	})
	if err != nil {
		return errors.Wrap(err, "starting bot")
	}

	f := newFetcher(cfg, logger)
	t := transcoder.New(transcoder.NewFFmpegEngine(cfg.FFmpegBinary, logger), cfg.QueueCapacity, logger)
	t.LoadInBackground(ctx)

	stickerBot := bot.NewStickerBot(
		b,
		bot.Settings{AdminID: cfg.AdminID, SendAsLink: cfg.SendAsLink},
		f,
		newResolver(cfg, f, logger),
		t,
		db,
		logger,
		dispatch.WithTimeout(cfg.DeliveryTimeout),
	)
	stickerBot.Register(b)

	go b.Start()
	logger.Infow("bot started", "username", b.Me.Username)
	<-ctx.Done()

	logger.Info("shutting down")
	b.Stop()
	stickerBot.Shutdown()
	return nil
}
