package main

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/graynk/stickerbot/config"
	"github.com/graynk/stickerbot/fetcher"
	"github.com/graynk/stickerbot/overlay"
)

var (
	configPath string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:          "stickerbot",
		Short:        "Deliver LINE stickers into chats",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "development logging")

	root.AddCommand(serveCmd())
	root.AddCommand(deliverCmd())
	root.AddCommand(relayCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(development bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func setup() (config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := newLogger(cfg.Debug || debug)
	return cfg, logger, err
}

func newFetcher(cfg config.Config, logger *zap.SugaredLogger) *fetcher.Fetcher {
	fetchConfig := fetcher.DefaultConfig()
	fetchConfig.Timeout = cfg.FetchTimeout
	fetchConfig.MaxBodySize = cfg.MaxBodySize

	var opts []fetcher.Option
	if cfg.ProxyURL != "" {
		opts = append(opts, fetcher.WithProxy(fetcher.NewHTTPProxy(cfg.ProxyURL, &http.Client{Timeout: cfg.FetchTimeout})))
	}
	return fetcher.New(fetchConfig, logger, opts...)
}

func newResolver(cfg config.Config, f *fetcher.Fetcher, logger *zap.SugaredLogger) *overlay.Resolver {
	limiter := rate.NewLimiter(rate.Limit(cfg.OverlayRPS), cfg.OverlayBurst)
	return overlay.NewResolver(cfg.OverlayEndpoint, f, limiter, logger)
}
