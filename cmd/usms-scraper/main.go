package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/usms-bridge/usms-scraper/pkg/browser"
	"github.com/usms-bridge/usms-scraper/pkg/config"
	"github.com/usms-bridge/usms-scraper/pkg/dashboard"
	"github.com/usms-bridge/usms-scraper/pkg/logging"
	"github.com/usms-bridge/usms-scraper/pkg/poller"
	"github.com/usms-bridge/usms-scraper/pkg/publisher"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

// flags holds the process-level options.
type flags struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
	Once       bool

	Config config.Config
}

func main() {
	f := &flags{}

	app := &cli.Command{
		Name:  "usms-scraper",
		Usage: "Scrape USMS smart meter readings and publish them over MQTT",
		Description: `usms-scraper logs in to the USMS smart meter dashboard through a remote
browser, reads the remaining unit, balance and last meter poll time, and
publishes them to an MQTT broker on a fixed interval.

Configuration comes from the environment, optionally seeded from a YAML file.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to YAML config file (optional)",
				Sources:     cli.EnvVars("USMS_CONFIG"),
				Destination: &f.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("LOG_FILE"),
				Destination: &f.LogFile,
			},
			&cli.BoolFlag{
				Name:        "once",
				Usage:       "run a single scrape cycle and exit",
				Destination: &f.Once,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := logging.Setup(logging.Options{Level: f.LogLevel, File: f.LogFile}); err != nil {
				return ctx, err
			}

			cfg, err := config.Load(f.ConfigPath, os.LookupEnv)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			f.Config = cfg
			return ctx, nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, f)
		},
	}

	// Cancel on SIGINT/SIGTERM so the loop can close the session and broker connection
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("usms-scraper failed")
		exitCode = 1
	}

	cancel()
	_ = logging.Close()
	os.Exit(exitCode)
}

func run(ctx context.Context, f *flags) error {
	cfg := f.Config
	logger := logging.For("main")

	logger.Info().
		Str("version", build()).
		Str("browser", cfg.BrowserEndpoint()).
		Str("protocol", string(cfg.Browser.Protocol)).
		Dur("interval", cfg.Poll.Interval).
		Bool("publishing", cfg.PublishingEnabled()).
		Msg("starting")

	connector := browser.NewConnector(browser.Options{
		Endpoint:         cfg.BrowserEndpoint(),
		Protocol:         browser.Protocol(cfg.Browser.Protocol),
		Headless:         cfg.Browser.Headless,
		LaunchArgs:       cfg.Browser.LaunchArgs,
		ConnectTimeout:   cfg.Browser.ConnectTimeout,
		OperationTimeout: cfg.Browser.OperationTimeout,
	})
	if err := connector.Initialize(); err != nil {
		return err
	}

	sessions := dashboard.NewSessionManager(dashboard.ConnectorBackend(connector), cfg, logging.For("session"))
	extractor := dashboard.NewExtractor(cfg, logging.For("extractor"))
	pub := publisher.New(cfg, logging.For("publisher"))
	loop := poller.New(sessions, extractor, pub, cfg, logging.For("poller"))

	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Debug().Err(err).Msg("error closing browser session")
		}
		pub.Close()
		if err := connector.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("error stopping playwright driver")
		}
		logger.Info().Msg("stopped")
	}()

	if f.Once {
		_, err := loop.RunOnce(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return loop.Run(ctx)
}
