// cmd/hp3478a-bridge/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/tamzrod/hp3478a-bridge/internal/api"
	"github.com/tamzrod/hp3478a-bridge/internal/config"
	"github.com/tamzrod/hp3478a-bridge/internal/poller"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hp3478a-bridge <config.yaml|config.toml>")
		os.Exit(2)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	if err := run(os.Args[1], logger); err != nil {
		level.Error(logger).Log("msg", "bridge stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath string, logger log.Logger) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	logger = level.NewFilter(logger, levelOption(cfg.Bridge.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := api.NewStore()
	var wg sync.WaitGroup

	// --------------------
	// Build per-link pipelines
	// --------------------

	for _, link := range cfg.Bridge.Links {
		var meters []config.MeterConfig
		for _, m := range cfg.Bridge.Meters {
			if m.Link == link.ID {
				meters = append(meters, m)
			}
		}
		if len(meters) == 0 {
			level.Warn(logger).Log("msg", "link has no meters, skipped", "link", link.ID)
			continue
		}

		p, closePoller, err := poller.Build(link, meters, logger)
		if err != nil {
			return fmt.Errorf("poller build failed (link=%s): %w", link.ID, err)
		}
		defer closePoller()

		o, closeWriters, err := newOrchestrator(link.ID, meters, store, logger)
		if err != nil {
			return fmt.Errorf("writer build failed (link=%s): %w", link.ID, err)
		}
		defer closeWriters()

		out := make(chan poller.PollResult)

		wg.Add(2)
		go func() {
			defer wg.Done()
			o.run(ctx, out)
		}()
		go func() {
			defer wg.Done()
			p.Run(ctx, out)
		}()
	}

	level.Info(logger).Log("msg", "bridge started", "links", len(cfg.Bridge.Links), "meters", len(cfg.Bridge.Meters))

	var apiErr error
	if cfg.Bridge.API.Listen != "" {
		apiErr = api.Serve(ctx, cfg.Bridge.API.Listen, api.Routes(store, logger), logger)
		if apiErr != nil {
			stop()
		}
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	level.Info(logger).Log("msg", "bridge shut down")
	return apiErr
}

func levelOption(s string) level.Option {
	switch s {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	}
	return level.AllowInfo()
}
