package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowpilot-io/flowpilot/pkg/catalog"
	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/execution"
	"github.com/flowpilot-io/flowpilot/pkg/observability"
	"github.com/flowpilot-io/flowpilot/pkg/platform"
	"github.com/flowpilot-io/flowpilot/pkg/ratelimit"
	"github.com/flowpilot-io/flowpilot/pkg/server"
	"github.com/flowpilot-io/flowpilot/pkg/trigger"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// ServeCmd starts the trigger engine server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)." default:"0"`
	Watch bool `help:"Hot-reload the workflow file on change." default:"true" negatable:""`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	cleanup, err := setupLogging(cli, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Catalog: file-backed (with optional hot reload) or remote.
	cat, lister, stopCatalog, err := buildCatalog(ctx, cfg, c.Watch)
	if err != nil {
		return err
	}
	defer stopCatalog()

	// Platform adapters.
	registry := platform.NewRegistry()
	callbackSecret := ""
	for i := range cfg.Platforms {
		pcfg := &cfg.Platforms[i]
		adapter, err := buildAdapter(pcfg)
		if err != nil {
			return err
		}
		if err := registry.RegisterAdapter(adapter); err != nil {
			return err
		}
		if pcfg.CallbackSecret != "" && callbackSecret == "" {
			callbackSecret = pcfg.CallbackSecret
		}
		slog.Info("Registered platform adapter", "name", pcfg.Name, "type", pcfg.Type)
	}

	metrics, err := observability.InitMetrics(cfg.Metrics.Enabled)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(&cfg.RateLimit)
	coordinator, err := execution.NewCoordinator(registry, limiter, cat, execution.NewCache(),
		execution.WithMetrics(metrics))
	if err != nil {
		return err
	}

	service, err := trigger.NewService(cat, coordinator, cfg.Thresholds)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithCallbackSecret(callbackSecret),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(metrics))
	}
	if lister != nil {
		opts = append(opts, server.WithWorkflowLister(lister))
	}

	srv, err := server.New(&cfg.Server, service, coordinator, cat, opts...)
	if err != nil {
		return err
	}

	fmt.Printf("flowpilot ready on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("   Health:   /health\n")
	fmt.Printf("   Messages: /v1/messages\n")
	if cfg.Metrics.Enabled {
		fmt.Printf("   Metrics:  /metrics\n")
	}

	return srv.Start(ctx)
}

// buildCatalog creates the configured catalog backend. The lister is nil
// for the remote backend, which cannot enumerate workflows. The returned
// stop func releases the file watcher, if one was started.
func buildCatalog(ctx context.Context, cfg *config.Config, watch bool) (workflow.Catalog, server.WorkflowLister, func(), error) {
	noop := func() {}

	switch cfg.Catalog.Source {
	case "http":
		cat, err := catalog.NewHTTPCatalog(&cfg.Catalog)
		if err != nil {
			return nil, nil, nil, err
		}
		return cat, nil, noop, nil

	default:
		specs := cfg.Workflows
		if cfg.Catalog.File != "" {
			fileSpecs, err := catalog.LoadWorkflowFile(cfg.Catalog.File)
			if err != nil {
				return nil, nil, nil, err
			}
			specs = fileSpecs
		}

		cat, err := catalog.LoadFromSpecs(specs)
		if err != nil {
			return nil, nil, nil, err
		}

		stop := noop
		if watch && cfg.Catalog.File != "" {
			watcher, err := catalog.NewWatcher(cfg.Catalog.File, cat)
			if err != nil {
				return nil, nil, nil, err
			}
			if err := watcher.Start(ctx); err != nil {
				return nil, nil, nil, err
			}
			stop = func() {
				if err := watcher.Stop(); err != nil {
					slog.Warn("Failed to stop catalog watcher", "error", err)
				}
			}
		}
		return cat, cat, stop, nil
	}
}

// buildAdapter creates the adapter matching the platform type.
func buildAdapter(cfg *config.PlatformConfig) (platform.Adapter, error) {
	switch cfg.Type {
	case "polling":
		return platform.NewPollingAdapter(cfg)
	case "webhook":
		return platform.NewWebhookAdapter(cfg)
	default:
		return nil, fmt.Errorf("unknown platform type '%s' for platform '%s'", cfg.Type, cfg.Name)
	}
}
