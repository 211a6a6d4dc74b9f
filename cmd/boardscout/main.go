package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/boardscout/boardscout/internal/backoff"
	"github.com/boardscout/boardscout/internal/config"
	"github.com/boardscout/boardscout/internal/health"
	"github.com/boardscout/boardscout/internal/hostinfo"
	"github.com/boardscout/boardscout/internal/pipeline"
	"github.com/boardscout/boardscout/internal/publish"
	"github.com/boardscout/boardscout/internal/registry"
	"github.com/boardscout/boardscout/internal/scheduler"
	"github.com/boardscout/boardscout/internal/server"
	"github.com/boardscout/boardscout/internal/telemetry"
	"github.com/boardscout/boardscout/internal/version"
	"github.com/boardscout/boardscout/pkg/metric"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	catalogPath := flag.String("catalog", "", "path to module catalog (default: embedded catalog)")
	checkModule := flag.String("check", "", "collect one module once, print the result, and exit")
	listModules := flag.Bool("list-modules", false, "print the module catalog and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, *configPath, *catalogPath, *checkModule, *listModules); err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, configPath, catalogPath, checkModule string, listModules bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	reg, err := loadRegistry(cfg, catalogPath)
	if err != nil {
		return err
	}

	if listModules {
		for _, mod := range reg.Modules() {
			src := mod.Source.File
			if src == "" {
				src = mod.Source.Command
			}
			fmt.Printf("%-16s enabled=%-5t interval=%-6s %s\n", mod.ID, mod.Enabled, mod.Interval, src)
		}
		return nil
	}

	instanceID := uuid.New().String()
	logger.Info("boardscout starting",
		zap.String("version", version.Short()),
		zap.String("instance", instanceID),
		zap.Int("modules", len(reg.Modules())),
	)

	limiter := rate.NewLimiter(
		rate.Limit(cfg.GetFloat64("agent.command_rate")),
		cfg.GetInt("agent.command_burst"),
	)
	runner := pipeline.NewRunner(limiter, logger.Named("pipeline"))
	policy := backoff.NewPolicy(
		cfg.GetInt("agent.backoff.threshold"),
		cfg.GetDuration("agent.backoff.ceiling"),
	)

	pub, closers, err := buildPublisher(cfg, instanceID, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	conn := health.NewConnectivity(
		cfg.GetDuration("agent.online_window"),
		cfg.GetStringSlice("agent.core_modules"),
		pub,
		logger.Named("health"),
	)
	metrics := telemetry.New()

	sched := scheduler.New(reg, runner, policy, pub, logger.Named("scheduler"), scheduler.Config{
		GracePeriod:  cfg.GetDuration("agent.grace_period"),
		Metrics:      metrics,
		Connectivity: conn,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if checkModule != "" {
		mod, ok := reg.Get(checkModule)
		if !ok {
			return fmt.Errorf("unknown module %q", checkModule)
		}
		res := sched.Collect(ctx, mod)
		fmt.Printf("module=%s status=%s\n", res.ModuleID, res.Status)
		for _, r := range res.Readings {
			fmt.Printf("  %s = %v %s\n", r.Name, r.Value, r.Unit)
		}
		for _, name := range res.FailedReadings {
			fmt.Printf("  %s = <conversion failed>\n", name)
		}
		if res.Status.Failed() {
			os.Exit(1)
		}
		return nil
	}

	if err := hostinfo.Publish(ctx, pub); err != nil {
		logger.Warn("publish host facts", zap.Error(err))
	}

	sched.Start(ctx)
	go conn.Run(ctx)

	cfg.Watch(func(c *config.Config) {
		logger.Info("configuration changed, re-arming modules")
		sched.Reload(c.ModuleOverrides())
	})

	var srv *server.Server
	if cfg.GetBool("server.enabled") {
		srv = server.New(cfg.GetString("server.addr"), sched, conn, metrics, instanceID, logger.Named("server"))
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("server error", zap.Error(err))
			}
		}()
	}

	logger.Info("boardscout ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	sched.Stop()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}

	logger.Info("boardscout stopped")
	return nil
}

// loadRegistry resolves the catalog source: --catalog flag, then the
// agent.catalog config key, then the embedded default. Per-module overrides
// from the config file apply in every case.
func loadRegistry(cfg *config.Config, catalogPath string) (*registry.Registry, error) {
	opts := registry.Options{
		DefaultInterval: cfg.GetDuration("agent.default_interval"),
		Overrides:       cfg.ModuleOverrides(),
	}
	if catalogPath == "" {
		catalogPath = cfg.GetString("agent.catalog")
	}
	if catalogPath != "" {
		return registry.LoadFile(catalogPath, opts)
	}
	return registry.LoadDefault(opts)
}

// buildPublisher assembles the fanout over every configured adapter. The
// debug log sink is always present.
func buildPublisher(cfg *config.Config, instanceID string, logger *zap.Logger) (metric.Publisher, []func(), error) {
	sinks := []metric.Publisher{publish.NewLogPublisher(logger.Named("readings"))}
	var closers []func()

	if cfg.GetBool("publish.statestore.enabled") {
		store, err := publish.NewStateStore(cfg.GetString("publish.statestore.path"))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, func() { store.Close() })
	}

	if cfg.GetBool("publish.mqtt.enabled") {
		var mqttCfg publish.MQTTConfig
		if err := cfg.Sub("publish.mqtt").Unmarshal(&mqttCfg); err != nil {
			return nil, nil, fmt.Errorf("mqtt config: %w", err)
		}
		if mqttCfg.ClientID == "" {
			mqttCfg.ClientID = "boardscout-" + instanceID[:8]
		}
		mq, err := publish.NewMQTT(mqttCfg, logger.Named("mqtt"))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, mq)
		closers = append(closers, mq.Close)
	}

	return publish.NewFanout(logger.Named("publish"), sinks...), closers, nil
}
