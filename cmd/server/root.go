package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leonardcser/qbd-mcp/internal/apierr"
	"github.com/leonardcser/qbd-mcp/internal/cache"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
	"github.com/leonardcser/qbd-mcp/internal/config"
	"github.com/leonardcser/qbd-mcp/internal/logger"
	"github.com/leonardcser/qbd-mcp/internal/metrics"
	"github.com/leonardcser/qbd-mcp/internal/tools"
)

// rootFlags are the flags shared by every subcommand.
type rootFlags struct {
	configFile string
	env        []string
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "qbd-mcp",
		Short: "MCP server for QuickBooks Desktop through the Conductor API",
		Long: `qbd-mcp exposes QuickBooks Desktop end-users, accounts, bills, payments
and reports as MCP tools over stdio.

Configuration comes from defaults, an optional .qbd-mcp.yaml file, the
environment (CONDUCTOR_SECRET_KEY, CONDUCTOR_API_KEY, CONDUCTOR_END_USER_ID, ...),
flags and finally --env KEY=VALUE overrides.`,
		Version:            conductor.Version,
		SilenceErrors:      true,
		SilenceUsage:       true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, flags)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default is .qbd-mcp.yaml in . or $HOME)")
	pf.StringArrayVar(&flags.env, "env", nil, "environment override as KEY=VALUE (repeatable)")
	pf.String(config.KeyEndUserID, "", "default Conductor end-user ID")
	pf.String(config.KeyAPIBaseURL, "", "Conductor API base URL")
	pf.String(config.KeyLogLevel, "", "log level: debug, info, warn, error")
	pf.String(config.KeyLogFormat, "", "log format: json or console")
	pf.String(config.KeyLogFile, "", `log file path, or "stderr"`)
	pf.String(config.KeyDisabledTools, "", "comma-separated tool names to disable")
	pf.String(config.KeyMetricsAddr, "", "serve prometheus metrics on this address")
	for _, key := range []string{
		config.KeyEndUserID, config.KeyAPIBaseURL, config.KeyLogLevel, config.KeyLogFormat,
		config.KeyLogFile, config.KeyDisabledTools, config.KeyMetricsAddr,
	} {
		if err := v.BindPFlag(key, pf.Lookup(key)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(newToolsCmd(v, flags), newCheckCmd(v, flags))
	return root
}

// loadConfig merges every configuration source into a validated Config.
func loadConfig(v *viper.Viper, flags *rootFlags) (*config.Config, error) {
	if err := config.Setup(v); err != nil {
		return nil, err
	}
	if flags.configFile != "" {
		v.SetConfigFile(flags.configFile)
	}
	if err := config.ReadFile(v); err != nil {
		return nil, err
	}
	if err := config.ApplyEnvArgs(v, flags.env); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func newClient(cfg *config.Config, store cache.KV, log *zap.Logger, m *metrics.Metrics) (*conductor.Client, error) {
	retry := apierr.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	return conductor.New(conductor.Options{
		BaseURL:   cfg.APIBaseURL,
		SecretKey: cfg.SecretKey,
		EndUserID: cfg.EndUserID,
		Cache:     store,
		CacheTTL:  cfg.CacheTTL,
		Timeout:   cfg.RequestTimeout,
		Logger:    log,
		Metrics:   m,
		RateLimit: cfg.RateLimit,
		Retry:     retry,
		MaxPages:  cfg.MaxPages,
	})
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Path: cfg.LogFile}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Close() }()
	log := logger.L()

	log.Info("starting QuickBooks Desktop MCP server",
		zap.String("version", conductor.Version),
		zap.String("apiBaseUrl", cfg.APIBaseURL),
		zap.String("endUserId", cfg.EndUserID),
		zap.Duration("cacheTtl", cfg.CacheTTL),
		zap.Int("cacheMaxSize", cfg.CacheMaxSize))

	m := metrics.New()
	store, err := cache.New(cache.Options{
		MaxSize:    cfg.CacheMaxSize,
		DefaultTTL: cfg.CacheTTL,
		Hooks:      cache.MultiHooks(cache.LogHooks{Log: log.Named("cache")}, m.CacheHooks()),
	})
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer store.Close()

	client, err := newClient(cfg, store, log, m)
	if err != nil {
		return err
	}
	s := tools.NewServer(tools.Deps{
		Client:         client,
		PublishableKey: cfg.PublishableKey,
		Logger:         log,
		Metrics:        m,
		Disabled:       cfg.DisabledTools,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.MetricsAddr != "" {
		go func() {
			log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
		return err
	}
	return nil
}
