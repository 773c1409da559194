package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/api"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/config"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/factory"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/tracing"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	v := config.NewViper()
	var configFile string

	cmd := &cobra.Command{
		Use:           "webhost",
		Short:         "Serve a web application directory over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, configFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.Int("port", 80, "port to listen on")
	flags.String("host", "", "address to bind and advertise (default: first non-loopback IPv4)")
	flags.String("vpath", "/", "virtual path the application is mounted at")
	flags.String("path", ".", "physical path of the application content")
	flags.Bool("debug", false, "enable debug logging")

	// Flags override the config file and environment when set.
	for key, name := range map[string]string{
		"port":          "port",
		"host_address":  "host",
		"virtual_path":  "vpath",
		"physical_path": "path",
		"debug":         "debug",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "webhost "+version)
		},
	})

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	logger.Configure(logger.Options{Level: level, Format: cfg.LogFormat})
	logger.Info("Starting xwebhost...",
		"version", version,
		"runtime", cfg.Runtime,
		"address_mode", cfg.AddressMode,
		"tls_enabled", cfg.TLSEnabled,
		"tls_mode", cfg.TLSMode)

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to create tracing provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	// Start health server
	healthServer := api.NewHealthServer(":" + cfg.HealthServerPort)
	healthServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = healthServer.Stop(shutdownCtx)
	}()

	clientset, err := factory.NewKubernetesClient(cfg)
	if err != nil {
		return err
	}

	hostAddress, err := factory.NewAddressFactory(cfg).Resolve(ctx, clientset)
	if err != nil {
		return err
	}

	opts := core.Options{
		AcceptRetryDelay: cfg.AcceptRetryDelay,
		WaitTimeout:      cfg.WaitTimeout,
	}

	// TLS provider (optional)
	if cfg.TLSEnabled {
		tlsFactory := factory.NewTLSFactory(cfg)
		provider, err := tlsFactory.Create(clientset)
		if err != nil {
			return fmt.Errorf("failed to create TLS provider: %w", err)
		}
		cert, err := tlsFactory.EnsureCertificate(ctx, provider, hostAddress)
		if err != nil {
			return fmt.Errorf("failed to ensure certificate: %w", err)
		}
		opts.TLSConfig = factory.BuildTLSConfig(cert)
		logger.Info("TLS enabled and configured")
	}

	listener, err := core.New(core.ListenerConfig{
		Port:         cfg.Port,
		HostAddress:  hostAddress,
		VirtualPath:  cfg.VirtualPath,
		PhysicalPath: cfg.PhysicalPath,
	}, factory.NewHostFactory(cfg, tp.Tracer()), opts)
	if err != nil {
		return err
	}

	if err := listener.Start(); err != nil {
		return err
	}
	healthServer.SetSource(listener)

	logger.Info("Serving application",
		"path", listener.PhysicalPath(),
		"url", listener.RootURL(),
		"app_id", listener.AppID())
	logger.Info("Listening")

	// Mark as ready
	healthServer.SetReady(true)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	healthServer.SetReady(false)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
	defer cancel()
	if err := listener.Stop(stopCtx); err != nil {
		return fmt.Errorf("listener did not stop cleanly: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
