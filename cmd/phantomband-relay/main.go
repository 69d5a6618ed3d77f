// Command phantomband-relay runs a PhantomBand relay until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/phantomband/logging"
	"github.com/opd-ai/phantomband/relay"
)

// Options holds the command line configuration.
type Options struct {
	ConfigFile     string
	ListenAddress  string
	LogLevel       string
	MetricsAddress string
}

func newRootCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "phantomband-relay",
		Short: "PhantomBand circuit relay",
		Long: `phantomband-relay accepts PhantomBand clients, performs the handshake,
registers each client's session key and echoes data on the circuits they
create. It serves until interrupted.`,
		Example: `  # Start a relay with defaults and a fresh identity
  phantomband-relay

  # Start a relay from a config file
  phantomband-relay -f /etc/phantomband/relay.toml

  # Override the listen address and expose metrics
  phantomband-relay --listen 0.0.0.0:8080 --metrics 127.0.0.1:9090`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "f", "",
		"path to the relay configuration file (TOML format)")
	cmd.Flags().StringVar(&opts.ListenAddress, "listen", "",
		"address to accept clients on, overrides ListenAddress")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "",
		"log level (ERROR, WARNING, INFO, DEBUG, TRACE)")
	cmd.Flags().StringVar(&opts.MetricsAddress, "metrics", "",
		"address to serve Prometheus metrics on, overrides MetricsAddress")

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts Options) (*relay.Config, error) {
	cfg := new(relay.Config)
	if opts.ConfigFile != "" {
		loaded, err := relay.LoadFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file '%v': %v", opts.ConfigFile, err)
		}
		cfg = loaded
	}

	if opts.ListenAddress != "" {
		cfg.ListenAddress = opts.ListenAddress
	}
	if opts.MetricsAddress != "" {
		cfg.MetricsAddress = opts.MetricsAddress
	}
	if opts.LogLevel != "" {
		if cfg.Logging == nil {
			cfg.Logging = &logging.Config{}
		}
		cfg.Logging.Level = opts.LogLevel
	}

	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *relay.Config) error {
	logCloser, err := logging.Setup(*cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	srv, err := relay.NewServer(cfg, relay.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}
	tr, err := cfg.NewTransport()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, tr, cfg.ListenAddress)
	})
	if cfg.MetricsAddress != "" {
		g.Go(func() error {
			return relay.ServeMetrics(ctx, cfg.MetricsAddress)
		})
	}

	err = g.Wait()
	logrus.WithField("function", "run").Info("Relay shut down")
	return err
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
