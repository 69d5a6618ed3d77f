// Command phantomband-client opens one circuit to a relay, sends a message,
// prints the echo and disconnects.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opd-ai/phantomband/client"
	"github.com/opd-ai/phantomband/logging"
)

const defaultMessage = "Hello PhantomBand!"

// Options holds the command line configuration.
type Options struct {
	ConfigFile   string
	RelayAddress string
	RelayKey     string
	Message      string
}

func newRootCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "phantomband-client",
		Short: "Open a PhantomBand circuit and echo one message",
		Example: `  # Echo a message through a local relay
  phantomband-client --relay-key <hex public key>

  # Use a config file and a custom message
  phantomband-client --config client.toml --message "ping"

  # Reach the relay over websocket
  phantomband-client --relay ws://relay.example:8080 --relay-key <hex>`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, []byte(opts.Message), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "f", "",
		"path to the client configuration file (TOML format)")
	cmd.Flags().StringVar(&opts.RelayAddress, "relay", "",
		"relay address, optionally with a transport scheme, overrides RelayAddress")
	cmd.Flags().StringVar(&opts.RelayKey, "relay-key", "",
		"relay public key in hex, overrides RelayPublicKey")
	cmd.Flags().StringVar(&opts.Message, "message", defaultMessage,
		"payload to send")

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts Options) (*client.Config, error) {
	cfg := new(client.Config)
	if opts.ConfigFile != "" {
		b, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file '%v': %v", opts.ConfigFile, err)
		}
		// Flags may supply required fields, so validate after overrides.
		if cfg, err = client.Decode(b); err != nil {
			return nil, err
		}
	}

	if opts.RelayAddress != "" {
		cfg.RelayAddress = opts.RelayAddress
	}
	if opts.RelayKey != "" {
		cfg.RelayPublicKey = opts.RelayKey
	}

	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *client.Config, message []byte, out io.Writer) error {
	logCloser, err := logging.Setup(*cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	circuit, err := client.NewCircuitFromConfig(cfg)
	if err != nil {
		return err
	}
	defer circuit.Close()

	if err := circuit.Connect(ctx, cfg.RelayAddress); err != nil {
		return describe(err)
	}
	if err := circuit.Send(ctx, message); err != nil {
		return describe(err)
	}
	echo, err := circuit.Receive(ctx)
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(out, "circuit %d: %s\n", circuit.ID(), echo)
	return nil
}

// describe prefixes err with its failure reason.
func describe(err error) error {
	if reason, ok := client.ReasonOf(err); ok {
		return fmt.Errorf("%s: %w", reason, err)
	}
	return err
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
