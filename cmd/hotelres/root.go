package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/internal/ingest"
	"github.com/YuminosukeSato/hotelres/internal/pipeline"
	"github.com/YuminosukeSato/hotelres/internal/server"
	"github.com/YuminosukeSato/hotelres/internal/store"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// cli holds the global flags and the configuration loaded from them.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "hotelres",
		Short:         "Hotel booking cancellation prediction",
		Long:          "hotelres trains a gradient boosted classifier on hotel reservations and serves its predictions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "",
		"config file (default $"+config.ConfigPathEnvVar+" or "+config.DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		c.serveCmd(),
		c.ingestCmd(),
		c.processCmd(),
		c.trainCmd(),
		c.runCmd(),
		c.configCmd(),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := log.SetupLogger(log.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	}); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (c *cli) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the prediction web UI and API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port > 0 {
				c.cfg.Server.Port = port
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var opts []server.Option
			if c.cfg.Store.Path != "" {
				st, err := store.Open(ctx, c.cfg.Store.Path)
				if err != nil {
					return err
				}
				defer st.Close()
				opts = append(opts, server.WithStore(st))
			}

			s := server.New(c.cfg, opts...)
			var watcher *server.ModelWatcher
			if c.cfg.Server.WatchModel {
				watcher = server.NewModelWatcher(s.Model(), server.DefaultDebounce)
			}
			sup := server.NewSupervisor(s, nil, watcher)
			err := sup.Serve(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	return cmd
}

func (c *cli) ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Download the raw dataset and split it into train and test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			in, err := ingest.New(c.cfg)
			if err != nil {
				return err
			}
			return in.Run(ctx)
		},
	}
}

func (c *cli) processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Clean, encode, balance and select features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			pre, err := pipeline.NewProcessor(c.cfg).Process(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selected features: %v\n", pre.SelectedFeatures)
			return nil
		},
	}
}

func (c *cli) trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Search hyperparameters, evaluate and save the model bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			b, err := pipeline.NewTraining(c.cfg).Run(ctx)
			if err != nil {
				return err
			}
			printBundle(cmd, b)
			return nil
		},
	}
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run ingest, process and train in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			b, err := pipeline.Run(ctx, c.cfg)
			if err != nil {
				return err
			}
			printBundle(cmd, b)
			return nil
		},
	}
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}

func printBundle(cmd *cobra.Command, b *pipeline.Bundle) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s\n", b.RunID)
	keys := make([]string, 0, len(b.Metrics))
	for k := range b.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-9s %.4f\n", k, b.Metrics[k])
	}
}
