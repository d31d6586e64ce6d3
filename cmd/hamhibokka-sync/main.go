// Command hamhibokka-sync inspects and drives the client state layer from a
// terminal: show or change the stored session, replay notification fixtures
// through the dispatcher, or listen to a live push gateway.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/2xteam/hamhibokka-frontend-sub001/client"
)

var (
	debug       bool
	metricsAddr string
)

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	var stopMetrics func()

	rootCmd := &cobra.Command{
		Use:           "hamhibokka-sync",
		Short:         "Inspect and drive the hamhibokka client state layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			log.Logger = log.Output(zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: "2006-01-02 15:04:05",
				NoColor:    true,
			})
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				_ = os.Setenv("HAMHIBOKKA_LOG_LEVEL", "debug")
				log.Debug().Msg("debug logging enabled")
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			stopMetrics = serveMetrics(metricsAddr)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if stopMetrics != nil {
				stopMetrics()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable verbose debug output")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newListenCmd())
	return rootCmd
}

// serveMetrics exposes /metrics on addr and returns its shutdown func.
func serveMetrics(addr string) func() {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Debug().Str("addr", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// openClient opens the configured store behind an in-process provider, so
// the command never needs a push gateway.
func openClient(opts ...client.Option) (*client.Client, *client.MemoryProvider, error) {
	cfg, err := client.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	provider := client.NewMemoryProvider("cli-" + uuid.NewString())
	c, err := client.Open(cfg, provider, opts...)
	if err != nil {
		return nil, nil, err
	}
	return c, provider, nil
}
