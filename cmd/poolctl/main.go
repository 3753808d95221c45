// Command poolctl is a demo hosting program for the pooling core: it
// loads a pool from a YAML config file, then either prefills it, hammers
// it with concurrent borrow/return traffic, or serves its metrics over
// HTTP — the three things a real service embedding the core would do at
// startup, under load, and for observability.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/liangfflia/objectpool/pool"
	"github.com/liangfflia/objectpool/poolconfig"
	"github.com/liangfflia/objectpool/poolmetrics"
)

// dummyResource is the demo factory's product: an opaque integer handle,
// standing in for whatever expensive resource a real factory would wrap
// (a DB connection, a TLS session, a decoder).
type dummyResource struct {
	id int
}

type dummyFactory struct {
	next   int64
	logger zerolog.Logger
}

func (f *dummyFactory) MakeObject() (*pool.PooledObject, error) {
	id := atomic.AddInt64(&f.next, 1)
	f.logger.Debug().Int64("id", id).Msg("made dummy resource")
	return pool.NewPooledObject(&dummyResource{id: int(id)}), nil
}

func (f *dummyFactory) ActivateObject(*pool.PooledObject) error  { return nil }
func (f *dummyFactory) ValidateObject(*pool.PooledObject) bool   { return true }
func (f *dummyFactory) PassivateObject(*pool.PooledObject) error { return nil }
func (f *dummyFactory) DestroyObject(*pool.PooledObject) error   { return nil }

func buildPoolFromConfig(configPath string, logger zerolog.Logger) (*pool.ObjectPool, error) {
	fc, err := poolconfig.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := poolconfig.ToObjectPoolConfig(fc.Pool)
	if err != nil {
		return nil, err
	}
	factory := &dummyFactory{logger: logger}
	opts := []pool.Option{pool.WithLogger(logger), pool.WithName("poolctl")}
	if ac := poolconfig.ToAbandonedConfig(fc.Abandoned); ac != nil {
		opts = append(opts, pool.WithAbandonedConfig(ac))
	}
	return pool.NewObjectPool(factory, cfg, opts...), nil
}

func newPrefillCmd() *cobra.Command {
	var configPath string
	var count int

	cmd := &cobra.Command{
		Use:   "prefill",
		Short: "Load a pool from config and pre-create idle entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.OutOrStderr()}).With().Timestamp().Logger()

			p, err := buildPoolFromConfig(configPath, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			pool.Prefill(p, count)

			fmt.Fprintf(cmd.OutOrStdout(), "idle=%d active=%d created=%d\n",
				p.GetNumIdle(), p.GetNumActive(), p.GetCreatedCount())
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "pool.yaml", "Path to a pool config YAML file")
	cmd.Flags().IntVar(&count, "count", 4, "Number of idle entries to prefill")
	return cmd
}

func newBenchCmd() *cobra.Command {
	var configPath string
	var workers int
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Hammer a pool with concurrent borrow/return traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.OutOrStderr()}).With().Timestamp().Logger()

			p, err := buildPoolFromConfig(configPath, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			runBenchWorkers(ctx, p, workers)

			fmt.Fprintf(cmd.OutOrStdout(),
				"idle=%d active=%d created=%d destroyed=%d destroyedByEvictor=%d destroyedByValidation=%d\n",
				p.GetNumIdle(), p.GetNumActive(), p.GetCreatedCount(), p.GetDestroyedCount(),
				p.GetDestroyedByEvictorCount(), p.GetDestroyedByBorrowValidationCount())
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "pool.yaml", "Path to a pool config YAML file")
	cmd.Flags().IntVar(&workers, "workers", 8, "Number of concurrent borrow/return workers")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "How long to run the benchmark")
	return cmd
}

func runBenchWorkers(ctx context.Context, p *pool.ObjectPool, workers int) {
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				v, err := p.BorrowObject()
				if err != nil {
					continue
				}
				time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
				_ = p.ReturnObject(v)
			}
		}()
	}
	wg.Wait()
}

func newServeMetricsCmd() *cobra.Command {
	var configPath string
	var workers int
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Run the bench loop while exposing pool metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.OutOrStderr()}).With().Timestamp().Logger()

			p, err := buildPoolFromConfig(configPath, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			reg := prometheus.NewRegistry()
			collector := poolmetrics.NewObjectPoolCollector("poolctl", p)
			if err := collector.Register(reg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go collector.Run(ctx, time.Second)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			server := &http.Server{Addr: addr, Handler: mux}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			go runBenchWorkers(ctx, p, workers)

			logger.Info().Str("addr", addr).Msg("serving pool metrics")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "pool.yaml", "Path to a pool config YAML file")
	cmd.Flags().IntVar(&workers, "workers", 8, "Number of concurrent borrow/return workers")
	cmd.Flags().StringVar(&addr, "addr", ":9090", "Address to serve /metrics on")
	return cmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "poolctl",
		Short: "Demo CLI for exercising the pooling core end to end",
	}

	rootCmd.AddCommand(newPrefillCmd(), newBenchCmd(), newServeMetricsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
