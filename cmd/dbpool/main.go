package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/internal/server"
	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/config"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/logger"
	"github.com/ajitpratap0/dbpool/pkg/metrics"
	"github.com/ajitpratap0/dbpool/pkg/observability"
	"github.com/ajitpratap0/dbpool/pkg/pool"

	// Register the database types and pool drivers
	_ "github.com/ajitpratap0/dbpool/pkg/database/mysql"
	_ "github.com/ajitpratap0/dbpool/pkg/database/postgres"
	_ "github.com/ajitpratap0/dbpool/pkg/database/snowflake"
	_ "github.com/ajitpratap0/dbpool/pkg/pool/channel"
)

var version = "0.1.0"

const defaultPoolName = "default"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "dbpool",
		Short: "dbpool - authenticated database connection pool with statistics",
		Long: `dbpool wraps a database connection pool, checks every caller against the
pool credential and collects checkout statistics: request rates, check-out
times and occupancy snapshots.`,
		SilenceUsage: true,
	}

	var logLevel string
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return logger.Init(logger.Config{Level: logLevel, Encoding: "console"})
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dbpool v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available database types and pool drivers",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Database Types:")
			for _, name := range database.Types() {
				fmt.Fprintf(out, "  - %s\n", name)
			}
			fmt.Fprintln(out, "\nAvailable Pool Drivers:")
			for _, name := range pool.Drivers() {
				fmt.Fprintf(out, "  - %s\n", name)
			}
		},
	})

	root.AddCommand(newStatsCommand(), newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// poolFlags holds the viper instance a command resolves its PoolConfig from.
type poolFlags struct {
	v          *viper.Viper
	configFile string
}

// bindPoolFlags adds the pool flags to fs. Values resolve in the order
// flag, DBPOOL_* environment variable, config file, default.
func bindPoolFlags(fs *pflag.FlagSet) *poolFlags {
	pf := &poolFlags{v: viper.New()}

	fs.StringVarP(&pf.configFile, "config", "c", "", "Path to pool configuration YAML file")
	fs.String("name", "", "Pool name used in logs and metrics")
	fs.String("driver", config.DefaultDriver, "Pool driver")
	fs.String("database-type", "", "Database type (see dbpool list)")
	fs.String("url", "", "Connection string without credentials")
	fs.String("username", "", "Pool username")
	fs.String("password", "", "Pool password (prefer DBPOOL_DATABASE_PASSWORD)")
	fs.Int("max-size", config.DefaultMaximumPoolSize, "Maximum pool size")
	fs.Int("min-size", config.DefaultMinimumPoolSize, "Minimum pool size")
	fs.Duration("checkout-timeout", config.DefaultCheckoutTimeout, "Maximum time a checkout waits for a connection")
	fs.Bool("validate", false, "Validate connections on checkout")
	fs.Bool("collect-check-out-times", false, "Collect check-out times")
	fs.Bool("collect-snapshots", false, "Collect occupancy snapshots")

	for key, flag := range map[string]string{
		"name":                               "name",
		"driver":                             "driver",
		"database.type":                      "database-type",
		"database.url":                       "url",
		"database.username":                  "username",
		"database.password":                  "password",
		"maximum_pool_size":                  "max-size",
		"minimum_pool_size":                  "min-size",
		"checkout_timeout":                   "checkout-timeout",
		"validate_on_checkout":               "validate",
		"statistics.collect_check_out_times": "collect-check-out-times",
		"statistics.collect_snapshots":       "collect-snapshots",
	} {
		_ = pf.v.BindPFlag(key, fs.Lookup(flag))
	}

	pf.v.SetEnvPrefix("DBPOOL")
	pf.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	pf.v.AutomaticEnv()
	return pf
}

// load resolves the PoolConfig. The config file goes through config.Load so
// ${VAR} references in it are expanded.
func (pf *poolFlags) load() (*config.PoolConfig, error) {
	cfg := config.NewPoolConfig()
	if pf.configFile != "" {
		loaded, err := config.Load(pf.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	for key, value := range settings(cfg) {
		pf.v.SetDefault(key, value)
		_ = pf.v.BindEnv(key)
	}
	if err := pf.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve pool configuration: %w", err)
	}

	if cfg.Name == "" {
		cfg.Name = defaultPoolName
	}
	if cfg.Database.Type == "" {
		return nil, errors.New("database type is required (--database-type or database.type)")
	}
	return cfg, cfg.Validate()
}

func settings(cfg *config.PoolConfig) map[string]interface{} {
	return map[string]interface{}{
		"name":                               cfg.Name,
		"driver":                             cfg.Driver,
		"database.type":                      cfg.Database.Type,
		"database.url":                       cfg.Database.URL,
		"database.username":                  cfg.Database.Username,
		"database.password":                  cfg.Database.Password,
		"maximum_pool_size":                  cfg.MaximumPoolSize,
		"minimum_pool_size":                  cfg.MinimumPoolSize,
		"idle_timeout":                       cfg.IdleTimeout,
		"checkout_timeout":                   cfg.CheckoutTimeout,
		"cleanup_interval":                   cfg.CleanupInterval,
		"validate_on_checkout":               cfg.ValidateOnCheckout,
		"statistics.collect_check_out_times": cfg.Statistics.CollectCheckOutTimes,
		"statistics.collect_snapshots":       cfg.Statistics.CollectSnapshots,
		"statistics.snapshot_interval":       cfg.Statistics.SnapshotInterval,
		"statistics.snapshot_size":           cfg.Statistics.SnapshotSize,
	}
}

func newStatsCommand() *cobra.Command {
	var (
		checkouts   int
		concurrency int
		hold        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Exercise a pool and print its statistics",
		Long: `Open a pool, run a number of concurrent checkouts against it and print the
resulting statistics as JSON.

Example:
  DBPOOL_DATABASE_PASSWORD=secret dbpool stats --database-type postgres \
    --url postgres://db:5432/orders --username app --checkouts 500 --concurrency 16`,
	}
	pf := bindPoolFlags(cmd.Flags())
	cmd.Flags().IntVar(&checkouts, "checkouts", 100, "Number of checkouts to perform")
	cmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "Number of concurrent callers")
	cmd.Flags().DurationVar(&hold, "hold", 0, "How long each caller keeps a connection")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := pf.load()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		log := logger.Get().With(zap.String("component", "dbpool-cli"), zap.String("pool", cfg.Name))
		w, err := pool.Open(ctx, *cfg)
		if err != nil {
			return err
		}
		defer w.Close()

		start := time.Now().UnixMilli()
		user := auth.NewUser(cfg.Database.Username, cfg.Database.Password)
		failed := exercise(ctx, w, user, checkouts, concurrency, hold, log)

		log.Info("checkouts finished",
			zap.Int("checkouts", checkouts),
			zap.Int64("failed", failed))

		out, err := json.MarshalIndent(w.Statistics(start), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	return cmd
}

// exercise performs checkouts spread over concurrency callers and returns
// the number that failed.
func exercise(ctx context.Context, w *pool.Wrapper, user auth.User, checkouts, concurrency int, hold time.Duration, log *zap.Logger) int64 {
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		wg        sync.WaitGroup
		remaining atomic.Int64
		failed    atomic.Int64
	)
	remaining.Store(int64(checkouts))

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for remaining.Add(-1) >= 0 && ctx.Err() == nil {
				conn, err := w.Connection(ctx, user)
				if err != nil {
					failed.Add(1)
					log.Debug("checkout failed", zap.Error(err))
					continue
				}
				if hold > 0 {
					time.Sleep(hold)
				}
				_ = conn.Close()
			}
		}()
	}
	wg.Wait()
	return failed.Load()
}

func newServeCommand() *cobra.Command {
	var (
		listen        string
		traceExporter string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pool statistics and Prometheus metrics over HTTP",
		Long: `Open a pool and serve its statistics until interrupted.

Routes:
  GET  /metrics                     Prometheus metrics
  GET  /pools                       pool names
  GET  /pools/{pool}/stats?since=   statistics, snapshot samples since a Unix millisecond
  POST /pools/{pool}/stats/reset    reset the counters
  PUT  /pools/{pool}/collect        {"check_out_times": bool, "snapshots": bool}`,
	}
	pf := bindPoolFlags(cmd.Flags())
	cmd.Flags().StringVar(&listen, "listen", ":9187", "HTTP listen address")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", observability.ExporterNone, "Trace exporter (stdout, none)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := pf.load()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		log := logger.Get().With(zap.String("component", "dbpool-cli"), zap.String("pool", cfg.Name))

		tracing := observability.DefaultTracingConfig()
		tracing.Exporter = traceExporter
		if _, err := observability.InitTracing(tracing); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := observability.Shutdown(shutdownCtx); err != nil {
				log.Warn("observability shutdown failed", zap.Error(err))
			}
		}()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		w, err := pool.Open(ctx, *cfg,
			pool.WithObserver(metrics.NewCheckoutObserver(reg)),
			pool.WithTracer(observability.Tracer()))
		if err != nil {
			return err
		}
		defer w.Close()
		reg.MustRegister(metrics.NewPoolCollector(w))

		srv := &http.Server{
			Addr:              listen,
			Handler:           server.NewHandler(reg, log, w).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("serving", zap.String("listen", listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
	return cmd
}
