package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/r3e/taskgraph/internal/config"
	"github.com/r3e/taskgraph/internal/version"
	"github.com/r3e/taskgraph/pkg/billing"
	"github.com/r3e/taskgraph/pkg/eventbus"
	"github.com/r3e/taskgraph/pkg/graph"
	"github.com/r3e/taskgraph/pkg/handlerruntime"
	"github.com/r3e/taskgraph/pkg/httpapi"
	"github.com/r3e/taskgraph/pkg/memory"
	"github.com/r3e/taskgraph/pkg/orchestrator"
	"github.com/r3e/taskgraph/pkg/persistence"
	"github.com/r3e/taskgraph/pkg/security"
	"github.com/r3e/taskgraph/pkg/taskqueue"
	"github.com/r3e/taskgraph/pkg/validation"
	"github.com/r3e/taskgraph/pkg/worker"
)

var rootCmd = &cobra.Command{
	Use:   "taskgraphd",
	Short: "Task graph orchestration daemon: Event Bus, Task Queue, Handler Runtime, and Orchestrator behind an HTTP API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28181)
	viper.SetDefault("distributed", false)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server: "prod", "dev", or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address to bind")
	rootCmd.PersistentFlags().Int("port", 28181, "port to listen on")
	rootCmd.PersistentFlags().String("data", "./data", "data directory (sqlite file lives here)")
	rootCmd.PersistentFlags().String("driver", "sqlite", "storage driver: postgres or sqlite")
	rootCmd.PersistentFlags().String("dsn", "", "database source name, required for driver=postgres")
	rootCmd.PersistentFlags().String("redis-url", "", "redis connection URL; when set, backs the Event Bus and Task Queue in DISTRIBUTED mode")
	rootCmd.PersistentFlags().Bool("distributed", false, "enable durable bus + task queue for DISTRIBUTED mode")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "redis-url", "distributed"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("taskgraph")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func loadConfig() config.Config {
	cfg := config.Default()
	cfg.Mode = config.Mode(viper.GetString("mode"))
	cfg.Addr = viper.GetString("addr")
	cfg.Port = viper.GetInt("port")
	cfg.Data = viper.GetString("data")
	cfg.Driver = viper.GetString("driver")
	cfg.DSN = viper.GetString("dsn")
	cfg.RedisURL = viper.GetString("redis-url")
	cfg.Distributed = viper.GetBool("distributed")
	cfg.Version = version.GetCurrentVersion(string(cfg.Mode))
	return cfg
}

func run() error {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, persistentDB, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	busCfg := eventbus.Config{MaxEventHistory: cfg.MaxEventHistory}
	var durableQueue taskqueue.Queue
	if cfg.Distributed {
		backend, dq, err := openDurableBackends(cfg, persistentDB)
		if err != nil {
			return fmt.Errorf("open durable backends: %w", err)
		}
		busCfg.Backend = backend
		durableQueue = dq
		if closer, ok := backend.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}
	bus := eventbus.New(busCfg)
	defer bus.Close()

	registry := prometheus.NewRegistry()
	rt := handlerruntime.New(bus, handlerruntime.NewMetrics(registry))

	secSvc := security.NewService(security.Config{
		MaxRequestsPerHour: float64(cfg.Security.MaxRequestsPerHour),
		SessionTTL:         cfg.Security.SessionTimeout,
	})
	valSvc := validation.NewService(cfg.Validation.AutoFixEnabled)
	memSvc := memory.NewService(nil, store) // no vector backend wired without a configured pgvector DSN

	gate := billing.NewGate(store)

	handlers := map[string]handlerruntime.HandlerFunc{
		"echo": builtinEchoHandler,
	}

	var queue taskqueue.Queue = taskqueue.NewMemoryQueue(10000)
	if durableQueue != nil {
		queue = durableQueue
	}

	orc := orchestrator.New(bus, queue, rt, secSvc, valSvc, memSvc, gate, store, handlers, orchestrator.Config{
		MaxCredits:   cfg.MaxCredits,
		MaxQueueSize: cfg.MaxQueueSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Distributed {
		identity := &security.Context{IsAuthenticated: true, AllowedScopes: []string{"READ", "EXECUTE"}}
		w := worker.New(queue, bus, rt, handlers, identity)
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Info("worker stopped", "error", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	httpapi.NewService(orc, store, bus).Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	addr := fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port)
	go func() {
		slog.Info("taskgraphd listening", "addr", addr, "mode", cfg.Mode, "driver", cfg.Driver, "version", cfg.Version)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, terminationSignals...)
	<-sig

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	cancel()
	return nil
}

// openStore constructs the configured persistence driver and returns a
// close function that releases the underlying *sql.DB, if any. For
// driver=postgres it also returns the open *sql.DB so DISTRIBUTED mode can
// share the same connection pool for the durable Event Bus and Task Queue
// tables instead of opening a second one.
func openStore(cfg config.Config) (persistence.Store, *sql.DB, func(), error) {
	switch cfg.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := persistence.NewPostgresStore(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return store, db, func() { db.Close() }, nil
	default:
		if err := os.MkdirAll(cfg.Data, 0o755); err != nil {
			return nil, nil, nil, err
		}
		path := cfg.Data + "/taskgraph.db"
		store, err := persistence.OpenSQLiteStore(path)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, func() {}, nil
	}
}

// openDurableBackends builds the Event Bus and Task Queue durable backends
// for DISTRIBUTED mode (spec.md §2, §4.8, §6's distributed key): a Redis
// URL is preferred, grounded in goatclaw's Redis Streams/lists broker and
// task queue; otherwise it falls back to the Postgres tables backing
// persistentDB, reusing that connection. Config.Validate already rejects
// cfg.Distributed with neither configured, so one of the two branches below
// always applies when this is called.
func openDurableBackends(cfg config.Config, persistentDB *sql.DB) (eventbus.Backend, taskqueue.Queue, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		backend, err := eventbus.NewRedisBackend(context.Background(), client, "taskgraph_events", "taskgraph_group")
		if err != nil {
			return nil, nil, fmt.Errorf("redis event bus backend: %w", err)
		}
		return backend, taskqueue.NewRedisQueue(client, "taskgraph_task_queue"), nil
	}

	backend, err := eventbus.NewPostgresBackend(persistentDB, cfg.DSN, "taskgraph_events")
	if err != nil {
		return nil, nil, fmt.Errorf("postgres event bus backend: %w", err)
	}
	queue, err := taskqueue.NewPostgresQueue(persistentDB)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres task queue: %w", err)
	}
	return backend, queue, nil
}

// builtinEchoHandler is a smoke-test agent: it returns the node's
// input_data under an "echo" key as output_data, useful for exercising the
// Orchestrator without any external integration configured.
func builtinEchoHandler(_ context.Context, node *graph.TaskNode, _ *security.Context) (map[string]any, error) {
	return map[string]any{"echo": node.InputData}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
