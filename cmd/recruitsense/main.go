package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/recruitsense/ai/core/embedding"
	"github.com/hrygo/recruitsense/ai/core/retrieval"
	"github.com/hrygo/recruitsense/ai/extract"
	"github.com/hrygo/recruitsense/ai/indexer"
	"github.com/hrygo/recruitsense/ai/metrics"
	"github.com/hrygo/recruitsense/ai/reindex"
	"github.com/hrygo/recruitsense/internal/profile"
	"github.com/hrygo/recruitsense/internal/version"
	"github.com/hrygo/recruitsense/server"
	apiv1 "github.com/hrygo/recruitsense/server/router/api/v1"
	"github.com/hrygo/recruitsense/store"
	"github.com/hrygo/recruitsense/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "recruitsense",
	Short: "Semantic search index and incremental reindexing for recruitment records.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Under systemd the environment comes from the unit's EnvironmentFile.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the change listener, reindex orchestrator and HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "postgres")
	viper.SetDefault("port", 28090)
	viper.SetDefault("log-level", "info")

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 28090, "port of server")
	flags.String("data", "", "data directory for the sqlite driver")
	flags.String("driver", "postgres", "database driver (postgres, sqlite)")
	flags.String("dsn", "", "database source name(aka. DSN)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn", "log-level"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("recruitsense")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, newReindexCmd(), newSearchCmd(), newChunksCmd(), newMigrateCmd())
}

// loadProfile builds the profile from flags, then the environment, and
// installs the default logger.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:     viper.GetString("mode"),
		Addr:     viper.GetString("addr"),
		Port:     viper.GetInt("port"),
		Data:     viper.GetString("data"),
		Driver:   viper.GetString("driver"),
		DSN:      viper.GetString("dsn"),
		LogLevel: viper.GetString("log-level"),
		Version:  version.GetCurrentVersion(viper.GetString("mode")),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(p))
	return p, nil
}

func newLogger(p *profile.Profile) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(p.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if p.IsDev() {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// openStore connects the configured driver. The sqlite driver creates its
// tables on open; the postgres schema is owned by the database and applied
// only by the migrate command.
func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		printDatabaseError(err, p)
		return nil, err
	}
	st := store.New(dbDriver, p)
	if p.Driver == "sqlite" {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

type initChecker interface {
	IsInitialized(ctx context.Context) (bool, error)
}

// checkSchema fails fast when the record tables are missing.
func checkSchema(ctx context.Context, st *store.Store) error {
	checker, ok := st.GetDriver().(initChecker)
	if !ok {
		return nil
	}
	initialized, err := checker.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if !initialized {
		return errors.New("record tables not found, apply the schema with: recruitsense migrate")
	}
	return nil
}

// components is the wired indexing and search stack shared by the commands.
type components struct {
	store    *store.Store
	metrics  *metrics.PrometheusExporter
	pipeline *reindex.Pipeline
	engine   *retrieval.Engine
}

func newComponents(ctx context.Context, p *profile.Profile) (*components, error) {
	st, err := openStore(ctx, p)
	if err != nil {
		return nil, err
	}

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	if !p.IsEmbeddingEnabled() {
		slog.Warn("no embedding API key configured, searches fall back to lexical matching", "provider", p.EmbeddingProvider)
	}
	provider, err := embedding.NewProvider(embedding.ConfigFromProfile(p), embedding.WithProviderMetrics(exporter))
	if err != nil {
		st.Close()
		return nil, err
	}
	embedder := embedding.NewCachedEmbedder(provider, embedding.NewLRUCache(p.EmbeddingCacheSize), embedding.WithCacheMetrics(exporter), embedding.WithFlightTimeout(p.EmbeddingTimeout))

	pipeline := reindex.NewPipeline(st, indexer.NewWriter(embedder, st),
		reindex.WithExtractor(extract.NewFromProfile(p)),
		reindex.WithChunking(p.ChunkSize, p.ChunkOverlap),
		reindex.WithBatchConcurrency(p.Workers),
	)
	engine := retrieval.NewEngine(st, embedder,
		retrieval.WithVectorWeight(p.VectorWeight),
		retrieval.WithMetrics(exporter),
	)

	return &components{
		store:    st,
		metrics:  exporter,
		pipeline: pipeline,
		engine:   engine,
	}, nil
}

func runServe(parent context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	slog.Info("starting recruitsense", "version", version.String(), "mode", p.Mode, "driver", p.Driver)
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c, err := newComponents(ctx, p)
	if err != nil {
		slog.Error("failed to open components", "error", err)
		return err
	}
	defer c.store.Close()
	if err := checkSchema(ctx, c.store); err != nil {
		slog.Error("schema check failed", "error", err)
		return err
	}

	orchestrator, err := reindex.NewOrchestrator(c.pipeline,
		reindex.WithDebounce(p.Debounce),
		reindex.WithWorkers(p.Workers),
		reindex.WithMetrics(c.metrics),
	)
	if err != nil {
		return err
	}

	notifications, err := c.store.Subscribe(ctx)
	if err != nil {
		orchestrator.Stop()
		slog.Error("failed to subscribe to record changes", "error", err)
		return err
	}
	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		if err := orchestrator.Listen(ctx, notifications); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("change listener stopped", "error", err)
		}
	}()

	api := apiv1.NewAPIV1Service(c.engine, orchestrator, p.Version)
	s, err := server.NewServer(ctx, p, api, c.metrics.GetHandler())
	if err != nil {
		cancel()
		orchestrator.Stop()
		return err
	}

	sig := make(chan os.Signal, 1)
	// SIGINT and SIGTERM both drain: pending records are reindexed before exit.
	signal.Notify(sig, terminationSignals...)
	defer signal.Stop(sig)

	if err := s.Start(ctx); err != nil {
		cancel()
		orchestrator.Stop()
		slog.Error("failed to start server", "error", err)
		return err
	}

	printGreetings(p)

	select {
	case <-sig:
	case <-ctx.Done():
	}

	s.Shutdown(context.Background())
	cancel()
	<-listenDone
	orchestrator.Stop()
	return nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("RecruitSense %s started successfully!\n", p.Version)

	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if p.Driver == "sqlite" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}

	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Embedding: %s (%s, %d dimensions)\n", p.EmbeddingProvider, p.EmbeddingModel, p.EmbeddingDimensions)
	fmt.Printf("Reindex: debounce %s, %d workers\n", p.Debounce, p.Workers)
	if p.TextExtractEnabled {
		fmt.Printf("Text extraction: %s\n", p.TikaServerURL)
	}

	if len(p.Addr) == 0 {
		fmt.Printf("Search API on http://localhost:%d/api/v1/search\n", p.Port)
	} else {
		fmt.Printf("Search API on http://%s:%d/api/v1/search\n", p.Addr, p.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError turns common connection failures into hints.
func printDatabaseError(err error, p *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL is not reachable. Check the host and port in the DSN.")
		fmt.Fprintln(os.Stderr, "  For local development use: recruitsense --driver=sqlite --data=./data")
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "  Add ?sslmode=disable to the DSN.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "  Check the credentials in RECRUITSENSE_DSN or the .env file.")
	case strings.Contains(errMsg, "does not exist"):
		fmt.Fprintln(os.Stderr, "  The database or the vector extension is missing. Run: recruitsense migrate")
	case strings.Contains(errMsg, "dsn required"):
		fmt.Fprintf(os.Stderr, "  Set --dsn or RECRUITSENSE_DSN for the %s driver.\n", p.Driver)
	default:
		fmt.Fprintln(os.Stderr, "  Error:", errMsg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
