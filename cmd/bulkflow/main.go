package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bulkflow/pkg/bulk"
	"github.com/ajitpratap0/bulkflow/pkg/config"
	"github.com/ajitpratap0/bulkflow/pkg/logger"
	"github.com/ajitpratap0/bulkflow/pkg/model"
	"github.com/ajitpratap0/bulkflow/pkg/observability"
	"github.com/ajitpratap0/bulkflow/pkg/plan"
	"github.com/ajitpratap0/bulkflow/pkg/session"
)

var version = "0.1.0"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	logLevel   string
	dsn        string
	driver     string
}

// tableFlags describe the input file and its target table
type tableFlags struct {
	file           string
	schema         string
	table          string
	columns        []string
	keys           []string
	generated      []string
	identityInsert bool
	print          bool
	timeout        time.Duration
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "bulkflow",
		Short: "Bulk load and delete rows through native database copy",
		Long: `bulkflow moves JSON-lines files into PostgreSQL or MySQL tables through
the database's native bulk copy path. Rows are staged in a temporary table
when generated values must be read back, and everything runs in a single
transaction.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.dsn, "dsn", "", "Database DSN override")
	root.PersistentFlags().StringVar(&g.driver, "driver", "", "Database driver override (postgres, mysql)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bulkflow version %s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newOperationCommand(g, plan.Insert))
	root.AddCommand(newOperationCommand(g, plan.Delete))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newOperationCommand(g *globalFlags, op plan.Operation) *cobra.Command {
	tf := &tableFlags{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Insert rows from a JSON-lines file",
		Example: `  bulkflow load --table orders --file orders.jsonl
  bulkflow load -t orders -f - --generated id --print < orders.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), g, tf, op)
		},
	}
	if op == plan.Delete {
		cmd.Use = "delete"
		cmd.Short = "Delete rows matching the keys in a JSON-lines file"
		cmd.Example = "  bulkflow delete --table orders --key id --file stale.jsonl"
	}

	flags := cmd.Flags()
	flags.StringVarP(&tf.file, "file", "f", "-", "JSON-lines input file, - for stdin")
	flags.StringVarP(&tf.table, "table", "t", "", "Target table (required)")
	flags.StringVar(&tf.schema, "schema", "", "Target schema, defaults to database.schema")
	flags.StringSliceVar(&tf.columns, "columns", nil, "Columns to transfer, defaults to the keys of the first row")
	flags.StringSliceVarP(&tf.keys, "key", "k", nil, "Primary key columns")
	flags.DurationVar(&tf.timeout, "timeout", 30*time.Minute, "Overall operation timeout")
	_ = cmd.MarkFlagRequired("table")

	if op == plan.Delete {
		_ = cmd.MarkFlagRequired("key")
	} else {
		flags.StringSliceVar(&tf.generated, "generated", nil, "Database-generated columns to read back after insert")
		flags.BoolVar(&tf.identityInsert, "identity-insert", false, "Write explicit values into generated key columns")
		flags.BoolVar(&tf.print, "print", false, "Write the inserted rows, including generated values, to stdout")
	}
	return cmd
}

func loadConfig(g *globalFlags) (*config.BulkConfig, error) {
	cfg, err := config.LoadBulkConfig(g.configFile, "bulkflow-cli")
	if err != nil {
		return nil, err
	}
	if g.dsn != "" {
		cfg.Database.DSN = g.dsn
	}
	if g.driver != "" {
		cfg.Database.Driver = g.driver
	}
	if g.logLevel != "" {
		cfg.Observability.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, g *globalFlags, tf *tableFlags, op plan.Operation) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// stdout carries --print output, so logs go to stderr
	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    cfg.Observability.LogEncoding,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().With(
		zap.String("component", "bulkflow-cli"),
		zap.String("driver", cfg.Database.Driver),
		zap.String("operation", op.String()),
	)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, tf.timeout)
	defer cancel()

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    cfg.Name,
			ServiceVersion: version,
			SamplingRate:   cfg.Observability.TracingSampleRate,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	if cfg.Observability.EnableMetrics {
		srv := startMetricsServer(cfg.Observability.MetricsAddr, log)
		defer stopMetricsServer(srv, log)
	}

	in, closeIn, err := openInput(tf.file)
	if err != nil {
		return err
	}
	defer closeIn()

	schema := tf.schema
	if schema == "" {
		schema = cfg.Database.Schema
	}
	input, err := readRecords(in, recordMapping{
		entity:    tf.table,
		schema:    schema,
		table:     tf.table,
		columns:   tf.columns,
		keys:      tf.keys,
		generated: tf.generated,
	})
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", tf.file, err)
	}
	if len(input.records) == 0 {
		log.Info("input is empty, nothing to do")
		return nil
	}

	m := model.New()
	if err := m.Add(input.entity); err != nil {
		return err
	}

	sess, release, err := openSession(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer release()

	db := bulk.Open(sess, m, bulk.WithConfig(cfg), bulk.WithLogger(log))
	opts := []bulk.Option{
		bulk.WithEntityType(input.entity.Name),
		bulk.WithPropagateValues(len(tf.generated) > 0),
	}

	log.Info("starting bulk operation",
		zap.String("file", tf.file),
		zap.String("table", input.entity.Table),
		zap.Strings("columns", input.columns),
		zap.Int("rows", len(input.records)))

	start := time.Now()
	var n int64
	if op == plan.Delete {
		n, err = bulk.Delete(ctx, db, input.records, opts...)
	} else {
		opts = append(opts, bulk.WithIdentityInsert(tf.identityInsert))
		n, err = bulk.Insert(ctx, db, input.records, opts...)
	}
	if err != nil {
		return fmt.Errorf("bulk %s failed: %w", op, err)
	}

	duration := time.Since(start)
	log.Info("bulk operation completed",
		zap.Int64("rows_affected", n),
		zap.Duration("duration", duration),
		zap.Float64("rows_per_second", float64(len(input.records))/duration.Seconds()))

	if tf.print {
		return writeRecords(os.Stdout, input.records)
	}
	return nil
}

func openInput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// openSession pins one connection for the whole run and returns its
// release function.
func openSession(ctx context.Context, cfg *config.DatabaseConfig) (session.Session, func(), error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		pool, err := session.OpenMySQL(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		sess, err := session.AcquireMySQL(ctx, pool, cfg.GetCommandTimeout())
		if err != nil {
			_ = pool.Close()
			return nil, nil, err
		}
		return sess, func() {
			_ = sess.Close()
			_ = pool.Close()
		}, nil
	default:
		pool, err := session.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		sess, err := session.AcquirePgx(ctx, pool, cfg.GetCommandTimeout())
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return sess, func() {
			sess.Close()
			pool.Close()
		}, nil
	}
}
