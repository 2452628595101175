// Command ledgercsv replays a CSV file of deposit/withdrawal/dispute/
// resolve/chargeback rows through the ledger core and prints the
// resulting per-client balance table to stdout as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/finledger/utxoledger/internal/config"
	"github.com/finledger/utxoledger/internal/csvio"
	"github.com/finledger/utxoledger/internal/ledger"
	"github.com/finledger/utxoledger/internal/ledger/storage"
	"github.com/finledger/utxoledger/internal/ledger/storage/boltstore"
	"github.com/finledger/utxoledger/internal/ledger/storage/instrumented"
	"github.com/finledger/utxoledger/internal/ledger/storage/memory"
	"github.com/finledger/utxoledger/internal/ledger/storage/pgstore"
	"github.com/finledger/utxoledger/internal/logger"
	"github.com/finledger/utxoledger/internal/metrics"

	"net/http"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// ledgerMetrics registers the metric set against the default registry on
// first use and returns the same set on every later call, so run can be
// invoked more than once in one process (as the tests do).
var ledgerMetrics = sync.OnceValue(metrics.NewLedger)

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("ledgercsv", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a JSON config file (optional)")
	dbPath := fs.String("db", "", "bolt database file path; selects the bolt backend")
	pgDSN := fs.String("pg-dsn", "", "Postgres connection string; selects the postgres backend")
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on, e.g. :9090 (optional)")
	logLevel := fs.String("log-level", "", "log level: debug/info/warn/error")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: ledgercsv [flags] <transactions.csv>")
		return 1
	}
	csvPath := fs.Arg(0)
	if *dbPath != "" && *pgDSN != "" {
		fmt.Fprintln(stderr, "-db and -pg-dsn are mutually exclusive")
		return 1
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "loading config: %v\n", err)
		return 1
	}
	cfg.ApplyEnv()
	if *dbPath != "" {
		cfg.Backend, cfg.DBPath = config.BackendBolt, *dbPath
	}
	if *pgDSN != "" {
		cfg.Backend, cfg.PgDSN = config.BackendPostgres, *pgDSN
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 1
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Filename: cfg.LogFile}); err != nil {
		fmt.Fprintf(stderr, "initializing logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	metricsSet := ledgerMetrics()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", logger.Error2(err))
			}
		}()
		defer srv.Close()
	}

	ctx := context.Background()
	rawStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "opening storage backend: %v\n", err)
		return 1
	}
	defer closeStore()
	store := instrumented.New(rawStore, metricsSet, string(cfg.Backend))

	var limiter *rate.Limiter
	if cfg.IngestRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.IngestRateLimit), int(cfg.IngestRateLimit)+1)
	}

	var shortfalls int
	l := ledger.New(store, nil, ledger.Hooks{
		OnDisputeShortfall: func(client ledger.ClientID, shortfall ledger.Amount) {
			shortfalls++
			metricsSet.DisputeShortfall.Inc()
			logger.Warn("dispute shortfall reported",
				logger.Uint16("client", uint16(client)),
				logger.String("shortfall", shortfall.String()))
		},
	})

	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(stderr, "opening input: %v\n", err)
		return 1
	}
	defer f.Close()

	if err := processFile(ctx, l, f, stderr, limiter, metricsSet, cfg.Precision); err != nil {
		fmt.Fprintf(stderr, "reading input: %v\n", err)
		return 1
	}

	if err := writeBalances(ctx, l, stdout, cfg.Precision); err != nil {
		fmt.Fprintf(stderr, "writing output: %v\n", err)
		return 1
	}

	if shortfalls > 0 {
		logger.Warn("run completed with under-funded disputes", logger.Int("count", shortfalls))
	}

	return 0
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), func() {}, nil
	case config.BackendBolt:
		s, err := boltstore.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.BackendPostgres:
		s, err := pgstore.Open(ctx, cfg.PgDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// processFile applies every row of r to l, skipping and logging any row
// that fails to parse or fails a ledger invariant rather than aborting
// the whole run, per spec.md §6's per-row error policy.
func processFile(ctx context.Context, l *ledger.Ledger, r *os.File, stderr io.Writer, limiter *rate.Limiter, m *metrics.Ledger, precision int) error {
	reader, err := csvio.NewReader(r)
	if err != nil {
		return err
	}
	reader.Precision = precision

	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			m.RowsSkipped.Inc()
			fmt.Fprintf(stderr, "skipping malformed row: %v\n", err)
			logger.Warn("skipping malformed csv row", logger.Error2(err))
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		if err := applyRow(ctx, l, row); err != nil {
			m.RowsSkipped.Inc()
			m.ErrorsTotal.WithLabelValues(string(row.Type)).Inc()
			fmt.Fprintf(stderr, "skipping %s row (client %d, tx %s): %v\n", row.Type, row.Client, row.Tx, err)
			logger.Warn("skipping row rejected by ledger",
				logger.String("type", string(row.Type)),
				logger.Uint16("client", uint16(row.Client)),
				logger.String("tx", row.Tx),
				logger.Error2(err))
			continue
		}
		m.RowsProcessed.Inc()
		m.OpsTotal.WithLabelValues(string(row.Type)).Inc()
	}
}

func applyRow(ctx context.Context, l *ledger.Ledger, row csvio.Row) error {
	switch row.Type {
	case csvio.OpDeposit:
		return l.Deposit(ctx, row.Client, row.Tx, *row.Amount)
	case csvio.OpWithdrawal:
		return l.Withdraw(ctx, row.Client, row.Tx, *row.Amount)
	case csvio.OpDispute:
		return l.Dispute(ctx, row.Client, row.Tx)
	case csvio.OpResolve:
		return l.Resolve(ctx, row.Client, row.Tx)
	case csvio.OpChargeback:
		return l.Chargeback(ctx, row.Client, row.Tx)
	default:
		return fmt.Errorf("unhandled row type %q", row.Type)
	}
}

func writeBalances(ctx context.Context, l *ledger.Ledger, out *os.File, precision int) error {
	clients, err := l.GetAccounts(ctx)
	if err != nil {
		return err
	}

	w := csvio.NewWriter(out)
	w.Precision = precision
	if err := w.WriteHeader(); err != nil {
		return err
	}
	for _, client := range clients {
		bal, err := l.GetBalances(ctx, client)
		if err != nil {
			return err
		}
		if err := w.WriteRow(csvio.BalanceRowFromLedgerBalances(client, bal)); err != nil {
			return err
		}
	}
	return w.Flush()
}
