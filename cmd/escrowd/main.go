package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tokenescrow/config"
	"tokenescrow/core/events"
	"tokenescrow/core/genesis"
	"tokenescrow/core/ledger"
	"tokenescrow/core/state"
	"tokenescrow/indexer"
	"tokenescrow/native/common"
	"tokenescrow/native/escrow"
	"tokenescrow/native/token"
	"tokenescrow/observability"
	"tokenescrow/observability/logging"
	"tokenescrow/observability/otel"
	"tokenescrow/rpc"
	"tokenescrow/storage"
)

const serviceName = "escrowd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if path := strings.TrimSpace(*genesisFlag); path != "" {
		cfg.GenesisFile = path
	}

	env := cfg.Log.Env
	if fromEnv := strings.TrimSpace(os.Getenv("ESCROW_ENV")); fromEnv != "" {
		env = fromEnv
	}
	logger := logging.SetupWithOptions(serviceName, env, cfg.Log.LoggingOptions())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, logger); err != nil {
		logger.Error("escrowd stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("escrowd stopped")
}

// transitionMetrics counts escrow transitions.
type transitionMetrics struct{}

func (transitionMetrics) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if name := evt.EventType(); strings.HasPrefix(name, "escrow.") {
		observability.Events().RecordTransition(name)
	}
}

func run(ctx context.Context, cfg *config.Config, env string, logger *slog.Logger) error {
	shutdownTelemetry, err := otel.Init(ctx, cfg.Telemetry.OTel(serviceName, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	programID, err := cfg.EscrowProgramID()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mgr := state.NewManager(db)
	rent := cfg.Rent()
	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return err
		}
		applied, err := genesis.Apply(spec, mgr, rent)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis loaded",
			slog.String("path", path),
			slog.Bool("applied", applied),
			slog.Int("accounts", len(spec.Accounts)+len(spec.Mints)+len(spec.TokenAccounts)))
	}

	l := ledger.New(mgr, rent)
	l.SetLogger(logger)
	engine := escrow.NewEngine(programID)
	engine.SetPauses(common.NewPauses(cfg.Global.Pauses.Map()))
	if err := l.Register(token.NewProgram(), escrow.NewProgram(engine)); err != nil {
		return err
	}

	var ix *indexer.Indexer
	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		ix, err = indexer.Open(dsn)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer func() {
			if err := ix.Close(); err != nil {
				logger.Warn("indexer close", slog.Any("error", err))
			}
		}()
		count, err := ix.Rebuild(ctx, l, programID)
		if err != nil {
			return fmt.Errorf("rebuild indexer: %w", err)
		}
		logger.Info("indexer rebuilt", slog.Int("open_escrows", count))
		l.SetEmitter(events.Fanout{transitionMetrics{}, ix})
	} else {
		l.SetEmitter(transitionMetrics{})
		if open, err := indexer.Scan(l, programID); err == nil {
			observability.Events().SetOpen(len(open))
		}
	}

	if cfg.RPCToken == "" {
		logger.Warn("RPC token not configured; transaction submission is disabled",
			slog.String("env", config.RPCTokenEnv))
	} else {
		logger.Info("RPC token configured", logging.MaskField("token", cfg.RPCToken))
	}

	server := rpc.NewServer(rpc.Options{
		Ledger:    l,
		Indexer:   ix,
		ProgramID: programID,
		AuthToken: cfg.RPCToken,
		RateLimit: rpc.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger:       logger,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	})
	logger.Info("escrowd starting",
		slog.String("program", programID.String()),
		slog.String("rpc", cfg.RPCAddress),
		slog.Uint64("rent_lamports_per_byte", rent.LamportsPerByte))
	return server.ListenAndServe(ctx, cfg.RPCAddress)
}
