package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/arnaldoapp/gridtrust/internal/config"
	"github.com/arnaldoapp/gridtrust/internal/ledger"
	"github.com/arnaldoapp/gridtrust/internal/market"
	"github.com/arnaldoapp/gridtrust/internal/orchestrator"
	"github.com/arnaldoapp/gridtrust/internal/persistence"
	"github.com/arnaldoapp/gridtrust/internal/printer"
	"github.com/arnaldoapp/gridtrust/internal/schedule"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runOptions collects the flags of the run command.
type runOptions struct {
	configPath string
	rank       int // orchestrator.AllRanks runs the world in-process without Redis
	allRanks   bool
	redisURL   string
	dbPath     string
	resume     bool
	csvPath    string
	healthAddr string
	quiet      bool
}

var runFlags runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the market simulation",
	Long: `Run the market simulation until the params file's stop tick.

Without --rank or --all-ranks the whole world runs in this process and no
Redis is needed. With --rank N this process drives rank N and meets the
other ranks through Redis each tick. With --all-ranks every rank runs as a
goroutine of this process against the same Redis.

Examples:
  # Single process
  gridtrust run --config params.yml

  # One process per rank
  gridtrust run --config params.yml --rank 0 --redis-url redis://localhost:6379
  gridtrust run --config params.yml --rank 1 --redis-url redis://localhost:6379

  # Persist agreements and resume trust from the last run
  gridtrust run --config params.yml --db gridtrust.db --resume`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runFlags
		if !cmd.Flags().Changed("rank") {
			opts.rank = orchestrator.AllRanks
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return executeRun(ctx, opts)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.configPath, "config", "c", "params.yml", "Path to the params file")
	runCmd.Flags().IntVar(&runFlags.rank, "rank", 0, "Drive a single rank and synchronize through Redis")
	runCmd.Flags().BoolVar(&runFlags.allRanks, "all-ranks", false, "Drive every rank in this process, synchronizing through Redis")
	runCmd.Flags().StringVar(&runFlags.redisURL, "redis-url", "", "Redis URL (overrides sync.redis_url)")
	runCmd.Flags().StringVar(&runFlags.dbPath, "db", "", "SQLite file for agreements and trust checkpoints")
	runCmd.Flags().BoolVar(&runFlags.resume, "resume", false, "Seed trust from the checkpoint in --db")
	runCmd.Flags().StringVar(&runFlags.csvPath, "csv", "", "Agreement CSV path (overrides ledger.csv_path)")
	runCmd.Flags().StringVar(&runFlags.healthAddr, "health-addr", "", "Serve /healthz on this address (single engine only)")
	runCmd.Flags().BoolVarP(&runFlags.quiet, "quiet", "q", false, "Do not print per-tick status lines")
	runCmd.MarkFlagsMutuallyExclusive("rank", "all-ranks")
	rootCmd.AddCommand(runCmd)
}

func executeRun(ctx context.Context, opts runOptions) error {
	p, err := config.Load(opts.configPath)
	if err != nil {
		return printer.Error(
			"invalid params file",
			fmt.Sprintf("%s: %v", opts.configPath, err),
			[]string{"Check the file with:\n  gridtrust validate --config " + opts.configPath},
		)
	}
	if opts.redisURL != "" {
		p.Sync.RedisURL = opts.redisURL
	}
	if opts.csvPath != "" {
		p.Ledger.CSVPath = opts.csvPath
	}
	if opts.rank != orchestrator.AllRanks && (opts.rank < 0 || opts.rank >= p.Sync.WorldSize) {
		return printer.Error(
			"rank out of range",
			fmt.Sprintf("Rank %d is outside a world of %d ranks.", opts.rank, p.Sync.WorldSize),
			[]string{fmt.Sprintf("Use a rank between 0 and %d", p.Sync.WorldSize-1)},
		)
	}
	if opts.resume && opts.dbPath == "" {
		return printer.Error(
			"--resume needs a database",
			"Trust checkpoints are read from the SQLite file given by --db.",
			[]string{"Add --db <path>"},
		)
	}

	distributed := opts.allRanks || opts.rank != orchestrator.AllRanks

	var client *blackboard.Client
	if distributed {
		client, err = connect(ctx, p.Sync.RedisURL, p.Sync.Instance)
		if err != nil {
			return err
		}
		defer client.Close()
	}

	runID := uuid.New().String()

	var store *persistence.Store
	var checkpoint []persistence.TrustRow
	if opts.dbPath != "" {
		store, err = persistence.Open(opts.dbPath)
		if err != nil {
			return printer.Error(
				"cannot open database",
				fmt.Sprintf("%s: %v", opts.dbPath, err),
				nil,
			)
		}
		defer store.Close()

		if opts.resume {
			if checkpoint, err = store.LoadTrust(); err != nil {
				return printer.Error("cannot read trust checkpoint", err.Error(), nil)
			}
		}
		if err := store.BeginRun(runID, p.Sync.Instance, p.StopAt); err != nil {
			return printer.Error("cannot record run", err.Error(), nil)
		}
	}

	log.Printf("[Run] Starting run %s for instance '%s' (world size %d)", runID, p.Sync.Instance, p.Sync.WorldSize)

	r := &rankRun{
		params:     p,
		client:     client,
		store:      store,
		checkpoint: checkpoint,
		runID:      runID,
		quiet:      opts.quiet,
	}

	switch {
	case opts.allRanks:
		if opts.healthAddr != "" {
			printer.Warning("--health-addr is ignored with --all-ranks\n")
		}
		g, gctx := errgroup.WithContext(ctx)
		for rank := 0; rank < p.Sync.WorldSize; rank++ {
			g.Go(func() error {
				return r.run(gctx, rank, "")
			})
		}
		err = g.Wait()
	default:
		err = r.run(ctx, opts.rank, opts.healthAddr)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			printer.Warning("Run %s interrupted\n", runID)
			return err
		}
		return printer.ErrorWithContext(
			"simulation aborted",
			err.Error(),
			map[string]string{"Run": runID, "Instance": p.Sync.Instance},
			nil,
		)
	}

	printer.Success("Run %s finished at tick %d\n", runID, p.StopAt)
	return nil
}

// rankRun holds what every rank of one process shares.
type rankRun struct {
	params     *config.Params
	client     *blackboard.Client // nil in single-process runs
	store      *persistence.Store // nil without --db
	checkpoint []persistence.TrustRow
	runID      string
	quiet      bool
}

// run drives one rank, or the whole world when rank is AllRanks, to the
// stop tick.
func (r *rankRun) run(ctx context.Context, rank int, healthAddr string) (err error) {
	p := r.params

	agents, err := orchestrator.BuildAgents(p, rank)
	if err != nil {
		return err
	}
	if _, err := orchestrator.SeedTrust(agents.Consumers, r.checkpoint); err != nil {
		return err
	}

	var exchange orchestrator.Exchange
	if r.client == nil {
		exchange = orchestrator.NewLoopback(agents.Registry)
	} else {
		exchange, err = blackboard.NewExchange(r.client, blackboard.ExchangeConfig{
			Rank:           rank,
			WorldSize:      p.Sync.WorldSize,
			PollInterval:   p.Sync.PollInterval,
			BarrierTimeout: p.Sync.BarrierTimeout,
			KeyTTL:         p.Sync.KeyTTL,
		}, agents.Registry)
		if err != nil {
			return err
		}
	}

	sink, err := r.openSink(rank)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeSink(sink, rank); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	engineRank := rank
	if rank == orchestrator.AllRanks {
		engineRank = 0
	}

	engine, err := orchestrator.NewEngine(orchestrator.Options{
		Rank:             engineRank,
		Instance:         p.Sync.Instance,
		Exchange:         exchange,
		Registry:         agents.Registry,
		Consumers:        agents.Consumers,
		Cache:            market.NewCache(p.TrustTerms()),
		Mode:             p.Market.Mode,
		Decision:         p.Market.DecisionParams(),
		SelfishThreshold: *p.Market.SelfishThreshold,
		Sink:             sink,
		OnTick:           r.printTick,
	})
	if err != nil {
		return err
	}

	if healthAddr != "" {
		var pinger orchestrator.Pinger
		if r.client != nil {
			pinger = r.client
		}
		health := orchestrator.NewHealthServer(healthAddr, engine, pinger)
		if err := health.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			health.Shutdown(shutdownCtx)
		}()
	}

	runner := &schedule.Runner{
		StopAt: p.StopAt,
		OnTick: func(ctx context.Context, tick uint64) error {
			_, err := engine.Step(ctx, tick)
			return err
		},
		OnStop: func(ctx context.Context, lastTick uint64) error {
			engine.Terminate()
			return r.saveTrust(engine, lastTick)
		},
	}
	if r.store != nil && p.Ledger.CheckpointEvery > 0 {
		runner.Periodic = append(runner.Periodic, schedule.Periodic{
			Every: uint64(p.Ledger.CheckpointEvery),
			Fn: func(ctx context.Context, tick uint64) error {
				return r.saveTrust(engine, tick)
			},
		})
	}

	if err := runner.Run(ctx); err != nil {
		engine.Terminate()
		return err
	}
	return nil
}

// openSink assembles the agreement sinks of one rank.
func (r *rankRun) openSink(rank int) (ledger.Sink, error) {
	csv, err := ledger.CreateCSV(csvPathFor(r.params.Ledger.CSVPath, rank))
	if err != nil {
		return nil, err
	}

	sinks := ledger.Multi{csv}
	if r.store != nil {
		sinks = append(sinks, persistence.NewAgreementSink(r.store, r.runID))
	}
	if r.client != nil {
		sinks = append(sinks, ledger.NewEvents(r.client))
	}
	return sinks, nil
}

// closeSink closes the agreement sinks of a rank. The CSV sink flushes its
// last rows here, so a failure means the log on disk is incomplete.
func closeSink(sink ledger.Sink, rank int) error {
	if err := sink.Close(); err != nil {
		log.Printf("[Run] Failed to close agreement sinks for rank %d: %v", rank, err)
		return fmt.Errorf("failed to close agreement sinks for rank %d: %w", rank, err)
	}
	return nil
}

func (r *rankRun) saveTrust(engine *orchestrator.Engine, tick uint64) error {
	if r.store == nil {
		return nil
	}
	rows := orchestrator.TrustRows(engine.Consumers(), r.runID, tick)
	if err := r.store.SaveTrust(rows); err != nil {
		return fmt.Errorf("failed to checkpoint trust: %w", err)
	}
	log.Printf("[Run] Checkpointed %d trust relationships at tick %d", len(rows), tick)
	return nil
}

func (r *rankRun) printTick(res orchestrator.TickResult) {
	if r.quiet {
		return
	}
	if !res.Transacted {
		printer.Info("Tick %d: no producer available\n", res.Tick)
		return
	}
	printer.TickStatus(string(res.Status), res.ProducerName, res.CapacityAfter, res.Trust)
}

// csvPathFor gives each rank of a distributed run its own CSV file:
// agreements.csv becomes agreements.rank2.csv.
func csvPathFor(path string, rank int) string {
	if rank == orchestrator.AllRanks {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s.rank%d%s", strings.TrimSuffix(path, ext), rank, ext)
}
