package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"evogrid/internal/agentproc"
	"evogrid/internal/genetics"
	"evogrid/internal/genetics/mutation"
	"evogrid/internal/genetics/pool"
	"evogrid/internal/persistence/indexdb"
	persistlog "evogrid/internal/persistence/log"
	"evogrid/internal/sim/tuning"
	"evogrid/internal/sim/world"
)

var _ world.Population = (*agentproc.Manager)(nil)

func main() {
	var (
		worldID    = flag.String("world", "world_1", "world id")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "", "runtime data directory (default: paths.data_dir from tuning)")
		seedDir    = flag.String("seeds", "", "directory of seed genomes (default: paths.seed_dir from tuning)")
		seed       = flag.Int64("seed", 0, "world seed override (0 keeps the tuning seed)")
		maxTicks   = flag.Int("max_ticks", -1, "stop after this many ticks (-1 keeps the tuning value, 0 runs forever)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to resume from (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", false, "resume from the latest snapshot in the data dir (when -snapshot is empty)")

		logLevel = flag.String("log_level", "info", "log level: debug, info, warn, error")
		logJSON  = flag.Bool("log_json", false, "log JSON lines instead of console text")
	)
	flag.Parse()

	logger, err := newLogger(*logLevel, *logJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatal("load tuning", zap.Error(err))
		}
		logger.Warn("tuning not found; using defaults", zap.String("path", *tuningPath))
		tune = tuning.Defaults()
	}
	if *dataDir != "" {
		tune.Paths.DataDir = *dataDir
	}
	if *seedDir != "" {
		tune.Paths.SeedDir = *seedDir
	}
	if *seed != 0 {
		tune.World.Seed = *seed
	}
	if *maxTicks >= 0 {
		tune.MaxTicks = *maxTicks
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = run(ctx, runConfig{
		WorldID:    *worldID,
		Tuning:     tune,
		DisableDB:  *disableDB,
		Snapshot:   strings.TrimSpace(*snapPath),
		LoadLatest: *loadLatest,
	}, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("simulation stopped", zap.Error(err))
		os.Exit(1)
	}
}

type runConfig struct {
	WorldID    string
	Tuning     tuning.Tuning
	DisableDB  bool
	Snapshot   string
	LoadLatest bool
}

func run(ctx context.Context, rc runConfig, logger *zap.Logger) error {
	tune := rc.Tuning
	dataDir := tune.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// The breeder runs on the simulation goroutine and owns its rng; the pool gets its own.
	genomePool, err := pool.Open(tune.Paths.PoolDir, tune.Genetics.GenomeExt, rand.New(rand.NewSource(tune.World.Seed+1)), logger)
	if err != nil {
		return err
	}

	// Optional: read-model index (does not affect the simulation).
	var idx *indexdb.SQLiteIndex
	if !rc.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(dataDir, "index", "evogrid.sqlite"), logger)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		genomePool.SetIndex(idx)
	}

	breedRNG := rand.New(rand.NewSource(tune.World.Seed + 2))
	mutator := mutation.New(mutation.Config{
		LineRate:       tune.Genetics.LineMutationRate,
		PersonalityMin: tune.Genetics.PersonalityMin,
		PersonalityMax: tune.Genetics.PersonalityMax,
		TraitKeys:      tune.Genetics.TraitKeys,
	}, breedRNG)
	breeder := genetics.NewBreeder(genomePool, mutator, breedRNG, tune.Genetics.MutationProbability, logger)

	seeds, err := seedGenomes(breeder, tune.Paths.SeedDir, tune.Genetics.GenomeExt, logger)
	if err != nil {
		return err
	}

	mgr := agentproc.NewManager(agentproc.Config{
		MaxAgents:         tune.World.MaxAgents,
		ParallelThreshold: tune.Agents.ParallelThreshold,
		MaxParallelism:    tune.Agents.MaxParallelism,
		ActTimeout:        tune.Agents.ActTimeout(),
		GlobalDeadline:    tune.Agents.GlobalDeadline(),
		Grace:             tune.Agents.GracePeriod(),
		TermWait:          tune.Agents.TermWait(),
		Interpreter:       tune.Agents.Interpreter,
		WorkspaceDir:      tune.Paths.WorkspaceDir,
		CleanupQueueSize:  tune.Agents.CleanupQueueSize,
	}, logger)
	defer func() {
		if err := mgr.KillAll(tune.Agents.GracePeriod() + tune.Agents.TermWait() + 2*time.Second); err != nil {
			logger.Warn("kill all", zap.Error(err))
		}
	}()

	w, err := world.New(world.ConfigFromTuning(rc.WorldID, tune), mgr, breeder, logger)
	if err != nil {
		return err
	}

	snapshotToLoad := rc.Snapshot
	if snapshotToLoad == "" && rc.LoadLatest {
		snapshotToLoad = latestSnapshot(snapshotDir(dataDir))
	}
	if err := startWorld(w, snapshotToLoad, seeds, tune.World.InitialAgents, logger); err != nil {
		return err
	}

	tickLog := persistlog.NewTickLogger(dataDir)
	defer tickLog.Close()

	rec := newRecorder(w, dataDir, tune.SnapshotEveryTicks, tickLog, idx, logger)
	rec.Start(ctx)
	defer rec.Close()

	err = w.Run(ctx, world.RunOptions{
		Interval: tune.TickInterval(),
		MaxTicks: tune.MaxTicks,
		OnTick:   rec.OnTick,
		OnExtinction: func(st world.TickStats) bool {
			rec.ArchiveEpoch(st)
			if !tune.World.ReseedOnExtinction {
				return false
			}
			genomes := seeds
			if g, ok := breeder.Random(); ok {
				genomes = append(append([]genetics.Genome(nil), seeds...), g)
			}
			n := w.Reseed(genomes, tune.World.InitialAgents)
			logger.Info("reseeded", zap.Int("epoch", w.Epoch()), zap.Int("agents", n))
			return n > 0
		},
	})
	if errors.Is(err, world.ErrExtinct) {
		logger.Info("run ended by extinction", zap.Uint64("tick", w.Tick()))
		return nil
	}
	return err
}

func startWorld(w *world.World, snapshotPath string, seeds []genetics.Genome, n int, logger *zap.Logger) error {
	if snapshotPath != "" {
		snap, err := readSnapshot(snapshotPath, w.Config().ID)
		if err != nil {
			return err
		}
		restored, err := w.ImportSnapshot(snap)
		if err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info("resumed", zap.String("snapshot", filepath.Base(snapshotPath)),
			zap.Uint64("tick", w.Tick()), zap.Int("restored", restored), zap.Int("recorded", len(snap.Organisms)))
		if restored > 0 {
			return nil
		}
	}
	if len(seeds) == 0 {
		return errors.New("no seed genomes and an empty pool")
	}
	if w.Populate(seeds, n) == 0 {
		return errors.New("initial population could not be spawned")
	}
	return nil
}

func newLogger(level string, jsonOut bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("bad -log_level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	if jsonOut {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
