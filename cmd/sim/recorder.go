package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"evogrid/internal/persistence/archive"
	"evogrid/internal/persistence/indexdb"
	persistlog "evogrid/internal/persistence/log"
	"evogrid/internal/persistence/snapshot"
	"evogrid/internal/sim/world"
)

// recorder persists what the world produces: one history line per tick, periodic snapshots
// written off the simulation goroutine, and an archive of the final state of every epoch.
type recorder struct {
	w       *world.World
	dataDir string
	every   int
	ticks   *persistlog.TickLogger
	idx     *indexdb.SQLiteIndex
	logger  *zap.Logger

	snapCh    chan snapshot.SnapshotV1
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newRecorder(w *world.World, dataDir string, every int, ticks *persistlog.TickLogger, idx *indexdb.SQLiteIndex, logger *zap.Logger) *recorder {
	return &recorder{
		w:       w,
		dataDir: dataDir,
		every:   every,
		ticks:   ticks,
		idx:     idx,
		logger:  logger.Named("recorder"),
		snapCh:  make(chan snapshot.SnapshotV1, 2),
		done:    make(chan struct{}),
	}
}

func snapshotDir(dataDir string) string { return filepath.Join(dataDir, "snapshots") }

func (r *recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.snapshotLoop(ctx)
	}()
}

// Close stops the snapshot writer after writing whatever is still queued.
func (r *recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *recorder) OnTick(st world.TickStats) {
	entry := world.TickLogEntry{TickStats: st, Time: time.Now().UTC().Format(time.RFC3339Nano)}
	if r.ticks != nil {
		if err := r.ticks.WriteTick(entry); err != nil {
			r.logger.Warn("tick log write", zap.Uint64("tick", st.Tick), zap.Error(err))
		}
	}
	_ = r.idx.WriteTick(entry)

	if st.Tick%1000 == 0 {
		r.logger.Info("tick", zap.Uint64("tick", st.Tick), zap.Int("epoch", st.Epoch),
			zap.Int("population", st.Population), zap.Int("max_generation", st.MaxGen),
			zap.Float64("mean_energy", st.MeanEnergy))
	}

	if r.every <= 0 || st.Extinct || st.Tick%uint64(r.every) != 0 {
		return
	}
	select {
	case r.snapCh <- r.w.ExportSnapshot():
	default:
		r.logger.Warn("snapshot writer behind; skipping", zap.Uint64("tick", st.Tick))
	}
}

// ArchiveEpoch writes the extinction snapshot synchronously and copies it into the epoch archive
// before the world is reseeded.
func (r *recorder) ArchiveEpoch(st world.TickStats) {
	snap := r.w.ExportSnapshot()
	path, err := r.writeSnapshot(snap)
	if err != nil {
		r.logger.Warn("extinction snapshot", zap.Uint64("tick", st.Tick), zap.Error(err))
		return
	}
	archived, err := archive.ArchiveEpochSnapshot(r.dataDir, path, snap)
	if err != nil {
		r.logger.Warn("archive epoch", zap.Int("epoch", st.Epoch), zap.Error(err))
		return
	}
	r.idx.RecordEpoch(snap.Header.Epoch, snap.Header.Tick, archived, snap.Seed)
	r.logger.Info("epoch archived", zap.Int("epoch", snap.Header.Epoch), zap.Uint64("end_tick", snap.Header.Tick),
		zap.String("path", archived))
}

func (r *recorder) snapshotLoop(ctx context.Context) {
	for {
		select {
		case snap := <-r.snapCh:
			if _, err := r.writeSnapshot(snap); err != nil {
				r.logger.Warn("snapshot write", zap.Uint64("tick", snap.Header.Tick), zap.Error(err))
			}
		case <-ctx.Done():
			r.drain()
			return
		case <-r.done:
			r.drain()
			return
		}
	}
}

func (r *recorder) drain() {
	for {
		select {
		case snap := <-r.snapCh:
			if _, err := r.writeSnapshot(snap); err != nil {
				r.logger.Warn("snapshot write", zap.Uint64("tick", snap.Header.Tick), zap.Error(err))
			}
		default:
			return
		}
	}
}

func (r *recorder) writeSnapshot(snap snapshot.SnapshotV1) (string, error) {
	path := snapshot.PathFor(snapshotDir(r.dataDir), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	r.idx.RecordSnapshot(path, snap)
	return path, nil
}

func readSnapshot(path, worldID string) (snapshot.SnapshotV1, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != worldID {
		return snap, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", worldID, snap.Header.WorldID)
	}
	return snap, nil
}

// latestSnapshot returns the highest-tick snapshot in dir, or "".
func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// listGenomeFiles returns the regular files in dir with extension ext, sorted.
func listGenomeFiles(dir, ext string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
