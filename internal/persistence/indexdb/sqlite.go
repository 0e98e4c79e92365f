package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"evogrid/internal/genetics/pool"
	"evogrid/internal/persistence/snapshot"
	"evogrid/internal/sim/world"
)

// SQLiteIndex is a secondary, queryable index of the run: genomes and lineage, per-tick
// summaries, births, deaths, snapshots and epochs. Writes are queued to a single writer
// goroutine and dropped when it falls behind; the JSONL history and the pool stay the source
// of truth.
type SQLiteIndex struct {
	db     *sql.DB
	logger *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropGenome   atomic.Uint64
	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropEpoch    atomic.Uint64
}

type reqKind int

const (
	reqGenome reqKind = iota + 1
	reqTick
	reqSnapshot
	reqEpoch
)

type req struct {
	kind reqKind

	genome   pool.Entry
	tick     world.TickLogEntry
	snapshot snapshotRow
	epoch    epochRow
}

type snapshotRow struct {
	Tick      uint64
	Epoch     int
	Path      string
	Organisms int
	Markers   int
}

type epochRow struct {
	Epoch      int
	EndTick    uint64
	Path       string
	Seed       int64
	RecordedAt string
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropGenomeTotal   uint64
	DropTickTotal     uint64
	DropSnapshotTotal uint64
	DropEpochTotal    uint64
}

const queueSize = 65536

func OpenSQLite(path string, logger *zap.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:     db,
		logger: logger.Named("indexdb"),
		ch:     make(chan req, queueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS genomes (
			fingerprint TEXT PRIMARY KEY,
			parent TEXT,
			generation INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			path TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_genomes_parent ON genomes(parent);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			epoch INTEGER NOT NULL,
			digest TEXT NOT NULL,
			population INTEGER NOT NULL,
			births INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			mean_energy REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS births (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			parent_id TEXT,
			generation INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			mutated INTEGER NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS deaths (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			cause TEXT NOT NULL,
			age INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			killer_id TEXT,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deaths_fingerprint ON deaths(fingerprint);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			epoch INTEGER NOT NULL,
			path TEXT NOT NULL,
			organisms INTEGER NOT NULL,
			markers INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS epochs (
			epoch INTEGER PRIMARY KEY,
			end_tick INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropGenomeTotal:   s.dropGenome.Load(),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropEpochTotal:    s.dropEpoch.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// RecordGenome implements pool.Indexer.
func (s *SQLiteIndex) RecordGenome(e pool.Entry) {
	if s == nil {
		return
	}
	e.Source = ""
	s.enqueue(req{kind: reqGenome, genome: e}, &s.dropGenome)
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:      snap.Header.Tick,
		Epoch:     snap.Header.Epoch,
		Path:      path,
		Organisms: len(snap.Organisms),
		Markers:   len(snap.Markers),
	}}, &s.dropSnapshot)
}

func (s *SQLiteIndex) RecordEpoch(epoch int, endTick uint64, archivedSnapshotPath string, seed int64) {
	if s == nil || archivedSnapshotPath == "" {
		return
	}
	s.enqueue(req{kind: reqEpoch, epoch: epochRow{
		Epoch:      epoch,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}}, &s.dropEpoch)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	stmts := map[string]string{
		"genome":   `INSERT OR IGNORE INTO genomes(fingerprint,parent,generation,created_at,path) VALUES(?,?,?,?,?)`,
		"tick":     `INSERT OR REPLACE INTO ticks(tick,epoch,digest,population,births,deaths,mean_energy,raw_json) VALUES(?,?,?,?,?,?,?,?)`,
		"birth":    `INSERT OR REPLACE INTO births(tick,agent_id,parent_id,generation,fingerprint,mutated) VALUES(?,?,?,?,?,?)`,
		"death":    `INSERT OR REPLACE INTO deaths(tick,agent_id,cause,age,generation,fingerprint,killer_id) VALUES(?,?,?,?,?,?,?)`,
		"snapshot": `INSERT OR REPLACE INTO snapshots(tick,epoch,path,organisms,markers) VALUES(?,?,?,?,?)`,
		"epoch":    `INSERT OR REPLACE INTO epochs(epoch,end_tick,seed,snapshot_path,recorded_at) VALUES(?,?,?,?,?)`,
	}
	prepared := map[string]*sql.Stmt{}
	for name, q := range stmts {
		st, err := s.db.Prepare(q)
		if err != nil {
			s.logger.Error("prepare", zap.String("stmt", name), zap.Error(err))
			continue
		}
		prepared[name] = st
	}
	defer func() {
		for _, st := range prepared {
			_ = st.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.logger.Warn("begin", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	end := func(commit bool) {
		if tx == nil {
			return
		}
		var err error
		if commit {
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			s.logger.Warn("end tx", zap.Bool("commit", commit), zap.Error(err))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(name string, args ...any) bool {
		st, ok := prepared[name]
		if !ok {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.logger.Warn("index write", zap.String("stmt", name), zap.Error(err))
			end(false)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqGenome:
			g := r.genome
			exec("genome", g.Fingerprint, nullable(g.Parent), g.Generation, g.CreatedAt.UTC().Format(time.RFC3339Nano), g.Path)

		case reqTick:
			t := r.tick
			raw, _ := json.Marshal(t)
			tick := int64(t.Tick)
			if !exec("tick", tick, t.Epoch, t.Digest, t.Population, len(t.Births), len(t.Died), t.MeanEnergy, string(raw)) {
				continue
			}
			ok := true
			for _, b := range t.Births {
				if ok = exec("birth", tick, b.ID, nullable(b.ParentID), b.Generation, b.Fingerprint, boolInt(b.Mutated)); !ok {
					break
				}
			}
			if !ok {
				continue
			}
			for _, d := range t.Died {
				if !exec("death", tick, d.ID, d.Cause.String(), d.Age, d.Generation, d.Fingerprint, nullable(d.KillerID)) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec("snapshot", int64(sn.Tick), sn.Epoch, sn.Path, sn.Organisms, sn.Markers)

		case reqEpoch:
			e := r.epoch
			exec("epoch", e.Epoch, int64(e.EndTick), e.Seed, e.Path, e.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			end(true)
		}
	}
	end(true)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
