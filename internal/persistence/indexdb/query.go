package indexdb

import (
	"database/sql"
	"fmt"
	"os"
)

// Reader answers lineage questions from an index written by SQLiteIndex.
type Reader struct {
	db *sql.DB
}

type CauseCount struct {
	Cause string
	Count int
}

type GenomeRow struct {
	Fingerprint string
	Parent      string
	Generation  int
	CreatedAt   string
	Births      int
	Deaths      int
}

type TickRow struct {
	Tick       uint64
	Epoch      int
	Population int
	Births     int
	Deaths     int
	MeanEnergy float64
	Digest     string
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA query_only=1;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) Genome(fp string) (GenomeRow, error) {
	var g GenomeRow
	var parent sql.NullString
	err := r.db.QueryRow(`SELECT fingerprint, parent, generation, created_at,
		(SELECT COUNT(*) FROM births WHERE fingerprint = g.fingerprint),
		(SELECT COUNT(*) FROM deaths WHERE fingerprint = g.fingerprint)
		FROM genomes g WHERE fingerprint = ?`, fp).
		Scan(&g.Fingerprint, &parent, &g.Generation, &g.CreatedAt, &g.Births, &g.Deaths)
	if err != nil {
		return g, fmt.Errorf("genome %s: %w", fp, err)
	}
	g.Parent = parent.String
	return g, nil
}

// Children lists the fingerprints whose recorded parent is fp.
func (r *Reader) Children(fp string) ([]string, error) {
	rows, err := r.db.Query(`SELECT fingerprint FROM genomes WHERE parent = ? ORDER BY generation, fingerprint`, fp)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeathCauses counts recorded deaths of agents running fp by cause, most common first. An
// empty fp counts every death.
func (r *Reader) DeathCauses(fp string) ([]CauseCount, error) {
	q := `SELECT cause, COUNT(*) AS n FROM deaths`
	var args []any
	if fp != "" {
		q += ` WHERE fingerprint = ?`
		args = append(args, fp)
	}
	q += ` GROUP BY cause ORDER BY n DESC, cause`
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CauseCount
	for rows.Next() {
		var c CauseCount
		if err := rows.Scan(&c.Cause, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TopGenomes ranks genomes by the number of agents born running them.
func (r *Reader) TopGenomes(limit int) ([]GenomeRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`SELECT g.fingerprint, g.parent, g.generation, g.created_at,
		(SELECT COUNT(*) FROM births b WHERE b.fingerprint = g.fingerprint) AS nb,
		(SELECT COUNT(*) FROM deaths d WHERE d.fingerprint = g.fingerprint)
		FROM genomes g ORDER BY nb DESC, g.generation DESC, g.fingerprint LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GenomeRow
	for rows.Next() {
		var g GenomeRow
		var parent sql.NullString
		if err := rows.Scan(&g.Fingerprint, &parent, &g.Generation, &g.CreatedAt, &g.Births, &g.Deaths); err != nil {
			return nil, err
		}
		g.Parent = parent.String
		out = append(out, g)
	}
	return out, rows.Err()
}

// Ticks returns tick summaries in [from, to], inclusive.
func (r *Reader) Ticks(from, to uint64) ([]TickRow, error) {
	rows, err := r.db.Query(`SELECT tick, epoch, population, births, deaths, mean_energy, digest
		FROM ticks WHERE tick >= ? AND tick <= ? ORDER BY tick`, int64(from), int64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var t TickRow
		var tick int64
		if err := rows.Scan(&tick, &t.Epoch, &t.Population, &t.Births, &t.Deaths, &t.MeanEnergy, &t.Digest); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}
