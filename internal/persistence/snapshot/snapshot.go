package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Epoch   int    `json:"epoch"`
}

// SnapshotV1 is the full grid state after a tick. Agent processes and their memory are not
// captured; a snapshot records the world, not the population's private state.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed   int64 `json:"seed"`
	Width  int   `json:"width"`
	Height int   `json:"height"`

	Organisms []OrganismV1 `json:"organisms"`
	Markers   []MarkerV1   `json:"markers"`

	Digest string   `json:"digest"`
	Totals TotalsV1 `json:"totals"`
}

type OrganismV1 struct {
	ID          string  `json:"id"`
	Pos         [2]int  `json:"pos"`
	Energy      float64 `json:"energy"`
	Generation  int     `json:"generation"`
	Age         int     `json:"age"`
	BornTick    uint64  `json:"born_tick"`
	GenomePath  string  `json:"genome_path"`
	Fingerprint string  `json:"fingerprint"`
}

// MarkerV1 is a dead-agent marker; ID is the agent that died there.
type MarkerV1 struct {
	ID  string `json:"id"`
	Pos [2]int `json:"pos"`
}

// TotalsV1 are run-wide counters since the first tick.
type TotalsV1 struct {
	Births      uint64 `json:"births"`
	Deaths      uint64 `json:"deaths"`
	Extinctions int    `json:"extinctions"`
}

// WriteSnapshot writes snap to path atomically: a JSON header line, then the gob body, all
// inside one zstd stream.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snap-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := encode(tmp, snap); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadHeader reads only the JSON header line; cheap enough to list many snapshots.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return snap, nil
}

// PathFor is the conventional file name of the snapshot taken after tick.
func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}
