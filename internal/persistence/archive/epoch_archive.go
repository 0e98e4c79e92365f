package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"evogrid/internal/persistence/snapshot"
)

type EpochArchiveMeta struct {
	Epoch       int    `json:"epoch"`
	EndTick     uint64 `json:"end_tick"`
	Seed        int64  `json:"seed"`
	Snapshot    string `json:"snapshot"`
	CreatedAt   string `json:"created_at"`
	Births      uint64 `json:"births"`
	Deaths      uint64 `json:"deaths"`
	FinalDigest string `json:"final_digest"`
}

// EpochDir is dataDir/archives/epoch_<NNN>.
func EpochDir(dataDir string, epoch int) string {
	return filepath.Join(dataDir, "archives", fmt.Sprintf("epoch_%03d", epoch))
}

// ArchiveEpochSnapshot copies the snapshot taken at the end of an epoch (the extinction tick)
// into EpochDir and writes meta.json next to it. It returns the archived snapshot path.
func ArchiveEpochSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1) (string, error) {
	if snap.Header.Epoch < 0 {
		return "", fmt.Errorf("negative epoch %d", snap.Header.Epoch)
	}
	archiveDir := EpochDir(dataDir, snap.Header.Epoch)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := EpochArchiveMeta{
		Epoch:       snap.Header.Epoch,
		EndTick:     snap.Header.Tick,
		Seed:        snap.Seed,
		Snapshot:    filepath.Base(dst),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Births:      snap.Totals.Births,
		Deaths:      snap.Totals.Deaths,
		FinalDigest: snap.Digest,
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return dst, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return dst, err
	}
	return dst, nil
}

// ReadEpochMeta loads meta.json from an epoch archive directory.
func ReadEpochMeta(dir string) (EpochArchiveMeta, error) {
	var m EpochArchiveMeta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
