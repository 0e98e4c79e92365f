package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes tick, grid and organisms. Two worlds with equal digests resolve the same
// decisions identically.
func (w *World) stateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, w.tick)
	digestWriteU64(h, &tmp, uint64(w.epoch))
	digestWriteU64(h, &tmp, uint64(w.grid.W))
	digestWriteU64(h, &tmp, uint64(w.grid.H))
	w.grid.Each(func(_ Pos, c Cell) {
		h.Write([]byte{byte(c.Kind)})
		if c.Kind != Empty {
			digestWriteString(h, &tmp, c.ID)
		}
	})
	for _, o := range w.sortedOrganisms() {
		digestWriteString(h, &tmp, o.ID)
		digestWriteU64(h, &tmp, uint64(int64(o.Pos.X)))
		digestWriteU64(h, &tmp, uint64(int64(o.Pos.Y)))
		digestWriteU64(h, &tmp, math.Float64bits(o.Energy))
		digestWriteU64(h, &tmp, uint64(o.Generation))
		digestWriteU64(h, &tmp, uint64(o.Age))
		digestWriteString(h, &tmp, o.Genome.Fingerprint)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}
