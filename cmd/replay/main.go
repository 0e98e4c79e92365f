package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	persistlog "evogrid/internal/persistence/log"
	"evogrid/internal/persistence/snapshot"
	"evogrid/internal/sim/world"
)

func main() {
	var (
		ticksDir = flag.String("ticks", "./data/ticks", "dir containing ticks-*.jsonl.zst")
		snapPath = flag.String("snapshot", "", "path to .snap.zst to check against the history (optional)")
		fromTick = flag.Uint64("from_tick", 0, "start at tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		every    = flag.Uint64("every", 100, "print a summary line every N ticks (0 disables)")
	)
	flag.Parse()

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d world=%s tick=%d epoch=%d seed=%d size=%dx%d organisms=%d markers=%d\n",
			s.Header.Version, s.Header.WorldID, s.Header.Tick, s.Header.Epoch, s.Seed, s.Width, s.Height,
			len(s.Organisms), len(s.Markers))
		snap = &s
	}

	v := newVerifier(snap)
	err := persistlog.ReadTicks(*ticksDir, func(e world.TickLogEntry) bool {
		if e.Tick < *fromTick {
			return true
		}
		if *toTick != 0 && e.Tick > *toTick {
			return false
		}
		if err := v.Check(e); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if *every > 0 && e.Tick%*every == 0 {
			fmt.Println(summary(e))
		}
		return true
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read ticks:", err)
		os.Exit(1)
	}
	if err := v.Done(); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks restarts=%d epochs=%d births=%d deaths=%d\n",
		v.checked, v.restarts, v.epochs, v.births, v.deaths)
	for _, c := range sortedCounts(v.causes) {
		fmt.Printf("  deaths %-12s %d\n", c.key, c.n)
	}
}

func summary(e world.TickLogEntry) string {
	var acts []string
	for _, c := range sortedCounts(e.Actions) {
		acts = append(acts, fmt.Sprintf("%s=%d", c.key, c.n))
	}
	return fmt.Sprintf("tick=%d epoch=%d pop=%d markers=%d births=%d deaths=%d energy=%.2f gen=%d decide=%dms %s",
		e.Tick, e.Epoch, e.Population, e.Markers, len(e.Births), len(e.Died), e.MeanEnergy, e.MaxGen,
		e.DecisionMS, strings.Join(acts, " "))
}

type count struct {
	key string
	n   int
}

func sortedCounts(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, n := range m {
		out = append(out, count{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}
