package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"evogrid/internal/genetics/pool"
	"evogrid/internal/persistence/indexdb"
)

func main() {
	var (
		poolDir = flag.String("pool", "./data/pool", "genetic pool directory")
		ext     = flag.String("ext", ".py", "genome file extension")
		dbPath  = flag.String("db", "./data/index/evogrid.sqlite", "sqlite index (optional; used when present)")
		fp      = flag.String("fp", "", "fingerprint to trace")
		add     = flag.String("add", "", "store this genome file in the pool and print its fingerprint")
		top     = flag.Int("top", 0, "list the N genomes with the most births (needs -db)")
	)
	flag.Parse()

	p, err := pool.Open(*poolDir, *ext, nil, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open pool:", err)
		os.Exit(1)
	}

	var r *indexdb.Reader
	if *dbPath != "" {
		if rr, err := indexdb.OpenReader(*dbPath); err == nil {
			r = rr
			defer r.Close()
		}
	}

	switch {
	case *add != "":
		got, err := p.AddFile(*add)
		if err != nil {
			fmt.Fprintln(os.Stderr, "add:", err)
			os.Exit(1)
		}
		fmt.Println(got)
	case *fp != "":
		if err := trace(os.Stdout, p, r, strings.TrimSpace(*fp)); err != nil {
			fmt.Fprintln(os.Stderr, "trace:", err)
			os.Exit(1)
		}
	case *top > 0:
		if r == nil {
			fmt.Fprintln(os.Stderr, "-top needs an index; none at", *dbPath)
			os.Exit(2)
		}
		rows, err := r.TopGenomes(*top)
		if err != nil {
			fmt.Fprintln(os.Stderr, "top:", err)
			os.Exit(1)
		}
		for _, g := range rows {
			fmt.Printf("%s gen=%-4d births=%-6d deaths=%-6d parent=%s\n", g.Fingerprint, g.Generation, g.Births, g.Deaths, orDash(g.Parent))
		}
	default:
		entries, err := p.Entries()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%s gen=%-4d parent=%s created=%s\n", e.Fingerprint, e.Generation, orDash(e.Parent), e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		fmt.Printf("%d genomes\n", len(entries))
	}
}

// trace prints the ancestry of fp from the pool, newest first, with birth and death counts and
// children from the index when one is available.
func trace(w io.Writer, p *pool.Pool, r *indexdb.Reader, fp string) error {
	chain, err := p.Ancestry(fp)
	if err != nil {
		return err
	}
	for i, e := range chain {
		line := fmt.Sprintf("%s%s gen=%d created=%s", strings.Repeat("  ", i), e.Fingerprint, e.Generation,
			e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		if r != nil {
			if g, err := r.Genome(e.Fingerprint); err == nil {
				line += fmt.Sprintf(" births=%d deaths=%d", g.Births, g.Deaths)
			}
		}
		fmt.Fprintln(w, line)
	}
	if last := chain[len(chain)-1]; last.Parent != "" {
		fmt.Fprintf(w, "%s(parent %s not in pool)\n", strings.Repeat("  ", len(chain)), last.Parent)
	}
	if r == nil {
		return nil
	}
	kids, err := r.Children(fp)
	if err != nil {
		return err
	}
	if len(kids) > 0 {
		fmt.Fprintf(w, "children: %s\n", strings.Join(kids, " "))
	}
	causes, err := r.DeathCauses(fp)
	if err != nil {
		return err
	}
	for _, c := range causes {
		fmt.Fprintf(w, "deaths %-12s %d\n", c.Cause, c.Count)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
