// Package pool stores agent genomes as one file per fingerprint.
//
// Each file is directly runnable: a small comment header (fingerprint, parent, generation,
// creation time) sits after an optional shebang line and before the source text.
package pool

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("genome not found")

// Entry is one stored genome. Immutable once written.
type Entry struct {
	Fingerprint string
	Parent      string
	Generation  int
	CreatedAt   time.Time
	Source      string
	Path        string
}

type Lineage struct {
	Parent     string
	Generation int
}

// Indexer mirrors newly written genomes into a secondary index. Optional.
type Indexer interface {
	RecordGenome(e Entry)
}

type Pool struct {
	dir    string
	ext    string
	logger *zap.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	index  Indexer
	writes int
}

func Open(dir, ext string, rng *rand.Rand, logger *zap.Logger) (*Pool, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty pool dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pool dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pool{dir: dir, ext: ext, rng: rng, logger: logger.Named("pool")}, nil
}

func (p *Pool) SetIndex(ix Indexer) { p.index = ix }

func (p *Pool) Dir() string { return p.dir }

// Path is where the genome with fingerprint fp lives (whether or not it exists).
func (p *Pool) Path(fp string) string { return filepath.Join(p.dir, fp+p.ext) }

// Writes counts genome files written by this Pool instance.
func (p *Pool) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// Add stores source under its fingerprint and returns it. Adding content that normalizes to an
// already stored genome returns the existing fingerprint without writing.
func (p *Pool) Add(source, parent string) (string, error) {
	source = stripHeader(source)
	fp := Fingerprint(source, p.ext)

	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.Path(fp)
	if _, err := os.Stat(path); err == nil {
		return fp, nil
	}

	gen := 1
	if parent != "" {
		if lin, err := p.lineageLocked(parent); err == nil {
			gen = lin.Generation + 1
		} else {
			p.logger.Debug("parent lineage unresolved", zap.String("parent", parent), zap.Error(err))
			parent = ""
		}
	}

	e := Entry{
		Fingerprint: fp,
		Parent:      parent,
		Generation:  gen,
		CreatedAt:   time.Now().UTC(),
		Source:      source,
		Path:        path,
	}
	if err := writeAtomic(path, []byte(render(e))); err != nil {
		return "", fmt.Errorf("write genome %s: %w", fp, err)
	}
	p.writes++
	p.logger.Debug("genome stored", zap.String("fp", fp), zap.String("parent", parent), zap.Int("generation", gen))
	if p.index != nil {
		p.index.RecordGenome(e)
	}
	return fp, nil
}

// AddFile stores the contents of path with no parent.
func (p *Pool) AddFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return p.Add(string(b), "")
}

// RandomGenomePath picks a stored genome uniformly at random.
func (p *Pool) RandomGenomePath() (string, bool) {
	names, err := p.list()
	if err != nil || len(names) == 0 {
		return "", false
	}
	p.mu.Lock()
	i := p.rng.Intn(len(names))
	p.mu.Unlock()
	return filepath.Join(p.dir, names[i]), true
}

func (p *Pool) LineageOf(fp string) (Lineage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lineageLocked(fp)
}

func (p *Pool) lineageLocked(fp string) (Lineage, error) {
	e, err := ReadEntry(p.Path(fp))
	if err == nil {
		return Lineage{Parent: e.Parent, Generation: e.Generation}, nil
	}
	// Fall back to scanning headers, e.g. after the genome extension changed.
	names, lerr := p.listAll()
	if lerr != nil {
		return Lineage{}, lerr
	}
	for _, name := range names {
		e, err := ReadEntry(filepath.Join(p.dir, name))
		if err == nil && e.Fingerprint == fp {
			return Lineage{Parent: e.Parent, Generation: e.Generation}, nil
		}
	}
	return Lineage{}, fmt.Errorf("%w: %s", ErrNotFound, fp)
}

// Get reads a stored genome by fingerprint.
func (p *Pool) Get(fp string) (Entry, error) {
	e, err := ReadEntry(p.Path(fp))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, fp)
	}
	return e, err
}

// Ancestry walks parent links from fp to the root, newest first.
func (p *Pool) Ancestry(fp string) ([]Entry, error) {
	var chain []Entry
	seen := map[string]bool{}
	for fp != "" && !seen[fp] {
		seen[fp] = true
		e, err := p.Get(fp)
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			break
		}
		chain = append(chain, e)
		fp = e.Parent
	}
	return chain, nil
}

// Entries lists every stored genome sorted by fingerprint.
func (p *Pool) Entries() ([]Entry, error) {
	names, err := p.list()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		e, err := ReadEntry(filepath.Join(p.dir, name))
		if err != nil {
			p.logger.Warn("unreadable genome", zap.String("file", name), zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *Pool) list() ([]string, error) {
	names, err := p.listAll()
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, p.ext) && len(strings.TrimSuffix(n, p.ext)) == FingerprintLen {
			out = append(out, n)
		}
	}
	return out, nil
}

func (p *Pool) listAll() ([]string, error) {
	ents, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ReadSource returns the genome source of a file, without the pool header if it has one.
func ReadSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return stripHeader(string(b)), nil
}

const (
	hdrGenome     = "# genome: "
	hdrParent     = "# parent: "
	hdrGeneration = "# generation: "
	hdrCreated    = "# created: "
	noParent      = "-"
)

func render(e Entry) string {
	var b strings.Builder
	src := e.Source
	if strings.HasPrefix(src, "#!") {
		nl := strings.IndexByte(src, '\n')
		if nl < 0 {
			b.WriteString(src + "\n")
			src = ""
		} else {
			b.WriteString(src[:nl+1])
			src = src[nl+1:]
		}
	}
	parent := e.Parent
	if parent == "" {
		parent = noParent
	}
	fmt.Fprintf(&b, "%s%s\n%s%s\n%s%d\n%s%s\n", hdrGenome, e.Fingerprint, hdrParent, parent,
		hdrGeneration, e.Generation, hdrCreated, e.CreatedAt.Format(time.RFC3339Nano))
	b.WriteString(src)
	return b.String()
}

// ReadEntry parses a pool genome file (header plus source).
func ReadEntry(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	e := Entry{Path: path}
	var shebang string
	var body strings.Builder
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	inHeader := true
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first && strings.HasPrefix(line, "#!") {
			shebang = line + "\n"
			first = false
			continue
		}
		first = false
		if inHeader {
			switch {
			case strings.HasPrefix(line, hdrGenome):
				e.Fingerprint = strings.TrimPrefix(line, hdrGenome)
				continue
			case strings.HasPrefix(line, hdrParent):
				if v := strings.TrimPrefix(line, hdrParent); v != noParent {
					e.Parent = v
				}
				continue
			case strings.HasPrefix(line, hdrGeneration):
				n, err := strconv.Atoi(strings.TrimPrefix(line, hdrGeneration))
				if err != nil {
					return Entry{}, fmt.Errorf("%s: bad generation: %w", path, err)
				}
				e.Generation = n
				continue
			case strings.HasPrefix(line, hdrCreated):
				if ts, err := time.Parse(time.RFC3339Nano, strings.TrimPrefix(line, hdrCreated)); err == nil {
					e.CreatedAt = ts
				}
				continue
			}
			inHeader = false
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return Entry{}, err
	}
	if e.Fingerprint == "" {
		return Entry{}, fmt.Errorf("%s: missing genome header", path)
	}
	e.Source = shebang + body.String()
	return e, nil
}

// stripHeader removes a pool header so re-adding a stored file is idempotent.
func stripHeader(src string) string {
	lines := strings.SplitAfter(src, "\n")
	var keep []string
	i := 0
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#!") {
		keep = append(keep, lines[0])
		i = 1
	}
	j := i
	for j < len(lines) {
		l := lines[j]
		if strings.HasPrefix(l, hdrGenome) || strings.HasPrefix(l, hdrParent) ||
			strings.HasPrefix(l, hdrGeneration) || strings.HasPrefix(l, hdrCreated) {
			j++
			continue
		}
		break
	}
	if j == i {
		return src
	}
	keep = append(keep, lines[j:]...)
	return strings.Join(keep, "")
}

func writeAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".genome-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o755); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
