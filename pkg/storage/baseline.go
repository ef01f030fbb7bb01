package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/export"
)

// Seen-set file names inside the output directory.
const (
	OperatorsFile = "_operators_seen.json"
	ItemsFile     = "_items_seen.json"
)

// Set is a set of trimmed, non-empty strings.
type Set map[string]struct{}

func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was new. Blank values are ignored.
func (s Set) Add(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

func (s Set) Has(v string) bool {
	_, ok := s[strings.TrimSpace(v)]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Snapshot is the baseline of seen operators and seen item numbers. Within
// a run it only grows.
type Snapshot struct {
	Operators Set
	Items     Set
}

func NewSnapshot() *Snapshot {
	return &Snapshot{Operators: Set{}, Items: Set{}}
}

func (s *Snapshot) Empty() bool {
	return len(s.Operators) == 0 && len(s.Items) == 0
}

// BaselineStore persists a Snapshot as two sorted JSON arrays. Read
// failures degrade to empty sets and write failures are logged, never
// returned. It is meant to have a single writer per output directory.
type BaselineStore struct {
	dir     string
	seedDir string
	log     utils.Logger
	seeded  bool
}

// NewBaselineStore keeps the seen sets in dir. When both are empty on the
// first Load, they are seeded from the CSV files in seedDir.
func NewBaselineStore(dir, seedDir string, log utils.Logger) *BaselineStore {
	return &BaselineStore{dir: dir, seedDir: seedDir, log: utils.OrNop(log)}
}

func (b *BaselineStore) OperatorsPath() string { return filepath.Join(b.dir, OperatorsFile) }
func (b *BaselineStore) ItemsPath() string     { return filepath.Join(b.dir, ItemsFile) }

// Load reads the snapshot, bootstrapping it from the seed directory once.
func (b *BaselineStore) Load() *Snapshot {
	snap := &Snapshot{
		Operators: b.readSet(b.OperatorsPath()),
		Items:     b.readSet(b.ItemsPath()),
	}
	if !snap.Empty() || b.seeded || b.seedDir == "" {
		return snap
	}
	b.seeded = true

	b.log.Infof("No seen baseline found, seeding from '%s'", b.seedDir)
	seed, err := SeedFromCSV(b.seedDir, b.log)
	if err != nil || seed.Empty() {
		b.log.Infof("Baseline folder '%s' not found or empty", b.seedDir)
		return snap
	}
	b.Save(seed)
	b.log.Infof("Seeded baseline: operators=%d, items=%d", len(seed.Operators), len(seed.Items))
	return seed
}

// Save writes both sets. Errors are logged and swallowed.
func (b *BaselineStore) Save(s *Snapshot) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		b.log.Errorf("Could not create baseline directory %s: %v", b.dir, err)
		return
	}
	if err := writeSet(b.OperatorsPath(), s.Operators); err != nil {
		b.log.Errorf("Could not save %s: %v", b.OperatorsPath(), err)
	}
	if err := writeSet(b.ItemsPath(), s.Items); err != nil {
		b.log.Errorf("Could not save %s: %v", b.ItemsPath(), err)
	}
}

func (b *BaselineStore) readSet(path string) Set {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			b.log.Warnf("Could not read %s, treating as empty: %v", path, err)
		}
		return Set{}
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		b.log.Warnf("Could not parse %s, treating as empty: %v", path, err)
		return Set{}
	}
	return NewSet(values...)
}

func writeSet(path string, s Set) error {
	values := s.Sorted()
	if values == nil {
		values = []string{}
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SeedFromCSV builds a snapshot from every CSV in dir, reading operator
// names and item numbers under either header spelling.
func SeedFromCSV(dir string, log utils.Logger) (*Snapshot, error) {
	log = utils.OrNop(log)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read seed directory: %w", err)
	}
	snap := NewSnapshot()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		recs, err := export.ReadRecords(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Warnf("Skipping seed file %s: %v", e.Name(), err)
			continue
		}
		for _, r := range recs {
			snap.Operators.Add(r.OperatorName)
			snap.Items.Add(r.Number)
		}
	}
	return snap, nil
}
