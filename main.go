package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"recordstore/pkg/logging"
	"recordstore/pkg/primitives"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/access"
	tbl "recordstore/pkg/table"
	"recordstore/pkg/types"
)

type Configuration struct {
	DataDir     string
	Orgs        string
	Rows        int
	BlockSize   int
	CSVFile     string
	Schema      string
	LogLevel    string
	LogFormat   string
	LogFile     string
	CacheBlocks int64
	Seed        uint64
}

// result collects what one organization's workload observed.
type result struct {
	kind     access.Kind
	inserted int
	found    int
	ranged   int
	deleted  int
	size     uint64
	stats    access.Stats
	elapsed  time.Duration
}

func main() {
	config := parseArguments()

	if err := logging.Init(logging.Config{
		Level:      logging.ParseLevel(config.LogLevel),
		Format:     config.LogFormat,
		OutputPath: config.LogFile,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	showBanner()

	results, err := run(context.Background(), config)
	if err != nil {
		log.Fatalf("Workload failed: %v", err)
	}
	fmt.Println(renderSummary(results))
}

// parseArguments processes command-line flags
func parseArguments() Configuration {
	var config Configuration

	flag.StringVar(&config.DataDir, "data", "./data", "Data directory path")
	flag.StringVar(&config.Orgs, "org", "all", "Comma separated organizations: heap, heapvar, hash, ordered or all")
	flag.IntVar(&config.Rows, "rows", 10000, "Number of generated records per table")
	flag.IntVar(&config.BlockSize, "block", 4096, "Block size in bytes")
	flag.StringVar(&config.CSVFile, "csv", "", "CSV file to load instead of generated rows (first row names the columns)")
	flag.StringVar(&config.Schema, "schema", "", "Columns as name:TYPE[:size], comma separated (default Name, Age, Score)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFormat, "log-format", "text", "Log format: text or json")
	flag.StringVar(&config.LogFile, "log-file", "", "Log file path (default stdout)")
	flag.Int64Var(&config.CacheBlocks, "cache", 0, "Block cache capacity per file, 0 disables it")
	flag.Uint64Var(&config.Seed, "seed", 1, "Seed for generated rows")

	flag.Parse()

	return config
}

func showBanner() {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#A78BFA")).
		Padding(0, 2)

	fmt.Println(style.Render("recordstore · heap · heapvar · hash · ordered"))
}

func parseOrgs(s string) ([]access.Kind, error) {
	if strings.TrimSpace(s) == "" || strings.EqualFold(s, "all") {
		return access.Kinds(), nil
	}
	var kinds []access.Kind
	for _, part := range strings.Split(s, ",") {
		k, err := access.ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// parseSchema reads "Name:VARCHAR:24,Age:INT32". When variable is false,
// VARCHAR columns become CHAR of the same size so the fixed organizations can
// store them.
func parseSchema(columns string, variable bool) (*schema.Schema, error) {
	if columns == "" {
		columns = "Name:VARCHAR:24,Age:INT32,Score:DOUBLE"
	}
	var defs []schema.ColumnDef
	for _, field := range strings.Split(columns, ",") {
		parts := strings.Split(strings.TrimSpace(field), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("bad column %q, want name:TYPE[:size]", field)
		}
		t, err := types.ParseType(parts[1])
		if err != nil {
			return nil, err
		}
		def := schema.ColumnDef{Name: parts[0], Type: t}
		if len(parts) == 3 {
			size, err := strconv.ParseUint(parts[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bad size in column %q: %w", field, err)
			}
			def.ArraySize = uint32(size)
		}
		if t == types.VarcharType && !variable {
			def.Type = types.CharType
		}
		defs = append(defs, def)
	}
	return schema.New(defs...)
}

// run creates one table per organization and drives each workload in its own
// goroutine. Tables are never shared between goroutines.
func run(ctx context.Context, config Configuration) ([]result, error) {
	kinds, err := parseOrgs(config.Orgs)
	if err != nil {
		return nil, err
	}

	opts := access.DefaultOptions()
	opts.BlockSize = config.BlockSize
	opts.CacheBlocks = config.CacheBlocks

	m, err := tbl.NewManager(primitives.Filepath(config.DataDir), opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logging.WithError(err).Error("closing tables failed")
		}
	}()

	var (
		mu      sync.Mutex
		results = make([]result, 0, len(kinds))
	)
	tables := make([]*tbl.Table, 0, len(kinds))
	for _, kind := range kinds {
		s, err := parseSchema(config.Schema, kind == access.KindHeapVar)
		if err != nil {
			return nil, err
		}
		name := "demo_" + kind.String()
		if err := dropExisting(m, name, kind); err != nil {
			return nil, err
		}
		t, err := m.Create(name, kind, s)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tables {
		g.Go(func() error {
			r, err := workload(ctx, t, config)
			if err != nil {
				return fmt.Errorf("%s: %w", t.Kind(), err)
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	order := make(map[access.Kind]int, len(kinds))
	for i, k := range kinds {
		order[k] = i
	}
	sorted := make([]result, len(results))
	for _, r := range results {
		sorted[order[r.kind]] = r
	}
	return sorted, nil
}

// dropExisting removes a table left over from an earlier run.
func dropExisting(m *tbl.Manager, name string, kind access.Kind) error {
	if !m.Path(name, kind).Exists() {
		return nil
	}
	if _, err := m.Open(name, kind); err != nil {
		return err
	}
	return m.Drop(name)
}

func workload(ctx context.Context, t *tbl.Table, config Configuration) (result, error) {
	r := result{kind: t.Kind()}
	start := time.Now()
	log := logging.WithTable(t.Path.String())

	var err error
	if config.CSVFile != "" {
		r.inserted, err = t.LoadCSVFile(config.CSVFile)
	} else {
		r.inserted, err = generate(t, config.Rows, config.Seed)
	}
	if err != nil {
		return r, err
	}
	log.Info("table loaded", "records", r.inserted)
	if err := ctx.Err(); err != nil {
		return r, err
	}

	// Measure only the query and delete phase.
	t.ResetStats()

	rng := rand.New(rand.NewPCG(config.Seed, uint64(t.Kind())))
	probes := min(100, r.inserted)
	ids := make([]primitives.RecordID, probes)
	for i := range ids {
		ids[i] = primitives.RecordID(rng.IntN(max(r.inserted, 1)))
	}
	recs, err := t.GetMany(ids)
	if err != nil {
		return r, err
	}
	r.found = len(recs)

	if r.inserted > 0 {
		lo := rng.IntN(r.inserted)
		between, err := t.Between(schema.IDColumnName, strconv.Itoa(lo), strconv.Itoa(lo+probes))
		if err != nil {
			return r, err
		}
		r.ranged = len(between)
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}

	for id := 0; id < r.inserted; id += 10 {
		ok, err := t.Delete(primitives.RecordID(id))
		if err != nil {
			return r, err
		}
		if ok {
			r.deleted++
		}
	}
	if err := t.Reorganize(); err != nil {
		return r, err
	}

	r.size = t.Size()
	r.stats = t.Stats()
	r.elapsed = time.Since(start)
	log.Info("workload finished", "deleted", r.deleted, "elapsed", r.elapsed)
	return r, nil
}

// generate inserts n records with pseudo-random values for every column.
func generate(t *tbl.Table, n int, seed uint64) (int, error) {
	rng := rand.New(rand.NewPCG(seed, 0))
	cols := t.Schema().Columns()[1:]
	values := make([]string, len(cols))
	for i := range n {
		for j, col := range cols {
			values[j] = randomValue(rng, col, i)
		}
		if _, err := t.Insert(values...); err != nil {
			return i, err
		}
	}
	return n, nil
}

func randomValue(rng *rand.Rand, col schema.Column, row int) string {
	switch col.Type {
	case types.Int32Type, types.Int64Type:
		return strconv.Itoa(rng.IntN(100))
	case types.FloatType, types.DoubleType:
		return strconv.FormatFloat(rng.Float64()*1000, 'f', 2, 64)
	default:
		s := fmt.Sprintf("row-%d-%x", row, rng.Uint32())
		if size := int(col.ArraySize); size > 0 && len(s) > size {
			s = s[:size]
		}
		return s
	}
}

func renderSummary(results []result) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.kind.String(),
			humanize.Comma(int64(r.inserted)),
			humanize.Comma(int64(r.found)),
			humanize.Comma(int64(r.ranged)),
			humanize.Comma(int64(r.deleted)),
			humanize.Bytes(r.size),
			humanize.Comma(int64(r.stats.BlockReads)),  // #nosec G115
			humanize.Comma(int64(r.stats.BlockWrites)), // #nosec G115
			humanize.Comma(int64(r.stats.CacheHits)),   // #nosec G115
			r.elapsed.Round(time.Millisecond).String(),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))).
		Headers("ORG", "RECORDS", "FOUND", "RANGE", "DELETED", "SIZE", "READS", "WRITES", "HITS", "TIME").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Render()
}
