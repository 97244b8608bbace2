package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"recordstore/pkg/logging"
	"recordstore/pkg/primitives"
	"recordstore/pkg/record"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/access"
	"recordstore/pkg/types"
)

// BenchmarkResult captures timing and block traffic for one operation on one
// organization.
type BenchmarkResult struct {
	Organization     string        `json:"organization"`       // heap, heapvar, hash or ordered
	Operation        string        `json:"operation"`          // Operation being measured
	Iterations       int           `json:"iterations"`         // Number of calls
	TotalDuration    time.Duration `json:"total_duration_ns"`  // Time for all calls
	AvgDuration      time.Duration `json:"avg_duration_ns"`    // Average time per call
	MinDuration      time.Duration `json:"min_duration_ns"`    // Fastest call
	MaxDuration      time.Duration `json:"max_duration_ns"`    // Slowest call
	MedianDuration   time.Duration `json:"median_duration_ns"` // Median call
	P95Duration      time.Duration `json:"p95_duration_ns"`    // 95th percentile
	P99Duration      time.Duration `json:"p99_duration_ns"`    // 99th percentile
	OpsPerSecond     float64       `json:"ops_per_second"`     // Throughput
	BlockReads       uint64        `json:"block_reads"`        // Blocks read from disk
	BlockWrites      uint64        `json:"block_writes"`       // Blocks written to disk
	CacheHits        uint64        `json:"cache_hits"`         // Block reads served by the cache
	ReadsPerOp       float64       `json:"reads_per_op"`       // BlockReads / Iterations
	BlocksTouched    uint64        `json:"blocks_touched"`     // Blocks the scan cursor loaded, cache hits included
	RecordsReturned  int           `json:"records_returned"`   // Records selected or deleted
	ErrorCount       int           `json:"error_count"`        // Failed calls
	ErrorSamples     []string      `json:"error_samples"`      // First few errors
	FileSizeAfterOps uint64        `json:"file_size_bytes"`    // Table size once the operation finished
	Timestamp        time.Time     `json:"timestamp"`          // When the operation was measured
}

// BenchmarkReport aggregates every result of a run.
type BenchmarkReport struct {
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	TotalDuration time.Duration     `json:"total_duration"`
	Records       int               `json:"records"`
	BlockSize     int               `json:"block_size"`
	DataDir       string            `json:"data_dir"`
	Results       []BenchmarkResult `json:"results"`
}

// main runs the access-cost benchmark.
//
// Environment variables:
//   - BENCHMARK_OUTPUT: Directory for the JSON report (default: ./benchmark-results)
//   - BENCHMARK_RECORDS: Records loaded per table (default: 10000)
//   - BENCHMARK_ITERATIONS: Calls per measured operation (default: 200)
//   - BENCHMARK_BLOCK_SIZE: Block size in bytes (default: 4096)
//   - BENCHMARK_CACHE_BLOCKS: Block cache capacity per file (default: 0)
//   - DATA_DIR: Directory holding the benchmark tables (default: ./benchmark-data)
func main() {
	outputDir := filepath.Clean(os.Getenv("BENCHMARK_OUTPUT"))
	if outputDir == "." {
		outputDir = "./benchmark-results"
	}
	dataDir := filepath.Clean(os.Getenv("DATA_DIR"))
	if dataDir == "." {
		dataDir = "./benchmark-data"
	}

	records := envInt("BENCHMARK_RECORDS", 10000)
	iterations := envInt("BENCHMARK_ITERATIONS", 200)
	opts := access.DefaultOptions()
	opts.BlockSize = envInt("BENCHMARK_BLOCK_SIZE", opts.BlockSize)
	opts.CacheBlocks = int64(envInt("BENCHMARK_CACHE_BLOCKS", 0))

	_ = os.MkdirAll(outputDir, 0o750) // #nosec G703
	_ = os.MkdirAll(dataDir, 0o750)   // #nosec G703

	if err := logging.Init(logging.Config{Level: logging.LevelWarn, Format: "text"}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	log.Printf("Starting benchmark suite...")
	log.Printf("Records: %s, Iterations: %d, Block size: %s",
		humanize.Comma(int64(records)), iterations, humanize.IBytes(uint64(opts.BlockSize))) // #nosec G115

	report := BenchmarkReport{
		StartTime: time.Now(),
		Records:   records,
		BlockSize: opts.BlockSize,
		DataDir:   dataDir,
	}

	// One goroutine per organization; each owns its record manager.
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, kind := range access.Kinds() {
		g.Go(func() error {
			path := primitives.Filepath(dataDir).Join("bench." + kind.String())
			results, err := benchmarkKind(kind, path, opts, records, iterations)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			mu.Lock()
			report.Results = append(report.Results, results...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}

	slices.SortStableFunc(report.Results, func(a, b BenchmarkResult) int {
		return strings.Compare(a.Organization, b.Organization)
	})
	for _, r := range report.Results {
		printBenchmarkResult(r)
	}

	report.EndTime = time.Now()
	report.TotalDuration = report.EndTime.Sub(report.StartTime)

	timestamp := time.Now().Format("20060102_150405")
	jsonFile := filepath.Join(outputDir, fmt.Sprintf("benchmark_report_%s.json", timestamp))

	log.Printf("%s", strings.Repeat("=", 80))
	log.Printf("BENCHMARK SUITE COMPLETE in %s", formatDuration(report.TotalDuration))
	saveJSONReport(report, jsonFile)
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func benchSchema(kind access.Kind) *schema.Schema {
	b := schema.NewBuilder().AddColumn("Value", types.Int32Type)
	if kind == access.KindHeapVar {
		b.AddVarchar("Label", 32)
	} else {
		b.AddChar("Label", 32)
	}
	return b.MustBuild()
}

// benchmarkKind loads one table and measures each operation against it.
func benchmarkKind(kind access.Kind, path primitives.Filepath, opts access.Options, records, iterations int) ([]BenchmarkResult, error) {
	for _, suffix := range []string{"", primitives.ExtensionSuffix, primitives.MergeSuffix} {
		if err := path.WithSuffix(suffix).Remove(); err != nil {
			return nil, err
		}
	}
	s := benchSchema(kind)
	m, err := access.Create(kind, path, s, opts)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	rng := rand.New(rand.NewPCG(7, uint64(kind)))
	insert := func(i int) (int, error) {
		rec, err := s.Parse([]string{strconv.Itoa(rng.IntN(1000)), "label-" + strconv.Itoa(i)})
		if err != nil {
			return 0, err
		}
		_, err = m.Insert(rec)
		return 1, err
	}
	randomID := func() primitives.RecordID { return primitives.RecordID(rng.IntN(records)) }

	results := []BenchmarkResult{measure(m, kind, "Insert", records, insert)}
	if err := m.Reorganize(); err != nil {
		return nil, err
	}

	results = append(results,
		measure(m, kind, "Select by id", iterations, func(int) (int, error) {
			rec, err := m.Select(randomID())
			return count(rec), err
		}),
		measure(m, kind, "Select id range (100)", iterations, func(int) (int, error) {
			lo := int64(randomID()) // #nosec G115
			recs, err := m.SelectWhereBetween(primitives.IDColumn, types.Int64(lo), types.Int64(lo+99))
			return len(recs), err
		}),
		measure(m, kind, "Select where Value =", max(iterations/10, 1), func(int) (int, error) {
			recs, err := m.SelectWhereEquals(1, types.Int32(int32(rng.IntN(1000)))) // #nosec G115
			return len(recs), err
		}),
		scanResult(m, kind),
		measure(m, kind, "Delete by id", iterations, func(int) (int, error) {
			ok, err := m.Delete(randomID())
			if ok {
				return 1, err
			}
			return 0, err
		}),
		measure(m, kind, "Reorganize", 1, func(int) (int, error) {
			return 0, m.Reorganize()
		}),
	)
	return results, nil
}

// scanResult walks the whole table once and charges every block the cursor
// loads to the run.
func scanResult(m access.RecordManager, kind access.Kind) BenchmarkResult {
	var touched uint64
	rec := record.New(record.HeaderSize)
	r := measure(m, kind, "Full scan", 1, func(int) (int, error) {
		n := 0
		m.MoveToStart()
		for {
			_, ok, err := m.MoveNext(rec)
			touched += uint64(m.BlocksTouched()) // #nosec G115
			if err != nil || !ok {
				return n, err
			}
			n++
		}
	})
	r.BlocksTouched = touched
	return r
}

func count(rec *record.Record) int {
	if rec == nil {
		return 0
	}
	return 1
}

// measure calls op n times and collects timings and the block counters.
func measure(m access.RecordManager, kind access.Kind, name string, n int, op func(i int) (int, error)) BenchmarkResult {
	durations := make([]time.Duration, 0, n)
	errorSamples := make([]string, 0, 5)
	errorCount := 0
	returned := 0

	m.ResetStats()
	start := time.Now()
	for i := range n {
		opStart := time.Now()
		k, err := op(i)
		durations = append(durations, time.Since(opStart))
		returned += k
		if err != nil {
			errorCount++
			if len(errorSamples) < 5 {
				errorSamples = append(errorSamples, err.Error())
			}
		}
	}
	total := time.Since(start)
	stats := m.Stats()

	slices.Sort(durations)
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return BenchmarkResult{
		Organization:     kind.String(),
		Operation:        name,
		Iterations:       n,
		TotalDuration:    total,
		AvgDuration:      sum / time.Duration(len(durations)),
		MinDuration:      durations[0],
		MaxDuration:      durations[len(durations)-1],
		MedianDuration:   durations[len(durations)/2],
		P95Duration:      percentile(durations, 0.95),
		P99Duration:      percentile(durations, 0.99),
		OpsPerSecond:     float64(n) / total.Seconds(),
		BlockReads:       stats.BlockReads,
		BlockWrites:      stats.BlockWrites,
		CacheHits:        stats.CacheHits,
		ReadsPerOp:       float64(stats.BlockReads) / float64(n),
		RecordsReturned:  returned,
		ErrorCount:       errorCount,
		ErrorSamples:     errorSamples,
		FileSizeAfterOps: m.Size(),
		Timestamp:        time.Now(),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	return sorted[min(int(float64(len(sorted))*p), len(sorted)-1)]
}

// formatDuration formats a duration in a human-readable way with appropriate units.
// Examples: 1.23ms, 456.78µs, 12.34s
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

func printBenchmarkResult(r BenchmarkResult) {
	log.Printf("  ┌─ %s / %s", r.Organization, r.Operation) // #nosec G706
	log.Printf("  │  Calls:            %s", humanize.Comma(int64(r.Iterations)))
	log.Printf("  │  Avg / P95 / P99:  %s / %s / %s",
		formatDuration(r.AvgDuration), formatDuration(r.P95Duration), formatDuration(r.P99Duration))
	log.Printf("  │  Block reads:      %s (%.2f per call)", humanize.Comma(int64(r.BlockReads)), r.ReadsPerOp) // #nosec G115
	log.Printf("  │  Block writes:     %s", humanize.Comma(int64(r.BlockWrites)))                           // #nosec G115
	if r.BlocksTouched > 0 {
		log.Printf("  │  Blocks touched:   %s", humanize.Comma(int64(r.BlocksTouched))) // #nosec G115
	}
	log.Printf("  │  Table size:       %s", humanize.Bytes(r.FileSizeAfterOps))
	if r.ErrorCount > 0 {
		log.Printf("  │  Errors:           %d, first: %s", r.ErrorCount, r.ErrorSamples[0]) // #nosec G706
	}
	log.Printf("  └─")
}

// saveJSONReport serializes the benchmark report to a JSON file.
func saveJSONReport(report BenchmarkReport, filename string) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("Error marshaling report: %v", err)
		return
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil { // #nosec G703
		log.Printf("Error writing JSON report: %v", err)
		return
	}

	log.Printf("JSON report saved: %s", filename) // #nosec G706
}
