package main

import (
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"recordstore/pkg/primitives"
	"recordstore/pkg/storage/access"
	"recordstore/pkg/table"
)

// MetricsCollector serves per-table size and block traffic in the
// Prometheus text format and times the lookups it issues itself.
type MetricsCollector struct {
	tables         *table.Manager
	probeCount     int64
	probeDurations []time.Duration
	errorCount     int64
	lastProbeTime  time.Time
	mu             sync.RWMutex
}

func NewMetricsCollector(m *table.Manager) *MetricsCollector {
	return &MetricsCollector{
		tables:         m,
		probeDurations: make([]time.Duration, 0),
		lastProbeTime:  time.Now(),
	}
}

func (mc *MetricsCollector) RecordProbe(duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.probeCount++
	mc.probeDurations = append(mc.probeDurations, duration)
	mc.lastProbeTime = time.Now()

	if len(mc.probeDurations) > 1000 {
		mc.probeDurations = mc.probeDurations[len(mc.probeDurations)-1000:]
	}

	if err != nil {
		mc.errorCount++
	}
}

func gauge(b *strings.Builder, name, help string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n", name, help, name)
}

func counter(b *strings.Builder, name, help string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
}

// GetMetrics renders every metric. Table metrics carry table and
// organization labels.
func (mc *MetricsCollector) GetMetrics() string {
	mc.mu.RLock()
	var total time.Duration
	for _, d := range mc.probeDurations {
		total += d
	}
	avg := float64(0)
	if len(mc.probeDurations) > 0 {
		avg = float64(total.Microseconds()) / float64(len(mc.probeDurations))
	}
	probes, errs, last := mc.probeCount, mc.errorCount, mc.lastProbeTime
	mc.mu.RUnlock()

	tables := mc.tables.Tables()
	var b strings.Builder

	counter(&b, "recordstore_probes_total", "Lookups issued by the exporter")
	fmt.Fprintf(&b, "recordstore_probes_total %d\n\n", probes)
	counter(&b, "recordstore_probe_errors_total", "Lookups that failed")
	fmt.Fprintf(&b, "recordstore_probe_errors_total %d\n\n", errs)
	gauge(&b, "recordstore_probe_duration_microseconds", "Average lookup duration in microseconds")
	fmt.Fprintf(&b, "recordstore_probe_duration_microseconds %.2f\n\n", avg)
	gauge(&b, "recordstore_table_count", "Number of open tables")
	fmt.Fprintf(&b, "recordstore_table_count %d\n\n", len(tables))

	gauge(&b, "recordstore_table_size_bytes", "Block size times flushed blocks plus buffered bytes")
	for _, t := range tables {
		fmt.Fprintf(&b, "recordstore_table_size_bytes{table=%q,organization=%q} %d\n", t.Name, t.Kind(), t.Size())
	}
	b.WriteString("\n")

	stats := make([]access.Stats, len(tables))
	for i, t := range tables {
		stats[i] = t.Stats()
	}
	for _, m := range []struct {
		name, help string
		value      func(access.Stats) uint64
	}{
		{"recordstore_block_reads_total", "Blocks read from disk", func(s access.Stats) uint64 { return s.BlockReads }},
		{"recordstore_block_writes_total", "Blocks written to disk", func(s access.Stats) uint64 { return s.BlockWrites }},
		{"recordstore_block_cache_hits_total", "Block reads served by the cache", func(s access.Stats) uint64 { return s.CacheHits }},
	} {
		counter(&b, m.name, m.help)
		for i, t := range tables {
			fmt.Fprintf(&b, "%s{table=%q,organization=%q} %d\n", m.name, t.Name, t.Kind(), m.value(stats[i]))
		}
		b.WriteString("\n")
	}

	gauge(&b, "recordstore_up", "Exporter up status (1 = up, 0 = down)")
	b.WriteString("recordstore_up 1\n\n")
	gauge(&b, "recordstore_last_probe_timestamp_seconds", "Unix timestamp of the last lookup")
	fmt.Fprintf(&b, "recordstore_last_probe_timestamp_seconds %d\n", last.Unix())

	return b.String()
}

// Probe looks up one random id in every table.
func (mc *MetricsCollector) Probe(rng *rand.Rand) {
	for _, t := range mc.tables.Tables() {
		start := time.Now()
		_, err := t.Get(primitives.RecordID(rng.IntN(1000)))
		mc.RecordProbe(time.Since(start), err)
	}
}

func (mc *MetricsCollector) StartProbing(every time.Duration) {
	go func() {
		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)) // #nosec G115
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for range ticker.C {
			mc.Probe(rng)
		}
	}()
}

func main() {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "8080"
	}

	log.Printf("Starting recordstore metrics exporter...")
	log.Printf("Data Directory: %s, Metrics Port: %s", dataDir, metricsPort) // #nosec G706

	// Sizes and bucket counts come from the files; the exporter never
	// reorganizes what it opened.
	opts := access.DefaultOptions()
	opts.BlockSize = 0
	opts.Buckets = 0
	opts.AutoReorganize = false
	opts.ReorganizeOnClose = false

	m, err := table.NewManager(primitives.Filepath(dataDir), opts)
	if err != nil {
		log.Fatalf("Failed to open data directory: %v", err)
	}
	opened, err := m.OpenAll()
	if err != nil {
		log.Fatalf("Failed to open tables: %v", err)
	}
	log.Printf("Opened %d tables", len(opened))

	collector := NewMetricsCollector(m)
	collector.StartProbing(5 * time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, collector.GetMetrics())
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	srv := &http.Server{
		Addr:         ":" + metricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Metrics available at http://localhost:%s/metrics", metricsPort) // #nosec G706
	log.Fatal(srv.ListenAndServe())
}
