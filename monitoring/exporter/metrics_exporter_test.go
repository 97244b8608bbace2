package main

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"recordstore/pkg/primitives"
	"recordstore/pkg/schema"
	"recordstore/pkg/storage/access"
	"recordstore/pkg/table"
	"recordstore/pkg/types"
)

func TestGetMetrics(t *testing.T) {
	opts := access.DefaultOptions()
	opts.BlockSize = 128
	m, err := table.NewManager(primitives.Filepath(t.TempDir()), opts)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer func() { _ = m.Close() }()

	s := schema.NewBuilder().AddColumn("Value", types.Int32Type).MustBuild()
	tbl, err := m.Create("numbers", access.KindHash, s)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := range 5 {
		if _, err := tbl.Insert(string(rune('0' + i))); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	mc := NewMetricsCollector(m)
	mc.Probe(rand.New(rand.NewPCG(1, 2)))
	mc.RecordProbe(time.Millisecond, errors.New("boom"))

	out := mc.GetMetrics()
	for _, want := range []string{
		"recordstore_table_count 1\n",
		"recordstore_probes_total 2\n",
		"recordstore_probe_errors_total 1\n",
		`recordstore_table_size_bytes{table="numbers",organization="hash"}`,
		`recordstore_block_reads_total{table="numbers",organization="hash"}`,
		"recordstore_up 1\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("GetMetrics() missing %q", want)
		}
	}
}
