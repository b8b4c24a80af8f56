// Package trace writes the per-tick trace file of spec §6: fixed leading
// columns {TIME, REGION_ID#, ENERGY_PACKAGE, POWER_PACKAGE, FREQUENCY}
// followed by whatever columns the active agent declares via
// trace_columns().
package trace

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/geopm/geopmd/internal/gerr"
)

var fixedColumns = []string{"TIME", "REGION_ID#", "ENERGY_PACKAGE", "POWER_PACKAGE", "FREQUENCY"}

// Row is one tick's trace record: the fixed platform columns plus whatever
// values the agent declared via TraceColumns(), in the same order.
type Row struct {
	TimeSeconds   float64
	RegionID      uint64
	EnergyPackage float64
	PowerPackage  float64
	Frequency     float64
	AgentColumns  []float64
}

// Writer appends Rows to an underlying io.Writer as CSV, writing the header
// exactly once (on the first Write call, once agentColumns is known).
type Writer struct {
	csv          *csv.Writer
	agentColumns []string
	wroteHeader  bool
}

// New constructs a trace Writer over w; agentColumns is the active agent's
// declared TraceColumns(), appended after the fixed platform columns.
func New(w io.Writer, agentColumns []string) *Writer {
	return &Writer{csv: csv.NewWriter(w), agentColumns: agentColumns}
}

// Write appends one row, writing the header first if this is the first
// call. Fails if row.AgentColumns' length does not match the declared
// agent column count.
func (t *Writer) Write(row Row) error {
	if len(row.AgentColumns) != len(t.agentColumns) {
		return gerr.New(gerr.KindInvalidArgument, "trace.go", 0,
			"row has %d agent columns, writer declared %d", len(row.AgentColumns), len(t.agentColumns))
	}
	if !t.wroteHeader {
		if err := t.csv.Write(append(append([]string(nil), fixedColumns...), t.agentColumns...)); err != nil {
			return gerr.Wrap(gerr.KindIO, "trace.go", 0, err, "writing trace header")
		}
		t.wroteHeader = true
	}

	record := make([]string, 0, 5+len(row.AgentColumns))
	record = append(record,
		strconv.FormatFloat(row.TimeSeconds, 'f', 6, 64),
		strconv.FormatUint(row.RegionID, 10),
		strconv.FormatFloat(row.EnergyPackage, 'f', 3, 64),
		strconv.FormatFloat(row.PowerPackage, 'f', 3, 64),
		strconv.FormatFloat(row.Frequency, 'f', 3, 64),
	)
	for _, v := range row.AgentColumns {
		record = append(record, strconv.FormatFloat(v, 'f', 6, 64))
	}
	if err := t.csv.Write(record); err != nil {
		return gerr.Wrap(gerr.KindIO, "trace.go", 0, err, "writing trace row")
	}
	return nil
}

// Flush flushes any buffered rows to the underlying writer.
func (t *Writer) Flush() error {
	t.csv.Flush()
	return t.csv.Error()
}
