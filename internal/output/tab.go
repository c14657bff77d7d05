// Package output provides result output formatters.
package output

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/inodb/dirseq/internal/coverage"
)

// Layout selects the columns written by a TabWriter.
type Layout struct {
	Measure         coverage.Measure
	IgnoreDirection bool
	IncludeID       bool
}

// Columns returns the header columns for the layout.
func (l Layout) Columns() []string {
	cols := []string{"contig", "type", "start", "end", "strand"}

	switch {
	case l.Measure == coverage.MeasureCount && l.IgnoreDirection:
		cols = append(cols, "count")
	case l.Measure == coverage.MeasureCount:
		cols = append(cols, "forward_read_count", "reverse_read_count")
	case l.IgnoreDirection:
		cols = append(cols, "average_coverage")
	default:
		cols = append(cols, "forward_average_coverage", "reverse_average_coverage")
	}

	cols = append(cols, "annotation")
	if l.IncludeID {
		cols = append(cols, "ID")
	}
	return cols
}

// TabWriter writes aggregated results in tab-delimited format.
type TabWriter struct {
	w      *bufio.Writer
	layout Layout
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer, layout Layout) *TabWriter {
	return &TabWriter{
		w:      bufio.NewWriter(w),
		layout: layout,
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.layout.Columns(), "\t") + "\n")
	return err
}

// Write writes a single result row.
func (tw *TabWriter) Write(r *coverage.Result) error {
	f := r.Feature

	values := []string{
		f.Contig,
		f.Type,
		strconv.Itoa(f.Start),
		strconv.Itoa(f.End),
		f.Strand.String(),
	}

	if tw.layout.IgnoreDirection {
		values = append(values, FormatFloat(r.Total()))
	} else {
		values = append(values, FormatFloat(r.Forward), FormatFloat(r.Reverse))
	}

	values = append(values, f.Annotation())
	if tw.layout.IncludeID {
		values = append(values, f.ID())
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

// FormatFloat renders v as the shortest decimal that round-trips, always
// with a fractional part: 0 -> "0.0", 2 -> "2.0", 8/7 -> "1.1428571428571428".
// Magnitudes below 1e-4 or from 1e16 up switch to exponent form with a
// two-digit exponent: 5e-6 -> "5.0e-06", 1e16 -> "1.0e+16".
func FormatFloat(v float64) string {
	if v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
		e := strconv.FormatFloat(v, 'e', -1, 64)
		i := strings.IndexByte(e, 'e')
		exp, _ := strconv.Atoi(e[i+1:])
		if exp < -4 || exp >= 16 {
			mantissa := e[:i]
			if !strings.Contains(mantissa, ".") {
				mantissa += ".0"
			}
			return mantissa + e[i:]
		}
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
