// Package results writes benchmark results as CSV
package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"dev/bravebird/frametime-bench/pkg/models"
)

// Header is the column layout of the results file
var Header = []string{
	"opt_level",
	"wasm_opt",
	"lto",
	"codegen_units",
	"strip",
	"panic",
	"build_time",
	"wasm_opt_time",
	"size",
	"size_gzipped",
	"frame_time",
}

// CSVWriter appends results to a CSV stream, flushing after every row
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter writes the header to w
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if err := cw.w.Write(Header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	cw.w.Flush()
	return cw, cw.w.Error()
}

// CreateCSV creates (or truncates) the file at path and writes the header
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	cw, err := NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// Write appends one result
func (c *CSVWriter) Write(r models.BenchResult) error {
	if err := c.w.Write(Record(r)); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the underlying file, if any
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Record renders a result as a CSV row in Header order
func Record(r models.BenchResult) []string {
	return []string{
		r.OptLevel,
		r.WasmOpt,
		r.Lto,
		r.CodegenUnits,
		r.Strip,
		r.Panic,
		formatFloat(r.BuildTime),
		formatFloat(r.WasmOptTime),
		strconv.FormatInt(r.Size, 10),
		strconv.FormatInt(r.SizeGzipped, 10),
		formatFloat(r.FrameTime),
	}
}

// WriteAll writes the header and every result
func WriteAll(w io.Writer, results []models.BenchResult) error {
	cw, err := NewCSVWriter(w)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	return cw.Close()
}

// ReadAll parses a results file written by CSVWriter
func ReadAll(r io.Reader) ([]models.BenchResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var out []models.BenchResult
	for i, row := range rows[1:] {
		res, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func parseRecord(row []string) (models.BenchResult, error) {
	r := models.BenchResult{
		OptLevel:     row[0],
		WasmOpt:      row[1],
		Lto:          row[2],
		CodegenUnits: row[3],
		Strip:        row[4],
		Panic:        row[5],
	}

	var err error
	if r.BuildTime, err = strconv.ParseFloat(row[6], 64); err != nil {
		return r, fmt.Errorf("invalid build_time: %w", err)
	}
	if r.WasmOptTime, err = strconv.ParseFloat(row[7], 64); err != nil {
		return r, fmt.Errorf("invalid wasm_opt_time: %w", err)
	}
	if r.Size, err = strconv.ParseInt(row[8], 10, 64); err != nil {
		return r, fmt.Errorf("invalid size: %w", err)
	}
	if r.SizeGzipped, err = strconv.ParseInt(row[9], 10, 64); err != nil {
		return r, fmt.Errorf("invalid size_gzipped: %w", err)
	}
	if r.FrameTime, err = strconv.ParseFloat(row[10], 64); err != nil {
		return r, fmt.Errorf("invalid frame_time: %w", err)
	}
	return r, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
