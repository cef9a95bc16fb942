// Package sink writes run results to files: CSV for people, bbolt for
// later processing, and raw page dumps for debugging.
package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Sternrassler/serp-harvest/pkg/normalize"
)

// Columns is the CSV header.
var Columns = []string{
	"Business Name",
	"Phone Number",
	"Email Address",
	"Website",
	"Address",
	"Snippet",
	"Position",
	"Page",
}

// CSVWriter writes records as CSV rows under a single header.
type CSVWriter struct {
	w       *csv.Writer
	closer  io.Closer
	written int
}

// NewCSVWriter writes the header to w.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if err := cw.w.Write(Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return cw, nil
}

// CreateCSV creates (or truncates) path and writes the header.
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	cw, err := NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// Write appends records.
func (c *CSVWriter) Write(records []normalize.ResultRecord) error {
	for _, r := range records {
		row := []string{
			r.Title,
			r.Phone,
			r.Email,
			r.URL,
			r.Address,
			r.Snippet,
			strconv.Itoa(r.Position),
			strconv.Itoa(r.Page),
		}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		c.written++
	}
	c.w.Flush()
	return c.w.Error()
}

// Written returns the number of rows written, excluding the header.
func (c *CSVWriter) Written() int {
	return c.written
}

// Close flushes and closes the underlying file, if any.
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
