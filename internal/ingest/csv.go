// Package ingest reads the raw assistant export and turns it into clean,
// deduplicated messages.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RawRow is one record of the export, every field as found in the file.
type RawRow struct {
	ID            string
	ThreadID      string
	Type          string
	Text          string
	Date          string
	Hour          string
	Sentiment     string
	Intent        string
	ProductType   string
	ProductDetail string
	Segment       string
	InputTokens   string
	OutputTokens  string
}

// ReadResult holds the rows read from an export and how many were dropped
// as unreadable.
type ReadResult struct {
	Rows    []RawRow
	Skipped int
}

var requiredColumns = []string{"id", "thread_id", "type", "text"}

// ReadCSV parses a header-driven export. Rows with the wrong number of
// fields or broken quoting are skipped and counted. Optional columns may be
// absent from the header.
func ReadCSV(r io.Reader) (*ReadResult, error) {
	br := bufio.NewReader(r)
	// Spreadsheet exports often start with a UTF-8 BOM.
	if bom, err := br.Peek(3); err == nil && string(bom) == "\xEF\xBB\xBF" {
		br.Discard(3) //nolint: errcheck
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty export: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("export is missing required column %q", c)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok {
			return ""
		}
		return rec[i]
	}

	res := &ReadResult{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			res.Skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading export: %w", err)
		}
		if len(rec) != len(header) {
			res.Skipped++
			continue
		}

		res.Rows = append(res.Rows, RawRow{
			ID:            get(rec, "id"),
			ThreadID:      get(rec, "thread_id"),
			Type:          get(rec, "type"),
			Text:          get(rec, "text"),
			Date:          get(rec, "fecha"),
			Hour:          get(rec, "hora"),
			Sentiment:     get(rec, "sentiment"),
			Intent:        get(rec, "intencion"),
			ProductType:   get(rec, "product_type"),
			ProductDetail: get(rec, "product_detail"),
			Segment:       get(rec, "segment"),
			InputTokens:   get(rec, "input_tokens"),
			OutputTokens:  get(rec, "output_tokens"),
		})
	}
	return res, nil
}
