package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case formatTable, formatJSON:
		return &printer{w: w, format: format}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// print renders rows under headers, or v as indented JSON.
func (p *printer) print(v any, headers []string, rows [][]string) error {
	if p.format == formatJSON {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	table := tablewriter.NewTable(p.w)
	cells := make([]any, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	table.Header(cells...)
	for _, row := range rows {
		data := make([]any, len(row))
		for i, c := range row {
			data[i] = c
		}
		if err := table.Append(data...); err != nil {
			return err
		}
	}
	return table.Render()
}
