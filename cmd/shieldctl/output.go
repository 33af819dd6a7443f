// cmd/shieldctl/output.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// printResult renders rows as a table, or v as indented JSON with -o json.
func printResult(w io.Writer, v interface{}, headers []string, rows [][]string) error {
	switch outputFlag {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "table", "":
		return printTable(w, headers, rows)
	default:
		return fmt.Errorf("unsupported output format %q", outputFlag)
	}
}

func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
