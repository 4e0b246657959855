package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/microbundle/pkg/gep"
)

// FormatTable writes index entries as a table and returns the number of rows.
func FormatTable(w io.Writer, index []gep.IndexEntry) int {
	if len(index) == 0 {
		fmt.Fprintln(w, "No bundles")
		return 0
	}

	row := "%-24s %-10s %-16s %-16s %s\n"
	fmt.Fprintf(w, row, "TEMPLATE", "CATEGORY", "GENE", "CAPSULE", "EVENT")
	fmt.Fprintf(w, row, strings.Repeat("-", 24), strings.Repeat("-", 10),
		strings.Repeat("-", 16), strings.Repeat("-", 16), strings.Repeat("-", 16))

	for _, e := range index {
		fmt.Fprintf(w, row,
			truncate(e.ID, 24),
			orDash(e.Category),
			shortAddress(e.GeneAssetID),
			shortAddress(e.CapsuleAssetID),
			shortAddress(e.EventAssetID),
		)
	}

	fmt.Fprintf(w, "\n%d %s\n", len(index), plural(len(index), "bundle", "bundles"))
	return len(index)
}

// FormatReport writes one line per verified bundle followed by its issues.
func FormatReport(w io.Writer, r *Report) {
	for _, b := range r.Bundles {
		status := "ok"
		if !b.OK() {
			status = fmt.Sprintf("%d %s", len(b.Issues), plural(len(b.Issues), "issue", "issues"))
		}
		fmt.Fprintf(w, "%-24s %s\n", truncate(b.Entry.ID, 24), status)
		for _, issue := range b.Issues {
			fmt.Fprintf(w, "    %s\n", issue)
		}
	}
}

// FormatJSONL writes one index entry per line.
func FormatJSONL(w io.Writer, index []gep.IndexEntry) error {
	for _, e := range index {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal index entry: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// shortAddress keeps the first 8 hex characters of an address: "sha256:1a2b3c4d".
func shortAddress(addr string) string {
	if !strings.HasPrefix(addr, gep.AddressPrefix) {
		return truncate(addr, 16)
	}
	n := len(gep.AddressPrefix) + 8
	if len(addr) > n {
		return addr[:n]
	}
	return addr
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
