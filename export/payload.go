package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Meta describes where and when an export was taken.
type Meta struct {
	Table      string
	Endpoint   string
	ExportedAt time.Time
}

func (m Meta) exportedAt() string {
	return m.ExportedAt.UTC().Format(time.RFC3339Nano)
}

// FlatPayload is an export with all pages joined. Initial and Order are set
// by the filtered and sorted exports.
type FlatPayload struct {
	Table      string `json:"table"`
	Endpoint   string `json:"endpoint,omitempty"`
	ExportedAt string `json:"exportedAt"`
	Initial    string `json:"initial,omitempty"`
	Order      string `json:"order,omitempty"`
	Count      int    `json:"count"`
	Items      []Item `json:"items"`
}

// NestedPayload keeps one inner slice per Scan page.
type NestedPayload struct {
	Table         string   `json:"table"`
	Endpoint      string   `json:"endpoint,omitempty"`
	ExportedAt    string   `json:"exportedAt"`
	Pages         int      `json:"pages"`
	CountsPerPage []int    `json:"countsPerPage"`
	Items         [][]Item `json:"items"`
}

func NewFlat(meta Meta, items []Item) FlatPayload {
	if items == nil {
		items = []Item{}
	}
	return FlatPayload{
		Table:      meta.Table,
		Endpoint:   meta.Endpoint,
		ExportedAt: meta.exportedAt(),
		Count:      len(items),
		Items:      items,
	}
}

func NewNested(meta Meta, pages [][]Item) NestedPayload {
	counts := make([]int, len(pages))
	for i, p := range pages {
		counts[i] = len(p)
	}
	if pages == nil {
		pages = [][]Item{}
	}
	return NestedPayload{
		Table:         meta.Table,
		Endpoint:      meta.Endpoint,
		ExportedAt:    meta.exportedAt(),
		Pages:         len(pages),
		CountsPerPage: counts,
		Items:         pages,
	}
}

// DiffSummary describes how the flat and nested files of one export differ.
func DiffSummary(meta Meta, flatFile, nestedFile string, pages [][]Item) string {
	total := 0
	counts := make([]string, len(pages))
	for i, p := range pages {
		total += len(p)
		counts[i] = fmt.Sprint(len(p))
	}
	perPage := strings.Join(counts, ", ")
	if perPage == "" {
		perPage = "N/A"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", meta.Table)
	fmt.Fprintf(&b, "Endpoint: %s\n", meta.Endpoint)
	fmt.Fprintf(&b, "ExportedAt: %s\n\n", meta.exportedAt())
	fmt.Fprintf(&b, "== Files ==\n")
	fmt.Fprintf(&b, "A) %s: flat\n", flatFile)
	fmt.Fprintf(&b, "   - items is a list of records\n")
	fmt.Fprintf(&b, "   - total: %d\n\n", total)
	fmt.Fprintf(&b, "B) %s: nested\n", nestedFile)
	fmt.Fprintf(&b, "   - items is a list of pages, one per Scan request\n")
	fmt.Fprintf(&b, "   - pages: %d\n", len(pages))
	fmt.Fprintf(&b, "   - per page: %s\n\n", perPage)
	fmt.Fprintf(&b, "Use the flat file for record processing and the nested file to inspect Scan paging.\n")
	return b.String()
}

// WriteJSON writes v as indented JSON to path, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Files are the output paths of a full export under a common base name.
type Files struct {
	Flat, Nested, Diff string
}

func FilesFor(base string) Files {
	return Files{Flat: base + "_flat.json", Nested: base + "_nested.json", Diff: base + "_diff.txt"}
}

// WriteAll writes the flat, nested and diff files for pages.
func WriteAll(meta Meta, files Files, pages []Page) (int, error) {
	decoded, err := DecodePages(pages)
	if err != nil {
		return 0, err
	}
	var flat []Item
	for _, p := range decoded {
		flat = append(flat, p...)
	}
	if err := WriteJSON(files.Flat, NewFlat(meta, flat)); err != nil {
		return 0, err
	}
	if err := WriteJSON(files.Nested, NewNested(meta, decoded)); err != nil {
		return 0, err
	}
	diff := DiffSummary(meta, files.Flat, files.Nested, decoded)
	if err := writeFile(files.Diff, []byte(diff)); err != nil {
		return 0, err
	}
	return len(flat), nil
}
