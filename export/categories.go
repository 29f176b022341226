package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/acksell/ddbseed/school"
)

const (
	CategoriesCSVFile  = "category_baseline.csv"
	CategoriesJSONFile = "category_baseline.json"
)

// WriteCategoriesCSV writes one row per category under the header
// code,name,description,sampleHosts. Hosts are joined with "|".
func WriteCategoriesCSV(w io.Writer, categories []school.Category) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "name", "description", "sampleHosts"}); err != nil {
		return err
	}
	for _, c := range categories {
		if err := cw.Write([]string{c.Code, c.Name, c.Description, strings.Join(c.SampleHosts, "|")}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCategories writes the baseline into dir as CSV, or JSON when asJSON
// is set, and returns the file written.
func WriteCategories(dir string, categories []school.Category, asJSON bool) (string, error) {
	if asJSON {
		path := filepath.Join(dir, CategoriesJSONFile)
		return path, WriteJSON(path, categories)
	}
	path := filepath.Join(dir, CategoriesCSVFile)
	var buf bytes.Buffer
	if err := WriteCategoriesCSV(&buf, categories); err != nil {
		return "", fmt.Errorf("encode categories: %w", err)
	}
	return path, writeFile(path, buf.Bytes())
}
