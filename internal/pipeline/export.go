package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/pkg/utils"
)

// ExportColumns resolves the column order for tabular output: the schema's
// declared property order, or the sorted union of observed keys.
func ExportColumns(schema *model.Schema, rows []*model.Row) []string {
	if cols := schema.Columns(); len(cols) > 0 {
		return cols
	}
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range rows {
		for _, k := range row.Keys() {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// WriteCSV writes a header and one line per row. Values are escaped by the
// CSV writer; nested arrays and objects are written as JSON.
func WriteCSV(w io.Writer, rows []*model.Row, columns []string) (int, error) {
	return writeDelimited(w, rows, columns, ',')
}

func writeDelimited(w io.Writer, rows []*model.Row, columns []string, comma rune) (int, error) {
	writer := csv.NewWriter(w)
	writer.Comma = comma

	if err := writer.Write(columns); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	recordCount := 0
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			v, _ := row.Get(col)
			record[i] = utils.StringOf(v)
		}
		if err := writer.Write(record); err != nil {
			return recordCount, fmt.Errorf("failed to write row: %w", err)
		}
		recordCount++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return recordCount, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return recordCount, nil
}

// WriteJSON writes rows as an indented JSON array, keys in row order.
func WriteJSON(w io.Writer, rows []*model.Row) (int, error) {
	if rows == nil {
		rows = []*model.Row{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rows); err != nil {
		return 0, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return len(rows), nil
}

// ExportRows writes rows to path in the format its extension names: JSON
// for .json, tab-separated for .tsv and CSV otherwise. Failures are storage
// errors.
func ExportRows(rows []*model.Row, schema *model.Schema, path string) (model.ExportResult, error) {
	columns := ExportColumns(schema, rows)
	result := model.ExportResult{
		Type:      utils.FileType(path),
		Path:      path,
		Columns:   columns,
		Timestamp: time.Now(),
	}
	if result.Type == "unknown" {
		result.Type = "csv"
	}

	count, err := writeFile(path, func(w io.Writer) (int, error) {
		switch result.Type {
		case "json":
			return WriteJSON(w, rows)
		case "tsv":
			return writeDelimited(w, rows, columns, '\t')
		}
		return WriteCSV(w, rows, columns)
	})
	result.RecordCount = count
	if err != nil {
		result.Error = err.Error()
		return result, model.ErrStorage(err, "export to %s failed", path)
	}
	result.Success = true
	return result, nil
}

func writeFile(path string, write func(io.Writer) (int, error)) (int, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	count, err := write(file)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close file: %w", cerr)
	}
	return count, err
}
