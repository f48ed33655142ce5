package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/pkg/utils"
)

// Normalization failures.
var (
	ErrRecordPathNotFound = errors.New("record path not found")
	ErrRecordPathNotArray = errors.New("record path does not address an array")
	ErrNonObjectElement   = errors.New("recordset element is not an object")
)

// maxDocumentBytes caps documents read by LoadDocument.
const maxDocumentBytes = 64 << 20

// ------------------- Row Normalizer -------------------

// NormalizeRows resolves recordPath inside root and returns the recordset as
// rows. Every element must be an object.
func NormalizeRows(root interface{}, recordPath string) ([]*model.Row, error) {
	node, ok := model.Lookup(root, recordPath)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRecordPathNotFound, recordPath)
	}
	items, ok := node.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %q holds %s", ErrRecordPathNotArray, recordPath, model.TypeName(node))
	}
	rows := make([]*model.Row, 0, len(items))
	for i, item := range items {
		row, ok := item.(*model.Row)
		if !ok {
			return nil, fmt.Errorf("%w: element %d of %q is %s", ErrNonObjectElement, i, recordPath, model.TypeName(item))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ------------------- Document loading -------------------

// LoadDocument reads a sample or live document from a local path or an
// http(s) URL. CSV input is converted to an array of objects keyed by the
// header row.
func LoadDocument(ctx context.Context, pathOrURL string) (interface{}, error) {
	data, err := readSource(ctx, pathOrURL)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(stripQuery(pathOrURL)), ".csv") {
		return DecodeCSV(strings.NewReader(string(data)))
	}
	return model.DecodeDocument(data)
}

func readSource(ctx context.Context, pathOrURL string) ([]byte, error) {
	var reader io.Reader
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pathOrURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to GET document: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to GET document: status %d", resp.StatusCode)
		}
		reader = resp.Body
	} else {
		file, err := os.Open(pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open document: %w", err)
		}
		defer file.Close()
		reader = file
	}
	data, err := io.ReadAll(io.LimitReader(reader, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}
	return data, nil
}

// DecodeCSV converts CSV text into an array of row objects.
func DecodeCSV(r io.Reader) (interface{}, error) {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, h := range headers {
		// Clean header names: trim whitespace, a UTF-8 BOM and all quotes
		h = strings.TrimPrefix(h, "\ufeff")
		headers[i] = strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
	}

	items := make([]interface{}, 0)
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("CSV read error: %w", err)
		}
		row := model.NewRow(len(headers))
		for i, h := range headers {
			if i < len(record) {
				row.Set(h, utils.ParseValue(record[i]))
			} else {
				row.Set(h, nil)
			}
		}
		items = append(items, row)
	}
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}
