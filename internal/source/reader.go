package source

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/pkg/utils"
)

// Reader returns the raw records of one kind.
type Reader interface {
	Read(ctx context.Context, kind model.RecordKind) ([]model.RawRecord, error)
}

// FileReader reads a local JSON or CSV file chosen by extension.
type FileReader struct {
	Path string
}

func (r FileReader) Read(ctx context.Context, kind model.RecordKind) ([]model.RawRecord, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newSourceError(ErrNotFound, kind, r.Path, err)
		}
		return nil, newSourceError(ErrIO, kind, r.Path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(r.Path)) {
	case ".csv":
		return readCSV(ctx, f, kind, r.Path)
	default:
		return readJSON(f, kind, r.Path)
	}
}

// readCSV maps each row onto the header names. Cells are typed with
// utils.ParseValue.
func readCSV(ctx context.Context, rd io.Reader, kind model.RecordKind, location string) ([]model.RawRecord, error) {
	csvReader := csv.NewReader(rd)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true

	headers, err := csvReader.Read()
	if err == io.EOF {
		return nil, newSourceError(ErrParse, kind, location, errors.New("empty csv"))
	}
	if err != nil {
		return nil, newSourceError(ErrParse, kind, location, fmt.Errorf("read header: %w", err))
	}
	for i, h := range headers {
		headers[i] = strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
	}

	var records []model.RawRecord
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, newSourceError(ErrIO, kind, location, err)
		}
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newSourceError(ErrParse, kind, location, fmt.Errorf("line %d: %w", line, err))
		}
		rec := make(model.RawRecord, len(headers))
		for i, h := range headers {
			if i < len(row) {
				if v := utils.ParseValue(row[i]); v != nil {
					rec[h] = v
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// readJSON accepts an array of objects or a single object.
func readJSON(rd io.Reader, kind model.RecordKind, location string) ([]model.RawRecord, error) {
	body, err := io.ReadAll(rd)
	if err != nil {
		return nil, newSourceError(ErrIO, kind, location, err)
	}
	records, err := decodeRecords(body)
	if err != nil {
		return nil, newSourceError(ErrParse, kind, location, err)
	}
	return records, nil
}

func decodeRecords(body []byte) ([]model.RawRecord, error) {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	switch data := raw.(type) {
	case []interface{}:
		records := make([]model.RawRecord, 0, len(data))
		for i, item := range data {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("element %d is %T, want object", i, item)
			}
			records = append(records, model.RawRecord(m))
		}
		return records, nil
	case map[string]interface{}:
		return []model.RawRecord{data}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON structure %T", raw)
	}
}
