package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/internal/store"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/utils"
)

// ResultFileName is the name of the persisted pipeline result.
const ResultFileName = "pipeline_result.json"

// Exporter writes run artifacts under the output directory.
type Exporter struct {
	out       *utils.OutputManager
	exportCSV bool
	log       *logger.Logger
	now       func() time.Time
}

// NewExporter returns an Exporter rooted at outputDir. Aggregate CSVs are only
// written when exportCSV is set.
func NewExporter(outputDir string, exportCSV bool, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Exporter{
		out:       utils.NewOutputManager(outputDir),
		exportCSV: exportCSV,
		log:       log,
		now:       time.Now,
	}
}

// Export writes the result JSON and, when enabled and available, one CSV per
// summary table. Failures are reported per file and never abort the others.
func (e *Exporter) Export(result *model.PipelineResult, tables *model.AnalyticsTables) []model.ExportResult {
	exports := []model.ExportResult{e.WriteResult(result)}
	if !e.exportCSV || tables == nil {
		return exports
	}

	csvTables := []struct {
		name string
		rows []store.Row
	}{
		{store.TableDailySales, toRows(tables.DailySales)},
		{store.TableUserAnalytics, toRows(tables.UserAnalytics)},
		{store.TableProductPerformance, toRows(tables.ProductPerformance)},
		{store.TableFinancialReports, toRows(tables.FinancialReports)},
	}
	for _, t := range csvTables {
		exports = append(exports, e.WriteCSV(result.RunID, t.name, t.rows))
	}
	return exports
}

// WriteResult persists result as indented JSON.
func (e *Exporter) WriteResult(result *model.PipelineResult) model.ExportResult {
	path, err := e.out.FilePath(result.RunID, ResultFileName)
	if err == nil {
		err = writeJSON(path, result)
	}
	return e.report("json", path, 1, err)
}

// WriteCSV writes rows of a registered table with a header in schema order.
func (e *Exporter) WriteCSV(runID, table string, rows []store.Row) model.ExportResult {
	path, err := e.out.FilePath(runID, table+".csv")
	if err == nil {
		err = writeCSV(path, table, rows)
	}
	return e.report("csv", path, len(rows), err)
}

func (e *Exporter) report(kind, path string, count int, err error) model.ExportResult {
	r := model.ExportResult{
		Type:        kind,
		Path:        path,
		RecordCount: count,
		Success:     err == nil,
		Timestamp:   e.now(),
	}
	if err != nil {
		r.Error = err.Error()
		r.RecordCount = 0
		e.log.Error("export failed", "type", kind, "path", path, "error", err)
		return r
	}
	e.log.Info("export written", "type", kind, "path", path, "records", count)
	return r
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return f.Close()
}

func writeCSV(path, table string, rows []store.Row) error {
	schema, ok := store.Tables[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		record := make([]string, len(header))
		for i, col := range header {
			record[i] = csvValue(r[col])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// csvValue renders a cell. nil and nil pointers are empty; maps are JSON.
func csvValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return ""
		}
		return csvValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
