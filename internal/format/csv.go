package format

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/metrogrid/cityql/internal/domain"
)

// csvDelimiter matches the delimiter the dashboard importers expect.
const csvDelimiter = ';'

// AggValue is one aggregate of a variable within a time-series point.
type AggValue struct {
	Agg   string  `json:"agg"`
	Value float64 `json:"value"`
}

// TimeSeriesPoint is one timestamped set of variable values. A value may be a
// scalar or a list of AggValue when several aggregations were requested.
type TimeSeriesPoint struct {
	Time time.Time
	Data map[string]any
}

// TimeSeriesCSV renders a time series as delimited text. The header is
// derived from the first point: `time` followed by one column per variable,
// aggregated variables expanded to `{variable}_{agg}`.
func TimeSeriesCSV(points []TimeSeriesPoint) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Comma = csvDelimiter

	fields := []string{"time"}
	if len(points) > 0 {
		fields = append(fields, timeSeriesFields(points[0].Data)...)
	}
	if err := w.Write(fields); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, point := range points {
		record := make([]string, 0, len(fields))
		record = append(record, point.Time.Format(time.RFC3339))

		values := flattenPoint(point.Data)
		for _, field := range fields[1:] {
			record = append(record, formatValue(values[field]))
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return sb.String(), nil
}

// TimeSeriesFromRows lifts assembled rows into time-series points: the given
// timestamp column becomes the point time and the listed value columns its
// data. Rows without a timestamp are skipped; row order is preserved.
func TimeSeriesFromRows(timeColumn string, valueColumns []string, rows []domain.Row) []TimeSeriesPoint {
	points := make([]TimeSeriesPoint, 0, len(rows))
	for _, row := range rows {
		t, ok := row[timeColumn].(time.Time)
		if !ok {
			continue
		}
		data := make(map[string]any, len(valueColumns))
		for _, column := range valueColumns {
			if value, ok := row[column]; ok {
				data[column] = value
			}
		}
		points = append(points, TimeSeriesPoint{Time: t, Data: data})
	}
	return points
}

// RowsCSV renders assembled rows under the given column order.
func RowsCSV(columns []string, rows []domain.Row) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Comma = csvDelimiter

	if err := w.Write(columns); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = formatValue(row[column])
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return sb.String(), nil
}

// SortedColumns returns the row set's column names in a stable order.
func SortedColumns(rows []domain.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

func timeSeriesFields(data map[string]any) []string {
	variables := make([]string, 0, len(data))
	for variable := range data {
		variables = append(variables, variable)
	}
	sort.Strings(variables)

	var fields []string
	for _, variable := range variables {
		if aggs, ok := data[variable].([]AggValue); ok {
			for _, agg := range aggs {
				fields = append(fields, variable+"_"+agg.Agg)
			}
			continue
		}
		fields = append(fields, variable)
	}
	return fields
}

func flattenPoint(data map[string]any) map[string]any {
	values := make(map[string]any, len(data))
	for variable, value := range data {
		if aggs, ok := value.([]AggValue); ok {
			for _, agg := range aggs {
				values[variable+"_"+agg.Agg] = agg.Value
			}
			continue
		}
		values[variable] = value
	}
	return values
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	if t, ok := value.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", value)
}
