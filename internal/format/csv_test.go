package format

import (
	"strings"
	"testing"
	"time"

	"github.com/metrogrid/cityql/internal/domain"
)

func TestTimeSeriesCSVExpandsAggregations(t *testing.T) {
	points := []TimeSeriesPoint{
		{
			Time: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			Data: map[string]any{
				"temperature": []AggValue{{Agg: "avg", Value: 21.5}, {Agg: "max", Value: 30}},
				"noise":       55.2,
			},
		},
		{
			Time: time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC),
			Data: map[string]any{
				"temperature": []AggValue{{Agg: "avg", Value: 22}, {Agg: "max", Value: 31}},
				"noise":       54.8,
			},
		},
	}

	out, err := TimeSeriesCSV(points)
	if err != nil {
		t.Fatalf("TimeSeriesCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 records, got %d lines:\n%s", len(lines), out)
	}
	if lines[0] != "time;noise;temperature_avg;temperature_max" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "2026-08-01T12:00:00Z;55.2;21.5;30" {
		t.Fatalf("unexpected first record: %q", lines[1])
	}
}

func TestTimeSeriesCSVEmpty(t *testing.T) {
	out, err := TimeSeriesCSV(nil)
	if err != nil {
		t.Fatalf("TimeSeriesCSV failed: %v", err)
	}
	if out != "time\n" {
		t.Fatalf("expected bare header, got %q", out)
	}
}

func TestTimeSeriesFromRows(t *testing.T) {
	t1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)
	rows := []domain.Row{
		{"TimeInstant": t1, "environment.station.temp": 21.5, "id_entity": "st1"},
		{"TimeInstant": t2, "environment.station.temp": 22.0, "id_entity": "st1"},
		{"environment.station.temp": 99.0, "id_entity": "broken"},
	}

	points := TimeSeriesFromRows("TimeInstant", []string{"environment.station.temp"}, rows)
	if len(points) != 2 {
		t.Fatalf("rows without a timestamp are skipped, got %+v", points)
	}
	if !points[0].Time.Equal(t1) || points[0].Data["environment.station.temp"] != 21.5 {
		t.Fatalf("unexpected first point: %+v", points[0])
	}
	if _, ok := points[0].Data["id_entity"]; ok {
		t.Fatal("unlisted columns must not leak into point data")
	}

	out, err := TimeSeriesCSV(points)
	if err != nil {
		t.Fatalf("TimeSeriesCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "time;environment.station.temp" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "2026-08-01T12:00:00Z;21.5" {
		t.Fatalf("unexpected record: %q", lines[1])
	}
}

func TestRowsCSV(t *testing.T) {
	rows := []domain.Row{
		{"id_entity": "lamp1", "power": 12.5, "status": nil},
		{"id_entity": "lamp2", "power": 9, "status": "on"},
	}

	out, err := RowsCSV(SortedColumns(rows), rows)
	if err != nil {
		t.Fatalf("RowsCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "id_entity;power;status" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "lamp1;12.5;" {
		t.Fatalf("expected empty cell for nil value, got %q", lines[1])
	}
	if lines[2] != "lamp2;9;on" {
		t.Fatalf("unexpected record: %q", lines[2])
	}
}
