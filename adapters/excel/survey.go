package excel

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golmm/internal/prepare"
)

// Columns carried as labels rather than parsed as numbers; everything else
// is numeric with NaN for unparseable or empty cells
var labelColumns = map[string]bool{
	"teacher_id":          true,
	"school_id":           true,
	"region_id":           true,
	"region":              true,
	"intervention_status": true,
	"survey_date":         true,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"01-02-06",
}

// LoadFrame reads the observation table and derives the modeling columns the
// raw export lacks: time_years from survey_date (years since the earliest
// survey) and a 0/1 intervention indicator from intervention_status
// (Treatment = 1).
func LoadFrame(filePath string) (*prepare.Frame, error) {
	reader := NewDataReader(filePath)
	header, rows, err := reader.ReadRows()
	if err != nil {
		return nil, err
	}
	frame, err := BuildFrame(header, rows)
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// BuildFrame turns raw string records into a typed frame with the derived
// modeling columns
func BuildFrame(header []string, rows [][]string) (*prepare.Frame, error) {
	n := len(rows)
	frame := prepare.NewFrame(n)

	cell := func(row []string, j int) string {
		if j >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[j])
	}

	for j, name := range header {
		if name == "" {
			continue
		}
		if labelColumns[name] {
			values := make([]string, n)
			for i, row := range rows {
				values[i] = cell(row, j)
			}
			if err := frame.AddLabel(name, values); err != nil {
				return nil, err
			}
			continue
		}
		values := make([]float64, n)
		for i, row := range rows {
			v, err := strconv.ParseFloat(cell(row, j), 64)
			if err != nil {
				v = math.NaN()
			}
			values[i] = v
		}
		if err := frame.AddNumeric(name, values); err != nil {
			return nil, err
		}
	}

	if err := deriveTimeYears(frame); err != nil {
		return nil, err
	}
	if err := deriveIntervention(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// deriveTimeYears computes years since the first survey date; kept as-is
// when the export already carries a time_years column
func deriveTimeYears(frame *prepare.Frame) error {
	if frame.Has("time_years") {
		return nil
	}
	dates, ok := frame.Label("survey_date")
	if !ok {
		return nil
	}

	parsed := make([]time.Time, len(dates))
	valid := make([]bool, len(dates))
	var min time.Time
	for i, raw := range dates {
		t, ok := parseDate(raw)
		if !ok {
			continue
		}
		parsed[i] = t
		valid[i] = true
		if min.IsZero() || t.Before(min) {
			min = t
		}
	}

	values := make([]float64, len(dates))
	for i := range values {
		if !valid[i] {
			values[i] = math.NaN()
			continue
		}
		values[i] = parsed[i].Sub(min).Hours() / 24 / 365.25
	}
	return frame.AddNumeric("time_years", values)
}

// deriveIntervention recodes intervention_status to a 0/1 indicator
func deriveIntervention(frame *prepare.Frame) error {
	if frame.Has("intervention") {
		return nil
	}
	status, ok := frame.Label("intervention_status")
	if !ok {
		return nil
	}
	values := make([]float64, len(status))
	for i, s := range status {
		switch {
		case s == "":
			values[i] = math.NaN()
		case strings.EqualFold(s, "Treatment"):
			values[i] = 1
		default:
			values[i] = 0
		}
	}
	return frame.AddNumeric("intervention", values)
}

func parseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
