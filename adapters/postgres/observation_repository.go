// Package postgres loads the observation table from the survey platform's
// database. The engine itself never writes back.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	apperrors "golmm/internal/errors"
	"golmm/internal/prepare"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// Observation is one teacher-survey response row
type Observation struct {
	TeacherID          string          `db:"teacher_id"`
	SchoolID           string          `db:"school_id"`
	RegionID           string          `db:"region_id"`
	InterventionStatus string          `db:"intervention_status"`
	Intervention       sql.NullFloat64 `db:"intervention"`
	TimeYears          sql.NullFloat64 `db:"time_years"`
	TeachingExperience sql.NullFloat64 `db:"teaching_experience_years"`
	ClassSize          sql.NullFloat64 `db:"class_size"`
	B1                 sql.NullFloat64 `db:"b1"`
	B2                 sql.NullFloat64 `db:"b2"`
	B3                 sql.NullFloat64 `db:"b3"`
	B4                 sql.NullFloat64 `db:"b4"`
	B5                 sql.NullFloat64 `db:"b5"`
	B6                 sql.NullFloat64 `db:"b6"`
	B7                 sql.NullFloat64 `db:"b7"`
	B8                 sql.NullFloat64 `db:"b8"`
}

// ObservationRepository reads survey observations via sqlx
type ObservationRepository struct {
	db    *sqlx.DB
	table string
}

// Connect opens a postgres connection pool
func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to connect to postgres", err)
	}
	return db, nil
}

// NewObservationRepository creates a repository over an open connection
func NewObservationRepository(db *sqlx.DB, table string) *ObservationRepository {
	if table == "" {
		table = "observations"
	}
	return &ObservationRepository{db: db, table: table}
}

// LoadFrame reads the full observation table into a frame
func (r *ObservationRepository) LoadFrame(ctx context.Context) (*prepare.Frame, error) {
	query := fmt.Sprintf(`
		SELECT teacher_id, school_id, region_id, intervention_status,
		       intervention, time_years, teaching_experience_years, class_size,
		       b1, b2, b3, b4, b5, b6, b7, b8
		FROM %s
		ORDER BY teacher_id, time_years`, r.table)

	var observations []Observation
	if err := r.db.SelectContext(ctx, &observations, query); err != nil {
		return nil, apperrors.DataSourceError(r.table, err)
	}
	if len(observations) == 0 {
		return nil, apperrors.DataSourceError(r.table, fmt.Errorf("no observations"))
	}
	return frameFromObservations(observations)
}

func frameFromObservations(observations []Observation) (*prepare.Frame, error) {
	n := len(observations)
	frame := prepare.NewFrame(n)

	labels := map[string]func(Observation) string{
		"teacher_id":          func(o Observation) string { return o.TeacherID },
		"school_id":           func(o Observation) string { return o.SchoolID },
		"region_id":           func(o Observation) string { return o.RegionID },
		"intervention_status": func(o Observation) string { return o.InterventionStatus },
	}
	for _, name := range []string{"teacher_id", "school_id", "region_id", "intervention_status"} {
		get := labels[name]
		values := make([]string, n)
		for i, o := range observations {
			values[i] = get(o)
		}
		if err := frame.AddLabel(name, values); err != nil {
			return nil, err
		}
	}

	numerics := []struct {
		name string
		get  func(Observation) sql.NullFloat64
	}{
		{"intervention", func(o Observation) sql.NullFloat64 { return o.Intervention }},
		{"time_years", func(o Observation) sql.NullFloat64 { return o.TimeYears }},
		{"teaching_experience_years", func(o Observation) sql.NullFloat64 { return o.TeachingExperience }},
		{"class_size", func(o Observation) sql.NullFloat64 { return o.ClassSize }},
		{"b1", func(o Observation) sql.NullFloat64 { return o.B1 }},
		{"b2", func(o Observation) sql.NullFloat64 { return o.B2 }},
		{"b3", func(o Observation) sql.NullFloat64 { return o.B3 }},
		{"b4", func(o Observation) sql.NullFloat64 { return o.B4 }},
		{"b5", func(o Observation) sql.NullFloat64 { return o.B5 }},
		{"b6", func(o Observation) sql.NullFloat64 { return o.B6 }},
		{"b7", func(o Observation) sql.NullFloat64 { return o.B7 }},
		{"b8", func(o Observation) sql.NullFloat64 { return o.B8 }},
	}
	for _, col := range numerics {
		values := make([]float64, n)
		for i, o := range observations {
			nf := col.get(o)
			if nf.Valid {
				values[i] = nf.Float64
			} else {
				values[i] = math.NaN()
			}
		}
		if err := frame.AddNumeric(col.name, values); err != nil {
			return nil, err
		}
	}
	return frame, nil
}
