package report

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golmm/domain/core"
	"golmm/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() *model.BatchSummary {
	nan := model.Stat(math.NaN())
	return &model.BatchSummary{
		BatchID:   core.NewBatchID(),
		CreatedAt: core.Now(),
		Criterion: model.ML,
		Entries: []model.BatchEntry{
			{Outcome: "b1", Result: &model.Result{Response: "b1", Converged: true}},
			{Outcome: "b2", Error: "response b2 has no variance"},
		},
		Rows: []model.SummaryRow{
			{
				Outcome:            "b1",
				Intercept:          60.1,
				InterventionEffect: 4.8,
				InterventionP:      0.002,
				TimeEffect:         0.75,
				TimeP:              0.01,
				InteractionEffect:  0.02,
				InteractionP:       0.91,
				R2Marginal:         0.42,
				R2Conditional:      0.55,
				Converged:          true,
			},
			{
				Outcome:            "b2",
				Intercept:          nan,
				InterventionEffect: nan,
				InterventionP:      nan,
				TimeEffect:         nan,
				TimeP:              nan,
				InteractionEffect:  nan,
				InteractionP:       nan,
				R2Marginal:         nan,
				R2Conditional:      nan,
				Error:              "response b2 has no variance",
			},
		},
		Succeeded: 1,
		Failed:    1,
	}
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	original := sampleSummary()

	require.NoError(t, WriteJSON(path, original))
	loaded, err := ReadSummary(path)
	require.NoError(t, err)

	assert.Equal(t, original.BatchID, loaded.BatchID)
	assert.Equal(t, original.Succeeded, loaded.Succeeded)
	assert.Equal(t, original.Failed, loaded.Failed)
	require.Len(t, loaded.Rows, 2)

	assert.InDelta(t, 4.8, float64(loaded.Rows[0].InterventionEffect), 1e-12)
	assert.True(t, math.IsNaN(float64(loaded.Rows[1].InterventionEffect)),
		"missing statistics must survive the round trip as NaN")
	assert.Equal(t, "response b2 has no variance", loaded.Rows[1].Error)
}

func TestWriteSummaryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	require.NoError(t, WriteSummaryCSV(path, sampleSummary()))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus one row per outcome")

	assert.Equal(t, "outcome", records[0][0])
	assert.Equal(t, "b1", records[1][0])
	assert.Equal(t, "4.8", records[1][2])

	// NaN statistics are blank cells, never literal NaN text
	assert.Equal(t, "b2", records[2][0])
	assert.Equal(t, "", records[2][2])
	assert.Equal(t, "response b2 has no variance", records[2][11])
}

func TestReadSummary_MissingFile(t *testing.T) {
	_, err := ReadSummary(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
