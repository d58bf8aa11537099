// Package testkit generates synthetic nested survey datasets with known
// injected effects, for tests and for exercising the pipeline without a
// real export.
package testkit

import (
	"fmt"
	"math/rand"

	"golmm/internal/prepare"
)

// OutcomeColumns is the fixed outcome list the surrounding study collects
var OutcomeColumns = []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"}

// SurveyConfig controls the synthetic dataset: sizes, injected effects and
// variance components. Identical seeds produce identical frames.
type SurveyConfig struct {
	Observations int
	Teachers     int
	Schools      int
	Regions      int

	Baseline           float64
	InterventionEffect float64
	TimeEffect         float64
	InteractionEffect  float64
	ExperienceEffect   float64
	ClassSizeEffect    float64

	RegionSD   float64
	SchoolSD   float64
	ResidualSD float64

	Seed int64
}

// DefaultSurveyConfig mirrors the study's scale: 300 responses from 30
// teachers across 10 schools in 3 regions, with a true intervention effect
// and no true interaction
func DefaultSurveyConfig() SurveyConfig {
	return SurveyConfig{
		Observations:       300,
		Teachers:           30,
		Schools:            10,
		Regions:            3,
		Baseline:           60,
		InterventionEffect: 5.0,
		TimeEffect:         0.8,
		InteractionEffect:  0,
		ExperienceEffect:   0.05,
		ClassSizeEffect:    -0.03,
		RegionSD:           0.5,
		SchoolSD:           0.5,
		ResidualSD:         1.0,
		Seed:               42,
	}
}

// GenerateSurveyFrame builds a frame with the strict teacher-in-school-in-
// region nesting, repeated survey waves, covariates and eight outcome
// columns sharing the injected effect structure
func GenerateSurveyFrame(cfg SurveyConfig) *prepare.Frame {
	rng := rand.New(rand.NewSource(cfg.Seed))

	schoolRegion := make([]int, cfg.Schools)
	for s := range schoolRegion {
		schoolRegion[s] = s % cfg.Regions
	}
	teacherSchool := make([]int, cfg.Teachers)
	for t := range teacherSchool {
		teacherSchool[t] = t % cfg.Schools
	}

	// Intervention is assigned at the school level, half and half
	schoolTreated := make([]bool, cfg.Schools)
	for s := range schoolTreated {
		schoolTreated[s] = s%2 == 0
	}

	regionEffect := make([]float64, cfg.Regions)
	for r := range regionEffect {
		regionEffect[r] = rng.NormFloat64() * cfg.RegionSD
	}
	schoolEffect := make([]float64, cfg.Schools)
	for s := range schoolEffect {
		schoolEffect[s] = rng.NormFloat64() * cfg.SchoolSD
	}

	teacherExperience := make([]float64, cfg.Teachers)
	teacherClassSize := make([]float64, cfg.Teachers)
	for t := range teacherExperience {
		teacherExperience[t] = 5 + rng.Float64()*20
		teacherClassSize[t] = 18 + rng.Float64()*14
	}

	n := cfg.Observations
	teacherIDs := make([]string, n)
	schoolIDs := make([]string, n)
	regionIDs := make([]string, n)
	status := make([]string, n)
	intervention := make([]float64, n)
	timeYears := make([]float64, n)
	experience := make([]float64, n)
	classSize := make([]float64, n)
	outcomes := make([][]float64, len(OutcomeColumns))
	for o := range outcomes {
		outcomes[o] = make([]float64, n)
	}

	waves := n / cfg.Teachers
	if waves < 1 {
		waves = 1
	}
	for i := 0; i < n; i++ {
		teacher := i % cfg.Teachers
		wave := (i / cfg.Teachers) % waves
		school := teacherSchool[teacher]
		region := schoolRegion[school]

		teacherIDs[i] = fmt.Sprintf("T%03d", teacher+1)
		schoolIDs[i] = fmt.Sprintf("S%02d", school+1)
		regionIDs[i] = fmt.Sprintf("R%d", region+1)

		treated := 0.0
		status[i] = "Control"
		if schoolTreated[school] {
			treated = 1.0
			status[i] = "Treatment"
		}
		intervention[i] = treated
		timeYears[i] = float64(wave) * 0.5
		experience[i] = teacherExperience[teacher] + timeYears[i]
		classSize[i] = teacherClassSize[teacher]

		base := cfg.Baseline +
			cfg.InterventionEffect*treated +
			cfg.TimeEffect*timeYears[i] +
			cfg.InteractionEffect*treated*timeYears[i] +
			cfg.ExperienceEffect*(experience[i]-15) +
			cfg.ClassSizeEffect*(classSize[i]-25) +
			regionEffect[region] + schoolEffect[school]
		for o := range outcomes {
			outcomes[o][i] = base + float64(o)*0.5 + rng.NormFloat64()*cfg.ResidualSD
		}
	}

	frame := prepare.NewFrame(n)
	mustAdd(frame.AddLabel("teacher_id", teacherIDs))
	mustAdd(frame.AddLabel("school_id", schoolIDs))
	mustAdd(frame.AddLabel("region_id", regionIDs))
	mustAdd(frame.AddLabel("intervention_status", status))
	mustAdd(frame.AddNumeric("intervention", intervention))
	mustAdd(frame.AddNumeric("time_years", timeYears))
	mustAdd(frame.AddNumeric("teaching_experience_years", experience))
	mustAdd(frame.AddNumeric("class_size", classSize))
	for o, name := range OutcomeColumns {
		mustAdd(frame.AddNumeric(name, outcomes[o]))
	}
	return frame
}

func mustAdd(err error) {
	if err != nil {
		panic(err)
	}
}
