package model

import (
	"fmt"
	"math"

	"golmm/domain/core"
)

// WarningCode represents structured warning types attached to a Result
type WarningCode string

const (
	WarningConvergence   WarningCode = "CONVERGENCE_NOT_REACHED" // optimizer stopped at its budget
	WarningVarianceFloor WarningCode = "VARIANCE_AT_FLOOR"       // boundary solution, component clamped
	WarningRowsDropped   WarningCode = "ROWS_DROPPED"            // rows removed for missing data
	WarningDFFallback    WarningCode = "DF_FALLBACK"             // satterthwaite df unavailable, residual used
)

// Warning is a recoverable condition recorded on a Result, never swallowed
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Coefficient is one fixed-effect estimate with its significance test
type Coefficient struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
	TValue   float64 `json:"t_value"`
	DF       float64 `json:"df"`
	PValue   float64 `json:"p_value"`
}

// VarianceComponent is one estimated variance parameter.
// Level is a grouping column name, or ResidualLevel for the residual term.
type VarianceComponent struct {
	Level    string  `json:"level"`
	Variance float64 `json:"variance"`
	ICC      float64 `json:"icc"` // fraction of total variance at this level; 0 for residual
	AtFloor  bool    `json:"at_floor,omitempty"`
}

// ResidualLevel names the residual variance component
const ResidualLevel = "residual"

// RandomEffect is the BLUP for one group at one nesting level
type RandomEffect struct {
	Level string  `json:"level"`
	Group string  `json:"group"`
	BLUP  float64 `json:"blup"`
}

// Result is the immutable output of fitting one Spec. A new fit produces a
// new Result; nothing mutates a prior one. All fields are plain records
// suitable for JSON/CSV serialization.
type Result struct {
	FitID     core.FitID     `json:"fit_id"`
	Response  string         `json:"response"`
	Criterion Criterion      `json:"criterion"`
	DFMethod  DFMethod       `json:"df_method"`
	CreatedAt core.Timestamp `json:"created_at"`

	Coefficients []Coefficient       `json:"coefficients"`
	Components   []VarianceComponent `json:"variance_components"`

	LogLik    float64 `json:"log_likelihood"`
	NumParams int     `json:"num_params"` // fixed effects + variance parameters
	AIC       float64 `json:"aic"`
	BIC       float64 `json:"bic"`

	R2Marginal    float64 `json:"r2_marginal"`
	R2Conditional float64 `json:"r2_conditional"`

	RandomEffects []RandomEffect `json:"random_effects"`
	Fitted        []float64      `json:"fitted"`    // conditional fitted values
	Residuals     []float64      `json:"residuals"` // y - conditional fitted

	RowsUsed    int `json:"rows_used"`
	RowsDropped int `json:"rows_dropped"`

	Converged bool      `json:"converged"`
	EvalCount int       `json:"eval_count"` // likelihood evaluations spent
	Warnings  []Warning `json:"warnings,omitempty"`
}

// Coefficient returns the named coefficient, if present
func (r *Result) Coefficient(name string) (Coefficient, bool) {
	for _, c := range r.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// Component returns the variance component for a level, if present
func (r *Result) Component(level string) (VarianceComponent, bool) {
	for _, c := range r.Components {
		if c.Level == level {
			return c, true
		}
	}
	return VarianceComponent{}, false
}

// TotalVariance returns the sum of all variance components including residual
func (r *Result) TotalVariance() float64 {
	total := 0.0
	for _, c := range r.Components {
		total += c.Variance
	}
	return total
}

// AddWarning records a structured warning during construction; Results are
// not mutated after they are published
func (r *Result) AddWarning(code WarningCode, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
}

// HasWarning reports whether a warning with the given code is present
func (r *Result) HasWarning(code WarningCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// InformationCriteria computes AIC and BIC from a log-likelihood,
// parameter count and sample size
func InformationCriteria(logLik float64, numParams, n int) (aic, bic float64) {
	aic = -2*logLik + 2*float64(numParams)
	bic = -2*logLik + float64(numParams)*math.Log(float64(n))
	return aic, bic
}
