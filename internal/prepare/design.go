package prepare

import (
	"fmt"
	"math"
	"sort"

	"golmm/domain/core"
	"golmm/domain/model"

	"gonum.org/v1/gonum/mat"
)

// InterceptName is the column name of the implicit intercept
const InterceptName = "(Intercept)"

// Level holds the arena-indexed grouping structure for one nesting level:
// group identity is a flat integer, not an object reference
type Level struct {
	Name   string   // grouping column
	Groups []string // arena: label per group index
	Index  []int    // per kept row: group index
}

// NumGroups returns the number of distinct groups at this level
func (l Level) NumGroups() int { return len(l.Groups) }

// ModelData is the prepared input for one fit: fixed-effect design matrix,
// response vector and group-index arenas. Read-only after Build.
type ModelData struct {
	X        *mat.Dense
	Y        []float64
	ColNames []string

	Levels    []Level // outermost first
	TopBlocks [][]int // kept-row indices per outermost group

	RowsUsed    int
	RowsDropped int
	Centers     map[string]float64 // applied covariate centers
}

// N returns the effective sample size
func (d *ModelData) N() int { return d.RowsUsed }

// P returns the number of fixed-effect columns
func (d *ModelData) P() int { return len(d.ColNames) }

// Build validates the frame against the specification and constructs the
// model matrices. Rows with a missing response or covariate are dropped and
// counted, never silently absorbed. Continuous covariates are centered
// before matrix construction; this decorrelates the intercept from slope
// estimates and conditions the downstream solves.
func Build(f *Frame, spec model.Spec) (*ModelData, error) {
	if _, ok := f.Numeric(spec.Response); !ok {
		return nil, core.NewSchemaError(spec.Response)
	}
	factors := collectFactors(spec)
	for _, col := range factors {
		if !f.Has(col) {
			return nil, core.NewSchemaError(col)
		}
	}
	for _, col := range spec.Nesting {
		if !f.Has(col) {
			return nil, core.NewSchemaError(col)
		}
	}

	// Nesting integrity is checked across the whole dataset, before any
	// row-dropping, so a school split across regions cannot hide behind a
	// missing covariate.
	if err := checkNesting(f, spec.Nesting); err != nil {
		return nil, err
	}

	keep := selectRows(f, spec, factors)
	dropped := f.Len() - len(keep)
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: every row is missing the response or a covariate",
			core.ErrMissingData)
	}
	if len(keep) < len(spec.Terms)+2 {
		return nil, fmt.Errorf("%w: %d usable rows for %d terms",
			core.ErrInsufficientData, len(keep), len(spec.Terms))
	}

	centers := computeCenters(f, factors, keep)
	columns, err := expandTerms(f, spec, keep, centers)
	if err != nil {
		return nil, err
	}

	n, p := len(keep), len(columns)+1
	x := mat.NewDense(n, p, nil)
	names := make([]string, 0, p)
	names = append(names, InterceptName)
	for i := range keep {
		x.Set(i, 0, 1)
	}
	for j, col := range columns {
		names = append(names, col.name)
		for i := range keep {
			x.Set(i, j+1, col.values[i])
		}
	}

	resp, _ := f.Numeric(spec.Response)
	y := make([]float64, n)
	for i, row := range keep {
		y[i] = resp[row]
	}

	levels := buildLevels(f, spec.Nesting, keep)
	blocks := make([][]int, levels[0].NumGroups())
	for i, g := range levels[0].Index {
		blocks[g] = append(blocks[g], i)
	}

	return &ModelData{
		X:           x,
		Y:           y,
		ColNames:    names,
		Levels:      levels,
		TopBlocks:   blocks,
		RowsUsed:    n,
		RowsDropped: dropped,
		Centers:     centers,
	}, nil
}

// collectFactors returns the distinct base columns referenced by the terms
func collectFactors(spec model.Spec) []string {
	seen := make(map[string]bool)
	var out []string
	for _, term := range spec.Terms {
		for _, factor := range term.Factors {
			if !seen[factor] {
				seen[factor] = true
				out = append(out, factor)
			}
		}
	}
	return out
}

// selectRows returns indices of rows with a present response, present
// covariates and present grouping labels
func selectRows(f *Frame, spec model.Spec, factors []string) []int {
	resp, _ := f.Numeric(spec.Response)
	var keep []int
rows:
	for i := 0; i < f.Len(); i++ {
		if math.IsNaN(resp[i]) {
			continue
		}
		for _, col := range factors {
			if vals, ok := f.Numeric(col); ok {
				if math.IsNaN(vals[i]) {
					continue rows
				}
			} else if vals, ok := f.Label(col); ok {
				if vals[i] == "" {
					continue rows
				}
			}
		}
		for _, col := range spec.Nesting {
			if _, ok := f.groupKey(col, i); !ok {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	return keep
}

// checkNesting verifies the strict hierarchy: each group at an inner level
// must map to exactly one group at the level above it
func checkNesting(f *Frame, nesting []string) error {
	for k := 1; k < len(nesting); k++ {
		outer, inner := nesting[k-1], nesting[k]
		parent := make(map[string]string)
		for i := 0; i < f.Len(); i++ {
			innerKey, okInner := f.groupKey(inner, i)
			outerKey, okOuter := f.groupKey(outer, i)
			if !okInner || !okOuter {
				continue
			}
			if prev, seen := parent[innerKey]; seen && prev != outerKey {
				return core.NewNestingViolationError(inner, innerKey, outer, prev, outerKey)
			}
			parent[innerKey] = outerKey
		}
	}
	return nil
}

// computeCenters returns the mean of each continuous covariate over the kept
// rows. Binary indicator columns (two or fewer distinct values) keep their
// natural coding.
func computeCenters(f *Frame, factors []string, keep []int) map[string]float64 {
	centers := make(map[string]float64)
	for _, col := range factors {
		vals, ok := f.Numeric(col)
		if !ok {
			continue
		}
		distinct := make(map[float64]bool)
		sum := 0.0
		for _, row := range keep {
			distinct[vals[row]] = true
			sum += vals[row]
		}
		if len(distinct) <= 2 {
			continue
		}
		centers[col] = sum / float64(len(keep))
	}
	return centers
}

// designColumn is one expanded fixed-effect column over the kept rows
type designColumn struct {
	name   string
	values []float64
}

// expandTerms turns each term into one or more design columns: a centered
// numeric column, C-1 dummy columns for a categorical (first sorted level is
// the reference), or the products of those expansions for an interaction
func expandTerms(f *Frame, spec model.Spec, keep []int, centers map[string]float64) ([]designColumn, error) {
	var out []designColumn
	for _, term := range spec.Terms {
		expanded := [][]designColumn{}
		factorOrder := append([]string(nil), term.Factors...)
		sort.Strings(factorOrder) // canonical order matches Term.String
		for _, factor := range factorOrder {
			cols, err := expandFactor(f, factor, keep, centers)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, cols)
		}
		out = append(out, product(expanded)...)
	}
	return out, nil
}

func expandFactor(f *Frame, factor string, keep []int, centers map[string]float64) ([]designColumn, error) {
	if vals, ok := f.Numeric(factor); ok {
		center := centers[factor]
		col := designColumn{name: factor, values: make([]float64, len(keep))}
		for i, row := range keep {
			col.values[i] = vals[row] - center
		}
		return []designColumn{col}, nil
	}
	vals, ok := f.Label(factor)
	if !ok {
		return nil, core.NewSchemaError(factor)
	}
	levelSet := make(map[string]bool)
	for _, row := range keep {
		levelSet[vals[row]] = true
	}
	levels := make([]string, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	if len(levels) < 2 {
		return nil, fmt.Errorf("%w: categorical %q has a single level",
			core.ErrInsufficientData, factor)
	}
	cols := make([]designColumn, 0, len(levels)-1)
	for _, level := range levels[1:] { // first level is the reference
		col := designColumn{
			name:   fmt.Sprintf("%s[%s]", factor, level),
			values: make([]float64, len(keep)),
		}
		for i, row := range keep {
			if vals[row] == level {
				col.values[i] = 1
			}
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// product combines per-factor expansions into interaction columns
func product(groups [][]designColumn) []designColumn {
	out := groups[0]
	for _, next := range groups[1:] {
		combined := make([]designColumn, 0, len(out)*len(next))
		for _, a := range out {
			for _, b := range next {
				col := designColumn{
					name:   a.name + ":" + b.name,
					values: make([]float64, len(a.values)),
				}
				for i := range a.values {
					col.values[i] = a.values[i] * b.values[i]
				}
				combined = append(combined, col)
			}
		}
		out = combined
	}
	return out
}

// buildLevels assigns arena group indices per nesting level over kept rows
func buildLevels(f *Frame, nesting []string, keep []int) []Level {
	levels := make([]Level, len(nesting))
	for k, name := range nesting {
		index := make(map[string]int)
		lvl := Level{Name: name, Index: make([]int, len(keep))}
		for i, row := range keep {
			key, _ := f.groupKey(name, row)
			g, ok := index[key]
			if !ok {
				g = len(lvl.Groups)
				index[key] = g
				lvl.Groups = append(lvl.Groups, key)
			}
			lvl.Index[i] = g
		}
		levels[k] = lvl
	}
	return levels
}
