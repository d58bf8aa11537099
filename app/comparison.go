package app

import (
	"golmm/domain/model"
	"golmm/internal/lmm"
	"golmm/internal/prepare"
)

// FitSpec prepares and fits one specification against a frame
func FitSpec(frame *prepare.Frame, spec model.Spec, opts model.Options) (*model.Result, error) {
	data, err := prepare.Build(frame, spec)
	if err != nil {
		return nil, err
	}
	return lmm.Fit(data, spec, opts)
}

// CompareSpecs fits the reduced and full specifications on the same frame
// and runs a likelihood-ratio test between them. Preparation drops rows per
// spec, so if the full model references columns the reduced one does not,
// the fits can end up on different rows and Compare will reject them.
func CompareSpecs(frame *prepare.Frame, reduced, full model.Spec, opts model.Options) (*lmm.Comparison, error) {
	a, err := FitSpec(frame, reduced, opts)
	if err != nil {
		return nil, err
	}
	b, err := FitSpec(frame, full, opts)
	if err != nil {
		return nil, err
	}
	return lmm.Compare(reduced, a, full, b)
}
