package config

import (
	"testing"

	"golmm/domain/model"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"ESTIMATION_CRITERION", "MAX_ITERATIONS", "VARIANCE_FLOOR", "DF_APPROXIMATION", "WORKERS", "PORT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.Criterion != model.REML {
		t.Errorf("default criterion %s, want REML", cfg.Engine.Criterion)
	}
	if cfg.Engine.DFMethod != model.DFResidual {
		t.Errorf("default df method %s, want residual", cfg.Engine.DFMethod)
	}
	if cfg.Engine.MaxIterations != model.DefaultOptions().MaxIterations {
		t.Errorf("default iterations %d", cfg.Engine.MaxIterations)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("default port %s", cfg.Server.Port)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ESTIMATION_CRITERION", "ML")
	t.Setenv("MAX_ITERATIONS", "250")
	t.Setenv("DF_APPROXIMATION", "satterthwaite")
	t.Setenv("WORKERS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.Criterion != model.ML || cfg.Engine.Workers != 3 {
		t.Errorf("overrides not applied: %+v", cfg.Engine)
	}

	opts := cfg.Options()
	if opts.MaxIterations != 250 || opts.DFMethod != model.DFSatterthwaite {
		t.Errorf("options mapping wrong: %+v", opts)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("ESTIMATION_CRITERION", "MAP")
	if _, err := Load(); err == nil {
		t.Error("unknown criterion must be rejected")
	}
	t.Setenv("ESTIMATION_CRITERION", "REML")

	t.Setenv("DF_APPROXIMATION", "kenward")
	if _, err := Load(); err == nil {
		t.Error("unknown df method must be rejected")
	}
	t.Setenv("DF_APPROXIMATION", "residual")

	t.Setenv("MAX_ITERATIONS", "-5")
	if _, err := Load(); err == nil {
		t.Error("negative iteration budget must be rejected")
	}
}
