package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golmm/adapters/excel"
	"golmm/adapters/postgres"
	"golmm/app"
	"golmm/domain/model"
	"golmm/internal"
	"golmm/internal/config"
	"golmm/internal/diagnostics"
	"golmm/internal/lmm"
	"golmm/internal/prepare"
	"golmm/internal/report"
	"golmm/internal/testkit"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "golmm-analyze",
		Short: "Hierarchical regression over nested teacher-survey data",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newICCCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var synthetic bool
	var dataFile string
	var outDir string
	var outcomesFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit the intervention model across all outcomes and export the summary",
		Long: `Fit intervention * time_years + region + teaching experience + class size
with random intercepts for region and school, one fit per outcome, then run
a likelihood-ratio test of the interaction and write summary artifacts.

Data comes from DATA_FILE (.xlsx or .csv), DATABASE_URL, or --synthetic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), synthetic, dataFile, outDir, splitOutcomes(outcomesFlag))
		},
	}

	cmd.Flags().BoolVar(&synthetic, "synthetic", false, "Use the seeded synthetic survey dataset")
	cmd.Flags().StringVar(&dataFile, "data", "", "Observation table (.xlsx or .csv); overrides DATA_FILE")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory for exported artifacts")
	cmd.Flags().StringVar(&outcomesFlag, "outcomes", strings.Join(testkit.OutcomeColumns, ","), "Comma-separated outcome columns")

	return cmd
}

func newICCCmd() *cobra.Command {
	var synthetic bool
	var dataFile string
	var outcomesFlag string

	cmd := &cobra.Command{
		Use:   "icc",
		Short: "Report intercept-only variance decompositions per outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			frame, err := loadFrame(cmd.Context(), cfg, logger, synthetic, dataFile)
			if err != nil {
				return err
			}
			rows, err := app.NullModelReport(frame, cfg.Options(), splitOutcomes(outcomesFlag), logger)
			if err != nil {
				return err
			}
			for _, row := range rows {
				fmt.Printf("%-4s  region ICC %.3f  school ICC %.3f  residual %.3f\n",
					row.Outcome, row.RegionICC, row.SchoolICC, row.ResidualShare)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&synthetic, "synthetic", false, "Use the seeded synthetic survey dataset")
	cmd.Flags().StringVar(&dataFile, "data", "", "Observation table (.xlsx or .csv); overrides DATA_FILE")
	cmd.Flags().StringVar(&outcomesFlag, "outcomes", strings.Join(testkit.OutcomeColumns, ","), "Comma-separated outcome columns")

	return cmd
}

func runPipeline(ctx context.Context, synthetic bool, dataFile, outDir string, outcomes []string) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	frame, err := loadFrame(ctx, cfg, logger, synthetic, dataFile)
	if err != nil {
		return err
	}
	logger.Info("loaded %d observations", frame.Len())

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Intercept-only decomposition first; it tells the analyst how much
	// outcome variance sits at each nesting level before any covariates
	iccRows, err := app.NullModelReport(frame, cfg.Options(), outcomes, logger)
	if err != nil {
		return err
	}
	if err := report.WriteJSON(filepath.Join(outDir, "icc.json"), iccRows); err != nil {
		return err
	}

	template := studySpec(cfg.Engine.Criterion)
	runner := app.NewBatchRunner(logger, cfg.Engine.Workers, cfg.Options())
	summary := runner.Run(ctx, frame, template, outcomes)

	comparisons := interactionTests(frame, template, cfg.Options(), outcomes, logger)
	reports := diagnosticReports(summary, logger)

	if err := report.WriteJSON(filepath.Join(outDir, "summary.json"), summary); err != nil {
		return err
	}
	if err := report.WriteSummaryCSV(filepath.Join(outDir, "summary.csv"), summary); err != nil {
		return err
	}
	if err := report.WriteJSON(filepath.Join(outDir, "lrt.json"), comparisons); err != nil {
		return err
	}
	if err := report.WriteJSON(filepath.Join(outDir, "diagnostics.json"), reports); err != nil {
		return err
	}

	logger.Info("exported summary for %d outcomes to %s (%d succeeded, %d failed)",
		len(outcomes), outDir, summary.Succeeded, summary.Failed)
	return nil
}

func loadEnv() (*config.Config, *internal.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, internal.NewDefaultLogger(), nil
}

func loadFrame(ctx context.Context, cfg *config.Config, logger *internal.Logger, synthetic bool, dataFile string) (*prepare.Frame, error) {
	switch {
	case synthetic:
		logger.Info("generating synthetic survey data")
		return testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig()), nil
	case dataFile != "" || cfg.Data.File != "":
		path := dataFile
		if path == "" {
			path = cfg.Data.File
		}
		logger.Info("reading observation table from %s", path)
		return excel.LoadFrame(path)
	case cfg.Data.DatabaseURL != "":
		logger.Info("reading observation table from postgres table %s", cfg.Data.Table)
		db, err := postgres.Connect(cfg.Data.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		repo := postgres.NewObservationRepository(db, cfg.Data.Table)
		return repo.LoadFrame(ctx)
	default:
		return nil, fmt.Errorf("no data source: set DATA_FILE or DATABASE_URL, or pass --synthetic")
	}
}

// studySpec is the full intervention model fitted per outcome
func studySpec(criterion model.Criterion) model.Spec {
	return model.MustNewSpec("b1",
		[]model.Term{
			model.NewTerm("intervention"),
			model.NewTerm("time_years"),
			model.Interaction("intervention", "time_years"),
			model.NewTerm("teaching_experience_years"),
			model.NewTerm("class_size"),
		},
		[]string{"region_id", "school_id"},
		criterion,
	)
}

// mainEffectsSpec drops the interaction for the likelihood-ratio test
func mainEffectsSpec() model.Spec {
	return model.MustNewSpec("b1",
		[]model.Term{
			model.NewTerm("intervention"),
			model.NewTerm("time_years"),
			model.NewTerm("teaching_experience_years"),
			model.NewTerm("class_size"),
		},
		[]string{"region_id", "school_id"},
		model.ML,
	)
}

// interactionTests runs the nested likelihood-ratio test of the
// intervention-by-time interaction per outcome. Both fits use ML regardless
// of the template's criterion; REML log-likelihoods are not comparable
// across different fixed-effect sets.
func interactionTests(frame *prepare.Frame, template model.Spec, opts model.Options, outcomes []string, logger *internal.Logger) []*lmm.Comparison {
	var comparisons []*lmm.Comparison
	for _, outcome := range outcomes {
		reduced := mainEffectsSpec().WithResponse(outcome)
		full := template.WithCriterion(model.ML).WithResponse(outcome)
		cmp, err := app.CompareSpecs(frame, reduced, full, opts)
		if err != nil {
			logger.Warn("outcome %s: interaction test failed: %v", outcome, err)
			continue
		}
		logger.Info("outcome %s: interaction LR=%.3f df=%d p=%.4f",
			outcome, cmp.LRStatistic, cmp.DFDiff, cmp.PValue)
		comparisons = append(comparisons, cmp)
	}
	return comparisons
}

func diagnosticReports(summary *model.BatchSummary, logger *internal.Logger) []*diagnostics.Report {
	var reports []*diagnostics.Report
	for _, entry := range summary.Entries {
		if entry.Failed() {
			continue
		}
		rep, err := diagnostics.Diagnose(entry.Result)
		if err != nil {
			logger.Warn("outcome %s: diagnostics failed: %v", entry.Outcome, err)
			continue
		}
		reports = append(reports, rep)
	}
	return reports
}

func splitOutcomes(flag string) []string {
	var outcomes []string
	for _, part := range strings.Split(flag, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			outcomes = append(outcomes, trimmed)
		}
	}
	return outcomes
}
