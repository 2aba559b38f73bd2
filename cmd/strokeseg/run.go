package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/strokeworks/strokeseg/internal/dataset"
	"github.com/strokeworks/strokeseg/internal/inference"
	"github.com/strokeworks/strokeseg/internal/pipeline"
)

var (
	runCase   string
	runIndex  int
	runAll    bool
	runOutput string
	runNoFast bool
	runNoGPU  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the segmentation pipeline directly",
	Long: `Run DeepISLES segmentation on one case (--case or --index) or the
whole dataset (--all), without going through the API server. Dice
scores are computed whenever a case ships ground truth.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runCase, "case", "", "case ID (e.g. sub-stroke0001)")
	runCmd.Flags().IntVar(&runIndex, "index", -1, "case index, alternative to --case")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every case in the dataset")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output directory (default: temp dir)")
	runCmd.Flags().BoolVar(&runNoFast, "no-fast", false, "disable fast mode (SEALS-only)")
	runCmd.Flags().BoolVar(&runNoGPU, "no-gpu", false, "disable GPU")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	if !runAll && runCase == "" && runIndex < 0 {
		return errors.New("must specify --case, --index or --all")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg.Log)

	ds, err := dataset.Open(cfg.Dataset.Root, cfg.Dataset.Manifest)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	runner, err := inference.NewRunner(cmd.Context(), cfg.Inference, nil)
	if err != nil {
		return fmt.Errorf("create inference runner: %w", err)
	}
	p := pipeline.New(ds, runner, nil)

	params := pipeline.RunParams{
		OutputDir:      runOutput,
		Fast:           !runNoFast,
		GPU:            !runNoGPU,
		ComputeDice:    true,
		CleanupStaging: true,
	}
	out := cmd.OutOrStdout()

	if runAll {
		return runBatch(cmd, p, ds.CaseIDs(), params)
	}

	caseID := runCase
	if caseID == "" {
		caseID, _, err = dataset.CaseByIndex(ds, runIndex)
		if err != nil {
			return err
		}
	}
	params.CaseID = caseID

	fmt.Fprintf(out, "Running pipeline on case: %s (fast=%v, gpu=%v)\n", caseID, params.Fast, params.GPU)
	res, err := p.Run(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}
	printCaseResult(out, res)
	return nil
}

func runBatch(cmd *cobra.Command, p *pipeline.Pipeline, caseIDs []string, params pipeline.RunParams) error {
	bar := progressbar.NewOptions(len(caseIDs),
		progressbar.OptionSetDescription("segmenting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(500*time.Millisecond),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(false),
	)

	var items []pipeline.BatchItem
	for _, id := range caseIDs {
		runParams := params
		runParams.CaseID = id
		res, err := p.Run(cmd.Context(), runParams)
		items = append(items, pipeline.BatchItem{CaseID: id, Result: res, Err: err})
		bar.Add(1)
	}
	fmt.Fprintln(os.Stderr)

	out := cmd.OutOrStdout()
	for _, it := range items {
		if it.Err != nil {
			fmt.Fprintf(out, "%s: FAILED (%v)\n", it.CaseID, it.Err)
			continue
		}
		if it.Result.DiceScore != nil {
			fmt.Fprintf(out, "%s: dice=%.4f elapsed=%.1fs\n", it.CaseID, *it.Result.DiceScore, it.Result.ElapsedSeconds)
		} else {
			fmt.Fprintf(out, "%s: elapsed=%.1fs (no ground truth)\n", it.CaseID, it.Result.ElapsedSeconds)
		}
	}

	printSummary(out, pipeline.Summarize(items))
	return nil
}

func printCaseResult(w io.Writer, res pipeline.CaseResult) {
	fmt.Fprintln(w, "\nPipeline Completed Successfully!")
	fmt.Fprintf(w, "Case ID: %s\n", res.CaseID)
	fmt.Fprintf(w, "Prediction: %s\n", res.PredictionPath)
	if res.GroundTruth != "" {
		fmt.Fprintf(w, "Ground Truth: %s\n", res.GroundTruth)
		if res.DiceScore != nil {
			fmt.Fprintf(w, "Dice Score: %.4f\n", *res.DiceScore)
		}
	} else {
		fmt.Fprintln(w, "No Ground Truth available.")
	}
	fmt.Fprintf(w, "Elapsed: %.1fs\n", res.ElapsedSeconds)
}

func printSummary(w io.Writer, s pipeline.Summary) {
	fmt.Fprintf(w, "\nBatch summary: %d cases, %d ok, %d failed\n", s.NumCases, s.NumSuccessful, s.NumFailed)
	if s.MeanDice != nil {
		fmt.Fprintf(w, "Dice: mean=%.4f std=%.4f min=%.4f max=%.4f\n",
			*s.MeanDice, *s.StdDice, *s.MinDice, *s.MaxDice)
	}
	fmt.Fprintf(w, "Mean elapsed: %.1fs\n", s.MeanElapsedSeconds)
}
