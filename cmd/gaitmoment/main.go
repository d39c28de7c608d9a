// Command gaitmoment runs the knee moment estimation workflow: process
// turns raw recording sessions into a step-sample dataset, train fits the
// estimator on a processed run, and evaluate scores a model on held-out
// subjects.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/stride-data/gaitmoment/internal/config"
	"github.com/stride-data/gaitmoment/internal/estimate"
	"github.com/stride-data/gaitmoment/internal/imu"
	"github.com/stride-data/gaitmoment/internal/loader"
	"github.com/stride-data/gaitmoment/internal/pipeline"
	"github.com/stride-data/gaitmoment/internal/report"
	"github.com/stride-data/gaitmoment/internal/store"
	"github.com/stride-data/gaitmoment/internal/version"
)

const defaultDBFile = "gaitmoment.db"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(os.Args[2:])
	case "train":
		err = runTrain(os.Args[2:])
	case "evaluate":
		err = runEvaluate(os.Args[2:])
	case "version":
		fmt.Printf("gaitmoment %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: gaitmoment <command> [flags]

commands:
  process    load raw sessions, build and persist the step dataset
  train      fit the moment estimator on a processed run
  evaluate   score a model on held-out subjects
  version    print build information

run "gaitmoment <command> -h" for command flags`)
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return &config.TuningConfig{}, nil
	}
	return config.LoadTuningConfig(path)
}

func runProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	input := fs.String("input", "", "Directory of session directories (required)")
	dbFile := fs.String("db", defaultDBFile, "Database file")
	tuningFile := fs.String("tuning", "", "Tuning config JSON")
	note := fs.String("note", "", "Free-form note stored with the run")
	fs.Parse(args)

	if *input == "" {
		return fmt.Errorf("-input is required")
	}
	tuning, err := loadTuning(*tuningFile)
	if err != nil {
		return err
	}

	sessions, calibrations, err := loader.LoadSessions(*input)
	if err != nil {
		return err
	}
	log.Printf("loaded %d sessions from %s (%d calibrated sensors)",
		len(sessions), *input, len(calibrations))

	p := pipeline.New(pipeline.ConfigFromTuning(tuning))
	p.Calibrations = calibrations
	dataset, results, failures, err := p.Run(sessions)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("every session failed, nothing to persist")
	}

	db, err := store.NewDB(*dbFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	runID, err := db.BeginRun(*note)
	if err != nil {
		return err
	}
	for _, res := range results {
		if err := db.SaveResult(runID, res); err != nil {
			return err
		}
		counts, err := db.StepFrameCounts(runID, res.Session.SessionID)
		if err != nil {
			return err
		}
		var frames int
		for _, c := range counts {
			frames += c
		}
		log.Printf("session %s: %d steps over %d labeled frames",
			res.Session.SessionID, len(counts), frames)
	}

	log.Printf("run %s: %d sessions, %d steps, %d labeled (%d sessions failed)",
		runID, len(results), dataset.Len(), len(dataset.Labeled()), len(failures))
	fmt.Println(runID)
	return nil
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "Database file")
	runID := fs.String("run", "", "Processed run ID (required)")
	tuningFile := fs.String("tuning", "", "Tuning config JSON")
	modelFile := fs.String("model", "model.json", "Model output file")
	lossChart := fs.String("loss-chart", "", "Optional HTML loss chart output")
	fs.Parse(args)

	if *runID == "" {
		return fmt.Errorf("-run is required")
	}
	tuning, err := loadTuning(*tuningFile)
	if err != nil {
		return err
	}

	db, err := store.NewDB(*dbFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	dataset, err := db.LoadDataset(*runID)
	if err != nil {
		return err
	}
	labeled := dataset.Labeled()
	if len(labeled) == 0 {
		return fmt.Errorf("run %s has no labeled steps to train on", *runID)
	}

	trainer := estimate.NewTrainer(estimate.TrainConfigFromTuning(tuning), nil)
	model, losses, err := trainer.Train(labeled)
	if err != nil {
		return err
	}
	if err := model.Save(*modelFile); err != nil {
		return err
	}
	log.Printf("saved model to %s (final loss %.6f)", *modelFile, losses[len(losses)-1])

	if *lossChart != "" {
		if err := report.WriteLossChart(*lossChart, losses); err != nil {
			return err
		}
		log.Printf("wrote loss chart to %s", *lossChart)
	}
	return nil
}

func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	dbFile := fs.String("db", defaultDBFile, "Database file")
	runID := fs.String("run", "", "Processed run ID (required)")
	modelFile := fs.String("model", "", "Trained model file (omit with -loso)")
	holdOut := fs.String("holdout", "", "Comma-separated held-out subject IDs")
	loso := fs.Bool("loso", false, "Leave-one-subject-out cross-validation")
	tuningFile := fs.String("tuning", "", "Tuning config JSON (used by -loso retraining)")
	plotsDir := fs.String("plots", "", "Optional directory for curve plots")
	fs.Parse(args)

	if *runID == "" {
		return fmt.Errorf("-run is required")
	}
	if *loso == (*holdOut != "") {
		return fmt.Errorf("exactly one of -loso or -holdout is required")
	}

	db, err := store.NewDB(*dbFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	dataset, err := db.LoadDataset(*runID)
	if err != nil {
		return err
	}

	if *loso {
		tuning, err := loadTuning(*tuningFile)
		if err != nil {
			return err
		}
		trainer := estimate.NewTrainer(estimate.TrainConfigFromTuning(tuning), nil)
		folds, err := estimate.CrossValidate(trainer, dataset, imu.MomentChannels)
		if err != nil {
			return err
		}
		if err := db.SaveFoldMetrics(*runID, folds); err != nil {
			return err
		}
		log.Printf("saved metrics for %d folds", len(folds))
		return nil
	}

	if *modelFile == "" {
		return fmt.Errorf("-model is required with -holdout")
	}
	model, err := estimate.Load(*modelFile)
	if err != nil {
		return err
	}

	subjects := strings.Split(*holdOut, ",")
	_, test := dataset.SplitBySubjects(subjects)
	if len(test) == 0 {
		return fmt.Errorf("held-out subjects %v have no labeled steps in run %s", subjects, *runID)
	}

	metrics, err := estimate.Evaluate(model, test, imu.MomentChannels)
	if err != nil {
		return err
	}
	for _, m := range metrics {
		log.Printf("%s", m)
	}
	if err := db.SaveFoldMetrics(*runID, []estimate.FoldResult{{
		Subject:   *holdOut,
		TestSteps: len(test),
		Metrics:   metrics,
	}}); err != nil {
		return err
	}

	if *plotsDir != "" {
		if err := report.WriteCurvePlots(*plotsDir, model, test, imu.MomentChannels); err != nil {
			return err
		}
		log.Printf("wrote curve plots to %s", *plotsDir)
	}
	return nil
}
