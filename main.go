package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/agentic"
	"github.com/seatmatrix/matchlink/config"
	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/importer"
	"github.com/seatmatrix/matchlink/llm"
	"github.com/seatmatrix/matchlink/matcher"
	"github.com/seatmatrix/matchlink/registry"
	"github.com/seatmatrix/matchlink/report"
	"github.com/seatmatrix/matchlink/retrieval"
	"github.com/seatmatrix/matchlink/validation"
)

var (
	flagTable      string
	flagRounds     int
	flagWorkers    int
	flagDryRun     bool
	flagNoValidate bool
	flagCouncil    bool
	flagDiploma    string
	flagFile       string
	flagFailed     string
)

func main() {
	root := &cobra.Command{
		Use:           "matchlink",
		Short:         "Resolve admission records against the master college registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full matching pipeline",
		RunE:  runPipeline,
	}
	runCmd.Flags().StringVar(&flagTable, "table", "", "working table (default from SEAT_TABLE)")
	runCmd.Flags().IntVar(&flagRounds, "rounds", 0, "max consensus rounds (default from MAX_ROUNDS)")
	runCmd.Flags().IntVar(&flagWorkers, "workers", 0, "worker count (default from WORKER_COUNT)")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "log decisions without writing")
	runCmd.Flags().BoolVar(&flagNoValidate, "no-validate", false, "skip the per-decision validation guard")
	runCmd.Flags().BoolVar(&flagCouncil, "council", false, "council mode: majority vote across models")
	runCmd.Flags().StringVar(&flagDiploma, "diploma-config", "diploma_courses.yaml", "diploma stream config")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Clear committed matches that violate the college-state link invariant",
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&flagTable, "table", "", "working table (default from SEAT_TABLE)")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Show match statistics for the working table",
		RunE:  runReport,
	}
	reportCmd.Flags().StringVar(&flagTable, "table", "", "working table (default from SEAT_TABLE)")

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load a raw admission CSV into the working table",
		RunE:  runImport,
	}
	importCmd.Flags().StringVar(&flagTable, "table", "", "working table (default from SEAT_TABLE)")
	importCmd.Flags().StringVar(&flagFile, "file", "", "CSV file to import (required)")
	importCmd.Flags().StringVar(&flagFailed, "failed-out", "failed_imports.csv", "where to write rejected rows")
	importCmd.MarkFlagRequired("file")

	root.AddCommand(runCmd, sweepCmd, reportCmd, importCmd)

	if err := root.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(diplomaPath string) (*config.Pipeline, error) {
	if diplomaPath != "" {
		if _, err := os.Stat(diplomaPath); err != nil {
			diplomaPath = ""
		}
	}
	cfg, err := config.Load(diplomaPath)
	if err != nil {
		return nil, err
	}
	if flagTable != "" {
		cfg.Table = flagTable
	}
	if flagRounds > 0 {
		cfg.MaxRounds = flagRounds
	}
	if flagWorkers > 0 {
		cfg.WorkerCount = flagWorkers
	}
	cfg.DryRun = flagDryRun
	cfg.Validate = !flagNoValidate
	cfg.Council = flagCouncil
	return cfg, nil
}

func newLogger() (*zap.SugaredLogger, error) {
	zcfg := zap.NewDevelopmentConfig()
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagDiploma)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	reg := registry.New(database)
	ret := retrieval.New(reg, cfg.Diploma, log)

	var sup *agentic.Supervisor
	if len(cfg.APIKeys) == 0 {
		log.Warn("no GEMINI_API_KEY configured, skipping the consensus stage")
	} else {
		client := llm.NewClient(cfg.APIKeys, log)
		defer client.Close()

		guard := validation.NewGuard(reg, cfg.Diploma, log)
		var auditor *validation.Auditor
		if !cfg.DryRun {
			auditor, err = validation.NewAuditor(ctx, database)
			if err != nil {
				return err
			}
		}
		sup = agentic.NewSupervisor(database, ret, guard, auditor, client, cfg, log)
	}

	before, err := database.Stats(ctx, cfg.Table)
	if err != nil {
		return err
	}

	pipeline := matcher.NewPipeline(database, reg, ret, sup, cfg, log)
	result, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	report.PrintRun(cfg.Table, before, result)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	database, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	cleared, err := validation.NewSweeper(database, log).Run(context.Background(), cfg.Table)
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d false matches from %s\n", cleared, cfg.Table)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	database, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	f, err := os.Open(flagFile)
	if err != nil {
		return err
	}
	defer f.Close()

	imp := importer.New(database, importer.Config{
		Table:      cfg.Table,
		FailedPath: flagFailed,
	}, log)
	res, err := imp.Run(context.Background(), csv.NewReader(f))
	if err != nil {
		return err
	}
	fmt.Printf("imported %d rows into %s (%d failed)\n", res.Imported, cfg.Table, res.Failed)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	database, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := database.Stats(context.Background(), cfg.Table)
	if err != nil {
		return err
	}
	report.PrintSnapshot(cfg.Table, stats)
	return nil
}
