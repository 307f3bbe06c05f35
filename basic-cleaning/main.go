package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/animus-labs/animus-cleaning/internal/cleaning"
	"github.com/animus-labs/animus-cleaning/internal/domain"
	"github.com/animus-labs/animus-cleaning/internal/platform/env"
	"github.com/animus-labs/animus-cleaning/internal/platform/objectstore"
	"github.com/animus-labs/animus-cleaning/internal/platform/postgres"
	repopg "github.com/animus-labs/animus-cleaning/internal/repo/postgres"
	store "github.com/animus-labs/animus-cleaning/internal/storage/objectstore"
	"github.com/animus-labs/animus-cleaning/internal/tracking"
)

const jobType = "basic_cleaning"

const (
	exitSuccess = 0
	exitRuntime = 1
	exitUsage   = 2
)

// configError marks failures caused by the environment rather than the run.
type configError struct {
	err error
}

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

type stepFunc func(ctx context.Context, logger *slog.Logger, params cleaning.Params) error

func main() {
	logger := newLogger(os.Stderr, env.String("BASIC_CLEANING_LOG_LEVEL", "info"))
	os.Exit(execute(context.Background(), logger, os.Args[1:], runStep))
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		logger := slog.New(slog.NewJSONHandler(w, nil))
		logger.Warn("invalid log level, using info", "level", level)
		return logger
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// execute parses args, runs the step and maps the outcome to an exit code.
func execute(ctx context.Context, logger *slog.Logger, args []string, step stepFunc) int {
	started := false
	cmd := newRootCmd(func(cmd *cobra.Command, params cleaning.Params) error {
		started = true
		return step(cmd.Context(), logger, params)
	})
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	var cfgErr configError
	switch {
	case err == nil:
		return exitSuccess
	case !started:
		logger.Error("invalid arguments", "error", err)
		fmt.Fprintln(cmd.ErrOrStderr(), cmd.UsageString())
		return exitUsage
	case errors.As(err, &cfgErr):
		logger.Error("invalid configuration", "error", err)
		return exitUsage
	default:
		logger.Error("basic cleaning failed", "error", err)
		return exitRuntime
	}
}

func newRootCmd(run func(*cobra.Command, cleaning.Params) error) *cobra.Command {
	var params cleaning.Params
	cmd := &cobra.Command{
		Use:           "basic-cleaning",
		Short:         "A very basic data cleaning",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, params)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&params.InputArtifact, "input_artifact", "", "Fully-qualified name for the input artifact")
	flags.StringVar(&params.OutputArtifact, "output_artifact", "", "Name for the output artifact")
	flags.StringVar(&params.OutputType, "output_type", "", "Type for the output artifact")
	flags.StringVar(&params.OutputDescription, "output_description", "", "Description for the output artifact")
	flags.Float64Var(&params.MinPrice, "min_price", 0, "Minimum price to consider")
	flags.Float64Var(&params.MaxPrice, "max_price", 0, "Maximum price to consider")
	for _, name := range []string{"input_artifact", "output_artifact", "output_type", "output_description", "min_price", "max_price"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// runStep wires the tracking client to Postgres and MinIO and executes one
// cleaning run, recording its outcome on the run.
func runStep(ctx context.Context, logger *slog.Logger, params cleaning.Params) error {
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return configError{fmt.Errorf("database config: %w", err)}
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := repopg.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return configError{fmt.Errorf("object store config: %w", err)}
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		return configError{fmt.Errorf("object store client: %w", err)}
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = objectstore.EnsureBucket(startupCtx, storeClient, storeCfg)
	cancel()
	if err != nil {
		return fmt.Errorf("object store unavailable: %w", err)
	}
	blobs, err := store.NewMinioStore(storeClient)
	if err != nil {
		return err
	}

	trackCfg, err := tracking.ConfigFromEnv(storeCfg.BucketArtifacts)
	if err != nil {
		return configError{fmt.Errorf("tracking config: %w", err)}
	}
	client, err := tracking.NewClient(
		trackCfg,
		blobs,
		repopg.NewArtifactStore(db),
		repopg.NewRunStore(db),
		tracking.DBLineage{DB: db},
		logger,
	)
	if err != nil {
		return configError{err}
	}

	return runCleaning(ctx, logger, client, params, ".")
}

// runCleaning opens a run, executes the step in dir and closes the run with
// the step's outcome.
func runCleaning(ctx context.Context, logger *slog.Logger, client *tracking.Client, params cleaning.Params, dir string) error {
	run, err := client.InitRun(ctx, jobType, nil)
	if err != nil {
		return fmt.Errorf("init run: %w", err)
	}
	if err := run.UpdateConfig(ctx, domain.Metadata(params.Config())); err != nil {
		return failRun(ctx, logger, run, err)
	}

	step, err := cleaning.NewStep(runArtifacts{run: run}, logger, dir)
	if err != nil {
		return failRun(ctx, logger, run, err)
	}
	if err := step.Run(ctx, params); err != nil {
		return failRun(ctx, logger, run, err)
	}
	if err := run.Finish(ctx); err != nil {
		return err
	}
	return nil
}

func failRun(ctx context.Context, logger *slog.Logger, run *tracking.Run, cause error) error {
	if err := run.Fail(ctx, cause); err != nil {
		logger.Warn("run not marked failed", "run_id", run.ID(), "error", err)
	}
	return cause
}
