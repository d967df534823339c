// importctl runs one ticket import synchronously against GLPI, without the
// HTTP API, Redis or Postgres. Connection settings come from the same
// environment variables as the worker; flags override the per-run knobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/config"
	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/glpi"
	"github.com/spec-kit/ticket-importer/internal/importer"
	"github.com/spec-kit/ticket-importer/internal/observability"
)

// exitError carries a process exit code out of run.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		var coder *exitError
		if errors.As(err, &coder) {
			if coder.msg != "" {
				fmt.Fprintln(os.Stderr, coder.msg)
			}
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		filePath      string
		jobID         string
		outputDir     string
		endpoint      string
		settleDelay   time.Duration
		defaultStatus int
		keepSession   bool
		logLevel      string
	)
	flagSet := pflag.NewFlagSet("importctl", pflag.ContinueOnError)
	flagSet.StringVarP(&filePath, "file", "f", "", "semicolon separated CSV to import (required)")
	flagSet.StringVar(&jobID, "job-id", "", "job id used to name the processed file (default: random)")
	flagSet.StringVarP(&outputDir, "output-dir", "o", cfg.Import.OutputDir, "directory receiving <job-id>_processed.csv")
	flagSet.StringVar(&endpoint, "endpoint", cfg.GLPI.Endpoint, "GLPI REST endpoint")
	flagSet.DurationVar(&settleDelay, "settle-delay", cfg.Import.SettleDelay(), "pause between actor attachment and status update")
	flagSet.IntVar(&defaultStatus, "default-status", cfg.Import.DefaultStatus, "status applied after actors when the row has none")
	flagSet.BoolVar(&keepSession, "keep-session", !cfg.Import.KillSessionOnEnd, "do not kill the GLPI session at the end")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	flagSet.SetOutput(io.Discard)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stdout, "Usage: importctl --file tickets.csv [flags]\n\n%s", flagSet.FlagUsages())
			return nil
		}
		return &exitError{code: 2, msg: err.Error()}
	}
	if filePath == "" {
		return &exitError{code: 2, msg: "--file is required"}
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return &exitError{code: 2, msg: "unexpected argument: " + rest[0]}
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}

	logger, err := observability.NewLogger(config.LoggerConfig{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	glpiCfg := cfg.GLPI
	glpiCfg.Endpoint = endpoint
	runner := importer.NewRunner(importer.RunnerConfig{
		Connect:   importer.GLPIConnector(glpi.NewSessionConfig(glpiCfg, logger)),
		Artifacts: importer.NewFileArtifactStore(outputDir),
		Options: importer.Options{
			SettleDelay:   settleDelay,
			DefaultStatus: defaultStatus,
		},
		KillSessionOnEnd: !keepSession,
		Logger:           logger,
	})

	msg := domain.JobMessage{JobID: jobID, InputPath: filePath, SubmittedAt: time.Now().UTC()}
	result, err := runner.Execute(ctx, msg, importer.NewLogReporter(logger, jobID))
	if err != nil {
		logger.Debug("import failed", zap.String("job_id", jobID), zap.Error(err))
		fmt.Fprintf(stdout, "job %s: %s\n", jobID, domain.BatchFailed)
		return &exitError{code: 1, msg: err.Error()}
	}

	printSummary(stdout, result)
	if result.Status == domain.BatchCompletedWithErrors {
		return &exitError{code: 3}
	}
	return nil
}

func printSummary(w io.Writer, result domain.BatchResult) {
	fmt.Fprintf(w, "job %s: %s\n", result.JobID, result.Status)
	fmt.Fprintf(w, "rows: %d, failed: %d\n", len(result.Rows), result.FailedRows())
	fmt.Fprintf(w, "artifact: %s\n", result.ArtifactRef)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
