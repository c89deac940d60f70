package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/stencilgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated AppConfig,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("stencilgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
StencilGo - Runs the micro-blocks of a declarative stencil kernel.

Usage:
  stencilgo [options] [KERNEL_PATH]

Arguments:
  KERNEL_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	kernelFlag := flagSet.String("kernel", "", "Path to the kernel file or directory.")
	kFlag := flagSet.String("k", "", "Path to the kernel file or directory (shorthand).")
	stepsFlag := flagSet.Int64("steps", 1, "Number of steps to evaluate.")
	firstStepFlag := flagSet.Int64("first-step", 0, "Index of the first step.")
	outerThreadsFlag := flagSet.Int("outer-threads", 0, "Micro-blocks evaluated concurrently. 0 keeps the kernel's setting.")
	statsOnlyFlag := flagSet.Bool("stats-only", false, "Print the work estimates and exit without evaluating.")
	rankURLFlag := flagSet.String("rank-url", "", "Socket.IO coordinator URL for runs over more than one rank.")
	rankFlag := flagSet.Int("rank", 0, "Index of this rank.")
	numRanksFlag := flagSet.Int("num-ranks", 1, "Number of ranks in the run.")
	rankTimeoutFlag := flagSet.Duration("rank-timeout", 30*time.Second, "How long to wait for the coordinator.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'trace', 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *kernelFlag != "" {
		path = *kernelFlag
	} else if *kFlag != "" {
		path = *kFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Kernel path determined.", "path", path)

	if path == "" {
		slog.Debug("No kernel path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "trace", "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'trace', 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		KernelPath:      path,
		FirstStep:       *firstStepFlag,
		Steps:           *stepsFlag,
		OuterThreads:    *outerThreadsFlag,
		StatsOnly:       *statsOnlyFlag,
		RankURL:         *rankURLFlag,
		Rank:            *rankFlag,
		NumRanks:        *numRanksFlag,
		RankTimeout:     *rankTimeoutFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
