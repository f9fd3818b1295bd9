package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/waveflow/internal/app"
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

// Command is one of the lifecycle verbs the tool accepts.
type Command string

const (
	Setup     Command = "setup"
	Configure Command = "configure"
	Check     Command = "check"
	Init      Command = "init"
	Submit    Command = "submit"
	Resume    Command = "resume"
	Restart   Command = "restart"
	Clean     Command = "clean"
)

var commands = map[string]Command{
	"setup":     Setup,
	"configure": Configure,
	"check":     Check,
	"init":      Init,
	"submit":    Submit,
	"resume":    Resume,
	"restart":   Restart,
	"clean":     Clean,
}

// Parse processes command-line arguments. It returns the command verb and a
// populated Config, a boolean indicating if the program should exit cleanly,
// or an ExitError.
func Parse(args []string, output io.Writer) (Command, *app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("waveflow", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Waveflow - A checkpointed workflow orchestrator for waveform inversion.

Usage:
  waveflow COMMAND [options]

Commands:
  setup      Write a blank parameter document with the module-choice keys.
  configure  Expand the document into the full template for the chosen modules.
  check      Validate the document and component consistency, touching nothing.
  init       Build the registry and write the initial checkpoint.
  submit     Validate fully and run the workflow from the checkpointed cursor.
  resume     Restore from the checkpoint store and continue.
  restart    Clean, then submit from scratch.
  clean      Delete checkpoint, logs, scratch, and output areas.

Options:
`)
		flagSet.PrintDefaults()
	}

	workdirFlag := flagSet.String("workdir", ".", "Working directory owning the pipeline.")
	wFlag := flagSet.String("w", "", "Working directory (shorthand).")
	paramFlag := flagSet.String("parameter-file", "", "Parameter document path, relative to the working directory unless absolute.")
	pFlag := flagSet.String("p", "", "Parameter document path (shorthand).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	forceFlag := flagSet.Bool("force", false, "Overwrite an existing parameter document on setup.")
	fFlag := flagSet.Bool("f", false, "Overwrite an existing parameter document on setup (shorthand).")
	resumeFromFlag := flagSet.String("resume-from", "", "Stage name to restart from, overriding the checkpointed cursor.")
	stopAfterFlag := flagSet.String("stop-after", "", "Stage name to halt cleanly after.")

	if len(args) == 0 {
		flagSet.Usage()
		return "", nil, true, nil
	}

	verb := strings.ToLower(args[0])
	if verb == "-h" || verb == "--help" || verb == "help" {
		flagSet.Usage()
		return "", nil, true, nil
	}
	cmd, ok := commands[verb]
	if !ok {
		return "", nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q (run 'waveflow help' for usage)", args[0])}
	}

	if err := flagSet.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return "", nil, true, nil
		}
		return "", nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.", "command", verb)

	workdir := *workdirFlag
	if *wFlag != "" {
		workdir = *wFlag
	}
	paramFile := *paramFlag
	if *pFlag != "" {
		paramFile = *pFlag
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return "", nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return "", nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		WorkDir:    workdir,
		ParamFile:  paramFile,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
		Force:      *forceFlag || *fFlag,
		ResumeFrom: *resumeFromFlag,
		StopAfter:  *stopAfterFlag,
	})
	if err != nil {
		return "", nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return cmd, config, false, nil
}
