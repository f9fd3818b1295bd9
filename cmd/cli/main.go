package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/waveflow/internal/app"
	"github.com/vk/waveflow/internal/cli"
	"github.com/vk/waveflow/internal/modules"
)

// main is the entrypoint for the waveflow application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	cmd, cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	a := app.NewApp(outW, cfg, modules.Default())
	ctx := context.Background()

	switch cmd {
	case cli.Setup:
		err = a.Setup(ctx)
	case cli.Configure:
		err = a.Configure(ctx)
	case cli.Check:
		err = a.Check(ctx)
	case cli.Init:
		err = a.Init(ctx)
	case cli.Submit:
		err = a.Submit(ctx)
	case cli.Resume:
		err = a.Resume(ctx)
	case cli.Restart:
		err = a.Restart(ctx)
	case cli.Clean:
		err = a.Clean(ctx)
	}

	var pre *app.PreconditionError
	if errors.As(err, &pre) {
		return &cli.ExitError{Code: 2, Message: pre.Msg}
	}
	return err
}
