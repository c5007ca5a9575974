package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"folio/pkg/config"
)

const appName = "folio"

// initializeAppContext prepares the application context after the command
// line has been parsed and before a command runs.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if cmd.NArg() == 0 {
		return ctx, nil
	}

	env := envFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		env.Cfg.Logging.ConsoleLogger.Level = "debug"
	}
	if env.Log, err = env.Cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.redirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("runtime", runtime.Version()))
	if len(configFile) == 0 {
		env.Log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	env.Log.Debug("Program ended", zap.Duration("elapsed", env.uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	env.restoreLog()
	return nil
}

// Errors are returned from subcommands and reported once, here or on exit.
var errWasHandled bool

func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := envFromContext(ctx)
	if env.Cfg != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(contextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            appName,
		Usage:           "document layout and pagination engine",
		Version:         runtime.Version(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log debug output to console"},
		},
		Commands: []*cli.Command{
			{
				Name:         "layout",
				Usage:        "Lays out a document and writes page geometry (JSON)",
				OnUsageError: usageErrorHandler,
				Action:       runLayout,
				ArgsUsage:    "SOURCE [DESTINATION]",
			},
			{
				Name:         "render",
				Usage:        "Lays out a document and writes PNG previews of its pages",
				OnUsageError: usageErrorHandler,
				Action:       runRender,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Usage: "render only page `N` (1 based)"},
					&cli.FloatFlag{Name: "scale", Usage: "pixels per point, overrides configuration"},
				},
				ArgsUsage: "SOURCE [DIRECTORY]",
			},
			{
				Name:         "batch",
				Usage:        "Lays out several documents concurrently",
				OnUsageError: usageErrorHandler,
				Action:       runBatch,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: ".", Usage: "destination `DIRECTORY`"},
					&cli.BoolFlag{Name: "png", Usage: "also render page previews"},
				},
				ArgsUsage: "SOURCE...",
			},
			{
				Name:         "relayout",
				Usage:        "Replaces the content of a named node and lays the document out again",
				OnUsageError: usageErrorHandler,
				Action:       runRelayout,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "region", Aliases: []string{"r"}, Required: true, Usage: "`NAME` of the node whose children are replaced"},
					&cli.StringFlag{Name: "nodes", Aliases: []string{"n"}, Required: true, Usage: "YAML `FILE` with the replacement node list"},
				},
				ArgsUsage: "SOURCE [DESTINATION]",
			},
			{
				Name:         "dumpconfig",
				Usage:        "Dumps either default or actual configuration (YAML)",
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				ArgsUsage: "DESTINATION",
			},
		},
	}

	var err error
	// os.Exit is called at the end of main, no deferred calls may follow
	defer func() {
		stop()
		if err != nil {
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}
