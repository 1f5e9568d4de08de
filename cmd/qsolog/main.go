package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/logging"
	"github.com/w9en/qsolog/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"log": true, "fetch": true, "update": true, "delete": true,
	"recent": true, "lookup": true, "next": true, "last-id": true,
	"export": true, "import": true, "station": true, "encrypt-secret": true,
	"serve": true, "web": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
    ____  _____ ____  __
   / __ \/ ___// __ \/ /  ____  ____ _
  / / / /\__ \/ / / / /  / __ \/ __ '/
 / /_/ /___/ / /_/ / /__/ /_/ / /_/ /
 \___\_\/____/\____/_____/\____/\__, /
                               /____/
  Amateur radio contact logbook

  Usage: qsolog <command> [options]
         qsolog --help

  MCP server mode requires piped input.`)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before opening the logbook
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	baseDir, err := config.DefaultBaseDir()
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown disabled_tools entries", zap.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("unknown disabled_types entries", zap.Strings("types", unknown))
	}

	store, err := logbook.Open(baseDir, cfg.Station.Grid, logger)
	if err != nil {
		return fmt.Errorf("failed to open logbook: %w", err)
	}
	defer store.Close()

	sess, closers, err := connect(cfg, logger)
	if err != nil {
		return err
	}
	e := &env{store: store, cfg: cfg, sess: sess, log: logger, closers: closers}
	defer e.close()

	if isCLIMode() {
		return newCLIApp(e).Run(os.Args)
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		return fmt.Errorf("unknown command %q\nRun 'qsolog --help' for usage", os.Args[1])
	}

	return mcp.Run(store, cfg, sess, Version)
}
