// Command flowpilot runs the natural-language workflow trigger engine.
//
// Usage:
//
//	flowpilot serve --config config.yaml
//	flowpilot validate --config config.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the trigger engine server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"flowpilot.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("flowpilot version %s\n", version)
	return nil
}

// ValidateCmd validates a configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration is valid: %d platform(s), %d workflow(s)\n",
		len(cfg.Platforms), len(cfg.Workflows))
	return nil
}

// setupLogging configures the global logger from config plus CLI overrides.
func setupLogging(cli *CLI, cfg *config.Config) (cleanup func(), err error) {
	levelStr := cfg.Log.Level
	if cli.LogLevel != "" {
		levelStr = cli.LogLevel
	}
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	format := cfg.Log.Format
	if cli.LogFormat != "" {
		format = cli.LogFormat
	}

	output := os.Stderr
	cleanup = func() {}
	logPath := cfg.Log.File
	if cli.LogFile != "" {
		logPath = cli.LogFile
	}
	if logPath != "" {
		file, closeFn, err := logger.OpenLogFile(logPath)
		if err != nil {
			return nil, err
		}
		output = file
		cleanup = closeFn
	}

	logger.Init(level, output, format)
	return cleanup, nil
}

func main() {
	// .env values feed the ${VAR} expansion in the config file.
	config.LoadDotEnv()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("flowpilot"),
		kong.Description("Natural-language workflow trigger engine."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
