// Package cli provides the command-line interface for slipfill.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cgedge/slipfill/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Also write logs to this file",
		EnvVars: []string{"SLIPFILL_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable verbose logging",
		EnvVars: []string{"SLIPFILL_VERBOSE"},
	},
}

// NewApp builds the application. Running it without a command is the same
// as "run".
func NewApp() *cli.App {
	return &cli.App{
		Name:    "slipfill",
		Usage:   "Open the picks board and place the picks of a slip",
		Version: Version,
		Description: `slipfill drives a browser to the picks board, selects the sport and
places each pick of a slip: prop tab, player card, then the Over/Under side.

Examples:
  slipfill --cgpp eyJpdGVtcyI6W119
  slipfill run --slip picks.yaml --headful
  slipfill run --attach http://127.0.0.1:9222 --report out/report.json
  slipfill encode picks.yaml`,
		Flags:    append(append([]cli.Flag{}, GlobalFlags...), runFlags...),
		Before:   setupLogging,
		After:    closeLogging,
		Action:   runSlip,
		Commands: []*cli.Command{runCommand, decodeCommand, encodeCommand},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func setupLogging(c *cli.Context) error {
	logger.SetVerbose(c.Bool("verbose"))
	if path := c.String("log-file"); path != "" {
		if err := logger.Init(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open log file: %v\n", err)
		}
	}
	return nil
}

func closeLogging(c *cli.Context) error {
	if c.String("log-file") != "" {
		logger.Close()
	}
	return nil
}

// lookup reads flags from the command or, for flags given before the
// command name, from its parents.
type lookup struct {
	c *cli.Context
}

func (l lookup) ctx(name string) *cli.Context {
	for _, c := range l.c.Lineage() {
		if c != nil && c.IsSet(name) {
			return c
		}
	}
	return l.c
}

func (l lookup) String(name string) string { return l.ctx(name).String(name) }
func (l lookup) Bool(name string) bool     { return l.ctx(name).Bool(name) }
func (l lookup) IsSet(name string) bool    { return l.ctx(name).IsSet(name) }
