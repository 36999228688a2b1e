package main

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// uiMode selects how problems are surfaced while a build runs, spec.md
// §6's `ui` subcommand argument.
type uiMode string

const (
	uiNone  uiMode = "none"
	uiBasic uiMode = "basic"
	uiFull  uiMode = "full"
)

func parseUIMode(s string) (uiMode, error) {
	switch uiMode(s) {
	case uiNone, uiBasic, uiFull:
		return uiMode(s), nil
	default:
		return "", fmt.Errorf("capcage: unknown --ui value %q (want none, basic, or full)", s)
	}
}

// cliConfig is the result of parsing capcage's global flags, grounded on
// cmd/agent-sandbox/run.go's flag set and spec.md §6's CLI surface.
type cliConfig struct {
	Subcommand     string
	Path           string
	PolicyPath     string
	Colour         colourMode
	FailOnWarnings bool
	UsageReportCap int
	UI             uiMode
	SummaryJSON    bool
	Debug          bool
}

// parseCLI parses args (argv with argv[0] already removed) against capcage's global
// flags and one of its three subcommands, mirroring run.go's
// SetInterspersed(false) discipline: flags before the subcommand name are
// global, everything after belongs to the subcommand.
func parseCLI(args []string) (*cliConfig, *flag.FlagSet, error) {
	flags := flag.NewFlagSet("capcage", flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(&strings.Builder{})

	flagPath := flags.String("path", ".", "Workspace `directory` to check")
	flagPolicy := flags.String("cackle", "cackle.toml", "Policy `file` to load")
	flagColour := flags.String("colour", "auto", "Colour output: auto, always, or never")
	flagFailOnWarnings := flags.Bool("fail-on-warnings", false, "Treat Warning-severity problems as failures")
	flagUsageCap := flags.Int("usage-report-cap", -1, "Cap the number of summary rows (negative = unlimited)")
	flagUI := flags.String("ui", "basic", "UI mode: none, basic, or full")
	flagJSON := flags.Bool("json", false, "Emit the summary subcommand's report as JSON")
	flagDebug := flags.Bool("debug", false, "Print wrapper role and dispatch details to stderr")

	if len(args) == 0 {
		return nil, flags, fmt.Errorf("capcage: no subcommand given (want check, summary, or ui)")
	}

	if err := flags.Parse(args); err != nil {
		return nil, flags, err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		return nil, flags, fmt.Errorf("capcage: no subcommand given (want check, summary, or ui)")
	}

	subcommand := rest[0]
	switch subcommand {
	case "check", "summary", "ui":
	default:
		return nil, flags, fmt.Errorf("capcage: unknown subcommand %q (want check, summary, or ui)", subcommand)
	}

	colour, err := parseColourMode(*flagColour)
	if err != nil {
		return nil, flags, err
	}

	ui, err := parseUIMode(*flagUI)
	if err != nil {
		return nil, flags, err
	}

	return &cliConfig{
		Subcommand:     subcommand,
		Path:           *flagPath,
		PolicyPath:     *flagPolicy,
		Colour:         colour,
		FailOnWarnings: *flagFailOnWarnings,
		UsageReportCap: *flagUsageCap,
		UI:             ui,
		SummaryJSON:    *flagJSON,
		Debug:          *flagDebug,
	}, flags, nil
}

const usageHelp = `capcage - capability-enforcement checker for Cargo builds

Usage: capcage [flags] <check|summary|ui>

Flags:
      --path <dir>             Workspace directory to check (default ".")
      --cackle <file>          Policy file to load (default "cackle.toml")
      --colour <mode>          auto, always, or never (default "auto")
      --fail-on-warnings       Treat Warning-severity problems as failures
      --usage-report-cap <N>  Cap summary rows, negative = unlimited (default -1)
      --ui <mode>              none, basic, or full (default "basic")
      --json                   Emit summary as JSON instead of a table
      --debug                  Print wrapper role and dispatch details to stderr

Subcommands:
  check     Run the full build under capability enforcement
  summary   Print a permission usage report from the last check
  ui        Re-run check, rendering the selected UI`
