package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

// LogsCommand lists runs or dumps one run's events.
//
//	taskclaw logs list [--limit N]
//	taskclaw logs show <run-id>
func LogsCommand(args []string) int {
	if len(args) == 0 {
		printLogsHelp()
		return 1
	}

	switch args[0] {
	case "list":
		return logsList(args[1:])
	case "show":
		return logsShow(args[1:])
	case "help", "--help", "-h":
		printLogsHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown logs subcommand: %s\n", args[0])
		printLogsHelp()
		return 1
	}
}

func printLogsHelp() {
	fmt.Println(`Usage: taskclaw logs <subcommand> [options]

Inspect past runs in the workspace.

Subcommands:
  list [--limit N]   List recent runs (default 20)
  show <run-id>      Print all runlog events for one run`)
}

func logsList(args []string) int {
	fs := flag.NewFlagSet("logs list", flag.ContinueOnError)
	configPath := fs.String("config", "taskclaw.json", "Path to config file")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	a, err := setup(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}

	summaries, err := a.repo.ListRuns(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}
	if len(summaries) == 0 {
		fmt.Println("No runs found.")
		return 0
	}

	for _, s := range summaries {
		started := "-"
		if s.FirstEventTS > 0 {
			started = time.Unix(int64(s.FirstEventTS), 0).UTC().Format(time.RFC3339)
		}
		summary := s.PayloadSummary
		if len(summary) > 60 {
			summary = summary[:60] + "…"
		}
		fmt.Printf("%-24s %-20s %-12s %-16s %4d events  %s\n",
			s.RunID, started, s.SpecialistID, s.RoutingMethod, s.EventCount, summary)
	}
	return 0
}

func logsShow(args []string) int {
	fs := flag.NewFlagSet("logs show", flag.ContinueOnError)
	configPath := fs.String("config", "taskclaw.json", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: taskclaw logs show <run-id>")
		return 1
	}

	a, err := setup(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}

	events, err := a.repo.ReadRunEvents(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nUse 'taskclaw logs list' to see available runs.\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render event: %v\n", err)
			return 1
		}
	}
	return 0
}
