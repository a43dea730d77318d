package main

import (
	"fmt"
	"os"

	"github.com/clawinfra/taskclaw/internal/cli"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "run":
		return cli.RunCommand(args[1:])
	case "serve":
		return cli.ServeCommand(args[1:])
	case "logs":
		return cli.LogsCommand(args[1:])
	case "token":
		return cli.TokenCommand(args[1:])
	case "version", "--version", "-version":
		fmt.Printf("taskclaw v%s (built %s)\n", version, buildTime)
		fmt.Println("Agentic task runtime: specialist packs over a sandboxed tool loop")
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Println(`Usage: taskclaw <command> [options]

Commands:
  run "<prompt>"   Execute one task end to end and print the result
  serve            Run the HTTP API server
  logs             List runs or dump a run's events
  token            Mint a signed API token
  version          Print version information

Run 'taskclaw <command> --help' for command options.`)
}
