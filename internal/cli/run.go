package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/clawinfra/taskclaw/internal/llm"
	"github.com/clawinfra/taskclaw/internal/task"
	"github.com/clawinfra/taskclaw/internal/types"
)

// RunCommand executes one task end to end and prints the result payload
// plus run metadata.
func RunCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "taskclaw.json", "Path to config file")
	packID := fs.String("pack", "", "Force a pack (engineering|research); empty auto-routes")
	modelKey := fs.String("model-key", "quality", "Model profile to use (quality|fast)")
	network := fs.Bool("network", true, "Allow network tools (web_search, fetch_url)")
	maxSteps := fs.Int("max-steps", 0, "Override the engine step budget")
	verbose := fs.Bool("verbose", false, "Enable debug logging to stderr")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: taskclaw run [flags] \"<prompt>\"")
		return 1
	}
	prompt := fs.Arg(0)

	a, err := setup(*configPath, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}

	var runnerOpts []task.RunnerOption
	if *maxSteps > 0 {
		runnerOpts = append(runnerOpts, task.WithMaxSteps(*maxSteps))
	}
	runner, err := a.buildRunner(runnerOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := types.BuildTask(prompt, *packID, *modelKey, *network)
	result, err := runner.Execute(ctx, t)
	if err != nil {
		printLLMError(err)
		return 1
	}

	fmt.Printf("Pack:      %s\n", result.SpecialistID)
	fmt.Printf("Run dir:   %s\n", result.RunDir)
	fmt.Printf("Workspace: %s\n", result.WorkspacePath)
	fmt.Printf("Model:     %s\n", result.ModelName)
	fmt.Println()

	payload, err := json.MarshalIndent(result.Payload, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render payload: %v\n", err)
		return 1
	}
	fmt.Println(string(payload))
	return 0
}

// printLLMError renders transport failures with actionable hints.
func printLLMError(err error) {
	var unreachable *llm.UnreachableError
	var timeout *llm.TimeoutError
	var badStatus *llm.BadStatusError
	var lacksTools *llm.ModelLacksToolsError
	switch {
	case errors.As(err, &unreachable):
		fmt.Fprintf(os.Stderr, "LLM server unreachable.\n  URL: %s\n  Error: %v\n  Start your backend (e.g. ollama serve) or fix models.profiles.*.baseUrl.\n",
			unreachable.BaseURL, unreachable.Err)
	case errors.As(err, &timeout):
		fmt.Fprintf(os.Stderr, "LLM read timeout.\n  %v\n", timeout)
	case errors.As(err, &badStatus):
		fmt.Fprintf(os.Stderr, "LLM server error.\n  %v\n", badStatus)
	case errors.As(err, &lacksTools):
		fmt.Fprintf(os.Stderr, "%v\n", lacksTools)
	default:
		fmt.Fprintf(os.Stderr, "Task failed: %v\n", err)
	}
}
