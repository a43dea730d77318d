package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clawinfra/taskclaw/internal/api"
	"github.com/clawinfra/taskclaw/internal/events"
	"github.com/clawinfra/taskclaw/internal/retention"
	"github.com/clawinfra/taskclaw/internal/task"
)

// ServeCommand runs the HTTP API server until interrupted, with the
// retention janitor and event publisher alongside when configured.
func ServeCommand(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "taskclaw.json", "Path to config file")
	port := fs.Int("port", 0, "Override the configured port")
	verbose := fs.Bool("verbose", false, "Enable debug logging to stderr")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	a, err := setup(*configPath, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}

	publisher, err := events.NewPublisher(a.cfg.Events.MQTT, a.logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "MQTT publisher failed: %v\n", err)
		return 1
	}
	if publisher != nil {
		defer publisher.Close()
	}

	var runnerOpts []task.RunnerOption
	if publisher != nil {
		runnerOpts = append(runnerOpts, task.WithPublisher(publisher))
	}
	runner, err := a.buildRunner(runnerOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}

	janitor, err := retention.New(a.cfg.Retention, a.repo.WorkspaceRoot(), a.logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retention setup failed: %v\n", err)
		return 1
	}
	if janitor != nil {
		janitor.Start()
		defer janitor.Stop()
	}

	listenPort := a.cfg.Server.Port
	if *port > 0 {
		listenPort = *port
	}

	var jwtSecret []byte
	if secret := os.Getenv(JWTSecretEnv); secret != "" {
		jwtSecret = []byte(secret)
	}

	server := api.NewServer(listenPort, runner, a.repo, jwtSecret,
		a.cfg.Server.APIKeyHash, a.cfg.Server.RateLimitRPM, a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
			return 1
		}
	}
	return 0
}
