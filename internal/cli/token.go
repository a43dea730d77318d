package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/clawinfra/taskclaw/internal/api"
)

// TokenCommand mints a signed API token from the configured secret.
func TokenCommand(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "cli", "Token subject (who this token identifies)")
	expiry := fs.Duration("expiry", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	secret := os.Getenv(JWTSecretEnv)
	if secret == "" {
		fmt.Fprintf(os.Stderr, "%s is not set; cannot sign tokens.\n", JWTSecretEnv)
		return 1
	}

	token, err := api.GenerateToken(*subject, []byte(secret), *expiry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
