// ABOUTME: Entry point for the recgate gateway
// ABOUTME: Subcommands serve, init, health and token

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// Version is set at build time.
var version = "dev"

const banner = `
                                 _
 _ __ ___  ___ __ _  __ _  __ _| |_ ___
| '__/ _ \/ __/ _' |/ _' |/ _' | __/ _ \
| | |  __/ (_| (_| | (_| | (_| | ||  __/
|_|  \___|\___\__, |\__,_|\__,_|\__\___|
              |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: RECGATE_CONFIG env var > XDG_CONFIG_HOME/recgate/gateway.yaml > ~/.config/recgate/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RECGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "recgate", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: recgate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the gateway")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  health                 Check gateway readiness")
		fmt.Println("  token [--subject NAME] [--ttl DURATION]")
		fmt.Println("                         Issue a control-surface token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
