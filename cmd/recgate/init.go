// ABOUTME: The init subcommand writing a new config file interactively
// ABOUTME: Hashes the local account password and generates a control JWT secret

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/service"
)

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("recgate configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.Default()

	fmt.Println("\n--- Gateway ---")
	cfg.Policy = prompt(reader, "Policy (listener/balancer)", cfg.Policy)
	cfg.Server.Host = prompt(reader, "Listen host", cfg.Server.Host)
	port, err := strconv.Atoi(prompt(reader, "Listen port", strconv.Itoa(cfg.Server.Port)))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	cfg.Server.Port = port
	cfg.Server.HTTPAddr = prompt(reader, "Health/metrics HTTP address (empty to disable)", "127.0.0.1:10153")
	cfg.Server.WebRoot = prompt(reader, "Web root for HTTP file requests", cfg.Server.WebRoot)

	fmt.Println("\n--- Backends ---")
	backends, err := parseBackends(prompt(reader, "Backends (host:port, comma separated)", "127.0.0.1:10150"))
	if err != nil {
		return err
	}
	backendAccount := prompt(reader, "Backend account", "admin")
	backendPassword := prompt(reader, "Backend password", "admin")
	for i := range backends {
		backends[i].Account = backendAccount
		backends[i].Password = backendPassword
	}
	cfg.Backends = backends

	fmt.Println("\n--- Local account ---")
	cfg.Account.Name = prompt(reader, "Account name", cfg.Account.Name)
	password := prompt(reader, "Account password", "")
	if password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		cfg.Account.Password = hash
	}

	fmt.Println("\n--- Control surface ---")
	ctlPort, err := strconv.Atoi(prompt(reader, "Control port", strconv.Itoa(cfg.Control.Port)))
	if err != nil {
		return fmt.Errorf("invalid control port: %w", err)
	}
	cfg.Control.Port = ctlPort
	if yes(prompt(reader, "Require JWT on the control surface?", "yes")) {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		cfg.Control.JWTSecret = secret
	}

	fmt.Println("\n--- Status publishing ---")
	cfg.Status.RedisAddr = prompt(reader, "Redis address (empty to disable)", "")

	fmt.Println("\n--- Logging ---")
	cfg.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = prompt(reader, "Log format (text/json)", cfg.Logging.Format)

	if err := cfg.Prepare(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := cfg.Save(outputFile); err != nil {
		return err
	}
	if err := os.Chmod(outputFile, 0o600); err != nil {
		return fmt.Errorf("restricting config permissions: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the gateway:")
	fmt.Println("  recgate serve")
	if cfg.Control.JWTSecret != "" {
		fmt.Println("\nTo issue an admin token:")
		fmt.Println("  recgate token --subject you")
	}
	return nil
}

// parseBackends reads a comma separated host:port list.
func parseBackends(list string) ([]service.RemoteInfo, error) {
	var out []service.RemoteInfo
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(part)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", part, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("backend %q: invalid port", part)
		}
		out = append(out, service.RemoteInfo{Host: host, Port: port})
	}
	return out, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func yes(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
