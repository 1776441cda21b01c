// ABOUTME: Admin CLI driving a running gateway through its control surface
// ABOUTME: Uses the JSON gRPC control client with an optional bearer token

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/control"
	"github.com/2389/recgate/internal/service"
)

const callTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	addr := getEnv("RECGATE_CONTROL", "localhost:10152")
	name := getEnv("RECGATE_CONTROL_NAME", "recgate.Control")
	token := getToken()

	cmd := os.Args[1]
	args := os.Args[2:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	client, err := control.Dial(addr, name, token)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "start":
		err = withTimeout(ctx, func(ctx context.Context) error { return client.Start(ctx) })
		if err == nil {
			color.Green("gateway started")
		}
	case "stop":
		err = ack(ctx, "stopped", client.Stop)
	case "pause":
		err = ack(ctx, "paused", client.Pause)
	case "resume":
		err = ack(ctx, "resumed", client.Resume)
	case "exit":
		err = withTimeout(ctx, func(ctx context.Context) error { return client.Exit(ctx) })
		if err == nil {
			color.Yellow("gateway exiting")
		}
	case "status":
		err = cmdStatus(ctx, client)
	case "config":
		err = cmdConfig(ctx, client, args)
	case "validate":
		err = cmdValidate(ctx, client, args)
	case "watch":
		err = cmdWatch(ctx, client)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: recgate-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  start | stop | pause | resume   Drive the gateway lifecycle")
	fmt.Println("  exit                            Save config and exit the gateway process")
	fmt.Println("  status                          Show gateway, backends and connections")
	fmt.Println("  config get [file]               Print (or write) the running config")
	fmt.Println("  config set <file>               Replace the running config from a file")
	fmt.Println("  validate <account> <password> [privileges]")
	fmt.Println("                                  Check credentials against the gateway")
	fmt.Println("  watch                           Stream lifecycle events")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  RECGATE_CONTROL        Control address (default: localhost:10152)")
	fmt.Println("  RECGATE_CONTROL_NAME   Control service name (default: recgate.Control)")
	fmt.Println("  RECGATE_TOKEN          Bearer token (falls back to ~/.config/recgate/token)")
	fmt.Println()
}

func withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return fn(ctx)
}

func ack(ctx context.Context, done string, fn func(ctx context.Context) (bool, error)) error {
	var ok bool
	err := withTimeout(ctx, func(ctx context.Context) error {
		var err error
		ok, err = fn(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if ok {
		color.Green("gateway %s", done)
	} else {
		color.Yellow("nothing to do (gateway not in a matching state)")
	}
	return nil
}

func cmdStatus(ctx context.Context, client *control.Client) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	st, err := client.Status(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	state := "stopped"
	switch {
	case st.Paused:
		state = "paused"
	case st.Started:
		state = "running"
	}
	cyan.Println("  Gateway")
	cyan.Println("  -------")
	fmt.Printf("  ID:          %s\n", st.ID)
	fmt.Printf("  Policy:      %s\n", st.Policy)
	fmt.Printf("  State:       %s\n", state)
	fmt.Printf("  Address:     %s\n", orDash(st.Address))
	fmt.Printf("  Connections: %d\n", st.Delegators)
	fmt.Println()

	cyan.Println("  Backends")
	cyan.Println("  --------")
	if len(st.Backends) == 0 {
		fmt.Println("  (none bound)")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ADDRESS\tACCOUNT\tBOUND")
	fmt.Fprintln(w, "  -------\t-------\t-----")
	for _, b := range st.Backends {
		bound := b.BoundAt
		if t, err := time.Parse(time.RFC3339, b.BoundAt); err == nil {
			bound = t.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", b.Address, orDash(b.Account), bound)
	}
	return w.Flush()
}

func cmdConfig(ctx context.Context, client *control.Client, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: config get [file] | config set <file>")
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	switch args[0] {
	case "get":
		cfg, err := client.GetConfig(ctx)
		if err != nil {
			return err
		}
		if len(args) > 1 {
			if err := cfg.Save(args[1]); err != nil {
				return err
			}
			color.Green("config written to %s (secrets omitted)", args[1])
			return nil
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	case "set":
		if len(args) < 2 {
			return errors.New("usage: config set <file>")
		}
		cfg, err := config.Load(args[1])
		if err != nil {
			return err
		}
		if err := client.SetConfig(ctx, cfg); err != nil {
			return err
		}
		color.Green("config applied from %s", args[1])
		return nil
	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func cmdValidate(ctx context.Context, client *control.Client, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: validate <account> <password> [privileges]")
	}
	privs := auth.Access
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 || n > int(auth.All) {
			return fmt.Errorf("invalid privileges %q", args[2])
		}
		privs = auth.Privileges(n)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	ok, err := client.ValidateAccount(ctx, args[0], args[1], privs)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %s rejected", args[0])
	}
	color.Green("account %s accepted", args[0])
	return nil
}

func cmdWatch(ctx context.Context, client *control.Client) error {
	gray := color.New(color.FgHiBlack)
	gray.Println("watching events, Ctrl-C to stop")
	return client.Watch(ctx, func(ev service.Event) {
		fmt.Printf("%s  %-8s %s\n", ev.At.Local().Format("15:04:05"), ev.Kind, ev.Source)
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getToken() string {
	if token := os.Getenv("RECGATE_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "recgate", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
