// ABOUTME: The serve subcommand wiring gateway, control surface and status publisher
// ABOUTME: Runs until a signal or a control-surface Exit

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/fatih/color"

	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/control"
	"github.com/2389/recgate/internal/gateway"
	"github.com/2389/recgate/internal/logging"
	"github.com/2389/recgate/internal/statuspub"
)

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w (run 'recgate init' to create one)", err)
	}
	logger := logging.New(cfg.Logging, os.Stdout)

	exited := make(chan int, 1)
	gw, err := gateway.New(cfg, logger, gateway.WithExitFunc(func(code int) { exited <- code }))
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	pub, err := statuspub.Dial(ctx, cfg.Status, logger)
	if err != nil {
		logger.Warn("status publishing disabled", "error", err)
	} else if pub != nil {
		gw.Observe(pub)
		defer pub.Close()
	}

	ctlAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Control.Port))
	ctlLn, err := net.Listen("tcp", ctlAddr)
	if err != nil {
		gw.Close()
		return fmt.Errorf("listening for control on %s: %w", ctlAddr, err)
	}
	ctl := control.NewServer(cfg.Control, gw, logger)
	go func() {
		if err := ctl.Serve(ctlLn); err != nil {
			logger.Error("control server stopped", "error", err)
		}
	}()

	if err := gw.Start(); err != nil {
		ctl.Shutdown(context.Background())
		gw.Close()
		return fmt.Errorf("starting gateway: %w", err)
	}

	printStartup(cfg, configPath, gw, ctlLn.Addr(), pub != nil)
	logger.Info("recgate started",
		"id", gw.ID(),
		"policy", cfg.Policy,
		"addr", addrString(gw.Addr()),
		"control", ctlLn.Addr().String(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		go gw.Exit()
		<-exited
	case code := <-exited:
		if code != 0 {
			return fmt.Errorf("gateway exited with code %d", code)
		}
	}
	logger.Info("recgate stopped")
	return nil
}

func printStartup(cfg *config.Config, configPath string, gw *gateway.Server, ctl net.Addr, statusOn bool) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	line := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-10s %s\n", label+":", value)
	}
	line("Config", configPath)
	line("Policy", cfg.Policy)
	line("Gateway", addrString(gw.Addr()))
	line("Control", ctl.String()+" ("+cfg.Control.Name+")")
	if addr := gw.HTTPAddr(); addr != nil {
		line("HTTP", addr.String())
	}
	if statusOn {
		line("Status", cfg.Status.RedisAddr+" -> "+cfg.Status.RedisChannel)
	}
	if cfg.Control.JWTSecret == "" {
		yellow.Println("    ! control surface has no jwt_secret, calls are not authenticated")
	}
	fmt.Println()
}

func addrString(a net.Addr) string {
	if a == nil {
		return "-"
	}
	return a.String()
}
