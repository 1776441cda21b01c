// ABOUTME: Reference recommendation backend served over gRPC
// ABOUTME: Usage: recgate-backend [-addr :10150] [-db path] [-name NAME] [-account admin -password admin]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/2389/recgate/internal/backend"
	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/logging"
	"github.com/2389/recgate/internal/service"
	"github.com/2389/recgate/internal/service/remote"
)

type options struct {
	addr      string
	dbPath    string
	name      string
	account   string
	password  string
	logLevel  string
	logFormat string
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", ":10150", "listen address")
	flag.StringVar(&opts.dbPath, "db", "recgate-backend.db", "SQLite database path (:memory: for a throwaway store)")
	flag.StringVar(&opts.name, "name", "backend", "backend name reported in status and events")
	flag.StringVar(&opts.account, "account", "admin", "account created or updated at startup")
	flag.StringVar(&opts.password, "password", "", "password for -account (empty leaves accounts untouched)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level (debug/info/warn/error)")
	flag.StringVar(&opts.logFormat, "log-format", "text", "log format (text/json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	logger := logging.New(config.LoggingConfig{Level: opts.logLevel, Format: opts.logFormat}, os.Stdout)

	store, err := backend.Open(opts.dbPath, opts.name, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.password != "" {
		if err := store.PutAccount(ctx, opts.account, opts.password, 7); err != nil {
			return fmt.Errorf("creating account: %w", err)
		}
	}

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.addr, err)
	}

	gs := grpc.NewServer()
	srv := remote.NewServer(store, logger)
	srv.Register(gs)

	errCh := make(chan error, 1)
	go func() {
		if err := gs.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	logger.Info("backend serving", "addr", ln.Addr().String(), "service", remote.ServiceName, "db", opts.dbPath)
	srv.Publish(service.NewEvent(service.EventStarted, opts.name))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	}

	logger.Info("backend shutting down")
	srv.SetServing(false)
	srv.Publish(service.NewEvent(service.EventExit, opts.name))
	srv.Shutdown()
	shutdownGRPCServer(gs, 5*time.Second)
	return nil
}

// shutdownGRPCServer stops gs gracefully, forcing a stop after timeout.
func shutdownGRPCServer(gs *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		gs.Stop()
	}
}
