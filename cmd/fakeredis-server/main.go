// Command fakeredis-server runs the emulator as a standalone server.
//
// It is the same engine the in-process API exposes, wrapped with a
// production zap logger, a command-logging middleware and
// signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	fakeredis "github.com/gabriels1234/fakeredis"
)

func main() {
	var (
		addr        = flag.String("addr", ":6379", "listen address")
		password    = flag.String("requirepass", "", "require AUTH with this password")
		maxClients  = flag.Int("maxclients", 10000, "maximum concurrent connections")
		logCommands = flag.Bool("log-commands", false, "log every command at debug level")
		slowMs      = flag.Int("slowlog-ms", 50, "log commands slower than this many milliseconds")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	srv := fakeredis.NewServer(*addr)
	srv.Logger = logger
	srv.Password = *password
	srv.MaxConnections = *maxClients

	if *logCommands {
		srv.UseFunc(func(conn *fakeredis.Connection, cmd *fakeredis.Command, next fakeredis.CommandHandler) fakeredis.RedisValue {
			logger.Debug("command",
				zap.String("name", cmd.Name),
				zap.Int("args", len(cmd.Args)),
				zap.Int64("client", conn.ID()))
			return next.Handle(conn, cmd)
		})
	}
	slow := time.Duration(*slowMs) * time.Millisecond
	srv.UseFunc(func(conn *fakeredis.Connection, cmd *fakeredis.Command, next fakeredis.CommandHandler) fakeredis.RedisValue {
		start := time.Now()
		out := next.Handle(conn, cmd)
		if d := time.Since(start); slow > 0 && d > slow {
			logger.Warn("slow command", zap.String("name", cmd.Name), zap.Duration("took", d))
		}
		return out
	})

	if err := srv.Listen(); err != nil {
		logger.Error("listen failed", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}
