package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockworlds/geohist/internal/config"
	"github.com/blockworlds/geohist/internal/forward"
	"go.uber.org/zap"
)

// #region main
func main() {
	listen := flag.String("listen", ":50051", "address to serve the gravity engine on")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, *listen, logger)
	stop()
	if err != nil {
		logger.Error("engine failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}
// #endregion main

// #region run
func run(ctx context.Context, addr string, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return forward.Serve(ctx, lis, forward.PointMassEngine{}, logger)
}
// #endregion run
