package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/config"
	"github.com/collider/frost-wallet-node/internal/rendezvous"
)

func main() {
	addr := flag.String("addr", ":9443", "listen address for the rendezvous WebSocket server")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger, err := config.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(3)
	}
	defer logger.Sync()

	srv := rendezvous.NewServer(logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv.Handler())

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("rendezvous server listening", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("rendezvous server failed", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutting down rendezvous server")
	_ = httpServer.Close()
}
