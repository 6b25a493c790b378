package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	commonlog "github.com/rifatismailov/server-cube/server/common/log"
	relayapp "github.com/rifatismailov/server-cube/server/relay/app"
)

func main() {
	cfg := relayapp.LoadConfig()

	relayServer, err := relayapp.NewServer(cfg)
	if err != nil {
		log.Fatalf("initialize relay server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		commonlog.Infof("start relay http server on :%s", cfg.Port)
		if err := relayServer.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("run relay http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := relayServer.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown relay server gracefully: %v", err)
	}
}
