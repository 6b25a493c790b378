package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	relayapi "github.com/rifatismailov/server-cube/server/relay/api"
	relayservice "github.com/rifatismailov/server-cube/server/relay/service"
)

type Server struct {
	HTTPServer *http.Server
	Relay      *relayservice.Relay
}

func NewServer(cfg Config) (*Server, error) {
	relay := relayservice.NewRelay(relayservice.Options{
		StaleTTL:    cfg.StaleTTL,
		SendWorkers: cfg.SendWorkers,
		SendQueue:   cfg.SendQueue,
	})

	h := relayapi.NewHandler(relay)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		IdleTimeout: 60 * time.Second,
	}

	return &Server{HTTPServer: httpServer, Relay: relay}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.Relay.Close()
	return err
}
