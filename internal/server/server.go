// Package server wraps internal/rpcstub's router in a graceful-shutdown
// capable *http.Server, unchanged in shape from the teacher's equivalent
// wrapper around its conversion API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bilidl/internal/config"
	"bilidl/internal/metrics"
	"bilidl/internal/rpcstub"
	"bilidl/internal/session"
)

type Server struct {
	api  *rpcstub.API
	http *http.Server
	log  *slog.Logger
}

func New(cfg *config.Config, sess *session.Store, reg *metrics.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	api := rpcstub.NewAPI(cfg, sess, reg)
	mux := http.NewServeMux()
	mux.Handle("/", api.Router())
	h := &http.Server{Addr: cfg.RPCAddr, Handler: mux}
	return &Server{api: api, http: h, log: log}
}

func (s *Server) Start() error {
	s.log.Info("rpcstub server starting", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	fmt.Println("shutting down")
	return s.http.Shutdown(ctx)
}
