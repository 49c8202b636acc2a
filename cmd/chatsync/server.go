package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/models"
	"chatsync/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server is the local status endpoint: health, connection state and the
// in-process metrics registry. It binds to loopback by default and carries
// no auth; it is an operational surface, not an API.
type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	session *service.ChatSession
	addr    string
	server  *http.Server
}

func NewServer(cfg models.StatusConfig, session *service.ChatSession, logger *logrus.Logger) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = constants.DefaultStatusAddr
	}

	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		session: session,
		addr:    addr,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting status server on %s", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Connected    bool   `json:"connected"`
			Reconnecting bool   `json:"reconnecting"`
			LastError    string `json:"lastError,omitempty"`
		}{
			Connected:    s.session.IsConnected(),
			Reconnecting: s.session.IsReconnecting(),
		}
		if err := s.session.ConnectionErr(); err != nil {
			status.LastError = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.WithError(err).Error("Failed to encode status response")
		}
	}
}
