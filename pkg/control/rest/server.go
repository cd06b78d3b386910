package rest

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

const (
	DefaultListenAddress = "127.0.0.1:8088"
	shutdownTimeout      = 5 * time.Second
)

type Config struct {
	Enabled          *bool    `yaml:"enabled,omitempty"`
	Listen           string   `yaml:"listen,omitempty"`
	AllowedOperators []string `yaml:"allowed_operators,omitempty"`
}

func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func ValidateConfig(c Config) error {
	if !c.IsEnabled() {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.NewValidationError("invalid listen address: "+c.Listen, err)
	}
	if len(c.AllowedOperators) == 0 {
		return errors.NewValidationError("at least one allowed operator is required", nil)
	}
	return nil
}

type Server struct {
	listen string
	server *http.Server
	logger logging.Logger
}

func NewServer(listen string, handler http.Handler, logger logging.Logger) *Server {
	return &Server{
		listen: listen,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.NewNetworkError("failed to listen on "+s.listen, err)
	}
	s.logger.Infof("HTTP control API listening on %s", listener.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		return errors.NewNetworkError("http server failed", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnf("HTTP shutdown incomplete: %v", err)
		return errors.NewTimeoutError("http shutdown incomplete", err)
	}
	s.logger.Infof("HTTP control API stopped")
	return nil
}
