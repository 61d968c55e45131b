package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"mediaconv/internal/config"
	"mediaconv/internal/conversion"
	"mediaconv/internal/history"
	"mediaconv/internal/logging"
	"mediaconv/internal/workspace"
)

// Submitter runs a conversion and waits for the result.
type Submitter interface {
	Submit(ctx context.Context, req conversion.Request) (conversion.Result, error)
}

// History is the read side of the conversion history used by the API.
type History interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	LookupByFile(ctx context.Context, fileName string) (history.Entry, error)
}

// StatusFunc reports daemon status for /api/status.
type StatusFunc func(ctx context.Context) any

// Options configures a Server.
type Options struct {
	Bind            string
	DownloadPrefix  string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	Converter       Submitter
	Workspace       *workspace.Manager
	History         History
	Status          StatusFunc
	Logger          *slog.Logger
}

// OptionsFromConfig fills the server section of Options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Bind:            cfg.Server.Bind,
		DownloadPrefix:  cfg.Server.DownloadPrefix,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.ShutdownTimeout(),
	}
}

// Server is the HTTP boundary of the daemon.
type Server struct {
	bind            string
	downloadPrefix  string
	shutdownTimeout time.Duration
	converter       Submitter
	workspace       *workspace.Manager
	history         History
	status          StatusFunc
	logger          *slog.Logger
	handler         http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New builds the server and its route table.
func New(opts Options) *Server {
	prefix := strings.TrimRight(opts.DownloadPrefix, "/")
	if prefix == "" {
		prefix = config.DefaultDownloadPrefix
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 5 * time.Second
	}
	s := &Server{
		bind:            opts.Bind,
		downloadPrefix:  prefix,
		shutdownTimeout: shutdown,
		converter:       opts.Converter,
		workspace:       opts.Workspace,
		history:         opts.History,
		status:          opts.Status,
		logger:          logging.NewComponentLogger(opts.Logger, "api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/convert/audio", s.handleConvert(workspace.KindAudio))
	mux.HandleFunc("/convert/video", s.handleConvert(workspace.KindVideo))
	mux.HandleFunc(prefix+"/", s.handleDownload)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/conversions", s.handleConversions)

	s.handler = chain(mux,
		requestID,
		recovery(s.logger),
		accessLog(s.logger),
		cors(opts.CORSOrigins),
	)
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is cancelled
// or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
		_ = srv.Close()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
