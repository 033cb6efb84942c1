package pprof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server exposes runtime profiles of a running gateway on loopback only.
type Server struct {
	server   *http.Server
	listener net.Listener
	port     int
	log      zerolog.Logger
}

// NewServer creates a profiling server that logs through log.
func NewServer(log zerolog.Logger) *Server {
	return &Server{log: log.With().Str("component", "pprof").Logger()}
}

// Start binds to 127.0.0.1:port (0 picks a free port) and returns the bound
// port. The port is also written to the cache directory so `llm-gateway
// pprof` can find it.
func (s *Server) Start(port int) (int, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("bind to %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	r := chi.NewRouter()
	r.Mount("/debug", chimw.Profiler())
	s.server = &http.Server{Handler: r}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("pprof server stopped")
		}
	}()

	if err := writePortFile(s.port); err != nil {
		s.log.Warn().Err(err).Msg("could not write pprof port file")
	}
	s.log.Info().Int("port", s.port).Msg("pprof listening")
	return s.port, nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Stop shuts the server down and removes the port file.
func (s *Server) Stop(ctx context.Context) error {
	removePortFile()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// PrintUsage prints helpful pprof commands to the given writer.
func PrintUsage(w io.Writer, port int) {
	fmt.Fprintf(w, "\npprof server: http://127.0.0.1:%d/debug/pprof/\n\n", port)
	fmt.Fprintf(w, "Quick commands (from another terminal):\n")
	fmt.Fprintf(w, "  llm-gateway pprof cpu       # 30 second CPU profile\n")
	fmt.Fprintf(w, "  llm-gateway pprof heap      # memory allocation profile\n")
	fmt.Fprintf(w, "  llm-gateway pprof goroutine # goroutine stack dump\n\n")
}

// GetCacheDir returns $XDG_CACHE_HOME/llm-gateway, or ~/.cache/llm-gateway.
func GetCacheDir() (string, error) {
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, "llm-gateway"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cache", "llm-gateway"), nil
}

func portFilePath() (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "pprof.port"), nil
}

func writePortFile(port int) error {
	path, err := portFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(port)), 0600)
}

func removePortFile() {
	if path, err := portFilePath(); err == nil {
		os.Remove(path)
	}
}

// ReadPortFile returns the port of the last started profiling server.
func ReadPortFile() (int, error) {
	path, err := portFilePath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("no pprof server running (port file not found)")
	}
	port, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid port file: %w", err)
	}
	return port, nil
}
