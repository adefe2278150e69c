package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

// ServerConfig holds the HTTP server's listen configuration.
type ServerConfig struct {
	Addr string // e.g. ":8088"
}

// Server exposes a Gateway's RPC table as "POST /rpc/<method>" over
// net/http, grounded on internal/server/server.go's ServeMux + method
// pattern routing, csrfProtect localhost-origin check, and graceful
// Shutdown with a drain timeout.
type Server struct {
	gw      *Gateway
	config  ServerConfig
	httpSrv *http.Server
	logger  *log.Logger
}

// NewServer builds a Server around gw. ListenAndServe blocks until Shutdown
// is called or the listener errors.
func NewServer(gw *Gateway, cfg ServerConfig) *Server {
	s := &Server{gw: gw, config: cfg, logger: log.New(os.Stderr, "[gateway] ", log.LstdFlags)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /rpc/{method...}", s.handleRPC)

	s.httpSrv = &http.Server{
		Handler:      csrfProtect(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // gpu.job.wait can legitimately block for tens of seconds
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// ListenAndServe starts the server and blocks until it is shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.logger.Printf("listening on %s", s.config.Addr)
	err = s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests, mirroring
// internal/server/server.go's 15-second shutdown window.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")
	if method == "" {
		writeGatewayError(w, invalidRequest("method is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeGatewayError(w, invalidRequest("cannot read request body"))
		return
	}
	result, err := s.gw.Dispatch(r.Context(), method, body)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

// csrfProtect rejects cross-origin POST requests from a browser context,
// the same localhost-origin check internal/server/server.go applies: CLI
// and programmatic callers either omit Origin or set it to localhost.
func csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			origin := r.Header.Get("Origin")
			if origin != "" {
				u, err := url.Parse(origin)
				if err != nil {
					writeGatewayError(w, invalidRequest("invalid Origin header"))
					return
				}
				host := u.Hostname()
				if host != "localhost" && host != "127.0.0.1" && host != "::1" {
					writeGatewayError(w, invalidRequest("cross-origin request blocked"))
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeGatewayError(w http.ResponseWriter, err error) {
	gwErr, ok := err.(*Error)
	if !ok {
		gwErr = unavailable(err.Error())
	}
	status := http.StatusBadRequest
	if gwErr.Code == CodeUnavailable || gwErr.Code == CodeNotConnected || gwErr.Code == CodeTimeout {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]*Error{"error": gwErr})
}
