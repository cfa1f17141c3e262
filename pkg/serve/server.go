// Package serve is the socket surface: a websocket server hosting one
// suspending-mode engine session per connection. The client drives
// runs with JSON frames and receives display events as frames back.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ormasoftchile/stanza/pkg/data"
	"github.com/ormasoftchile/stanza/pkg/dispatch"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

const wsBufferSize = 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Options configures a Server.
type Options struct {
	Addr     string
	Document *schema.Document
	Entry    string // default entry block for start frames without one
	Store    data.Store
	Funcs    dispatch.FuncResolver
	Logger   *slog.Logger
}

// Server accepts websocket connections and hosts a session per client.
type Server struct {
	addr  string
	doc   *schema.Document
	entry string
	store data.Store
	funcs dispatch.FuncResolver
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	httpSrv *http.Server
}

// New builds a server from options.
func New(opts Options) (*Server, error) {
	if opts.Document == nil {
		return nil, errors.New("serve: document is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	entry := opts.Entry
	if entry == "" {
		entry = "main"
	}
	return &Server{
		addr:     opts.Addr,
		doc:      opts.Document,
		entry:    entry,
		store:    opts.Store,
		funcs:    opts.Funcs,
		log:      log,
		sessions: map[string]*Session{},
	}, nil
}

// Handler returns the HTTP routes: /ws for sessions, /healthz for
// liveness.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := newSession(uuid.NewString(), s, conn)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.log.Info("session opened", "session", sess.ID, "active", n)

	go sess.run()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": n,
	})
}

func (s *Server) dropSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// SessionCount reports the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
