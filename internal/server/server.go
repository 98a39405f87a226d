package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/franckalain/medtrack/internal/capturehost"
	"github.com/franckalain/medtrack/internal/database"
	"github.com/franckalain/medtrack/internal/inventory"
	"github.com/franckalain/medtrack/internal/logger"
	"github.com/franckalain/medtrack/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultAcquireTimeout = 30 * time.Second
	scanHistoryLimit      = 20
	maxMessageBytes       = 16 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served from the same process
	},
}

// Options tune the server. Zero values select defaults.
type Options struct {
	AcquireTimeout time.Duration
	Now            func() time.Time
}

type Server struct {
	db             database.DB
	inventory      *inventory.Service
	recognizer     capturehost.Recognizer
	acquireTimeout time.Duration
	clients        sync.Map
	log            zerolog.Logger
}

func New(db database.DB, recognizer capturehost.Recognizer, opts Options) *Server {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = defaultAcquireTimeout
	}
	return &Server{
		db:             db,
		inventory:      inventory.New(db, opts.Now),
		recognizer:     recognizer,
		acquireTimeout: opts.AcquireTimeout,
		log:            logger.WithComponent("server"),
	}
}

// Router returns the HTTP handler: websocket, health, metrics and the static UI.
func (s *Server) Router(staticDir string) http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}
	return r
}

// Start serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port, staticDir string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(staticDir),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("port", port).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(s, uuid.NewString(), conn)
	s.clients.Store(c.id, c)
	defer s.clients.Delete(c.id)

	c.log.Info().Msg("client connected")
	c.run(r.Context())
	c.log.Info().Msg("client disconnected")
}

// closeClients hangs up every connected client; their read loops then end.
func (s *Server) closeClients() {
	s.clients.Range(func(_, v any) bool {
		v.(*client).conn.Close()
		return true
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
