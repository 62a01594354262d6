package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	match "github.com/0x5487/order-process-system"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Stats is served on /stats.
type Stats struct {
	Engine      *match.EngineStats `json:"engine"`
	Conns       int                `json:"conns"`
	Routes      int                `json:"routes"`
	LiveCalls   int                `json:"live_calls"`
	Subscribers int                `json:"subscribers"`
}

// Server serves the websocket feed plus health and stats endpoints.
type Server struct {
	hub        *Hub
	dispatcher *match.Dispatcher
	router     *mux.Router
	http       *http.Server
	logger     *zap.Logger
}

// NewServer creates a feed server. dispatcher may be nil, in which case /stats only
// reports subscribers.
func NewServer(hub *Hub, dispatcher *match.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		hub:        hub,
		dispatcher: dispatcher,
		router:     mux.NewRouter(),
		logger:     logger,
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.http = &http.Server{
		Handler:           c.Handler(s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.hub.ServeWS)
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("feed server listening", zap.String("addr", lis.Addr().String()))
	err := s.http.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and disconnects every subscriber.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.hub.Close()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := Stats{Subscribers: s.hub.Clients()}
	if s.dispatcher != nil {
		stats.Engine = s.dispatcher.Engine().Stats()
		stats.Conns = s.dispatcher.Router().Conns()
		stats.Routes = s.dispatcher.Router().Routes()
		stats.LiveCalls = s.dispatcher.LiveCalls()
	}
	respondJSON(w, http.StatusOK, stats)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
