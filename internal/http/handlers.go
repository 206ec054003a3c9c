package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/example/ride-simulator/internal/dispatch"
	"github.com/example/ride-simulator/internal/lifecycle"
	"github.com/example/ride-simulator/internal/models"
	"github.com/example/ride-simulator/internal/orchestrator"
	"github.com/example/ride-simulator/internal/ridestore"
)

type Server struct {
	Orch    *orchestrator.Orchestrator
	Store   *ridestore.Store
	Hub     *dispatch.WSHub
	logger  *slog.Logger
	mux     *mux.Router
	handler http.Handler
}

type Options struct {
	CORSOrigins []string
	Logger      *slog.Logger
}

func NewServer(orch *orchestrator.Orchestrator, hub *dispatch.WSHub, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Orch: orch, Store: orch.Store(), Hub: hub, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler(s.mux)
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rides", s.handleRideRequest).Methods("POST")
	api.HandleFunc("/rides/active", s.handleActiveRide).Methods("GET")
	api.HandleFunc("/rides/active/cancel", s.action(s.Orch.CancelRide)).Methods("POST")
	api.HandleFunc("/rides/active/stop", s.action(s.Orch.StopRideEarly)).Methods("POST")
	api.HandleFunc("/rides/active/reset", s.action(s.Orch.ResetRide)).Methods("POST")
	api.HandleFunc("/rides/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/rides/history", s.handleClearHistory).Methods("DELETE")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/rides", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	var rr models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&rr); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ride, err := s.Orch.Submit(r.Context(), rr)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleActiveRide(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.GetActiveRide())
}

func (s *Server) action(fn func() (models.Ride, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ride, err := fn()
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ride)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"max":     s.Store.MaxHistory(),
		"entries": s.Store.GetHistory(),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.Store.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, orchestrator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.logger.Error("request_failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// handleWS streams every ride snapshot to the client, starting with the
// current one.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		return
	}
	sess := s.Hub.Add(conn)
	if err := sess.Send(s.Store.GetActiveRide()); err != nil {
		s.Hub.Remove(sess)
		return
	}
	go func() {
		defer s.Hub.Remove(sess)
		_ = conn.SetReadDeadline(time.Time{})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func newID() string { return uuid.NewString() }
