package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"solguess/pkg/models"
	"solguess/pkg/watcher"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is the part of the watcher the API exposes.
type Client interface {
	State() models.UIState
	SubmitGuess(ctx context.Context, value string) watcher.GuessResult
	ToggleHistory(ctx context.Context) models.HistoryView
	Refresh()
	Subscribe() watcher.Subscriber
	Unsubscribe(ch watcher.Subscriber)
}

type Server struct {
	client  Client
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

type guessRequest struct {
	Guess string `json:"guess"`
}

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(c Client) *Server {
	s := &Server{
		client:  c,
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/guess", s.handleGuess)
	s.mux.HandleFunc("POST /api/history/toggle", s.handleToggleHistory)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/ws", s.handleWS)
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	go s.listenToWatcher(ctx)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s.mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Info().Int("port", port).Msg("API server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.client.State())
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	res := s.client.SubmitGuess(r.Context(), req.Guess)

	status := http.StatusOK
	if res.Status.Kind == models.StatusInvalid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleToggleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.client.ToggleHistory(r.Context()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.client.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	err = conn.WriteJSON(wsMessage{Type: "initial", Data: s.client.State()})
	s.clients[conn] = true
	s.mu.Unlock()
	if err != nil {
		s.drop(conn)
		return
	}

	defer s.drop(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
}

func (s *Server) listenToWatcher(ctx context.Context) {
	sub := s.client.Subscribe()
	defer s.client.Unsubscribe(sub)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcast(ev watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := wsMessage{Type: string(ev.Type), Data: ev}
	for client := range s.clients {
		if err := client.WriteJSON(msg); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
