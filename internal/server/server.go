package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"scramble/internal/board"
	"scramble/internal/session"
)

// Server is the HTTP server. It exposes the plain-text game protocol
// (/game/...) alongside a JSON API and a WebSocket stream (/api/...).
type Server struct {
	mux     *http.ServeMux
	manager *session.Manager
	log     *zap.Logger
}

// New creates a server with all routes.
func New(manager *session.Manager, log *zap.Logger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		manager: manager,
		log:     log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// JSON API
	s.mux.HandleFunc("GET /api/games", s.handleListGames)
	s.mux.HandleFunc("POST /api/games", s.handleCreateGame)
	s.mux.HandleFunc("GET /api/games/{code}", s.handleGetGame)
	s.mux.HandleFunc("GET /api/games/{code}/ws", s.handleWebSocket)

	// Text protocol
	s.mux.HandleFunc("GET /game/{code}/look/{player}", s.handleLook)
	s.mux.HandleFunc("GET /game/{code}/flip/{player}/{pos}", s.handleFlip)
	s.mux.HandleFunc("GET /game/{code}/watch/{player}", s.handleWatch)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

type createGameRequest struct {
	// Board is the full text of a board file. When empty, a board of
	// Rows x Cols is generated from Values.
	Board  string   `json:"board"`
	Rows   int      `json:"rows"`
	Cols   int      `json:"cols"`
	Values []string `json:"values"`
}

type createGameResponse struct {
	Code string `json:"code"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var sess *session.Session
	var err error
	if req.Board != "" {
		sess, err = s.manager.CreateFromText(req.Board)
	} else {
		sess, err = s.manager.CreateGenerated(req.Rows, req.Cols, req.Values)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("game created", zap.String("code", sess.Code))
	writeJSON(w, http.StatusCreated, createGameResponse{Code: sess.Code})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("code"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "game not found"})
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleLook(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("code"))
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	view, err := sess.Board.Look(r.PathValue("player"))
	if err != nil {
		writeBoardError(w, err)
		return
	}
	writeText(w, view)
}

func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("code"))
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	row, col, ok := parsePos(r.PathValue("pos"))
	if !ok {
		http.Error(w, "position must be ROW,COL", http.StatusBadRequest)
		return
	}
	player := r.PathValue("player")
	view, err := sess.Board.Flip(r.Context(), player, row, col)
	if err != nil {
		writeBoardError(w, err)
		return
	}
	if err := s.manager.RecordScores(sess); err != nil {
		s.log.Warn("record scores", zap.String("code", sess.Code), zap.Error(err))
	}
	writeText(w, view)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("code"))
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	view, err := sess.Board.Watch(r.Context(), r.PathValue("player"))
	if err != nil {
		writeBoardError(w, err)
		return
	}
	writeText(w, view)
}

// parsePos splits "ROW,COL" into integers. Range checking is the board's job.
func parsePos(s string) (row, col int, ok bool) {
	r, c, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	row, err := strconv.Atoi(r)
	if err != nil {
		return 0, 0, false
	}
	col, err = strconv.Atoi(c)
	if err != nil {
		return 0, 0, false
	}
	return row, col, true
}

// writeBoardError maps board errors onto HTTP status codes with a short
// plain-text diagnostic.
func writeBoardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, board.ErrNoCard):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, board.ErrControlled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, board.ErrCoordinates), errors.Is(err, board.ErrPlayerID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled):
		// client went away mid-wait; nothing to write
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
