package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/chessmatch/game/registry"
)

// RoomDirectory is the read-only view of the registry the admin API serves.
type RoomDirectory interface {
	Stats() registry.Stats
	Rooms() []registry.RoomInfo
	Room(code uint16) (registry.RoomInfo, bool)
}

// Server is the REST admin server. Gameplay happens over the WebSocket; this
// surface only observes.
type Server struct {
	directory RoomDirectory
	router    *mux.Router
	logger    *zap.Logger
	started   time.Time
}

// NewServer creates the admin API server.
func NewServer(directory RoomDirectory, logger *zap.Logger) *Server {
	s := &Server{
		directory: directory,
		router:    mux.NewRouter(),
		logger:    logger,
		started:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{code}", s.handleGetRoom).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.directory.Stats())
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.directory.Rooms()

	// Newest first, stable for clients polling the list.
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})

	// Apply limit if specified
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(rooms) {
			rooms = rooms[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"rooms": rooms,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	code, err := strconv.ParseUint(vars["code"], 10, 16)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid room code")
		return
	}

	info, ok := s.directory.Room(uint16(code))
	if !ok {
		respondError(w, http.StatusNotFound, "Room not found")
		return
	}

	respondJSON(w, http.StatusOK, info)
}
