package server

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/jamclick/internal/config"
	"github.com/audiolibrelab/jamclick/internal/metronome"
	"github.com/audiolibrelab/jamclick/internal/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Clicks buffered per websocket client before they are dropped
	clientBuffer = 32
)

//go:embed static/index.html
var indexHTML []byte

// Server is the web control surface for a practice session
type Server struct {
	service    service.Service
	configFile string
	port       string
	router     chi.Router
	upgrader   websocket.Upgrader
}

// ConfigRequest is the body of POST /api/metronome/config
type ConfigRequest struct {
	BPM           int    `json:"bpm"`
	TimeSignature string `json:"time_signature"`
	Volume        *int   `json:"volume,omitempty"`
}

type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type VolumeRequest struct {
	Volume int `json:"volume"`
}

type TransportRequest struct {
	Playing bool `json:"playing"`
}

type ProfileSelectRequest struct {
	Name string `json:"name"`
}

// ProfilesResponse lists profiles and the one in use
type ProfilesResponse struct {
	Profiles       []string                  `json:"profiles"`
	Active         string                    `json:"active"`
	TimeSignatures []metronome.TimeSignature `json:"time_signatures"`
}

// GenericResponse is returned by every mutating endpoint
type GenericResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Status  *service.Status `json:"status,omitempty"`
}

// New creates a server for an existing service
func New(svc service.Service, configFile, port string) *Server {
	s := &Server{
		service:    svc,
		configFile: configFile,
		port:       port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The page is meant to be opened from phones on the LAN
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "method", r.Method, "path", r.URL.Path)
	})

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.handleClicks)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/metronome/config", s.handleConfigure)
		r.Post("/metronome/enabled", s.handleEnabled)
		r.Post("/metronome/volume", s.handleVolume)
		r.Post("/transport", s.handleTransport)
		r.Get("/profiles", s.handleProfiles)
		r.Post("/profiles/select", s.handleSelectProfile)
	})

	return r
}

// Start serves until the listener fails
func (s *Server) Start() error {
	localIP := getLocalIP()

	slog.Info("Starting jamclick web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(indexHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if !s.decode(w, r, &req) {
		return
	}

	ts, err := metronome.ParseTimeSignature(req.TimeSignature)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := metronome.Settings{
		BPM:           req.BPM,
		TimeSignature: ts,
		Volume:        s.service.Status().Settings.Volume,
	}
	if req.Volume != nil {
		settings.Volume = *req.Volume
	}

	if err := s.service.Configure(settings); err != nil {
		s.sendServiceError(w, err)
		return
	}

	slog.Info("Metronome reconfigured from web", "bpm", settings.BPM, "time_signature", settings.TimeSignature)
	s.sendSuccess(w, fmt.Sprintf("Tempo set to %d BPM in %s", settings.BPM, settings.TimeSignature))
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.service.SetEnabled(req.Enabled)

	msg := "Metronome off"
	if req.Enabled {
		msg = "Metronome on"
	}
	s.sendSuccess(w, msg)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.service.SetVolume(req.Volume); err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.sendSuccess(w, fmt.Sprintf("Volume set to %d%%", req.Volume))
}

func (s *Server) handleTransport(w http.ResponseWriter, r *http.Request) {
	var req TransportRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.service.SetTransport(req.Playing)

	msg := "Music paused"
	if req.Playing {
		msg = "Music playing"
	}
	s.sendSuccess(w, msg)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.Profiles()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to list profiles", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfilesResponse{
		Profiles:       names,
		Active:         s.service.Status().Profile,
		TimeSignatures: metronome.TimeSignatures,
	})
}

func (s *Server) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileSelectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Profile name is required")
		return
	}

	if err := s.service.LoadProfile(req.Name); err != nil {
		s.sendServiceError(w, err)
		return
	}

	if s.configFile != "" {
		if err := config.UpdateActiveConfig(s.configFile, req.Name); err != nil {
			slog.Warn("Profile loaded but not saved as active", "profile", req.Name, "error", err)
		}
	}

	s.sendSuccess(w, fmt.Sprintf("Profile '%s' loaded", req.Name))
}

// handleClicks streams click events to a websocket client as JSON
func (s *Server) handleClicks(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	id, clicks := s.service.Subscribe(clientBuffer)
	slog.Info("Click stream client connected", "id", id, "remote", r.RemoteAddr)

	go s.readPump(conn, id)
	s.writePump(conn, clicks)

	slog.Info("Click stream client disconnected", "id", id)
}

// readPump discards client messages and unsubscribes once the peer is gone,
// which in turn ends writePump.
func (s *Server) readPump(conn *websocket.Conn, id string) {
	defer s.service.Unsubscribe(id)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, clicks <-chan metronome.ClickEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-clicks:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "error", err)
		return false
	}
	return true
}

func (s *Server) sendSuccess(w http.ResponseWriter, msg string) {
	status := s.service.Status()
	writeJSON(w, http.StatusOK, GenericResponse{
		Success: true,
		Message: msg,
		Status:  &status,
	})
}

// sendServiceError maps service errors onto HTTP status codes
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, metronome.ErrInvalidConfig):
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, config.ErrProfileNotFound):
		s.sendErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, metronome.ErrClosed):
		s.sendErrorResponse(w, http.StatusConflict, err.Error())
	default:
		s.sendErrorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, GenericResponse{
		Success: false,
		Error:   errorMsg,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
