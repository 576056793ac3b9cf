package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/config"
	"github.com/audiolibrelab/voicerec/internal/service"
	"github.com/audiolibrelab/voicerec/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the web server for controlling recordings remotely
type Server struct {
	service service.Service
	cfg     *config.Config
	port    string
	hub     *hub

	// listDevices feeds /sources; nil disables the endpoint
	listDevices func() ([]audio.DeviceInfo, error)

	unsubscribe func()
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status         string              `json:"status"`
	Message        string              `json:"message,omitempty"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
	ElapsedLabel   string              `json:"elapsed_label"`
	Samples        int                 `json:"samples"`
	Blocks         int                 `json:"blocks"`
	Format         audio.Format        `json:"format"`
	LastResult     *service.ResultInfo `json:"last_result,omitempty"`
}

// StopResponse is returned by /stop
type StopResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Path       string `json:"path,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Error      string `json:"error,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// New creates a web server around svc and starts forwarding session events
// to WebSocket clients
func New(svc service.Service, cfg *config.Config, port string) *Server {
	if port == "" {
		port = cfg.Server.Port
	}
	s := &Server{
		service: svc,
		cfg:     cfg,
		port:    port,
		hub:     newHub(),
	}
	s.unsubscribe = svc.Subscribe(func(ev session.Event) {
		s.hub.broadcast(newEventMessage(ev))
	})
	return s
}

// SetDeviceLister enables the /sources endpoint
func (s *Server) SetDeviceLister(fn func() ([]audio.DeviceInfo, error)) {
	s.listDevices = fn
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/events", s.handleEvents)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting VoiceRec Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Close stops event forwarding and disconnects WebSocket clients
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.hub.closeAll()
}

// handleIndex serves a minimal control page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.RequestStart(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.sendErrorResponse(w, status, fmt.Sprintf("Failed to start recording: %v", err), "operation", "start")
		return
	}

	// Start is a no-op outside Idle; a stopped or failed take must be reset first
	state := s.service.Status().State
	if state != session.StateRecording {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"success": false,
			"message": fmt.Sprintf("Cannot start while %s, reset first", state),
			"state":   state,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording",
		"state":   state,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid form data", "operation", "stop", "error", err)
		return
	}

	result, stopped := s.service.RequestStop(r.Context(), r.FormValue("destination"))
	if !stopped {
		writeJSON(w, http.StatusConflict, StopResponse{Success: false, Message: "Not recording"})
		return
	}

	if result.Err != nil {
		slog.Error("Recording could not be saved", "kind", result.Kind(), "error", result.Err)
		writeJSON(w, http.StatusOK, StopResponse{
			Success:    false,
			Message:    "Recording stopped but could not be saved",
			Path:       result.Path,
			Kind:       string(result.Kind()),
			Error:      result.Err.Error(),
			Diagnostic: result.Diagnostic(),
		})
		return
	}

	writeJSON(w, http.StatusOK, StopResponse{
		Success: true,
		Message: fmt.Sprintf("Recording saved to %s", result.Path),
		Path:    result.Path,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.service.Reset()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   s.service.Status().State,
	})
}

// handleStatus returns the current status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	st := s.service.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:         string(st.State),
		Message:        s.generateStatusMessage(st),
		ElapsedSeconds: st.Elapsed.Seconds(),
		ElapsedLabel:   service.FormatElapsed(st.Elapsed),
		Samples:        st.Samples,
		Blocks:         st.Blocks,
		Format:         st.Format,
		LastResult:     st.LastResult,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.listDevices == nil {
		s.sendErrorResponse(w, http.StatusNotImplemented, "Device listing not available")
		return
	}
	devices, err := s.listDevices()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list devices: %v", err), "operation", "sources")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"devices": devices,
	})
}

// generateStatusMessage creates appropriate status messages based on current state
func (s *Server) generateStatusMessage(st service.Status) string {
	switch st.State {
	case session.StateIdle:
		if st.LastError != "" {
			return st.LastError
		}
		return ""
	case session.StateRecording:
		return fmt.Sprintf("Recording %s", service.FormatElapsed(st.Elapsed))
	case session.StateStopping:
		return "Stopping"
	case session.StateStopped:
		return "Recording stopped"
	case session.StateFailed:
		if st.LastError != "" {
			return st.LastError
		}
		return "Recording failed"
	default:
		return ""
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
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

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>VoiceRec</title>
</head>
<body>
    <h1>VoiceRec</h1>
    <p id="state">IDLE</p>
    <p id="elapsed">00:00:00</p>
    <button onclick="fetch('/start', {method: 'POST'})">Record</button>
    <button onclick="fetch('/stop', {method: 'POST'}).then(r => r.json()).then(j => document.getElementById('result').textContent = j.message)">Stop</button>
    <p id="result"></p>
    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/events');
        ws.onmessage = (m) => {
            const ev = JSON.parse(m.data);
            document.getElementById('state').textContent = ev.state;
            document.getElementById('elapsed').textContent = ev.elapsed_label;
        };
    </script>
</body>
</html>`
