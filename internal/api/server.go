package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/httputil"
	"github.com/banshee-data/presence.report/internal/ld2412"
	"github.com/banshee-data/presence.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// RadarEngine is the slice of the decode engine the API layer needs.
type RadarEngine interface {
	Send(ld2412.CommandCode, []byte) error
	Stats() ld2412.Statistics
	ClearStats()
	Session() ld2412.SessionInfo
}

type Server struct {
	engine    RadarEngine
	db        *db.DB
	sessionID string
}

func NewServer(engine RadarEngine, db *db.DB, sessionID string) *Server {
	return &Server{
		engine:    engine,
		db:        db,
		sessionID: sessionID,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stats/clear", s.clearStats)
	mux.HandleFunc("/api/measurements", s.listMeasurements)
	mux.HandleFunc("/api/commands", s.listCommands)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/models", s.listModels)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, GetAllSensorModels())
}

// commandNames maps API command names to their wire codes. Names with a
// payload requirement accept hex bytes in the request's payload field.
var commandNames = map[string]ld2412.CommandCode{
	"enter_config":            ld2412.CmdEnterConfigMode,
	"exit_config":             ld2412.CmdExitConfigMode,
	"read_version":            ld2412.CmdReadVersion,
	"read_mac":                ld2412.CmdReadMAC,
	"read_params":             ld2412.CmdReadParameters,
	"read_resolution":         ld2412.CmdReadDistanceResolution,
	"set_resolution":          ld2412.CmdSetDistanceResolution,
	"read_motion_sensitivity": ld2412.CmdReadMotionSensitivity,
	"read_static_sensitivity": ld2412.CmdReadStaticSensitivity,
	"read_light_control":      ld2412.CmdReadLightControl,
	"set_light_control":       ld2412.CmdSetLightControl,
	"read_bg_correction":      ld2412.CmdReadBackgroundCorrection,
	"bg_correction":           ld2412.CmdBackgroundCorrection,
	"engineering_on":          ld2412.CmdEnableEngineering,
	"engineering_off":         ld2412.CmdDisableEngineering,
	"set_baud_rate":           ld2412.CmdSetBaudRate,
	"factory_reset":           ld2412.CmdFactoryReset,
	"restart":                 ld2412.CmdRestart,
	"bluetooth":               ld2412.CmdBluetooth,
}

// parseCommand resolves either a symbolic command name or a hex code like
// "0x00A0" into a wire code.
func parseCommand(name string) (ld2412.CommandCode, error) {
	if code, ok := commandNames[name]; ok {
		return code, nil
	}
	if strings.HasPrefix(name, "0x") || strings.HasPrefix(name, "0X") {
		v, err := strconv.ParseUint(name[2:], 16, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid command code %q", name)
		}
		return ld2412.CommandCode(v), nil
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

type commandRequest struct {
	Command string `json:"command"`
	Payload string `json:"payload,omitempty"` // hex bytes
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	if req.Command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}

	code, err := parseCommand(req.Command)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var payload []byte
	if req.Payload != "" {
		payload, err = hex.DecodeString(req.Payload)
		if err != nil {
			httputil.BadRequest(w, "invalid payload hex")
			return
		}
	}

	if err := s.engine.Send(code, payload); err != nil {
		if errors.Is(err, ld2412.ErrAlreadyWaiting) {
			httputil.Conflict(w, "a command is already awaiting its reply")
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to send command: %v", err))
		return
	}

	if err := s.db.RecordCommand(s.sessionID, code, db.CommandSent, false, payload); err != nil {
		log.Printf("failed to record sent command: %v", err)
	}

	httputil.WriteJSONOK(w, map[string]string{
		"status":  "sent",
		"command": code.String(),
	})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Stats())
}

func (s *Server) clearStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.engine.ClearStats()
	httputil.WriteJSONOK(w, map[string]string{"status": "cleared"})
}

// parseLimit reads an optional positive limit query parameter.
func parseLimit(r *http.Request) (int, error) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			return 0, fmt.Errorf("invalid 'limit' parameter")
		}
		limit = parsed
	}
	return limit, nil
}

func (s *Server) listMeasurements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	measurements, err := s.db.RecentMeasurements(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve measurements: %v", err))
		return
	}
	if measurements == nil {
		measurements = []db.MeasurementRow{}
	}
	httputil.WriteJSONOK(w, measurements)
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	entries, err := s.db.RecentCommands(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve command log: %v", err))
		return
	}
	if entries == nil {
		entries = []db.CommandLogRow{}
	}
	httputil.WriteJSONOK(w, entries)
}

type sessionResponse struct {
	SessionID string             `json:"session_id"`
	Info      ld2412.SessionInfo `json:"info"`
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, sessionResponse{
		SessionID: s.sessionID,
		Info:      s.engine.Session(),
	})
}
