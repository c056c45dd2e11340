// Package api exposes the playback engine over HTTP JSON endpoints.
package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/aeroview-data/flight.report/internal/httputil"
	"github.com/aeroview-data/flight.report/internal/markers"
	"github.com/aeroview-data/flight.report/internal/replay"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server serves the engine, marker store and playback controls.
type Server struct {
	engine  *replay.Engine
	markers *markers.DB

	// dataDir bounds the data_file override accepted by /init. Empty
	// disables the override entirely.
	dataDir string
}

// NewServer creates an API server over the engine and marker store.
// dataDir is the directory client-supplied data file paths must stay
// within.
func NewServer(engine *replay.Engine, markerDB *markers.DB, dataDir string) *Server {
	return &Server{
		engine:  engine,
		markers: markerDB,
		dataDir: dataDir,
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
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
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

// ServeMux returns the API route table. The caller mounts it under /api.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /init", s.handleInit)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /data/{index}", s.handleData)
	mux.HandleFunc("GET /find-index/{seconds}", s.handleFindIndex)
	mux.HandleFunc("GET /path/{start}/{end}", s.handlePath)

	mux.HandleFunc("GET /video-time/{seconds}", s.handleVideoTime)
	mux.HandleFunc("GET /data-timestamp/{seconds}", s.handleDataTimestamp)
	mux.HandleFunc("GET /data-for-video-time", s.handleDataForVideoTime)

	mux.HandleFunc("GET /jump/{marker}", s.handleJump)
	mux.HandleFunc("GET /markers", s.handleListMarkers)
	mux.HandleFunc("POST /markers", s.handlePutMarker)
	mux.HandleFunc("DELETE /markers/{id}", s.handleDeleteMarker)

	mux.HandleFunc("POST /playback/start", s.handleStart)
	mux.HandleFunc("POST /playback/pause", s.handlePause)
	mux.HandleFunc("POST /playback/seek", s.handleSeek)
	mux.HandleFunc("POST /playback/speed", s.handleSpeed)

	return mux
}

// writeEngineError maps engine sentinel errors to HTTP statuses: an
// uninitialized store is a caller-sequencing problem (400), a bounds
// miss is a plain not-found (404).
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, replay.ErrNotInitialized):
		httputil.BadRequest(w, "data not initialized")
	case errors.Is(err, replay.ErrOutOfRange):
		httputil.NotFound(w, "index out of range")
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func pathInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(r.PathValue(name))
}

func pathFloat(r *http.Request, name string) (float64, error) {
	return strconv.ParseFloat(r.PathValue(name), 64)
}
