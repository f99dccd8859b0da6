// Package api exposes project management and run control over HTTP. It is a
// thin driver: validation lives in config, state in db, the work itself in
// pipeline.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ridgeline-data/segment.report/internal/db"
	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/httputil"
	"github.com/ridgeline-data/segment.report/internal/monitoring"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db      *db.DB
	runs    *runner
	dataDir string
}

// NewServer wires the HTTP driver to its store. When dataDir is non-empty,
// raster and vector paths in submitted configurations must resolve inside it.
func NewServer(database *db.DB, dataDir string) *Server {
	return &Server{
		db:      database,
		runs:    newRunner(),
		dataDir: dataDir,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/", s.handleProject)
	return mux
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

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	httputil.WriteJSON(w, status, v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

// writeFault maps an error's kind onto an HTTP status.
func (s *Server) writeFault(w http.ResponseWriter, err error) {
	httputil.WriteJSONError(w, httpStatus(err), err.Error())
}

func httpStatus(err error) int {
	switch fault.KindOf(err) {
	case fault.Config:
		return http.StatusBadRequest
	case fault.Data:
		return http.StatusNotFound
	case fault.Conflict:
		return http.StatusConflict
	case fault.Resource:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
