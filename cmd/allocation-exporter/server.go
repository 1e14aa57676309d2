package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/kube-reporting/allocation-exporter/pkg/exporter"
)

type statusResponse struct {
	Status  string      `json:"status"`
	Details interface{} `json:"details"`
}

type lastRun struct {
	FinishedAt time.Time `json:"finishedAt"`
	Missing    int       `json:"missing"`
	Written    int       `json:"written"`
	Failed     []string  `json:"failed,omitempty"`
	Rows       int       `json:"rows"`
	Error      string    `json:"error,omitempty"`
}

// runState tracks the scheduler and the outcome of the latest run for the
// health endpoints.
type runState struct {
	mu          sync.RWMutex
	initialized bool
	last        *lastRun
}

func (s *runState) setInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
}

func (s *runState) isInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *runState) record(finishedAt time.Time, summary exporter.Summary, err error) {
	run := &lastRun{
		FinishedAt: finishedAt,
		Missing:    len(summary.Missing),
		Written:    len(summary.Written),
		Failed:     summary.Failed,
		Rows:       summary.Rows,
	}
	if err != nil {
		run.Error = err.Error()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = run
}

func (s *runState) latest() *lastRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

type server struct {
	logger log.FieldLogger
	state  *runState
}

type requestLogger struct {
	log.FieldLogger
}

func (l *requestLogger) Print(v ...interface{}) {
	l.FieldLogger.Info(v...)
}

func newRouter(logger log.FieldLogger, gatherer prometheus.Gatherer, state *runState) chi.Router {
	router := chi.NewRouter()
	logger = logger.WithField("component", "api")
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: &requestLogger{logger}, NoColor: true}))

	srv := &server{
		logger: logger,
		state:  state,
	}
	router.Get("/ready", srv.readinessHandler)
	router.Get("/healthy", srv.healthinessHandler)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return router
}

// readinessHandler reports ready once the scheduler is running. The latest
// run, if any, is returned as details.
func (srv *server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	logger := newRequestLogger(srv.logger, r)
	if !srv.state.isInitialized() {
		logger.Debugf("not ready: scheduler is not yet running")
		writeResponseAsJSON(logger, w, http.StatusInternalServerError,
			statusResponse{
				Status:  "not ready",
				Details: "not initialized",
			})
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, statusResponse{Status: "ok", Details: srv.state.latest()})
}

// healthinessHandler is the liveness check. A failed export does not make the
// process unhealthy; the next scheduled run retries the missing periods.
func (srv *server) healthinessHandler(w http.ResponseWriter, r *http.Request) {
	logger := newRequestLogger(srv.logger, r)
	writeResponseAsJSON(logger, w, http.StatusOK, statusResponse{Status: "ok"})
}

func newRequestLogger(logger log.FieldLogger, r *http.Request) log.FieldLogger {
	return logger.WithFields(log.Fields{
		"method": r.Method,
		"url":    r.URL.String(),
		"logID":  middleware.GetReqID(r.Context()),
	})
}

// writeResponseAsJSON attempts to marshal an arbitrary thing to JSON then write
// it to the http.ResponseWriter
func writeResponseAsJSON(logger log.FieldLogger, w http.ResponseWriter, code int, resp interface{}) {
	enc, err := json.Marshal(resp)
	if err != nil {
		logger.WithError(err).Error("failed JSON-encoding HTTP response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(enc); err != nil {
		logger.WithError(err).Error("failed writing HTTP response")
	}
}
