package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/config"
	"github.com/banshee-data/cloudseg/internal/httputil"
	"github.com/banshee-data/cloudseg/internal/orchestrator"
	"github.com/banshee-data/cloudseg/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ContentTypeCloud selects the binary cloud codec for do_segmentation
// requests and responses instead of JSON.
const ContentTypeCloud = "application/octet-stream"

const (
	defaultGoalListLimit = 20
	maxGoalListLimit     = 500
)

// Node is the orchestration surface the HTTP API drives.
type Node interface {
	OnSyncRequest(input cloud.Cloud) (cloud.Cloud, error)
	SetEnabled(enabled bool)
	Enabled() bool
	OnGoalAccepted() (*orchestrator.GoalSession, error)
	Goal(id string) (orchestrator.GoalStatus, error)
	Stats() orchestrator.Stats
	EngineConfig() config.Segmentation
}

// GoalLister lists goal history, most recent first.
type GoalLister interface {
	ListGoals(limit int) ([]orchestrator.GoalStatus, error)
}

// GoalGetter is implemented by goal stores that can look up one goal.
// GET /api/goals/{id} falls back to it for goals no longer held in memory.
type GoalGetter interface {
	GetGoal(id string) (orchestrator.GoalStatus, error)
}

// DoSegmentationRequest carries the cloud to segment.
type DoSegmentationRequest struct {
	InputCloud cloud.Cloud `json:"input_cloud"`
}

// DoSegmentationResponse carries the labeled points; its header is the
// request header.
type DoSegmentationResponse struct {
	SegmentedCloud cloud.Cloud `json:"segmented_cloud"`
}

// EnablePublisherRequest sets the stream publication flag.
type EnablePublisherRequest struct {
	Enable bool `json:"enable"`
}

// EnablePublisherResponse acknowledges EnablePublisherRequest.
type EnablePublisherResponse struct {
	Success bool `json:"success"`
}

// GoalAcceptedResponse is returned when a goal starts.
type GoalAcceptedResponse struct {
	ID    string                 `json:"id"`
	State orchestrator.GoalState `json:"state"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Build        version.Info           `json:"build"`
	Orchestrator orchestrator.Stats     `json:"orchestrator"`
	Components   map[string]interface{} `json:"components,omitempty"`
}

type Server struct {
	node  Node
	goals GoalLister

	statusMu      sync.RWMutex
	statusSources map[string]func() interface{}
}

// NewServer creates the HTTP API. goals serves GET /api/goals; pass the
// persistent store, or the orchestrator for in-memory history.
func NewServer(node Node, goals GoalLister) *Server {
	return &Server{
		node:          node,
		goals:         goals,
		statusSources: make(map[string]func() interface{}),
	}
}

// AddStatusSource includes fn's result under name in GET /api/status.
func (s *Server) AddStatusSource(name string, fn func() interface{}) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.statusSources[name] = fn
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
	mux.HandleFunc("/api/do_segmentation", s.doSegmentation)
	mux.HandleFunc("/api/enable_publisher", s.enablePublisher)
	mux.HandleFunc("/api/goals", s.goalsCollection)
	mux.HandleFunc("/api/goals/", s.goalByID)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) doSegmentation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	binary := strings.HasPrefix(r.Header.Get("Content-Type"), ContentTypeCloud)

	var input cloud.Cloud
	if binary {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
		if err != nil {
			httputil.BadRequest(w, "failed to read body: "+err.Error())
			return
		}
		if input, err = cloud.Decode(data); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	} else {
		var req DoSegmentationRequest
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		input = req.InputCloud
	}

	result, err := s.node.OnSyncRequest(input)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	if binary {
		data, err := result.MarshalBinary()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", ContentTypeCloud)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			log.Printf("[API] failed to write cloud response: %v", err)
		}
		return
	}
	if result.Points == nil {
		result.Points = []cloud.Point{}
	}
	httputil.WriteJSONOK(w, DoSegmentationResponse{SegmentedCloud: result})
}

func (s *Server) enablePublisher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req EnablePublisherRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.node.SetEnabled(req.Enable)
	httputil.WriteJSONOK(w, EnablePublisherResponse{Success: true})
}

func (s *Server) goalsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.acceptGoal(w)
	case http.MethodGet:
		s.listGoals(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) acceptGoal(w http.ResponseWriter) {
	g, err := s.node.OnGoalAccepted()
	switch {
	case errors.Is(err, orchestrator.ErrGoalInProgress):
		httputil.Conflict(w, err.Error())
		return
	case errors.Is(err, orchestrator.ErrClosed):
		httputil.ServiceUnavailable(w, err.Error())
		return
	case err != nil:
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Location", "/api/goals/"+g.ID())
	httputil.WriteJSON(w, http.StatusAccepted, GoalAcceptedResponse{ID: g.ID(), State: g.Status().State})
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	limit := defaultGoalListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxGoalListLimit)
	}
	goals, err := s.goals.ListGoals(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if goals == nil {
		goals = []orchestrator.GoalStatus{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"goals": goals})
}

func (s *Server) goalByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/goals/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "goal not found")
		return
	}
	st, err := s.node.Goal(id)
	if getter, ok := s.goals.(GoalGetter); ok && errors.Is(err, orchestrator.ErrGoalNotFound) {
		st, err = getter.GetGoal(id)
	}
	if errors.Is(err, orchestrator.ErrGoalNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := StatusResponse{
		Build:        version.Current(),
		Orchestrator: s.node.Stats(),
	}
	s.statusMu.RLock()
	if len(s.statusSources) > 0 {
		resp.Components = make(map[string]interface{}, len(s.statusSources))
		for name, fn := range s.statusSources {
			resp.Components[name] = fn()
		}
	}
	s.statusMu.RUnlock()
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.node.EngineConfig())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}
