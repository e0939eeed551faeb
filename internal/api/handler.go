// Package api provides the HTTP API over the registry and the jobs extra
// API. Every command goes through the command processor.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/jobs"
	"github.com/zjrosen/turbo/internal/log"
	"github.com/zjrosen/turbo/internal/pathmap"
	"github.com/zjrosen/turbo/internal/processor"
	"github.com/zjrosen/turbo/internal/pubsub"
)

// Executor runs commands, normally the command processor.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) (any, error)
}

// ObjectLister lists registry entries.
type ObjectLister interface {
	ListObjects(ctx context.Context, q pathmap.Query) []pathmap.Resource
}

// RequestCoercer turns decoded request parameters into the definition's type.
type RequestCoercer interface {
	CoerceRequest(ctx context.Context, data jobs.InstanceData) (jobs.InstanceData, error)
}

// Handler provides HTTP endpoints for the registry.
type Handler struct {
	exec    Executor
	objects ObjectLister
	coercer RequestCoercer
	events  *pubsub.Broker[processor.CommandLogEvent]
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Executor runs commands (required).
	Executor Executor
	// Objects lists registry entries for GET /objects (required).
	Objects ObjectLister
	// Coercer decodes request parameters (optional). Without it parameters
	// are passed on as decoded from JSON.
	Coercer RequestCoercer
	// Events streams processed commands on GET /events (optional).
	Events *pubsub.Broker[processor.CommandLogEvent]
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		exec:    cfg.Executor,
		objects: cfg.Objects,
		coercer: cfg.Coercer,
		events:  cfg.Events,
	}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /objects", h.ListObjects)
	mux.HandleFunc("GET /definitions", h.ListDefinitions)

	mux.HandleFunc("POST /instances", h.CreateInstances)
	mux.HandleFunc("GET /instances", h.ListInstances)
	mux.HandleFunc("GET /instances/{id}", h.GetInstance)
	mux.HandleFunc("DELETE /instances/{id}", h.DeleteInstance)

	mux.HandleFunc("GET /events", h.StreamEvents)
	mux.HandleFunc("GET /health", h.Health)

	return mux
}

// === Request/Response Types ===

// ObjectResponse describes one registry entry.
type ObjectResponse struct {
	Path  string `json:"path"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// ListObjectsResponse is the response body for listing registry entries.
type ListObjectsResponse struct {
	Objects []ObjectResponse `json:"objects"`
	Total   int              `json:"total"`
}

// DefinitionResponse is the response body for a single job definition.
type DefinitionResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Parameters  string            `json:"parameters,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ListDefinitionsResponse is the response body for listing definitions.
type ListDefinitionsResponse struct {
	Definitions []DefinitionResponse `json:"definitions"`
	Total       int                  `json:"total"`
}

// ListInstancesResponse is the response body for listing or creating instances.
type ListInstancesResponse struct {
	Instances []*jobs.Instance `json:"instances"`
	Total     int              `json:"total"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// === Handlers ===

// ListObjects lists registry entries.
// GET /objects?prefix=a/b&suffix=x&match=regex
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := pathmap.Query{
		Prefix: pathmap.ParsePath(params.Get("prefix"), pathmap.Separator),
		Suffix: params.Get("suffix"),
	}
	if expr := params.Get("match"); expr != "" {
		re, err := regexp.Compile(expr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid match expression", err.Error())
			return
		}
		q.Matches = re
	}

	resources := h.objects.ListObjects(r.Context(), q)
	resp := ListObjectsResponse{
		Objects: make([]ObjectResponse, 0, len(resources)),
		Total:   len(resources),
	}
	for _, res := range resources {
		resp.Objects = append(resp.Objects, objectToResponse(res))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListDefinitions lists job definitions.
// GET /definitions
func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	res, err := h.execute(r.Context(), jobs.NewListDefinitions())
	if err != nil {
		h.writeCommandError(w, err, "list_failed", "Failed to list definitions")
		return
	}
	defs, _ := res.([]*jobs.Definition)

	resp := ListDefinitionsResponse{
		Definitions: make([]DefinitionResponse, 0, len(defs)),
		Total:       len(defs),
	}
	for _, def := range defs {
		resp.Definitions = append(resp.Definitions, DefinitionResponse{
			ID:          def.ResourceID,
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Spec.ParametersName,
			Labels:      def.Labels,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// CreateInstances materializes instances from a request.
// POST /instances
func (h *Handler) CreateInstances(w http.ResponseWriter, r *http.Request) {
	var req jobs.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if req.JobDefinitionID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "job_definition_id is required", "")
		return
	}

	if h.coercer != nil {
		data, err := h.coercer.CoerceRequest(r.Context(), req.InstanceData)
		if err != nil {
			h.writeCommandError(w, err, "create_failed", "Failed to decode parameters")
			return
		}
		req.InstanceData = data
	}

	res, err := h.execute(r.Context(), req.Command())
	if err != nil {
		h.writeCommandError(w, err, "create_failed", "Failed to create instances")
		return
	}
	instances, _ := res.([]*jobs.Instance)

	status := http.StatusCreated
	if len(instances) == 0 {
		status = http.StatusOK
	}
	h.writeJSON(w, status, ListInstancesResponse{Instances: instances, Total: len(instances)})
}

// ListInstances lists instances, optionally below a group.
// GET /instances?group=a/b
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	res, err := h.execute(r.Context(), jobs.NewListInstances(r.URL.Query().Get("group")))
	if err != nil {
		h.writeCommandError(w, err, "list_failed", "Failed to list instances")
		return
	}
	instances, _ := res.([]*jobs.Instance)
	if instances == nil {
		instances = []*jobs.Instance{}
	}

	h.writeJSON(w, http.StatusOK, ListInstancesResponse{Instances: instances, Total: len(instances)})
}

// GetInstance returns a single instance by ID.
// GET /instances/{id}
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	res, err := h.execute(r.Context(), jobs.NewGetInstance(r.PathValue("id")))
	if err != nil {
		h.writeCommandError(w, err, "get_failed", "Failed to get instance")
		return
	}
	inst, _ := res.(*jobs.Instance)
	if inst == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Instance not found", "")
		return
	}

	h.writeJSON(w, http.StatusOK, inst)
}

// DeleteInstance removes an instance.
// DELETE /instances/{id}
func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	res, err := h.execute(r.Context(), jobs.NewDeleteInstance(r.PathValue("id")))
	if err != nil {
		h.writeCommandError(w, err, "delete_failed", "Failed to delete instance")
		return
	}
	if deleted, _ := res.(bool); !deleted {
		h.writeError(w, http.StatusNotFound, "not_found", "Instance not found", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StreamEvents streams processed commands via SSE.
// GET /events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Event streaming is not enabled", "")
		return
	}
	events := h.events.Subscribe(r.Context())
	h.streamEvents(w, r, events)
}

// Health reports whether the command processor accepts commands.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if running, ok := h.exec.(interface{ IsRunning() bool }); ok && !running.IsRunning() {
		h.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		return
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// === Helpers ===

// httpCommand is implemented by commands that embed command.BaseCommand.
type httpCommand interface {
	command.Command
	SetSource(command.Source)
}

func (h *Handler) execute(ctx context.Context, cmd httpCommand) (any, error) {
	cmd.SetSource(command.SourceHTTP)
	return h.exec.Execute(ctx, cmd)
}

func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan pubsub.Event[processor.CommandLogEvent]) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}

			data, err := json.Marshal(eventToJSON(event.Payload))
			if err != nil {
				log.Error(log.CatAPI, "Failed to marshal event", "error", err)
				continue
			}

			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func eventToJSON(e processor.CommandLogEvent) map[string]any {
	result := map[string]any{
		"command_id":  e.CommandID,
		"api":         e.API,
		"path":        e.Path,
		"source":      e.Source,
		"success":     e.Success,
		"duration_ms": e.Duration.Milliseconds(),
		"timestamp":   e.Timestamp,
	}
	if e.Error != nil {
		result["error"] = e.Error.Error()
	}
	if e.TraceID != "" {
		result["trace_id"] = e.TraceID
	}
	return result
}

func objectToResponse(res pathmap.Resource) ObjectResponse {
	resp := ObjectResponse{
		Path: res.Path.String(),
		Type: fmt.Sprintf("%T", res.Value),
	}
	switch v := res.Value.(type) {
	case string:
		resp.Value = v
	case fmt.Stringer:
		resp.Value = v.String()
	}
	return resp
}

// writeCommandError maps command errors to HTTP statuses.
func (h *Handler) writeCommandError(w http.ResponseWriter, err error, code, message string) {
	switch {
	case errors.Is(err, jobs.ErrMissingDefinitionID),
		errors.Is(err, jobs.ErrInvalidReplicationMode),
		errors.Is(err, jobs.ErrParametersRequired),
		errors.Is(err, jobs.ErrParametersType):
		h.writeError(w, http.StatusBadRequest, "validation_error", message, err.Error())
	case errors.Is(err, jobs.ErrDefinitionNotFound),
		errors.Is(err, jobs.ErrCreatorNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", message, err.Error())
	case errors.Is(err, jobs.ErrInstanceExists),
		errors.Is(err, processor.ErrDuplicateCommand):
		h.writeError(w, http.StatusConflict, "conflict", message, err.Error())
	case errors.Is(err, command.ErrQueueFull),
		errors.Is(err, processor.ErrNotRunning):
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", message, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, code, message, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatAPI, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	port     int // Actual port after binding (useful when using :0)
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":8420").
	Addr    string
	Handler HandlerConfig
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
}

// NewServer creates a new API server and binds its listener.
// If Addr uses port 0 the OS assigns an available port; see Port.
func NewServer(cfg ServerConfig) (*Server, error) {
	handler := NewHandler(cfg.Handler)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		handler:  handler,
		port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           handler.Routes(),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start starts the HTTP server. It blocks until the server is stopped or fails.
func (s *Server) Start() error {
	log.Info(log.CatAPI, "Starting API server", "addr", s.listener.Addr().String(), "port", s.port)
	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server. The listener is released even
// when Start was never called.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatAPI, "Stopping API server")
	err := s.server.Shutdown(ctx)
	_ = s.listener.Close()
	return err
}

// Port returns the actual port the server is listening on.
func (s *Server) Port() int {
	return s.port
}
