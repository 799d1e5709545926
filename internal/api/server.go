// Package api exposes the coordinator over HTTP: task submission and
// inspection, the approval gate, health, and a server-sent event
// stream of workflow progress.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hivemind-labs/hiveflow/internal/collab"
	"github.com/hivemind-labs/hiveflow/internal/config"
	"github.com/hivemind-labs/hiveflow/internal/core"
	"github.com/hivemind-labs/hiveflow/internal/events"
	"github.com/hivemind-labs/hiveflow/internal/logging"
	"github.com/hivemind-labs/hiveflow/internal/swarm"
)

// serviceName is reported by the health endpoint.
const serviceName = "hiveflow"

// Server is the HTTP front-end.
type Server struct {
	manager *swarm.Manager
	events  *events.EventBus
	audit   collab.AuditSink
	logger  *logging.Logger
	cfg     config.ServerConfig
	router  chi.Router
}

// NewServer wires the router.
func NewServer(manager *swarm.Manager, eventBus *events.EventBus, audit collab.AuditSink, logger *logging.Logger, cfg config.ServerConfig) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if audit == nil {
		audit = collab.NopAuditSink{}
	}
	s := &Server{
		manager: manager,
		events:  eventBus,
		audit:   audit,
		logger:  logger,
		cfg:     cfg,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "x-tenant-id", "x-actor-id"},
		AllowCredentials: false,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/stream", s.handleStream)
	r.Get("/agents", s.handleAgents)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/create", s.handleCreateTask)
		r.Get("/", s.handleListTasks)
		r.Get("/{id}", s.handleGetTask)
		r.Post("/{id}/approval", s.handleApproval)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// createTaskRequest is the task submission body.
type createTaskRequest struct {
	Objective        string                 `json:"objective"`
	Type             string                 `json:"type,omitempty"`
	Priority         string                 `json:"priority,omitempty"`
	Context          map[string]interface{} `json:"context,omitempty"`
	RequiresApproval bool                   `json:"requires_approval,omitempty"`
}

// createTaskResponse acknowledges an accepted submission.
type createTaskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	tenant := r.Header.Get("x-tenant-id")
	actor := r.Header.Get("x-actor-id")
	if tenant == "" || actor == "" {
		s.writeError(w, http.StatusBadRequest,
			core.ErrValidation(core.CodeMissingHeader, "x-tenant-id and x-actor-id headers are required"))
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, core.ErrValidation("BAD_BODY", "invalid request body"))
		return
	}
	if req.Objective == "" {
		s.writeError(w, http.StatusBadRequest, core.ErrValidation(core.CodeEmptyObjective, "objective cannot be empty"))
		return
	}

	taskID, err := s.manager.Submit(r.Context(), swarm.Request{
		Objective:        req.Objective,
		Type:             core.TaskType(req.Type),
		Priority:         core.Priority(req.Priority),
		Context:          req.Context,
		RequiresApproval: req.RequiresApproval,
	})

	auditRec := collab.AuditRecord{
		Tenant:    tenant,
		Actor:     actor,
		Service:   serviceName,
		Tool:      "tasks.create",
		Request:   map[string]interface{}{"objective": req.Objective, "type": req.Type},
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err != nil {
		auditRec.Error = err.Error()
	} else {
		auditRec.ResourceRef = string(taskID)
	}
	if auditErr := s.audit.Record(r.Context(), auditRec); auditErr != nil {
		s.logger.Warn("audit record failed", "error", auditErr)
	}

	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, createTaskResponse{
		TaskID:  string(taskID),
		Status:  string(core.TaskStatusPending),
		Message: "task accepted",
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := core.TaskID(chi.URLParam(r, "id"))
	result, err := s.manager.Result(id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.manager.List()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// approvalRequest carries a reviewer decision.
type approvalRequest struct {
	Decision string `json:"decision"` // approved, rejected, cancelled
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	id := core.TaskID(chi.URLParam(r, "id"))

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, core.ErrValidation("BAD_BODY", "invalid request body"))
		return
	}

	decision := core.ApprovalStatus(req.Decision)
	switch decision {
	case core.ApprovalApproved, core.ApprovalRejected, core.ApprovalCancelled:
	default:
		s.writeError(w, http.StatusBadRequest,
			core.ErrValidation("BAD_DECISION", "decision must be approved, rejected or cancelled"))
		return
	}

	if _, err := s.manager.Result(id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	workflowID, ok := s.manager.WorkflowID(id)
	if !ok {
		s.writeError(w, http.StatusBadRequest,
			core.ErrValidation("NO_WORKFLOW", "task has no workflow awaiting approval"))
		return
	}

	s.manager.Engine().Gate().Decide(workflowID, decision)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":  string(id),
		"decision": string(decision),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"service":      serviceName,
		"active_tasks": s.manager.ActiveCount(),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": s.manager.Agents(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encoding failed", "error", err)
	}
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		body.Error = domErr.Message
		body.Code = domErr.Code
		body.Category = string(domErr.Category)
	}
	s.writeJSON(w, status, body)
}

// statusFor maps domain error categories to HTTP status codes.
func statusFor(err error) int {
	switch core.GetCategory(err) {
	case core.ErrCatValidation:
		return http.StatusBadRequest
	case core.ErrCatNotFound:
		return http.StatusNotFound
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout
	case core.ErrCatUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
