package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/application/service"
	"github.com/garyjia/taskflow/internal/application/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	service service.WorkflowService
	version string
	logger  Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc service.WorkflowService, version string, logger Logger) *Handlers {
	return &Handlers{
		service: svc,
		version: version,
		logger:  logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// TransitionRequest is the body of POST /tasks/:id/transition
type TransitionRequest struct {
	ToStateID int64  `json:"to_state_id" binding:"required,gt=0"`
	Comment   string `json:"comment" binding:"max=2000"`
}

// ProcessAutomaticRequest is the body of POST /workflow/process-automatic
type ProcessAutomaticRequest struct {
	ProjectID int64 `json:"project_id" binding:"required,gt=0"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
		},
	})
}

// TransitionTask handles POST /api/v1/tasks/:id/transition
func (h *Handlers) TransitionTask(c *gin.Context) {
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp := h.service.Transition(c.Request.Context(), taskID, req.ToStateID, currentUser(c), req.Comment)
	c.JSON(transitionStatus(resp.Kind), resp)
}

// AvailableTransitions handles GET /api/v1/tasks/:id/transitions
func (h *Handlers) AvailableTransitions(c *gin.Context) {
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	views, err := h.service.AvailableTransitions(c.Request.Context(), taskID, currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: views})
}

// AuditHistory handles GET /api/v1/tasks/:id/audit?order=asc|desc.
// Newest entries come first unless asc is requested.
func (h *Handlers) AuditHistory(c *gin.Context) {
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := port.ParseSortOrder(c.Query("order"), workflow.Descending)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	views, err := h.service.GetAuditHistory(c.Request.Context(), taskID, currentUser(c), order)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: views})
}

// ProcessAutomatic handles POST /api/v1/workflow/process-automatic
func (h *Handlers) ProcessAutomatic(c *gin.Context) {
	var req ProcessAutomaticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.ProcessProjectAutomaticTransitions(c.Request.Context(), req.ProjectID, currentUser(c))
	if err != nil && (resp == nil || !resp.Incomplete) {
		h.handleServiceError(c, err)
		return
	}

	h.logger.Info("Automatic transitions processed via API",
		"user_id", currentUser(c),
		"project_id", req.ProjectID,
		"processed", resp.ProcessedCount,
		"processed_ids", processedIDs(resp),
		"incomplete", resp.Incomplete)
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

func processedIDs(resp *service.ProcessAutomaticResponse) []int64 {
	ids := make([]int64, 0, len(resp.ProcessedTasks))
	for _, t := range resp.ProcessedTasks {
		ids = append(ids, t.ID)
	}
	return ids
}

// ListStates handles GET /api/v1/projects/:id/states
func (h *Handlers) ListStates(c *gin.Context) {
	projectID, ok := pathID(c)
	if !ok {
		return
	}

	states, err := h.service.ListStates(c.Request.Context(), projectID, currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: states})
}

// ListTransitions handles GET /api/v1/projects/:id/transitions
func (h *Handlers) ListTransitions(c *gin.Context) {
	projectID, ok := pathID(c)
	if !ok {
		return
	}

	views, err := h.service.ListTransitions(c.Request.Context(), projectID, currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: views})
}

// AddTransition handles POST /api/v1/projects/:id/transitions
func (h *Handlers) AddTransition(c *gin.Context) {
	projectID, ok := pathID(c)
	if !ok {
		return
	}

	// Field rules are enforced by the service's validator
	var def service.NewTransition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	t, err := h.service.AddTransition(c.Request.Context(), projectID, currentUser(c), def)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: t})
}

// SetupDefaultWorkflow handles POST /api/v1/projects/:id/workflow/default
func (h *Handlers) SetupDefaultWorkflow(c *gin.Context) {
	projectID, ok := pathID(c)
	if !ok {
		return
	}

	view, err := h.service.SetupDefaultWorkflow(c.Request.Context(), projectID, currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// pathID parses the :id parameter, writing a 400 problem on failure
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}
