package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moogar0880/problems"

	"github.com/garyjia/taskflow/internal/application/service"
	domainwf "github.com/garyjia/taskflow/internal/domain/workflow"
)

const problemContentType = "application/problem+json"

func writeProblem(c *gin.Context, status int, problem *problems.DefaultProblem) {
	c.Header("Content-Type", problemContentType)
	c.JSON(status, problem)
}

func badRequest(c *gin.Context, detail string) {
	writeProblem(c, http.StatusBadRequest, problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(c.Request.URL.Path).
		WithType("validation_error").
		WithDetail(detail))
}

func unauthorized(c *gin.Context, detail string) {
	writeProblem(c, http.StatusUnauthorized, problems.NewStatusProblem(http.StatusUnauthorized).
		WithInstance(c.Request.URL.Path).
		WithType("unauthorized").
		WithDetail(detail))
}

func notFound(c *gin.Context, detail string) {
	writeProblem(c, http.StatusNotFound, problems.NewStatusProblem(http.StatusNotFound).
		WithInstance(c.Request.URL.Path).
		WithType("not_found").
		WithDetail(detail))
}

func internalError(c *gin.Context) {
	writeProblem(c, http.StatusInternalServerError, problems.NewStatusProblem(http.StatusInternalServerError).
		WithInstance(c.Request.URL.Path).
		WithType("internal_error").
		WithDetail(service.MsgInternal))
}

// handleServiceError maps service errors to problem responses. Internal
// details are logged, never returned.
func (h *Handlers) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainwf.ErrNotFoundOrAccessDenied):
		notFound(c, service.MsgNotFoundOrAccessDenied)
	case errors.Is(err, service.ErrProjectNotFoundOrAccessDenied):
		notFound(c, "Project not found or access denied")
	case errors.Is(err, service.ErrInvalidDefinition):
		writeProblem(c, http.StatusUnprocessableEntity, problems.NewStatusProblem(http.StatusUnprocessableEntity).
			WithInstance(c.Request.URL.Path).
			WithType("invalid_definition").
			WithDetail(err.Error()))
	default:
		h.logger.Error("Request failed",
			"path", c.Request.URL.Path,
			"request_id", c.GetString(ctxKeyRequestID),
			"error", err)
		internalError(c)
	}
}

// transitionStatus maps a transition outcome to an HTTP status
func transitionStatus(kind domainwf.ErrorKind) int {
	switch kind {
	case domainwf.KindNone:
		return http.StatusOK
	case domainwf.KindNotFoundOrAccessDenied, domainwf.KindTargetStateNotFound:
		return http.StatusNotFound
	case domainwf.KindInvalidTransition, domainwf.KindConditionsNotMet:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
