package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/apperr"
)

// Envelope is the uniform response wrapper. Success responses carry data,
// error responses carry a coded error object.
type Envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *apperr.Error `json:"error,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// statusByCode maps the error taxonomy to HTTP statuses. Unknown codes fall
// through to 500.
var statusByCode = map[string]int{
	apperr.CodeValidation:        http.StatusBadRequest,
	apperr.CodeInvalidStage:      http.StatusBadRequest,
	apperr.CodeUnauthorized:      http.StatusUnauthorized,
	apperr.CodeClaimMismatch:     http.StatusForbidden,
	apperr.CodeItemNotFound:      http.StatusNotFound,
	apperr.CodeNotFound:          http.StatusNotFound,
	apperr.CodeInvalidTransition: http.StatusConflict,
	apperr.CodeWIPLimitExceeded:  http.StatusConflict,
	apperr.CodeDependencyCycle:   http.StatusConflict,
	apperr.CodeOutputCollision:   http.StatusConflict,
	apperr.CodeClaimConflict:     http.StatusConflict,
	apperr.CodeNotClaimed:        http.StatusConflict,
	apperr.CodeAgentBusy:         http.StatusConflict,
	apperr.CodeConflict:          http.StatusConflict,
	apperr.CodeDatabase:          http.StatusInternalServerError,
	apperr.CodeServer:            http.StatusInternalServerError,
}

// respondError writes the envelope for a service-layer error. Anything
// without a code is treated as a server error and logged.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		slog.Error("Unexpected handler error", "error", err, "path", c.Request.URL.Path)
		appErr = apperr.New(apperr.CodeServer, "internal server error")
	}

	status, ok := statusByCode[appErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "code", appErr.Code, "error", appErr.Message, "path", c.Request.URL.Path)
	}
	c.JSON(status, Envelope{Success: false, Error: appErr})
}

// bindJSON decodes the request body and converts decode failures to the
// envelope's VALIDATION_ERROR shape.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Newf(apperr.CodeValidation, "invalid request body: %v", err))
		return false
	}
	return true
}
