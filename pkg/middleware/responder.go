package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cit-platform/crewtask-service/pkg/errors"
)

// Envelope is the uniform response shape used by every endpoint: a success
// flag, the HTTP status code mirrored into the body, a list of error messages
// (empty on success) and the result payload.
type Envelope struct {
	Success       bool              `json:"success"`
	StatusCode    int               `json:"statusCode"`
	ErrorMessages []string          `json:"errorMessages"`
	Details       map[string]string `json:"details,omitempty"`
	Data          any               `json:"data,omitempty"`
	RequestID     string            `json:"requestId,omitempty"`
	Timestamp     string            `json:"timestamp"`
	Path          string            `json:"path,omitempty"`
}

// ErrorHandler is a middleware that converts errors attached to the Gin
// context into envelope responses.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			appErr := errors.MapDomainError(err)
			reqID := GetRequestID(c)
			logError(logger, c, appErr, reqID)
			c.JSON(appErr.HTTPStatus, errorEnvelope(c, appErr, reqID))
		}
	}
}

// Responder provides helper methods for sending envelope responses
type Responder struct {
	ctx    *gin.Context
	logger *slog.Logger
}

// NewResponder creates a new Responder
func NewResponder(ctx *gin.Context, logger *slog.Logger) *Responder {
	return &Responder{ctx: ctx, logger: logger}
}

// RespondOK sends a 200 envelope with the given payload
func (r *Responder) RespondOK(data any) {
	r.respond(http.StatusOK, data)
}

// RespondCreated sends a 201 envelope with the given payload
func (r *Responder) RespondCreated(data any) {
	r.respond(http.StatusCreated, data)
}

// RespondPartial sends a 206 envelope. Used for completions where the
// loaded and unloaded parcel counts disagree.
func (r *Responder) RespondPartial(data any) {
	r.respond(http.StatusPartialContent, data)
}

func (r *Responder) respond(status int, data any) {
	r.ctx.JSON(status, Envelope{
		Success:       true,
		StatusCode:    status,
		ErrorMessages: []string{},
		Data:          data,
		RequestID:     GetRequestID(r.ctx),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Path:          r.ctx.Request.URL.Path,
	})
}

// RespondWithError sends an error envelope derived from any error
func (r *Responder) RespondWithError(err error) {
	r.RespondWithAppError(errors.MapDomainError(err))
}

// RespondWithAppError sends an error envelope for an AppError
func (r *Responder) RespondWithAppError(appErr *errors.AppError) {
	reqID := GetRequestID(r.ctx)
	logError(r.logger, r.ctx, appErr, reqID)
	r.ctx.JSON(appErr.HTTPStatus, errorEnvelope(r.ctx, appErr, reqID))
}

// RespondInternalError sends a 500 envelope
func (r *Responder) RespondInternalError(err error) {
	r.RespondWithAppError(errors.ErrInternal("").Wrap(err))
}

func errorEnvelope(c *gin.Context, appErr *errors.AppError, requestID string) Envelope {
	messages := []string{appErr.Message}
	return Envelope{
		Success:       false,
		StatusCode:    appErr.HTTPStatus,
		ErrorMessages: messages,
		Details:       appErr.Details,
		RequestID:     requestID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Path:          c.Request.URL.Path,
	}
}

func logError(logger *slog.Logger, c *gin.Context, appErr *errors.AppError, requestID string) {
	logLevel := slog.LevelError
	if appErr.HTTPStatus < http.StatusInternalServerError {
		logLevel = slog.LevelWarn
	}

	attrs := []any{
		"code", appErr.Code,
		"message", appErr.Message,
		"status", appErr.HTTPStatus,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"requestId", requestID,
		"clientIP", c.ClientIP(),
	}

	if appErr.Err != nil {
		attrs = append(attrs, "error", appErr.Err.Error())
	}
	if appErr.Details != nil {
		attrs = append(attrs, "details", appErr.Details)
	}

	logger.Log(c.Request.Context(), logLevel, "API error", attrs...)
}

// AbortWithAppError aborts the request with an error envelope
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, errorEnvelope(c, appErr, GetRequestID(c)))
}

// AbortUnexpected aborts with a generic 500 envelope, used by the recovery path
func AbortUnexpected(c *gin.Context) {
	AbortWithAppError(c, errors.ErrInternal("an unexpected error occurred"))
}
