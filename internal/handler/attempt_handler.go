package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

type courseURI struct {
	CourseID string `uri:"course_id" binding:"required,max=64"`
}

type attemptURI struct {
	AttemptID string `uri:"attempt_id" binding:"required,uuid"`
}

// AttemptHandler handles the student attempt endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// GetRetryInfo godoc
// GET /api/v1/student/courses/:course_id/retry-info
func (h *AttemptHandler) GetRetryInfo(c *gin.Context) {
	studentID, uri, ok := h.course(c)
	if !ok {
		return
	}
	v, err := h.attemptService.RetryInfo(c.Request.Context(), studentID, uri.CourseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// StartAttempt godoc
// POST /api/v1/student/courses/:course_id/attempts
// Resumes the in-progress attempt or starts the next one.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	studentID, uri, ok := h.course(c)
	if !ok {
		return
	}
	v, err := h.attemptService.Start(c.Request.Context(), studentID, uri.CourseID)
	if err != nil {
		var na *service.NoAttemptsError
		if errors.As(err, &na) {
			response.FailWithData(c, http.StatusConflict, response.ErrNoAttemptsLeft, gin.H{"retry_info": na.Retry})
			return
		}
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if v.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, v)
}

// GetTimer godoc
// GET /api/v1/student/attempts/:attempt_id/timer
func (h *AttemptHandler) GetTimer(c *gin.Context) {
	studentID, uri, ok := h.attempt(c)
	if !ok {
		return
	}
	v, err := h.attemptService.Timer(c.Request.Context(), studentID, uri.AttemptID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// PushTimer godoc
// PUT /api/v1/student/attempts/:attempt_id/timer
// Accepts the client's remaining seconds; the deadline never moves later.
func (h *AttemptHandler) PushTimer(c *gin.Context) {
	studentID, uri, ok := h.attempt(c)
	if !ok {
		return
	}
	var req model.PushTimerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	v, err := h.attemptService.PushTimer(c.Request.Context(), studentID, uri.AttemptID, *req.RemainingSeconds)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// SaveAnswers godoc
// PUT /api/v1/student/attempts/:attempt_id/answers
func (h *AttemptHandler) SaveAnswers(c *gin.Context) {
	studentID, uri, ok := h.attempt(c)
	if !ok {
		return
	}
	var req model.SaveAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	v, err := h.attemptService.SaveAnswers(c.Request.Context(), studentID, uri.AttemptID, req.Answers, req.ElapsedSeconds)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// SubmitAnswers godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Grades the attempt. Repeating the call returns the first acknowledgement.
func (h *AttemptHandler) SubmitAnswers(c *gin.Context) {
	studentID, uri, ok := h.attempt(c)
	if !ok {
		return
	}
	var req model.SubmitAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	v, err := h.attemptService.Submit(c.Request.Context(), studentID, uri.AttemptID, req.Answers)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
func (h *AttemptHandler) GetResult(c *gin.Context) {
	studentID, uri, ok := h.attempt(c)
	if !ok {
		return
	}
	v, err := h.attemptService.Result(c.Request.Context(), studentID, uri.AttemptID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// RecordLeave godoc
// POST /api/v1/student/attempts/:attempt_id/leave
func (h *AttemptHandler) RecordLeave(c *gin.Context) {
	studentID, uri, ok := h.attempt(c)
	if !ok {
		return
	}
	var req model.RecordLeaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	v, err := h.attemptService.RecordLeave(c.Request.Context(), studentID, uri.AttemptID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, v)
}

func (h *AttemptHandler) course(c *gin.Context) (int, courseURI, bool) {
	var uri courseURI
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uri, false
	}
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return 0, uri, false
	}
	return claims.UserID, uri, true
}

func (h *AttemptHandler) attempt(c *gin.Context) (int, attemptURI, bool) {
	var uri attemptURI
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uri, false
	}
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return 0, uri, false
	}
	return claims.UserID, uri, true
}

// fail maps service errors to API errors.
func (h *AttemptHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCourseNotFound), errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAttemptSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
	case errors.Is(err, service.ErrResultNotReady):
		response.Fail(c, http.StatusConflict, response.ErrResultNotReady)
	case errors.Is(err, service.ErrUnknownQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownQuestion)
	case errors.Is(err, service.ErrInvalidChoice):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidChoice)
	case errors.Is(err, service.ErrInvalidRemaining), errors.Is(err, service.ErrUnlimitedAttempts):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
	default:
		h.log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Attempt request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
