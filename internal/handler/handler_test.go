package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

var setupValidator sync.Once

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

type testAPI struct {
	t      *testing.T
	engine *gin.Engine
	token  string
}

func newTestAPI(t *testing.T, limiter *middleware.RateLimiter) *testAPI {
	t.Helper()
	setupValidator.Do(validator.Setup)

	cfg := &config.Server{
		GinMode:           gin.TestMode,
		JWTSecret:         "handler-test-secret-0123456789",
		JWTExpiry:         time.Minute,
		RefreshExpiry:     time.Hour,
		BcryptCost:        4,
		TimerFeedInterval: time.Second,
	}
	log := zerolog.Nop()
	catalog := repository.DefaultCatalog()
	catalog.Courses[0].MaxAttempts = 1
	students, err := catalog.HashedStudents(func(p string) (string, error) { return service.HashPassword(p, 4) })
	require.NoError(t, err)
	studentRepo, err := repository.NewMemoryStudentRepository(students)
	require.NoError(t, err)

	authService := service.NewAuthService(cfg, studentRepo, log)
	attemptService := service.NewAttemptService(
		repository.NewMemoryCourseRepository(catalog.Courses),
		repository.NewMemoryAttemptRepository(),
		nil,
		log,
	)
	engine := router.SetupRouter(authService, &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Attempt: handler.NewAttemptHandler(attemptService, log),
		WS:      handler.NewWSHandler(attemptService, cfg.TimerFeedInterval, log, nil),
	}, limiter, cfg)
	return &testAPI{t: t, engine: engine}
}

func (a *testAPI) do(method, path string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (a *testAPI) login() {
	a.t.Helper()
	status, env := a.do(http.MethodPost, "/api/v1/auth/student/login", model.StudentLoginRequest{NISN: "user1", Password: "stemsijaya"})
	require.Equal(a.t, http.StatusOK, status)
	var pair model.TokenPair
	require.NoError(a.t, json.Unmarshal(env.Data, &pair))
	a.token = pair.Token
}

func (a *testAPI) start(course string) service.StartView {
	a.t.Helper()
	status, env := a.do(http.MethodPost, "/api/v1/student/courses/"+course+"/attempts", nil)
	require.Contains(a.t, []int{http.StatusOK, http.StatusCreated}, status)
	var v service.StartView
	require.NoError(a.t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)
	status, env := api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))
}

func TestLoginValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	status, env := api.do(http.MethodPost, "/api/v1/auth/student/login", map[string]string{"nisn": "user1"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "password")
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	api := newTestAPI(t, nil)
	api.login()
	status, env := api.do(http.MethodPost, "/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: api.token})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "TOKEN_INVALID", env.Error.Code)
}

func TestStartThenNoAttemptsLeft(t *testing.T) {
	api := newTestAPI(t, nil)
	api.login()

	first := api.start("go-basics")
	assert.False(t, first.Resumed)
	status, _ := api.do(http.MethodPost, "/api/v1/student/attempts/"+first.AttemptID+"/submit", model.SubmitAnswersRequest{})
	require.Equal(t, http.StatusOK, status)

	status, env := api.do(http.MethodPost, "/api/v1/student/courses/go-basics/attempts", nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NO_ATTEMPTS_LEFT", env.Error.Code)
	assert.Contains(t, string(env.Data), `"can_retry":false`)
}

func TestAttemptErrorMapping(t *testing.T) {
	api := newTestAPI(t, nil)
	api.login()
	v := api.start("go-basics")
	base := "/api/v1/student/attempts/" + v.AttemptID

	status, env := api.do(http.MethodGet, "/api/v1/student/attempts/not-a-uuid/timer", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ID", env.Error.Code)

	status, env = api.do(http.MethodGet, "/api/v1/student/attempts/00000000-0000-0000-0000-000000000000/timer", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = api.do(http.MethodGet, base+"/result", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "RESULT_NOT_READY", env.Error.Code)

	status, env = api.do(http.MethodPut, base+"/answers", model.SaveAnswersRequest{Answers: []model.Answer{{QuestionID: "nope", ChoiceIndex: 0}}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "UNKNOWN_QUESTION", env.Error.Code)

	status, env = api.do(http.MethodPut, base+"/timer", map[string]int{"remaining_seconds": -3})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	status, env = api.do(http.MethodPost, base+"/leave", map[string]string{"timestamp": time.Now().Format(time.RFC3339), "reason": "teleport"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	status, _ = api.do(http.MethodPost, base+"/leave", model.RecordLeaveRequest{Timestamp: time.Now(), Reason: model.LeaveHidden})
	assert.Equal(t, http.StatusAccepted, status)
}

func TestTimerPushLowersDeadline(t *testing.T) {
	api := newTestAPI(t, nil)
	api.login()
	v := api.start("go-basics")

	remaining := 120
	status, env := api.do(http.MethodPut, "/api/v1/student/attempts/"+v.AttemptID+"/timer", model.PushTimerRequest{RemainingSeconds: &remaining})
	require.Equal(t, http.StatusOK, status)
	var timer service.TimerView
	require.NoError(t, json.Unmarshal(env.Data, &timer))
	require.NotNil(t, timer.RemainingSeconds)
	assert.InDelta(t, 120, *timer.RemainingSeconds, 1)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(2, time.Minute)
	defer limiter.Stop()
	api := newTestAPI(t, limiter)

	body := model.StudentLoginRequest{NISN: "user1", Password: "wrong-password"}
	for i := 0; i < 2; i++ {
		status, _ := api.do(http.MethodPost, "/api/v1/auth/student/login", body)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, env := api.do(http.MethodPost, "/api/v1/auth/student/login", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
}
