package remote_test

import (
	"context"
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

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/normalize"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/remote"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

var setupValidator sync.Once

// newQuizServer runs the reference service in memory.
func newQuizServer(t *testing.T) *httptest.Server {
	t.Helper()
	setupValidator.Do(validator.Setup)

	cfg := &config.Server{
		GinMode:           gin.TestMode,
		JWTSecret:         "integration-secret-0123456789",
		JWTExpiry:         time.Minute,
		RefreshExpiry:     time.Hour,
		BcryptCost:        4,
		TimerFeedInterval: 50 * time.Millisecond,
	}
	log := zerolog.Nop()

	catalog := repository.DefaultCatalog()
	students, err := catalog.HashedStudents(func(p string) (string, error) {
		return service.HashPassword(p, cfg.BcryptCost)
	})
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
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Attempt: handler.NewAttemptHandler(attemptService, log),
		WS:      handler.NewWSHandler(attemptService, cfg.TimerFeedInterval, log, nil),
	}

	srv := httptest.NewServer(router.SetupRouter(authService, handlers, nil, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func loggedInClient(t *testing.T, srv *httptest.Server) *remote.Client {
	t.Helper()
	c := remote.New(srv.URL, srv.Client(), remote.DefaultTimeouts(), zerolog.Nop())
	require.NoError(t, c.Login(context.Background(), "user1", "stemsijaya"))
	return c
}

func newIntegrationController(t *testing.T, c *remote.Client) *attempt.Controller {
	t.Helper()
	opts := attempt.Options{
		TickInterval:      time.Hour,
		ReconcileInterval: time.Hour,
		PushInterval:      time.Hour,
		SaveDebounce:      20 * time.Millisecond,
	}
	ctrl := attempt.New(c, notify.New(0, zerolog.Nop()), opts, zerolog.Nop())
	t.Cleanup(ctrl.Close)
	return ctrl
}

func TestLoginAgainstQuizService(t *testing.T) {
	srv := newQuizServer(t)
	c := remote.New(srv.URL, srv.Client(), remote.DefaultTimeouts(), zerolog.Nop())

	err := c.Login(context.Background(), "user1", "not-the-password")
	require.Error(t, err)
	assert.True(t, remote.IsStatus(err, http.StatusUnauthorized))

	require.NoError(t, c.Login(context.Background(), "user1", "stemsijaya"))
	tok := c.Authorizer().Token()
	require.NotNil(t, tok)
	assert.NotEmpty(t, tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.Expiry, 5*time.Second)
}

func TestStudentRoutesRequireToken(t *testing.T) {
	srv := newQuizServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/student/courses/go-basics/retry-info")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Metadata struct {
			RequestID string `json:"request_id"`
		} `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "TOKEN_REQUIRED", body.Error.Code)
	assert.NotEmpty(t, body.Metadata.RequestID)
}

func TestRetryInfoNormalizes(t *testing.T) {
	srv := newQuizServer(t)
	c := loggedInClient(t, srv)

	obj, err := c.FetchRetryInfo(context.Background(), "go-basics")
	require.NoError(t, err)
	info := normalize.Retry(obj)
	assert.Equal(t, model.True, info.CanRetry)
	require.NotNil(t, info.MaxAttempts)
	assert.Equal(t, 3, *info.MaxAttempts)
	require.NotNil(t, info.RemainingAttempts)
	assert.Equal(t, 3, *info.RemainingAttempts)
}

func TestControllerCompletesAttempt(t *testing.T) {
	srv := newQuizServer(t)
	ctrl := newIntegrationController(t, loggedInClient(t, srv))
	ctx := context.Background()

	require.NoError(t, ctrl.Start(ctx, "go-basics"))
	v := ctrl.Snapshot()
	require.Equal(t, attempt.Solving, v.State)
	require.NotNil(t, v.Session)
	require.Len(t, v.Session.Questions, 4)
	assert.Equal(t, 600, v.Timer.TimeLimitSeconds)
	assert.InDelta(t, 600, v.Timer.RemainingSeconds, 2)

	for qid, choice := range map[string]int{"q1": 0, "q2": 1, "q3": 2, "q4": 1} {
		require.NoError(t, ctrl.SelectAnswer(qid, choice))
	}
	require.NoError(t, ctrl.Submit(ctx))

	v = ctrl.Snapshot()
	require.Equal(t, attempt.Result, v.State)
	require.NotNil(t, v.Result)
	require.NotNil(t, v.Result.Score)
	assert.Equal(t, 100.0, *v.Result.Score)
	assert.Equal(t, model.True, v.Result.Passed)
	assert.Equal(t, 4, *v.Result.Total)
	assert.Equal(t, 0, *v.Result.Wrong)
	assert.False(t, v.Result.Derived)
	require.NotNil(t, v.Result.Retry.RemainingAttempts)
	assert.Equal(t, 2, *v.Result.Retry.RemainingAttempts)

	meta := ctrl.CourseMeta("go-basics")
	require.NotNil(t, meta.PassScore)
	assert.Equal(t, 70.0, *meta.PassScore)
}

func TestControllerResumesSavedAnswers(t *testing.T) {
	srv := newQuizServer(t)
	c := loggedInClient(t, srv)
	ctx := context.Background()

	first := newIntegrationController(t, c)
	require.NoError(t, first.Start(ctx, "go-basics"))
	attemptID := first.Snapshot().Session.AttemptID
	require.NoError(t, first.SelectAnswer("q3", 2))
	require.Eventually(t, func() bool {
		return first.Snapshot().SaveStatus == attempt.SaveSaved
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, first.BackToDashboard())

	second := newIntegrationController(t, c)
	require.NoError(t, second.Start(ctx, "go-basics"))
	v := second.Snapshot()
	require.NotNil(t, v.Session)
	assert.Equal(t, attemptID, v.Session.AttemptID)
	assert.Equal(t, 1, v.Session.AttemptNumber)
	assert.Equal(t, model.AnswerSet{"q3": 2}, v.Answers)
}

func TestWatchTimerAgainstQuizService(t *testing.T) {
	srv := newQuizServer(t)
	c := loggedInClient(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obj, err := c.StartAttempt(ctx, "go-basics")
	require.NoError(t, err)

	ch, err := c.WatchTimer(ctx, obj.AttemptID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case msg, ok := <-ch:
			require.True(t, ok)
			st, found := normalize.Timer(msg)
			require.True(t, found)
			assert.Equal(t, 600, st.TimeLimitSeconds)
			assert.False(t, st.ServerExpired)
		case <-time.After(2 * time.Second):
			t.Fatal("timer feed sent nothing")
		}
	}
}
