package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// tokenServer accepts only the bearer token stored in valid.
type tokenServer struct {
	valid    atomic.Value
	requests atomic.Int32
	bodies   sync.Map
}

func newTokenServer(t *testing.T, valid string) (*tokenServer, *httptest.Server) {
	t.Helper()
	ts := &tokenServer{}
	ts.valid.Store(valid)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		ts.bodies.Store(n, string(body))
		if r.Header.Get("Authorization") != "Bearer "+ts.valid.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return ts, srv
}

func TestDoWithoutTokenFails(t *testing.T) {
	a := NewAuthorizer(nil, nil, zerolog.Nop())
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	_, err := a.Do(req)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestDoRefreshesOnceOnUnauthorized(t *testing.T) {
	ts, srv := newTokenServer(t, "fresh")

	var refreshes atomic.Int32
	a := NewAuthorizer(srv.Client(), func(_ context.Context, refreshToken string) (*oauth2.Token, error) {
		refreshes.Add(1)
		assert.Equal(t, "r-1", refreshToken)
		time.Sleep(20 * time.Millisecond)
		return NewToken("fresh", "", time.Time{}), nil
	}, zerolog.Nop())
	a.SetToken(NewToken("stale", "r-1", time.Time{}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			resp, err := a.Do(req)
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, "fresh", a.Token().AccessToken)
	assert.Equal(t, "r-1", a.Token().RefreshToken)
	assert.LessOrEqual(t, ts.requests.Load(), int32(10))
}

func TestDoRetriesExactlyOnce(t *testing.T) {
	ts, srv := newTokenServer(t, "never")

	a := NewAuthorizer(srv.Client(), func(context.Context, string) (*oauth2.Token, error) {
		return NewToken("still-wrong", "r-2", time.Time{}), nil
	}, zerolog.Nop())
	a.SetToken(NewToken("stale", "r-1", time.Time{}))

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := a.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), ts.requests.Load())
}

func TestDoReplaysBodyOnRetry(t *testing.T) {
	ts, srv := newTokenServer(t, "fresh")

	a := NewAuthorizer(srv.Client(), func(context.Context, string) (*oauth2.Token, error) {
		return NewToken("fresh", "r-1", time.Time{}), nil
	}, zerolog.Nop())
	a.SetToken(NewToken("stale", "r-1", time.Time{}))

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"answers":[]}`))
	resp, err := a.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	first, _ := ts.bodies.Load(int32(1))
	second, _ := ts.bodies.Load(int32(2))
	assert.Equal(t, `{"answers":[]}`, first)
	assert.Equal(t, `{"answers":[]}`, second)
}

func TestDoRefreshFailureIsReturned(t *testing.T) {
	_, srv := newTokenServer(t, "fresh")

	a := NewAuthorizer(srv.Client(), func(context.Context, string) (*oauth2.Token, error) {
		return nil, io.ErrUnexpectedEOF
	}, zerolog.Nop())
	a.SetToken(NewToken("stale", "r-1", time.Time{}))

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := a.Do(req)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestProactiveRefreshBeforeExpiry(t *testing.T) {
	ts, srv := newTokenServer(t, "fresh")

	var refreshes atomic.Int32
	a := NewAuthorizer(srv.Client(), func(context.Context, string) (*oauth2.Token, error) {
		refreshes.Add(1)
		return NewToken("fresh", "r-1", time.Now().Add(time.Hour)), nil
	}, zerolog.Nop())

	expiring := signedToken(t, time.Now().Add(5*time.Second))
	a.SetToken(NewToken(expiring, "r-1", time.Time{}))

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := a.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, int32(1), ts.requests.Load())
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := TokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = TokenExpiry("opaque-token")
	assert.False(t, ok)

	tok := NewToken("opaque-token", "", time.Time{})
	assert.True(t, tok.Expiry.IsZero())
	assert.True(t, tok.Valid())
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "student-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}
