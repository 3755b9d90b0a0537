// Package auth attaches student credentials to outgoing requests and renews
// them when the quiz service rejects them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/stemsi/exstem-attempt/internal/dedup"
)

// ErrNotLoggedIn is returned when a request is made before any credential is set.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// RefreshFunc exchanges a refresh token for a new credential.
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// DefaultRefreshSkew is how long before expiry a credential is renewed proactively.
const DefaultRefreshSkew = 30 * time.Second

// Authorizer sends requests with the current bearer token. A 401 triggers one
// refresh, shared by every request that hit it at the same time, and the
// request is retried exactly once.
type Authorizer struct {
	http *http.Client
	log  zerolog.Logger
	skew time.Duration

	mu    sync.RWMutex
	token *oauth2.Token

	refresh RefreshFunc
	flight  *dedup.Refresher[*oauth2.Token]
}

// NewAuthorizer creates an Authorizer. refresh may be nil, in which case
// rejected requests are returned as is.
func NewAuthorizer(httpClient *http.Client, refresh RefreshFunc, log zerolog.Logger) *Authorizer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	a := &Authorizer{
		http:    httpClient,
		log:     log.With().Str("component", "auth").Logger(),
		skew:    DefaultRefreshSkew,
		refresh: refresh,
	}
	a.flight = dedup.NewRefresher(a.doRefresh)
	return a
}

// SetToken replaces the current credential.
func (a *Authorizer) SetToken(tok *oauth2.Token) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = tok
}

// Token returns the current credential, nil before login.
func (a *Authorizer) Token() *oauth2.Token {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Do sends req with credentials. The request body must be replayable
// (http.NewRequest sets GetBody for in-memory readers) for the retry to
// carry it again.
func (a *Authorizer) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	tok := a.Token()
	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	if a.expiringSoon(tok) {
		if fresh, err := a.renew(ctx, tok); err != nil {
			a.log.Warn().Err(err).Msg("Proactive token refresh failed")
		} else {
			tok = fresh
		}
	}

	resp, err := a.send(req, tok)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || a.refresh == nil || tok.RefreshToken == "" {
		return resp, err
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	fresh, err := a.renew(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("refresh credentials: %w", err)
	}
	return a.send(req, fresh)
}

func (a *Authorizer) send(req *http.Request, tok *oauth2.Token) (*http.Response, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay body: %w", err)
		}
		r.Body = body
	}
	tok.SetAuthHeader(r)
	return a.http.Do(r)
}

func (a *Authorizer) expiringSoon(tok *oauth2.Token) bool {
	if a.refresh == nil || tok.RefreshToken == "" || tok.Expiry.IsZero() {
		return false
	}
	return time.Until(tok.Expiry) < a.skew
}

// renew returns a credential newer than used, refreshing only when no other
// request has already done so.
func (a *Authorizer) renew(ctx context.Context, used *oauth2.Token) (*oauth2.Token, error) {
	if cur := a.Token(); cur != nil && cur.AccessToken != used.AccessToken {
		return cur, nil
	}
	return a.flight.Refresh(ctx)
}

func (a *Authorizer) doRefresh(ctx context.Context) (*oauth2.Token, error) {
	cur := a.Token()
	if cur == nil || cur.RefreshToken == "" {
		return nil, ErrNotLoggedIn
	}
	tok, err := a.refresh(ctx, cur.RefreshToken)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = cur.RefreshToken
	}
	a.SetToken(tok)
	a.log.Debug().Time("expiry", tok.Expiry).Msg("Credentials refreshed")
	return tok, nil
}

// NewToken builds a credential. When expiresAt is zero the expiry is read
// from the access token's exp claim, if it is a JWT.
func NewToken(accessToken, refreshToken string, expiresAt time.Time) *oauth2.Token {
	if expiresAt.IsZero() {
		expiresAt, _ = TokenExpiry(accessToken)
	}
	return &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Expiry:       expiresAt,
	}
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The client cannot verify it and only uses it to schedule a refresh.
func TokenExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
