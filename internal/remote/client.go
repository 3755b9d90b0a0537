// Package remote talks to the quiz service over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/stemsi/exstem-attempt/internal/auth"
	"github.com/stemsi/exstem-attempt/internal/dedup"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/normalize"
	"github.com/stemsi/exstem-attempt/internal/timed"
)

const (
	apiPrefix    = "/api/v1"
	maxBodyBytes = 1 << 20
)

// Timeouts are the per-call deadlines.
type Timeouts struct {
	Read   time.Duration
	Write  time.Duration
	Submit time.Duration
}

// DefaultTimeouts returns the deadlines used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{Read: 8 * time.Second, Write: 10 * time.Second, Submit: 20 * time.Second}
}

// Client is the HTTP implementation of attempt.Service.
//
// Each call is deduplicated against identical in-flight calls, bounded by
// its deadline and sent with the student's credentials.
type Client struct {
	baseURL  string
	http     *http.Client
	auth     *auth.Authorizer
	group    dedup.Group
	timeouts Timeouts
	log      zerolog.Logger
}

// New creates a Client for the service at baseURL.
func New(baseURL string, httpClient *http.Client, timeouts Timeouts, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	d := DefaultTimeouts()
	if timeouts.Read <= 0 {
		timeouts.Read = d.Read
	}
	if timeouts.Write <= 0 {
		timeouts.Write = d.Write
	}
	if timeouts.Submit <= 0 {
		timeouts.Submit = d.Submit
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		timeouts: timeouts,
		log:      log.With().Str("component", "remote").Logger(),
	}
	c.auth = auth.NewAuthorizer(httpClient, c.refresh, log)
	return c
}

// Authorizer exposes the credential holder, for example to restore a token.
func (c *Client) Authorizer() *auth.Authorizer { return c.auth }

// Login authenticates the student and stores the credential.
func (c *Client) Login(ctx context.Context, nisn, password string) error {
	raw, err := c.call(ctx, "login", http.MethodPost, "/auth/student/login",
		model.StudentLoginRequest{NISN: nisn, Password: password}, c.timeouts.Write, false)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	tok, err := decodeToken(raw)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.auth.SetToken(tok)
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	raw, err := c.call(ctx, "refresh", http.MethodPost, "/auth/refresh",
		model.RefreshRequest{RefreshToken: refreshToken}, c.timeouts.Write, false)
	if err != nil {
		return nil, err
	}
	return decodeToken(raw)
}

func decodeToken(raw json.RawMessage) (*oauth2.Token, error) {
	var pair model.TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if pair.Token == "" {
		return nil, fmt.Errorf("decode token: empty access token")
	}
	return auth.NewToken(pair.Token, pair.RefreshToken, pair.ExpiresAt), nil
}

// call performs one request and returns the envelope's data.
func (c *Client) call(ctx context.Context, label, method, path string, body any, deadline time.Duration, authorized bool) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", label, err)
		}
	}

	var key string
	if collapsible(method, path) {
		var keyBody any
		if payload != nil {
			keyBody = dedup.Text(payload)
		}
		key, _ = dedup.Key(method, path, keyBody)
	}

	raw, err := dedup.DoMaybe(ctx, &c.group, key, func(ctx context.Context) (json.RawMessage, error) {
		return timed.Run(ctx, label, deadline, func(ctx context.Context) (json.RawMessage, error) {
			return c.roundTrip(ctx, method, path, payload, authorized)
		})
	})
	if err != nil {
		c.log.Debug().Err(err).Str("call", label).Str("path", path).Msg("Request failed")
	}
	return raw, err
}

// collapsible reports whether identical concurrent calls may share one
// request. Reads and full-state writes may; so may submit, which the service
// answers idempotently. Starting an attempt, recording a leave and the auth
// calls always go out.
func collapsible(method, path string) bool {
	switch method {
	case http.MethodGet, http.MethodPut:
		return true
	case http.MethodPost:
		return strings.HasSuffix(path, "/submit")
	}
	return false
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, authorized bool) (json.RawMessage, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var resp *http.Response
	if authorized {
		resp, err = c.auth.Do(req)
	} else {
		resp, err = c.http.Do(req)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return decodeEnvelope(resp.StatusCode, raw)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// decodeEnvelope unwraps {data, error, metadata}. A success body that is not
// an envelope is returned whole.
func decodeEnvelope(status int, raw []byte) (json.RawMessage, error) {
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if status < 200 || status > 299 {
		he := &HTTPError{Status: status, Body: string(raw)}
		if decodeErr == nil && env.Error != nil {
			he.Code = env.Error.Code
			he.Message = env.Error.Message
			he.Fields = env.Error.Fields
		}
		return nil, he
	}
	if decodeErr == nil && (env.Data != nil || env.Error != nil) {
		return env.Data, nil
	}
	return raw, nil
}

// decodeObject turns envelope data into a normalizable object. Anything that
// is not a JSON object yields an empty one.
func decodeObject(raw json.RawMessage) normalize.Object {
	var obj normalize.Object
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return normalize.Object{}
	}
	return obj
}
