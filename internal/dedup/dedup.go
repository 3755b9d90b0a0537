// Package dedup collapses concurrent identical requests into one in-flight call.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/stemsi/exstem-attempt/internal/timed"
	"golang.org/x/sync/singleflight"
)

// Text is a body whose content can be fingerprinted (JSON, plain text).
type Text string

// Key derives the dedup key for a request. ok is false when the body cannot be
// fingerprinted, in which case the request must not be deduplicated.
func Key(method, target string, body any) (key string, ok bool) {
	fp, ok := fingerprint(body)
	if !ok {
		return "", false
	}
	return strings.ToUpper(method) + " " + target + " " + fp, true
}

func fingerprint(body any) (string, bool) {
	switch b := body.(type) {
	case nil:
		return "-", true
	case string:
		return digest(b), true
	case Text:
		return digest(string(b)), true
	case url.Values:
		// Encode sorts by key, so equal forms yield equal fingerprints.
		return digest(b.Encode()), true
	default:
		return "", false
	}
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Group tracks in-flight calls by key.
type Group struct {
	sf singleflight.Group
}

// Do runs fn once per key while a call is in flight; concurrent callers with
// the same key receive the same result. The window closes when fn returns.
//
// fn runs on a context detached from the first caller's cancellation so that
// one caller giving up never fails the others; fn is expected to bound itself
// (see timed.Run). A caller whose ctx is done stops waiting and gets an
// AbortedError.
func Do[T any](ctx context.Context, g *Group, key string, fn func(ctx context.Context) (T, error)) (val T, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (any, error) {
		return fn(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return val, res.Shared, res.Err
		}
		v, _ := res.Val.(T)
		return v, res.Shared, nil
	case <-ctx.Done():
		return val, false, &timed.AbortedError{Label: key, Cause: context.Cause(ctx)}
	}
}

// DoMaybe deduplicates when key is non-empty and calls fn directly otherwise.
func DoMaybe[T any](ctx context.Context, g *Group, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	if key == "" {
		return fn(ctx)
	}
	v, _, err := Do(ctx, g, key, fn)
	return v, err
}
