package helpers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// RetryPolicy bounds PostJSON retries.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 5, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second}
}

// PostJSON sends body as JSON and decodes the response into out.
// Network failures, 429 and 5xx are retried with exponential backoff; other
// statuses and undecodable responses fail immediately.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, policy RetryPolicy) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 512)}
			if serr.Retryable() {
				return struct{}{}, serr
			}
			return struct{}{}, backoff.Permanent(serr)
		}
		if out == nil {
			return struct{}{}, nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if policy.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(policy.MaxTries))
	}
	_, err = backoff.Retry(ctx, op, opts...)
	return unwrapPermanent(err)
}

// IsRetryable reports whether err from PostJSON came from a failure that may
// succeed later (network error or retryable status).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Sha256Hex returns the hex encoded SHA-256 of s.
func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
