// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport builds the outbound HTTP pipeline for LLM provider
// calls as a chain of http.RoundTripper decorators: FetchTransport does
// the actual dial, AuthTransport injects credentials, LLMErrorTransport
// classifies non-2xx responses into agenterr's taxonomy, and
// RetryTransport retries transient failures with exponential backoff
// honoring Retry-After headers. Each layer wraps the next as a
// separately composable RoundTripper.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ravenforge/agentrun/agenterr"
)

// AuthStyle selects how credentials are attached to outbound requests.
type AuthStyle int

const (
	// BearerAuth sets "Authorization: Bearer <key>".
	BearerAuth AuthStyle = iota
	// APIKeyHeader sets a custom header name to the raw key value.
	APIKeyHeader
)

// FetchTransport is the innermost RoundTripper: a plain http.Client with
// a fixed timeout, defaulting to 120s unless overridden.
func FetchTransport(timeout time.Duration) http.RoundTripper {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// AuthTransport injects the provider API key into every request before
// delegating to next.
func AuthTransport(next http.RoundTripper, style AuthStyle, header, key string) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		clone := req.Clone(req.Context())
		switch style {
		case BearerAuth:
			clone.Header.Set("Authorization", "Bearer "+key)
		case APIKeyHeader:
			clone.Header.Set(header, key)
		}
		return next.RoundTrip(clone)
	})
}

// llmErrorResponse matches the common {"error":{"message","type"}} shape
// OpenAI-compatible providers return on failure.
type llmErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// RetryStatus reports whether a status code should be retried.
func RetryStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusRequestTimeout,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// LLMErrorTransport turns non-2xx responses into an *agenterr.LLMError
// carrying the parsed provider message, leaving the *http.Response body
// intact (re-wrapped) for callers that still want to read it.
func LLMErrorTransport(next http.RoundTripper) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(req)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))

		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		var parsed llmErrorResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		} else if len(body) > 0 {
			s := string(body)
			if len(s) > 200 {
				s = s[:200] + "..."
			}
			msg = s
		}

		return resp, &agenterr.LLMError{
			Message:     msg,
			StatusCode:  resp.StatusCode,
			IsRetryable: RetryStatus(resp.StatusCode),
		}
	})
}

// RetryOptions configures RetryTransport's backoff schedule.
type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryOptions are the conservative retry defaults used when no
// RetryConfig is supplied.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxRetries: 5, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second}
}

// RetryTransport retries requests that fail with a retryable
// *agenterr.LLMError (as classified by LLMErrorTransport), using
// exponential backoff with jitter, honoring a Retry-After response
// header when present. It re-buffers the request body so each attempt
// can replay it, since http.Request bodies are single-read.
func RetryTransport(next http.RoundTripper, opts RetryOptions) http.RoundTripper {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}

	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		var bodyBytes []byte
		if req.Body != nil {
			var err error
			bodyBytes, err = io.ReadAll(req.Body)
			if err != nil {
				return nil, fmt.Errorf("transport: buffering request body: %w", err)
			}
			req.Body.Close()
		}

		var lastResp *http.Response
		var lastErr error
		for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
			if bodyBytes != nil {
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}

			resp, err := next.RoundTrip(req)
			llmErr, retryable := classify(err)
			if !retryable {
				return resp, err
			}
			lastResp, lastErr = resp, err

			if attempt >= opts.MaxRetries {
				break
			}

			delay := retryDelay(attempt, opts, resp, llmErr)
			if delay <= 0 {
				break
			}
			t := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				t.Stop()
				return nil, req.Context().Err()
			case <-t.C:
			}
		}
		return lastResp, lastErr
	})
}

func classify(err error) (*agenterr.LLMError, bool) {
	var llmErr *agenterr.LLMError
	if err == nil {
		return nil, false
	}
	if ok := asLLMError(err, &llmErr); ok {
		return llmErr, llmErr.IsRetryable
	}
	// Network-level errors (dial/timeout) are retried unconditionally;
	// they never reach LLMErrorTransport's status classification.
	return nil, true
}

func asLLMError(err error, target **agenterr.LLMError) bool {
	if e, ok := err.(*agenterr.LLMError); ok {
		*target = e
		return true
	}
	return false
}

func retryDelay(attempt int, opts RetryOptions, resp *http.Response, llmErr *agenterr.LLMError) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				return min(time.Duration(secs)*time.Second, opts.MaxDelay)
			}
		}
	}
	delay := time.Duration(math.Pow(2, float64(attempt))) * opts.BaseDelay
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
	return min(delay+jitter, opts.MaxDelay)
}

// tokenBucket is a minimal token-bucket limiter in the style of
// golang.org/x/time/rate, implemented locally since that package isn't
// part of this runtime's dependency set. Tokens refill continuously at
// ratePerSec up to burst capacity; Wait blocks until one token is
// available or ctx is done.
type tokenBucket struct {
	mu         sync.Mutex
	ratePerSec float64
	burst      float64
	tokens     float64
	last       time.Time
}

func newTokenBucket(ratePerSec float64, burst int) *tokenBucket {
	return &tokenBucket{ratePerSec: ratePerSec, burst: float64(burst), tokens: float64(burst), last: time.Now()}
}

func (b *tokenBucket) wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		b.tokens = math.Min(b.burst, b.tokens+now.Sub(b.last).Seconds()*b.ratePerSec)
		b.last = now
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		deficit := 1 - b.tokens
		wait := time.Duration(deficit / b.ratePerSec * float64(time.Second))
		b.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RateLimitTransport caps outbound request rate with a token bucket,
// independent of RetryTransport's backoff schedule: retries after a 429
// still consume budget from the same bucket, so a misbehaving provider
// can't be hammered by retry attempts alone.
func RateLimitTransport(next http.RoundTripper, requestsPerSecond float64, burst int) http.RoundTripper {
	bucket := newTokenBucket(requestsPerSecond, burst)
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := bucket.wait(req.Context()); err != nil {
			return nil, err
		}
		return next.RoundTrip(req)
	})
}

// Chain builds the standard provider pipeline:
// Retry(LLMError(Auth(RateLimit(Fetch)))).
func Chain(timeout time.Duration, authStyle AuthStyle, authHeader, apiKey string, retryOpts RetryOptions) http.RoundTripper {
	return ChainWithRateLimit(timeout, authStyle, authHeader, apiKey, retryOpts, RateLimitConfig{RequestsPerSecond: 10, Burst: 20})
}

// RateLimitConfig configures RateLimitTransport.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ChainWithRateLimit builds the standard provider pipeline with an
// explicit rate limit: Retry(LLMError(Auth(RateLimit(Fetch)))).
func ChainWithRateLimit(timeout time.Duration, authStyle AuthStyle, authHeader, apiKey string, retryOpts RetryOptions, rl RateLimitConfig) http.RoundTripper {
	base := FetchTransport(timeout)
	limited := RateLimitTransport(base, rl.RequestsPerSecond, rl.Burst)
	authed := AuthTransport(limited, authStyle, authHeader, apiKey)
	classified := LLMErrorTransport(authed)
	return RetryTransport(classified, retryOpts)
}

// Client is a thin context-aware wrapper so callers (the llm provider)
// don't need to build *http.Request by hand for the common JSON-body
// case.
type Client struct {
	Transport http.RoundTripper
}

// NewClient wraps an http.RoundTripper chain as a Client.
func NewClient(rt http.RoundTripper) *Client {
	return &Client{Transport: rt}
}

// Do sends req through the transport chain.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.Transport.RoundTrip(req)
}

// PostJSON issues a POST with a JSON-encoded body and the given headers,
// returning the raw response for the caller (sse reader or json decoder)
// to consume.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, headers map[string]string) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("transport: marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("transport: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(req)
}
