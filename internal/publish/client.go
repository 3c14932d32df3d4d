package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 1 << 20

// ClientOptions configures the outbound HTTP client shared by adapters.
type ClientOptions struct {
	Transport http.RoundTripper
	Timeout   time.Duration
	Logger    *logrus.Logger
	// BreakerDelay is how long the breaker stays open before probing again.
	BreakerDelay time.Duration
	// Sandbox serves dev-connect accounts locally instead of posting.
	Sandbox bool
}

type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

// apiClient posts JSON with a per-call bearer token. A circuit breaker fails
// fast while a platform keeps returning server errors; nothing is retried.
type apiClient struct {
	name    string
	baseURL string
	base    http.RoundTripper
	timeout time.Duration
	breaker circuitbreaker.CircuitBreaker[any]
}

func newAPIClient(name, baseURL string, opts ClientOptions) *apiClient {
	delay := opts.BreakerDelay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	builder := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(delay).
		WithSuccessThreshold(1)
	if opts.Logger != nil {
		logger := opts.Logger
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.WithFields(logrus.Fields{
				"platform":   name,
				"from_state": stateName(event.OldState),
				"to_state":   stateName(event.NewState),
			}).Warn("platform circuit breaker state change")
		})
	}

	return &apiClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		base:    opts.Transport,
		timeout: opts.Timeout,
		breaker: builder.Build(),
	}
}

func (c *apiClient) postJSON(ctx context.Context, accessToken, path string, headers map[string]string, payload any) (apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, fmt.Errorf("encode %s payload: %w", c.name, err)
	}

	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Base:   c.base,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		},
	}

	var out apiResponse
	_, err = failsafe.With(c.breaker).Get(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		out = apiResponse{status: resp.StatusCode, header: resp.Header, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, errUpstreamStatus
		}
		return nil, nil
	})
	switch {
	case err == nil, errors.Is(err, errUpstreamStatus):
		return out, nil
	case errors.Is(err, circuitbreaker.ErrOpen):
		return apiResponse{}, ErrPlatformUnavailable
	default:
		return apiResponse{}, fmt.Errorf("%s request failed: %w", c.name, err)
	}
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

func (r apiResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

// detail pulls a human readable message out of an error body.
func (r apiResponse) detail() string {
	var parsed map[string]any
	if err := json.Unmarshal(r.body, &parsed); err == nil {
		for _, key := range []string{"detail", "message", "title", "error"} {
			if value, ok := parsed[key].(string); ok && strings.TrimSpace(value) != "" {
				return value
			}
		}
	}
	text := strings.TrimSpace(string(r.body))
	if text == "" {
		return http.StatusText(r.status)
	}
	return ClipText(text, 200)
}

// ClipText shortens s to at most limit characters without reporting it.
func ClipText(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
