package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/contentpilot-ai/contentpilot/internal/pkg/circuitbreaker"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
)

var (
	ErrUpstreamUnavailable = errors.New("generation service unavailable")
	ErrGenerationRejected  = errors.New("generation request rejected")
)

// Request describes one article to generate. The generation service is
// opaque to the dispatcher: it receives the target site and returns a
// finished article or an error.
type Request struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	WebsiteURL string    `json:"website_url"`
	Topics     []string  `json:"topics,omitempty"`
	Trigger    string    `json:"trigger"`
}

type Result struct {
	JobID     string `json:"job_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	baseURL    string
	apiKey     string
	maxRetries int
}

func NewClient(cfg *config.GenerationConfig) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "generation",
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		breaker:    breaker,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
	}
}

// Generate requests one article. Transient upstream errors are retried
// with a short in-call backoff; anything still failing surfaces to the
// caller's failure policy.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	var result *Result
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		var lastErr error
		for attempt := 0; attempt <= c.maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * time.Second):
				}
			}

			result, lastErr = c.doRequest(ctx, body)
			if lastErr == nil {
				return nil
			}
			if !errors.Is(lastErr, ErrUpstreamUnavailable) {
				return lastErr
			}

			log.Warn().
				Err(lastErr).
				Int("attempt", attempt+1).
				Str("schedule_id", req.ScheduleID.String()).
				Msg("Generation attempt failed")
		}
		return lastErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/articles", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result Result
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to decode generation response: %w", err)
		}
		return &result, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	default:
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrGenerationRejected, er.Error)
		}
		return nil, fmt.Errorf("%w: status %d", ErrGenerationRejected, resp.StatusCode)
	}
}
