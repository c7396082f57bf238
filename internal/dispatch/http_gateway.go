package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// maxTokensPerBatch is the provider's per-request token limit.
const maxTokensPerBatch = 500

// HTTPGatewayConfig holds configuration for the HTTP push gateway.
type HTTPGatewayConfig struct {
	// BaseURL is the push provider endpoint, e.g. the FCM HTTP API.
	BaseURL string

	// APIKey authenticates against the provider.
	APIKey string

	// Timeout is the per-request timeout. Default: 10 seconds.
	Timeout time.Duration

	// MaxRetries bounds retry attempts per batch. Default: 3.
	MaxRetries uint64

	Logger zerolog.Logger
}

// HTTPGateway sends push batches over HTTP with retry and circuit breaker
// protection. Repeated provider failures open the breaker and sends fail
// fast with ErrGatewayUnavailable until the provider recovers.
type HTTPGateway struct {
	cfg        HTTPGatewayConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*batchResult]
	logger     zerolog.Logger
}

type batchResult struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

type batchRequest struct {
	Tokens      []string `json:"tokens"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	ImageURL    string   `json:"image_url,omitempty"`
	Route       string   `json:"route,omitempty"`
	CollapseKey string   `json:"collapse_key,omitempty"`
}

// NewHTTPGateway creates a push gateway against the configured provider.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	breaker := gobreaker.NewCircuitBreaker[*batchResult](gobreaker.Settings{
		Name:        "push-gateway",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("push gateway breaker state changed")
		},
	})

	return &HTTPGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     cfg.Logger,
	}
}

// Send fans the message out in provider-sized batches. Batches that fail
// after retries count all their tokens as failures; the send as a whole
// only errors when no batch could be delivered.
func (g *HTTPGateway) Send(ctx context.Context, msg *Message) (*Result, error) {
	if len(msg.Tokens) == 0 {
		return nil, ErrEmptyMessage
	}

	result := &Result{}
	delivered := false

	for start := 0; start < len(msg.Tokens); start += maxTokensPerBatch {
		end := start + maxTokensPerBatch
		if end > len(msg.Tokens) {
			end = len(msg.Tokens)
		}
		batch := msg.Tokens[start:end]

		br, err := g.sendBatch(ctx, msg, batch)
		if err != nil {
			if errors.Is(err, ErrGatewayUnavailable) && !delivered {
				return nil, err
			}
			g.logger.Error().Err(err).Int("tokens", len(batch)).Msg("push batch failed")
			result.FailureCount += len(batch)
			continue
		}

		delivered = true
		result.SuccessCount += br.Success
		result.FailureCount += br.Failure
	}

	return result, nil
}

func (g *HTTPGateway) sendBatch(ctx context.Context, msg *Message, tokens []string) (*batchResult, error) {
	payload, err := json.Marshal(batchRequest{
		Tokens:      tokens,
		Title:       msg.Title,
		Body:        msg.Body,
		ImageURL:    msg.ImageURL,
		Route:       msg.Route,
		CollapseKey: msg.CollapseKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal push batch: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0
	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(bo, g.cfg.MaxRetries), ctx)

	var result *batchResult
	operation := func() error {
		br, err := g.breaker.Execute(func() (*batchResult, error) {
			return g.post(ctx, payload)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrGatewayUnavailable)
			}
			var pe *permanentError
			if errors.As(err, &pe) {
				return backoff.Permanent(pe.err)
			}
			// 5xx and network errors are retryable.
			return err
		}
		result = br
		return nil
	}

	if err := backoff.Retry(operation, retryPolicy); err != nil {
		return nil, err
	}
	return result, nil
}

func (g *HTTPGateway) post(ctx context.Context, payload []byte) (*batchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/messages:send", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, &serverError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &permanentError{err: fmt.Errorf("push provider returned %d", resp.StatusCode)}
	}

	var br batchResult
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, &permanentError{err: fmt.Errorf("decode provider response: %w", err)}
	}
	return &br, nil
}

// serverError represents an HTTP 5xx from the push provider.
type serverError struct {
	StatusCode int
}

func (e *serverError) Error() string {
	return "push provider error: " + http.StatusText(e.StatusCode)
}

// permanentError marks failures retrying cannot fix, such as 4xx
// responses and malformed provider payloads.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Ensure HTTPGateway implements Gateway.
var _ Gateway = (*HTTPGateway)(nil)
