// File: internal/provider/transport.go
// Description: Retrying JSON POST loop shared by the HTTP providers.
// Rate limits and server errors retry on an exponential schedule; client
// errors and undecodable responses fail immediately.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type apiTransport struct {
	provider   string
	httpClient *http.Client
	logger     *zap.Logger

	// backoffFactory yields a fresh schedule per request. Swapped out in
	// tests to avoid real waits.
	backoffFactory func() backoff.BackOff
}

func newAPITransport(provider string, timeout time.Duration, logger *zap.Logger) *apiTransport {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &apiTransport{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
}

// postJSON marshals payload, POSTs it to url, and hands a 200 body to
// decode. authorize, when non-nil, stamps credentials onto each attempt's
// request. The returned error is always a *TransportError (possibly
// wrapping a context error) except for decode errors, which pass through
// as given.
func (t *apiTransport) postJSON(ctx context.Context, url string, authorize func(*http.Request) error, payload any, decode func(body []byte) error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &TransportError{Provider: t.provider, Err: fmt.Errorf("marshal request: %w", err)}
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(&TransportError{Provider: t.provider, Err: fmt.Errorf("build request: %w", err)})
		}
		req.Header.Set("Content-Type", "application/json")
		if authorize != nil {
			if err := authorize(req); err != nil {
				return backoff.Permanent(&TransportError{Provider: t.provider, Err: fmt.Errorf("authorize request: %w", err)})
			}
		}

		start := time.Now()
		resp, err := t.httpClient.Do(req)
		duration := time.Since(start)
		if err != nil {
			t.logger.Warn("network error during provider request, retrying", zap.Error(err))
			return &TransportError{Provider: t.provider, Err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Provider: t.provider, Err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode != http.StatusOK {
			return t.statusError(resp.StatusCode, respBody)
		}

		t.logger.Debug("provider request complete",
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", duration),
		)

		if err := decode(respBody); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(t.backoffFactory(), ctx))
}

// statusError classifies a non-200 status. Rate limiting and server-side
// failures are transient; everything else is permanent.
func (t *apiTransport) statusError(status int, body []byte) error {
	t.logger.Error("provider API returned error status",
		zap.Int("status", status),
		zap.String("response", truncateBody(string(body))),
	)
	err := &TransportError{Provider: t.provider, Status: status, Body: truncateBody(string(body))}
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return err
	}
	return backoff.Permanent(err)
}
