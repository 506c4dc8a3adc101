package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	deliveryTimeout = 15 * time.Second
	attemptTimeout  = 5 * time.Second
	maxAttempts     = 3

	// DeliveryHeader carries one ID per event, repeated on every retry so a
	// receiver can drop duplicates.
	DeliveryHeader = "X-Typegate-Delivery"
)

var (
	httpClient = &http.Client{Timeout: attemptTimeout}
	// retryBackoff doubles after each failed attempt.
	retryBackoff = time.Second
)

// errPermanent marks a response that retrying cannot fix.
var errPermanent = errors.New("permanent")

// Send delivers event with a bounded overall deadline.
func Send(cfg AlertConfig, event AlertEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	return SendContext(ctx, cfg, event)
}

// SendContext posts event to cfg.URL. Transport failures, 408, 429 and 5xx
// are retried with exponential backoff until maxAttempts or ctx is done.
func SendContext(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	delivery := uuid.NewString()

	wait := retryBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook abandoned after %d attempts: %w", attempt-1, errors.Join(lastErr, ctx.Err()))
			case <-time.After(wait):
			}
			wait *= 2
		}

		lastErr = post(ctx, cfg, delivery, body)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errPermanent) || ctx.Err() != nil {
			return lastErr
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

func post(ctx context.Context, cfg AlertConfig, delivery string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errPermanent, err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "typegate-alert")
	req.Header.Set(DeliveryHeader, delivery)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return classify(resp.StatusCode)
}

// classify maps a webhook status to nil, a retryable error or a permanent one.
func classify(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("webhook unavailable: HTTP %d", status)
	default:
		return fmt.Errorf("%w: webhook rejected: HTTP %d", errPermanent, status)
	}
}
