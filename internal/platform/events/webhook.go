package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	SignatureHeader = "X-Symptra-Signature"
	EventHeader     = "X-Symptra-Event"
	DeliveryHeader  = "X-Symptra-Delivery"
	TimestampHeader = "X-Symptra-Timestamp"
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" or bare hex signature.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	if len(signature) > 7 && signature[:7] == "sha256=" {
		signature = signature[7:]
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookPublisher POSTs signed events to each configured URL, retrying
// transport errors and 5xx responses with exponential backoff.
type WebhookPublisher struct {
	urls       []string
	secret     string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

type WebhookOption func(*WebhookPublisher)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(p *WebhookPublisher) { p.client = c }
}

func WithRetries(n int, backoff time.Duration) WebhookOption {
	return func(p *WebhookPublisher) {
		p.maxRetries = n
		p.backoff = backoff
	}
}

func NewWebhookPublisher(urls []string, secret string, opts ...WebhookOption) *WebhookPublisher {
	p := &WebhookPublisher{
		urls:       urls,
		secret:     secret,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *WebhookPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	sig := "sha256=" + SignPayload(payload, p.secret)

	var errs []error
	for _, url := range p.urls {
		if err := p.deliver(ctx, url, evt, payload, sig); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

func (p *WebhookPublisher) deliver(ctx context.Context, url string, evt Event, payload []byte, sig string) error {
	var lastErr error
	delay := p.backoff
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		retry, err := p.post(ctx, url, evt, payload, sig)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

func (p *WebhookPublisher) post(ctx context.Context, url string, evt Event, payload []byte, sig string) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sig)
	req.Header.Set(EventHeader, evt.Type)
	req.Header.Set(DeliveryHeader, evt.ID)
	req.Header.Set(TimestampHeader, time.Now().UTC().Format(time.RFC3339))

	resp, err := p.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
}

func (p *WebhookPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
