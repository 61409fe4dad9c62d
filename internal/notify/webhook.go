package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	retryAttempts = 8
	retryBase     = time.Second
	retryCap      = 5 * time.Minute
)

// Webhook forwards notifications as JSON to an external URL, e.g. a chat
// integration. Delivery is asynchronous with up to 8 attempts and
// full-jitter exponential backoff (cap 5 min), 30s timeout per request.
type Webhook struct {
	ctx    context.Context
	url    string
	client *http.Client
	after  func(time.Duration) <-chan time.Time
}

// NewWebhook validates callbackURL and returns a sink bound to ctx; retries
// stop once ctx is cancelled.
func NewWebhook(ctx context.Context, callbackURL string) (*Webhook, error) {
	if err := validateURL(callbackURL); err != nil {
		return nil, err
	}
	return &Webhook{
		ctx:    ctx,
		url:    callbackURL,
		client: &http.Client{Timeout: 30 * time.Second},
		after:  time.After,
	}, nil
}

func (w *Webhook) Deliver(n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		slog.Warn("webhook: encode notification", "id", n.ID, "error", err)
		return
	}
	go w.send(payload)
}

// validateURL blocks non-HTTP schemes and private/internal IP ranges.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	ips, err := net.LookupHost(u.Hostname())
	if err != nil {
		return fmt.Errorf("DNS lookup failed: %w", err)
	}

	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("private/internal IP blocked: %s", ipStr)
		}
	}

	return nil
}

func (w *Webhook) send(payload []byte) {
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if w.ctx.Err() != nil {
			return
		}
		err := w.post(payload)
		if err == nil {
			return
		}
		slog.Warn("webhook attempt failed", "attempt", attempt, "url", w.url, "error", err)
		if attempt < retryAttempts {
			select {
			case <-w.after(jitter(attempt)):
			case <-w.ctx.Done():
				slog.Warn("webhook: delivery abandoned on shutdown", "url", w.url, "attempt", attempt)
				return
			}
		}
	}
	slog.Error("webhook: all retries exhausted", "url", w.url)
}

// jitter returns a random duration between 0 and min(retryCap, retryBase * 2^attempt).
func jitter(attempt int) time.Duration {
	exp := retryBase * (1 << attempt)
	if exp > retryCap {
		exp = retryCap
	}
	return time.Duration(rand.Int63n(int64(exp)))
}

func (w *Webhook) post(payload []byte) error {
	req, err := http.NewRequestWithContext(w.ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
