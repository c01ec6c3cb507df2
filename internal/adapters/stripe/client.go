package stripe

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"lahari_hotel/internal/adapters/observability"
	"lahari_hotel/internal/domain"
)

// Client talks to the hosted checkout API. All calls are rate limited
// client-side and retried on 429/transient 5xx with jittered backoff.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ErrNotFound wraps the domain sentinel so callers can errors.Is
// against domain.ErrNotFound without importing this package.
var (
	ErrNotFound     = fmt.Errorf("stripe: %w", domain.ErrNotFound)
	ErrUnauthorized = errors.New("stripe: unauthorized")
)

// session is the wire shape of a checkout session; only the fields the
// booking core consumes.
type session struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`         // open | complete | expired
	PaymentStatus string `json:"payment_status"` // paid | unpaid | no_payment_required
	PaymentIntent string `json:"payment_intent"`
}

func (s session) toDomain() domain.CheckoutSession {
	out := domain.CheckoutSession{ID: s.ID, URL: s.URL, PaymentIntent: s.PaymentIntent}
	switch {
	case s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required":
		out.PaymentStatus = domain.SessionPaid
	case s.Status == "expired":
		out.PaymentStatus = domain.SessionExpired
	default:
		out.PaymentStatus = domain.SessionUnpaid
	}
	return out
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("customer_email", req.CustomerEmail)
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	if req.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", req.Description)
	}
	form.Set("metadata[booking_id]", req.BookingID)

	var s session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &s); err != nil {
		return domain.CheckoutSession{}, err
	}
	return s.toDomain(), nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	var s session
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &s); err != nil {
		return domain.CheckoutSession{}, err
	}
	return s.toDomain(), nil
}

// do performs one API call with client-side rate limiting, retries on
// 429 and transient 5xx honoring Retry-After, and JSON decode into out.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	endpoint := c.base + path

	var lastErr error
	for i := 0; i < 4; i++ {
		// fresh request (and body) each attempt
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Accept", "application/json")
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("stripe", path, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("stripe: remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("stripe: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles per attempt (200ms, 400ms, 800ms...) with up to +50%
// jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
