// Package hn is a retrying, timeout-bounded client for the remote item API.
package hn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/hnmirror/internal/clock"
	"github.com/JakeFAU/hnmirror/internal/metrics"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

const maxBodyBytes = 8 << 20

// Operation labels used in errors and metrics.
const (
	OpListIDs = "list_ids"
	OpGetItem = "get_item"
	OpGetUser = "get_user"
)

// Config controls the remote client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// Client talks to the remote API. Every call hits the network; nothing is cached.
type Client struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	retry     *RetryPolicy
	limiter   *rate.Limiter
	userAgent string
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error
}

// NewClient builds a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: newTransport()}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL:   base,
		http:      httpClient,
		timeout:   timeout,
		retry:     NewRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
		limiter:   limiter,
		userAgent: cfg.UserAgent,
		logger:    logger,
		sleep:     clock.Sleep,
	}, nil
}

func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 512
	t.MaxIdleConnsPerHost = 512
	t.IdleConnTimeout = 30 * time.Second
	t.ForceAttemptHTTP2 = true
	return t
}

// ListIDs returns the ranked external ids of a category.
func (c *Client) ListIDs(ctx context.Context, category Category) ([]int64, error) {
	path, err := category.path()
	if err != nil {
		return nil, err
	}
	var ids []int64
	err = c.get(ctx, OpListIDs, string(category), path, func(body []byte) error {
		if err := json.Unmarshal(body, &ids); err != nil {
			return fmt.Errorf("decode ids: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetItem fetches one item and converts it to its variant.
func (c *Client) GetItem(ctx context.Context, id int64) (Item, error) {
	var it Item
	target := strconv.FormatInt(id, 10)
	err := c.get(ctx, OpGetItem, target, "/item/"+target+".json", func(body []byte) error {
		decoded, err := DecodeItem(body)
		if err != nil {
			return err
		}
		it = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

// GetUser fetches a user profile by handle.
func (c *Client) GetUser(ctx context.Context, handle string) (User, error) {
	var u User
	err := c.get(ctx, OpGetUser, handle, "/user/"+url.PathEscape(handle)+".json", func(body []byte) error {
		decoded, err := DecodeUser(body)
		if err != nil {
			return err
		}
		u = decoded
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (c *Client) get(ctx context.Context, op, target, path string, decode func([]byte) error) error {
	var lastErr error
	attempt := 0
	for {
		attempt++
		start := time.Now()
		lastErr = c.attempt(ctx, path, decode)
		metrics.ObserveRemoteRequest(op, outcome(lastErr), time.Since(start))
		if lastErr == nil {
			return nil
		}
		if !c.retry.ShouldRetry(ctx, lastErr, attempt) {
			break
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Debug("retrying remote call",
			zap.String("op", op),
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		metrics.ObserveRemoteRetry(op)
		if err := c.sleep(ctx, wait); err != nil {
			lastErr = fmt.Errorf("backoff canceled: %w", err)
			break
		}
	}
	return &FetchError{Op: op, Target: target, Attempts: attempt, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, path string, decode func([]byte) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &StatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := decode(body); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return &decodeError{err: err}
	}
	return nil
}

func outcome(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &statusErr):
		return strconv.Itoa(statusErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
