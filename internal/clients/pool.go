// Package clients provides shared outbound HTTP clients for notification sinks.
package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrCircuitOpen is returned while a breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// HTTPClientPool hands out one keep-alive client per named sink
type HTTPClientPool struct {
	clients   map[string]*http.Client
	mu        sync.RWMutex
	maxConns  int
	timeout   time.Duration
	keepAlive time.Duration
}

// NewHTTPClientPool creates a pool whose clients time out after timeout.
// A non-positive timeout uses 30s.
func NewHTTPClientPool(timeout time.Duration) *HTTPClientPool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClientPool{
		clients:   make(map[string]*http.Client),
		maxConns:  20,
		timeout:   timeout,
		keepAlive: 30 * time.Second,
	}
}

// GetClient returns the client for name, creating it on first use
func (p *HTTPClientPool) GetClient(name string) *http.Client {
	p.mu.RLock()
	if client, exists := p.clients[name]; exists {
		p.mu.RUnlock()
		return client
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, exists := p.clients[name]; exists {
		return client
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: p.keepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          p.maxConns,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
	}

	p.clients[name] = client
	return client
}

// CircuitBreaker stops calling a failing sink for resetTimeout after maxFailures
// consecutive failures, then lets one call through to probe it
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailTime time.Time
	state        circuitState
	now          func() time.Time
	mu           sync.Mutex
}

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        stateClosed,
		now:          time.Now,
	}
}

// IsOpen reports whether calls are currently rejected
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen && cb.now().Sub(cb.lastFailTime) <= cb.resetTimeout
}

// Call runs fn unless the breaker is open
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == stateOpen {
		if cb.now().Sub(cb.lastFailTime) > cb.resetTimeout {
			cb.state = stateHalfOpen
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = cb.now()
		if cb.state == stateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = stateOpen
			return fmt.Errorf("circuit breaker opened after %d failures: %w", cb.failures, err)
		}
		return err
	}

	cb.state = stateClosed
	cb.failures = 0
	return nil
}

// RetryClient retries requests on transport errors, 5xx and 429 with
// exponential backoff
type RetryClient struct {
	client     *http.Client
	maxRetries int
	initial    time.Duration
}

// NewRetryClient creates a client that makes at most maxRetries+1 attempts
func NewRetryClient(client *http.Client, maxRetries int) *RetryClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		initial:    500 * time.Millisecond,
	}
}

// WithInitialInterval sets the first retry delay
func (rc *RetryClient) WithInitialInterval(d time.Duration) *RetryClient {
	rc.initial = d
	return rc
}

// Do sends req, rebuilding the body from GetBody between attempts. Client
// errors other than 429 are returned without retrying.
func (rc *RetryClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempt := 0

	operation := func() (*http.Response, error) {
		r := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("failed to get request body for retry: %w", err))
			}
			r.Body = body
		}
		attempt++

		resp, err := rc.client.Do(r)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return resp, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = rc.initial
	eb.MaxInterval = 30 * time.Second

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(rc.maxRetries+1)),
	)
	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempt(s): %w", attempt, err)
	}
	return resp, nil
}
