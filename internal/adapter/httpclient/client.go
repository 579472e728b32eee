// Package httpclient implements the HTTP Client Core: the component that
// drives a Balanced Request's attempt/retry loop against an upstream's
// Server Pool and returns a Request Result (ss4.B, ss4.C, ss4.D).
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/balancedhttp/core/internal/adapter/balancer"
	"github.com/balancedhttp/core/internal/core/constants"
	"github.com/balancedhttp/core/internal/core/domain"
	"github.com/balancedhttp/core/internal/core/ports"
	"github.com/balancedhttp/core/internal/logger"
	"github.com/balancedhttp/core/internal/util"
)

// Client is the default HTTPClientCore: one shared *http.Client plus the
// upstream registry it borrows servers from.
type Client struct {
	httpClient *http.Client
	registry   ports.UpstreamRegistry
	renderers  *domain.RendererRegistry
	stats      ports.StatsCollector
	logger     *logger.StyledLogger
}

// New builds an HTTP Client Core. stats may be nil when no StatsCollector
// integration is configured (ss4.J).
func New(registry ports.UpstreamRegistry, renderers *domain.RendererRegistry, stats ports.StatsCollector, styledLogger *logger.StyledLogger, maxClientsPerHost int) *Client {
	transport := &http.Transport{
		MaxIdleConns:        maxClientsPerHost * 4,
		MaxIdleConnsPerHost: maxClientsPerHost,
		MaxConnsPerHost:     maxClientsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		registry:   registry,
		renderers:  renderers,
		stats:      stats,
		logger:     styledLogger,
	}
}

// BuildRequest applies the Balanced Request Construction rules (ss4.C) and
// returns a request ready for Fetch. upstream and directHost are mutually
// exclusive; when directHost is set the request never retries regardless of
// defaultTries. max_tries and the two timeouts come from the upstream's pool
// config when one is already registered, else from the given defaults;
// both timeouts are scaled by timeoutMultiplier. idempotentOverride, when
// non-nil, replaces a POST's idempotence with its value (true or false);
// every other method's idempotence is fixed by DefaultIdempotent.
func (c *Client) BuildRequest(upstream, directHost, method, uri string, fields map[string][]string, files []domain.MultipartFile, raw []byte, idempotentOverride *bool, failFast bool, defaultPerAttemptTimeout, defaultTotalTimeout time.Duration, timeoutMultiplier float64) *domain.BalancedRequest {
	idempotent := domain.DefaultIdempotent(method)
	if idempotentOverride != nil && method == http.MethodPost {
		idempotent = *idempotentOverride
	}

	if timeoutMultiplier <= 0 {
		timeoutMultiplier = 1.0
	}
	totalTimeout := time.Duration(float64(defaultTotalTimeout) * timeoutMultiplier)

	var req *domain.BalancedRequest
	if directHost != "" {
		req = domain.NewDirectHostRequest(directHost, method, uri, defaultPerAttemptTimeout, totalTimeout, idempotent)
	} else {
		tries := 1
		if pool, ok := c.registry.Get(upstream); ok {
			tries = pool.Tries
		}
		req = domain.NewBalancedRequest(upstream, method, uri, tries, defaultPerAttemptTimeout, totalTimeout, idempotent)
	}

	req.TimeoutMultiplier = timeoutMultiplier
	req.FailFast = failFast
	req.ApplyConstructionRules(fields, files, raw, buildMultipartFromDomain)
	return req
}

// Fetch runs the borrow/dispatch/classify/retry loop until the request
// resolves with a usable response or exhausts its retry budget (ss4.C). A
// direct-host request (ss4.C, "upstream is not none") skips the registry and
// selector entirely and never retries.
func (c *Client) Fetch(ctx context.Context, req *domain.BalancedRequest) *domain.RequestResult {
	if req.IsDirectHost() {
		return c.fetchDirect(ctx, req)
	}

	pool, ok := c.registry.Get(req.Upstream)
	if !ok {
		return c.finish(req, &domain.RequestResult{Exception: &domain.UpstreamError{
			Upstream: req.Upstream,
			Cause:    fmt.Errorf("upstream not registered"),
		}})
	}
	selector := ports.ServerSelector(balancer.NewSelector(pool))

	for {
		index, address, ok := selector.Borrow(req.TriedIndices)
		if !ok {
			return c.finish(req, &domain.RequestResult{Exception: &domain.NoServerAvailableError{Upstream: req.Upstream}})
		}

		req.MarkAttemptStarted()
		resp, body, attemptErr := c.attempt(ctx, req, address)
		req.ConsumeElapsed()

		connectErr := attemptErr != nil
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}

		selector.Return(index, connectErr || (statusCode != 0 && constants.IsRetryableStatus(statusCode)))
		if c.stats != nil {
			c.stats.RecordAttempt(req.Upstream, address, connectErr)
		}

		if connectErr {
			if c.logger != nil {
				c.logger.WarnWithUpstream("connect failure, considering retry", req.Upstream, "address", address, "error", attemptErr)
			}
			if req.CheckRetry(index, true, 0) {
				req.ConsumeTry()
				continue
			}
			return c.finish(req, &domain.RequestResult{Exception: &domain.UpstreamError{
				Upstream: req.Upstream,
				Address:  address,
				Cause:    attemptErr,
			}})
		}

		if req.CheckRetry(index, false, statusCode) {
			req.ConsumeTry()
			continue
		}

		return c.finish(req, c.buildResult(resp, body))
	}
}

// fetchDirect issues a single attempt against req.DirectHost with no
// borrowing and no retry, per ss4.C's "direct-host requests never retry".
func (c *Client) fetchDirect(ctx context.Context, req *domain.BalancedRequest) *domain.RequestResult {
	req.MarkAttemptStarted()
	resp, body, attemptErr := c.attempt(ctx, req, req.DirectHost)
	req.ConsumeElapsed()

	if c.stats != nil {
		c.stats.RecordAttempt(req.DirectHost, req.DirectHost, attemptErr != nil)
	}

	if attemptErr != nil {
		return c.finish(req, &domain.RequestResult{Exception: &domain.UpstreamError{
			Upstream: req.DirectHost,
			Address:  req.DirectHost,
			Cause:    attemptErr,
		}})
	}
	return c.finish(req, c.buildResult(resp, body))
}

// finish applies the fail-fast contract (ss4.D, "Fail-fast"): when the
// caller requested fail_fast and the result is terminal-failed, the result's
// Exception is replaced with a FailFastError carrying the response's status
// code (0 when no response was ever received) so the handler pipeline can
// route it through handleFailFast instead of the ordinary error path.
func (c *Client) finish(req *domain.BalancedRequest, result *domain.RequestResult) *domain.RequestResult {
	if !req.FailFast || !result.Failed() {
		return result
	}

	statusCode := 0
	if result.RawResponse != nil {
		statusCode = result.RawResponse.StatusCode
	}
	result.Exception = &domain.FailFastError{
		FailedRequest: req,
		StatusCode:    statusCode,
		Cause:         result.Exception,
	}
	return result
}

// attempt performs one HTTP round trip and reads the full body so it can be
// retried or parsed without holding the connection open.
func (c *Client) attempt(ctx context.Context, req *domain.BalancedRequest, address string) (*http.Response, []byte, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout := req.AttemptTimeout(); timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := util.JoinURLPath(address, req.Path)
	if len(req.Query) > 0 {
		q := make([]string, 0, len(req.Query))
		for k, v := range req.Query {
			q = append(q, k+"="+v)
		}
		url += "?" + strings.Join(q, "&")
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, url, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header = req.Headers.Clone()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isConnectionError(err) {
			return nil, nil, err
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}

func (c *Client) buildResult(resp *http.Response, body []byte) *domain.RequestResult {
	result := &domain.RequestResult{RawResponse: resp, Body: body}

	contentType := ""
	if resp != nil {
		contentType = resp.Header.Get(constants.ContentTypeHeader)
	}

	switch {
	case strings.Contains(contentType, constants.ContentTypeJSON):
		result.Data = body
	case strings.Contains(contentType, constants.ContentTypeXML):
		result.Data = body
	default:
		result.Data = string(body)
	}

	return result
}

// isConnectionError reports whether err represents a transport-level failure
// (refused connection, DNS failure, timeout) as opposed to a response that
// was received but carries an error status (ss4.C, "connect error").
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused", "connection reset", "no such host",
		"network is unreachable", "no route to host", "connection timed out",
		"i/o timeout", "dial tcp",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
