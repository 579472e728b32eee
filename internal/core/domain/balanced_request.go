package domain

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/balancedhttp/core/internal/core/constants"
)

// BalancedRequest is one client-visible call into an Upstream: it owns the
// retry budget (tries, time, tried-server set) that the HTTP Client Core's
// fetch loop consumes attempt by attempt (ss4.B, ss4.C). The immutable
// fields describe what to send; the mutable fields track how much retry
// budget is left.
//
// upstream_or_direct_host (ss3) is split across two fields instead of a
// tagged union: Upstream names a registered pool to borrow from; DirectHost,
// when set, is a literal host to hit without borrowing from any pool. The
// two are mutually exclusive and a direct-host request never retries (ss4.C,
// "upstream is not none").
type BalancedRequest struct {
	// Immutable for the lifetime of the request.
	Upstream   string
	DirectHost string
	Method     string
	Path       string
	Query      map[string]string
	Headers    http.Header
	Body       []byte
	Idempotent bool
	FailFast   bool

	PerAttemptTimeout time.Duration
	TimeoutMultiplier float64

	// Mutable retry state, touched only by the owning fetch loop goroutine.
	TriesLeft           int
	TimeBudgetRemaining time.Duration
	TriedIndices        map[int]bool

	startedAt time.Time
}

// IsDirectHost reports whether this request bypasses the Upstream Registry
// and Server Pool entirely, hitting DirectHost directly (ss4.C, ss4.D).
func (r *BalancedRequest) IsDirectHost() bool {
	return r.DirectHost != ""
}

// NewBalancedRequest builds a request against a registered upstream with a
// fresh retry budget. tries and totalTimeout come from the pool/client
// defaults unless overridden by the caller; a tries value below 1 is
// clamped to 1. idempotent follows ss4.C's default (true for everything but
// POST) unless overridden by the caller.
func NewBalancedRequest(upstream, method, path string, tries int, perAttemptTimeout time.Duration, totalTimeout time.Duration, idempotent bool) *BalancedRequest {
	if tries < 1 {
		tries = 1
	}
	return &BalancedRequest{
		Upstream:            upstream,
		Method:              method,
		Path:                normaliseURI(path),
		Headers:             make(http.Header),
		Idempotent:          idempotent,
		PerAttemptTimeout:   perAttemptTimeout,
		TimeoutMultiplier:   1.0,
		TriesLeft:           tries,
		TimeBudgetRemaining: totalTimeout,
		TriedIndices:        make(map[int]bool, tries),
	}
}

// NewDirectHostRequest builds a request that is sent straight to host,
// bypassing the Upstream Registry and Server Pool. Per ss4.C a direct-host
// request never retries, so it takes no tries argument and its try budget
// is fixed at 1.
func NewDirectHostRequest(host, method, path string, perAttemptTimeout time.Duration, totalTimeout time.Duration, idempotent bool) *BalancedRequest {
	return &BalancedRequest{
		DirectHost:          host,
		Method:              method,
		Path:                normaliseURI(path),
		Headers:             make(http.Header),
		Idempotent:          idempotent,
		PerAttemptTimeout:   perAttemptTimeout,
		TimeoutMultiplier:   1.0,
		TriesLeft:           1,
		TimeBudgetRemaining: totalTimeout,
		TriedIndices:        make(map[int]bool, 1),
	}
}

// DefaultIdempotent implements ss4.C's auto-derivation: GET/HEAD/PUT/DELETE
// are idempotent by default; POST is not. Client.BuildRequest lets a caller
// override the value for POST only, to either true or false; every other
// method keeps this default.
func DefaultIdempotent(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// ApplyConstructionRules implements ss4.C's body-construction branching:
// POST with files builds a multipart/form-data body; POST without files
// url-encodes the fields map; PUT url-encodes the fields unless raw is
// given, in which case raw is sent as-is; any other method merges fields
// into the query string instead of the body. Content-Length is set whenever
// a body is produced. buildMultipart is injected so this domain-level
// function never needs to import an adapter package.
func (r *BalancedRequest) ApplyConstructionRules(fields map[string][]string, files []MultipartFile, raw []byte, buildMultipart func(map[string][]string, []MultipartFile) ([]byte, string)) {
	r.Path = normaliseURI(r.Path)

	switch strings.ToUpper(r.Method) {
	case http.MethodPost:
		if len(files) > 0 && buildMultipart != nil {
			body, contentType := buildMultipart(fields, files)
			r.Body = body
			r.Headers.Set(constants.ContentTypeHeader, contentType)
		} else {
			r.Body = []byte(encodeForm(fields))
			r.Headers.Set(constants.ContentTypeHeader, constants.ContentTypeFormURLEncoded)
		}
	case http.MethodPut:
		if raw != nil {
			r.Body = raw
		} else {
			r.Body = []byte(encodeForm(fields))
			r.Headers.Set(constants.ContentTypeHeader, constants.ContentTypeFormURLEncoded)
		}
	default:
		if r.Query == nil {
			r.Query = make(map[string]string, len(fields))
		}
		for name, values := range fields {
			if len(values) > 0 {
				r.Query[name] = values[0]
			}
		}
	}

	if len(r.Body) > 0 {
		r.Headers.Set(constants.ContentLength, strconv.Itoa(len(r.Body)))
	}
}

// MultipartFile is the domain-level mirror of the HTTP Client Core's
// multipart file part, kept free of any adapter import.
type MultipartFile struct {
	Name        string
	Filename    string
	ContentType string
	Content     []byte
}

func normaliseURI(uri string) string {
	if uri == "" {
		return "/"
	}
	if !strings.HasPrefix(uri, "/") {
		return "/" + uri
	}
	return uri
}

func encodeForm(fields map[string][]string) string {
	values := url.Values{}
	for name, vs := range fields {
		for _, v := range vs {
			values.Add(name, v)
		}
	}
	return values.Encode()
}

// AttemptTimeout returns the timeout to apply to the next attempt, scaled by
// TimeoutMultiplier and capped by whatever total time budget remains.
func (r *BalancedRequest) AttemptTimeout() time.Duration {
	t := time.Duration(float64(r.PerAttemptTimeout) * r.TimeoutMultiplier)
	if r.TimeBudgetRemaining > 0 && t > r.TimeBudgetRemaining {
		t = r.TimeBudgetRemaining
	}
	return t
}

// MarkAttemptStarted records the wall-clock start of an attempt so its
// elapsed time can be deducted from the total budget once it resolves.
func (r *BalancedRequest) MarkAttemptStarted() {
	r.startedAt = time.Now()
}

// ConsumeElapsed deducts the time spent on the just-finished attempt from
// the remaining total budget, flooring at zero.
func (r *BalancedRequest) ConsumeElapsed() {
	if r.startedAt.IsZero() {
		return
	}
	elapsed := time.Since(r.startedAt)
	r.TimeBudgetRemaining -= elapsed
	if r.TimeBudgetRemaining < 0 {
		r.TimeBudgetRemaining = 0
	}
	r.startedAt = time.Time{}
}

// CheckRetry decides whether another attempt should be made after the given
// index was tried and produced either a connect-level error or a response.
// A retry requires: another try left in the budget (TriesLeft > 1, the
// attempt just made still counting against it), time budget left, and
// either a connect error or an idempotent request whose response carries a
// retryable status code (ss4.C). A non-idempotent request that got a
// response at all is never retried, even on a retryable status, since the
// attempt may already have been applied upstream; only a connect error
// (nothing was ever sent) retries a non-idempotent request.
func (r *BalancedRequest) CheckRetry(index int, connectError bool, statusCode int) bool {
	r.TriedIndices[index] = true

	if r.TriesLeft <= 1 {
		return false
	}
	if r.TimeBudgetRemaining <= 0 {
		return false
	}

	if connectError {
		return true
	}
	if !r.Idempotent {
		return false
	}
	return constants.IsRetryableStatus(statusCode)
}

// ConsumeTry decrements the retry budget. Called once per retry, right
// after CheckRetry confirms another attempt will be made, so a request
// built with tries=N makes at most N attempts.
func (r *BalancedRequest) ConsumeTry() {
	if r.TriesLeft > 0 {
		r.TriesLeft--
	}
}

// Exhausted reports whether the request has no retry budget left in either
// dimension.
func (r *BalancedRequest) Exhausted() bool {
	return r.TriesLeft <= 0 || r.TimeBudgetRemaining <= 0
}
