package domain

import "fmt"

// AbortPage signals that the page method wants the pipeline to stop: no
// further preprocessors/postprocessors run, nothing is rendered, and the
// error itself is dropped silently (ss4.F).
type AbortPage struct {
	Reason string
}

func (e *AbortPage) Error() string {
	if e.Reason == "" {
		return "page aborted"
	}
	return fmt.Sprintf("page aborted: %s", e.Reason)
}

// FinishWithPostprocessors signals that the pipeline should skip straight to
// the postprocessor stage, bypassing anything still pending from the page
// method (ss4.F).
type FinishWithPostprocessors struct {
	Reason string
}

func (e *FinishWithPostprocessors) Error() string {
	if e.Reason == "" {
		return "finish requested, running postprocessors"
	}
	return fmt.Sprintf("finish requested: %s", e.Reason)
}

// HTTPErrorWithPostprocessors carries a status code the pipeline must render
// after still running postprocessors, as opposed to a FailFastError which
// skips them entirely (ss4.F, ss7).
type HTTPErrorWithPostprocessors struct {
	Code   int
	Reason string
}

func (e *HTTPErrorWithPostprocessors) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("http error %d", e.Code)
	}
	return fmt.Sprintf("http error %d: %s", e.Code, e.Reason)
}

// FailFastError wraps the FailedRequest that triggered it and causes the
// pipeline to abandon postprocessors and render an error response
// immediately (ss4.F, ss4.I). StatusCode is 0 when no response was ever
// received (a connect failure); otherwise it carries the upstream's status
// code so the pipeline can pass it through per ss4.F's "300<=code<500"
// rule.
type FailFastError struct {
	FailedRequest *BalancedRequest
	StatusCode    int
	Cause         error
}

func (e *FailFastError) Error() string {
	name := "<unknown>"
	if e.FailedRequest != nil {
		name = e.FailedRequest.Upstream
	}
	if e.Cause != nil {
		return fmt.Sprintf("fail-fast on upstream %q: %v", name, e.Cause)
	}
	return fmt.Sprintf("fail-fast on upstream %q", name)
}

func (e *FailFastError) Unwrap() error { return e.Cause }

// ParseError wraps a response-parsing failure (malformed JSON/XML body) with
// the raw bytes so a handler's error hook can log or re-report them (ss4.D).
type ParseError struct {
	ContentType string
	Body        []byte
	Cause       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s response: %v", e.ContentType, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// DebugUnauthorized is raised when a request carries the debug-mode marker
// without valid debug credentials (ss4.I, External Interfaces).
type DebugUnauthorized struct{}

func (e *DebugUnauthorized) Error() string { return "debug mode requires valid credentials" }

// UpstreamError wraps a transport-level failure (connect refused, timeout)
// that occurred while contacting a specific borrowed server, preserving the
// server address and the underlying net/http error for logging.
type UpstreamError struct {
	Upstream string
	Address  string
	Cause    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %q server %q: %v", e.Upstream, e.Address, e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// NoServerAvailableError is returned when a Server Pool has no non-null,
// active, untried slot to offer a Balanced Request (ss4.A, ss7 -> 502).
type NoServerAvailableError struct {
	Upstream string
}

func (e *NoServerAvailableError) Error() string {
	return fmt.Sprintf("no server available for upstream %q", e.Upstream)
}
