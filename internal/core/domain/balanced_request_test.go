package domain

import (
	"testing"
	"time"
)

func TestCheckRetryMatrix(t *testing.T) {
	tests := []struct {
		name         string
		idempotent   bool
		connectError bool
		statusCode   int
		triesLeft    int
		timeBudget   time.Duration
		want         bool
	}{
		{"connect error always retries, idempotent", true, true, 0, 2, time.Second, true},
		{"connect error always retries, non-idempotent", false, true, 0, 2, time.Second, true},
		{"idempotent retryable status retries", true, false, 503, 2, time.Second, true},
		{"idempotent non-retryable status does not retry", true, false, 200, 2, time.Second, false},
		{"non-idempotent never retries on a received response, even retryable", false, false, 503, 2, time.Second, false},
		{"no tries left blocks retry even on connect error", true, true, 0, 0, time.Second, false},
		{"no time budget left blocks retry even on connect error", true, true, 0, 2, 0, false},
		{"599 is retryable for idempotent requests", true, false, 599, 2, time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewBalancedRequest("up", "GET", "/x", tt.triesLeft, time.Second, tt.timeBudget, tt.idempotent)
			req.TriesLeft = tt.triesLeft
			req.TimeBudgetRemaining = tt.timeBudget
			got := req.CheckRetry(0, tt.connectError, tt.statusCode)
			if got != tt.want {
				t.Fatalf("CheckRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckRetryRecordsTriedIndex(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "/x", 3, time.Second, time.Second, true)
	req.CheckRetry(2, true, 0)
	if !req.TriedIndices[2] {
		t.Fatal("expected index 2 to be recorded as tried")
	}
}

func TestNewBalancedRequestClampsTriesToOne(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "/x", 0, time.Second, time.Second, true)
	if req.TriesLeft != 1 {
		t.Fatalf("expected tries clamped to 1, got %d", req.TriesLeft)
	}
}

func TestAttemptTimeoutCappedByRemainingBudget(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "/x", 1, 5*time.Second, 2*time.Second, true)
	if got := req.AttemptTimeout(); got != 2*time.Second {
		t.Fatalf("expected attempt timeout capped at remaining budget 2s, got %v", got)
	}
}

func TestAttemptTimeoutAppliesMultiplier(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "/x", 1, time.Second, time.Minute, true)
	req.TimeoutMultiplier = 2.0
	if got := req.AttemptTimeout(); got != 2*time.Second {
		t.Fatalf("expected multiplied attempt timeout of 2s, got %v", got)
	}
}

func TestConsumeElapsedFloorsAtZero(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "/x", 1, time.Second, time.Millisecond, true)
	req.MarkAttemptStarted()
	time.Sleep(5 * time.Millisecond)
	req.ConsumeElapsed()
	if req.TimeBudgetRemaining != 0 {
		t.Fatalf("expected remaining budget floored at 0, got %v", req.TimeBudgetRemaining)
	}
}

func TestExhausted(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "/x", 1, time.Second, time.Second, true)
	if req.Exhausted() {
		t.Fatal("fresh request should not be exhausted")
	}
	req.ConsumeTry()
	if !req.Exhausted() {
		t.Fatal("request with no tries left should be exhausted")
	}
}

func TestNewBalancedRequestNormalisesPathToStartWithSlash(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "no-leading-slash", 1, time.Second, time.Second, true)
	if req.Path != "/no-leading-slash" {
		t.Fatalf("expected normalised path, got %q", req.Path)
	}
}

func TestNewDirectHostRequestFixesTriesLeftAtOne(t *testing.T) {
	req := NewDirectHostRequest("10.0.0.1:9000", "GET", "/health", time.Second, time.Second, true)
	if !req.IsDirectHost() {
		t.Fatal("expected IsDirectHost to be true")
	}
	if req.Upstream != "" {
		t.Fatalf("expected Upstream to stay empty for a direct-host request, got %q", req.Upstream)
	}
	if req.TriesLeft != 1 {
		t.Fatalf("expected TriesLeft fixed at 1, got %d", req.TriesLeft)
	}
}

func TestBalancedRequestIsDirectHostFalseWhenUpstreamSet(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "/x", 1, time.Second, time.Second, true)
	if req.IsDirectHost() {
		t.Fatal("expected a registry-backed request to not be direct-host")
	}
}

func TestDefaultIdempotent(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{"GET", true},
		{"HEAD", true},
		{"PUT", true},
		{"DELETE", true},
		{"POST", false},
		{"PATCH", false},
	}
	for _, tt := range tests {
		if got := DefaultIdempotent(tt.method); got != tt.want {
			t.Errorf("DefaultIdempotent(%q) = %v, want %v", tt.method, got, tt.want)
		}
	}
}

func TestApplyConstructionRulesPostWithoutFilesURLEncodesBody(t *testing.T) {
	req := NewBalancedRequest("up", "POST", "/submit", 1, time.Second, time.Second, false)
	req.ApplyConstructionRules(map[string][]string{"name": {"ada"}}, nil, nil, nil)

	if string(req.Body) != "name=ada" {
		t.Fatalf("expected url-encoded body, got %q", req.Body)
	}
	if got := req.Headers.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected Content-Type %q", got)
	}
	if got := req.Headers.Get("Content-Length"); got != "8" {
		t.Fatalf("expected Content-Length 8, got %q", got)
	}
}

func TestApplyConstructionRulesPostWithFilesUsesInjectedMultipartBuilder(t *testing.T) {
	req := NewBalancedRequest("up", "POST", "/upload", 1, time.Second, time.Second, false)
	called := false
	builder := func(fields map[string][]string, files []MultipartFile) ([]byte, string) {
		called = true
		return []byte("multipart-body"), "multipart/form-data; boundary=x"
	}
	req.ApplyConstructionRules(nil, []MultipartFile{{Name: "f", Filename: "a.txt", Content: []byte("hi")}}, nil, builder)

	if !called {
		t.Fatal("expected the injected multipart builder to be invoked")
	}
	if string(req.Body) != "multipart-body" {
		t.Fatalf("expected body from the injected builder, got %q", req.Body)
	}
	if got := req.Headers.Get("Content-Type"); got != "multipart/form-data; boundary=x" {
		t.Fatalf("unexpected Content-Type %q", got)
	}
}

func TestApplyConstructionRulesPutPrefersRawBody(t *testing.T) {
	req := NewBalancedRequest("up", "PUT", "/x", 1, time.Second, time.Second, true)
	req.ApplyConstructionRules(map[string][]string{"ignored": {"x"}}, nil, []byte("raw-bytes"), nil)

	if string(req.Body) != "raw-bytes" {
		t.Fatalf("expected raw body to win over fields, got %q", req.Body)
	}
}

func TestApplyConstructionRulesPutURLEncodesWithoutRaw(t *testing.T) {
	req := NewBalancedRequest("up", "PUT", "/x", 1, time.Second, time.Second, true)
	req.ApplyConstructionRules(map[string][]string{"name": {"ada"}}, nil, nil, nil)

	if string(req.Body) != "name=ada" {
		t.Fatalf("expected url-encoded body, got %q", req.Body)
	}
}

func TestApplyConstructionRulesGetMergesFieldsIntoQuery(t *testing.T) {
	req := NewBalancedRequest("up", "GET", "/search", 1, time.Second, time.Second, true)
	req.ApplyConstructionRules(map[string][]string{"q": {"go"}}, nil, nil, nil)

	if req.Query["q"] != "go" {
		t.Fatalf("expected field merged into query, got %+v", req.Query)
	}
	if len(req.Body) != 0 {
		t.Fatalf("expected no body for GET, got %q", req.Body)
	}
}
