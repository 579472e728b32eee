package constants

const (
	// StatusBackendUnavailable is the status for a request that finds no backend server
	// to borrow. Fetch reports that case as a NoServerAvailableError exception and
	// builds no response carrying this status.
	StatusBackendUnavailable = 502
	// StatusUpstreamConnectFailure marks a transport-level connect failure (599 per spec ss4.C).
	StatusUpstreamConnectFailure = 599
	// StatusServiceUnavailable is one of the two retryable backend statuses.
	StatusServiceUnavailable = 503
	// StatusNormalisationFallback is substituted for any status code outside the standard set (ss7).
	StatusNormalisationFallback = 503
)

// ValidStatusCodes is the standard HTTP response-code set a response may carry
// unmodified. Anything outside of it is normalised to StatusNormalisationFallback.
var ValidStatusCodes = map[int]bool{
	200: true, 201: true, 202: true, 203: true, 204: true, 205: true, 206: true,
	300: true, 301: true, 302: true, 303: true, 304: true, 307: true, 308: true,
	400: true, 401: true, 402: true, 403: true, 404: true, 405: true, 406: true,
	407: true, 408: true, 409: true, 410: true, 411: true, 412: true, 413: true,
	414: true, 415: true, 416: true, 417: true, 418: true, 422: true, 426: true,
	429: true,
	500: true, 501: true, 502: true, 503: true, 504: true, 505: true,
	599: true,
}

// IsRetryableStatus reports whether a status is one of the two backend-failure
// codes the HTTP Client Core retries on (ss4.C, ss7).
func IsRetryableStatus(code int) bool {
	return code == StatusServiceUnavailable || code == StatusUpstreamConnectFailure
}

// NormaliseStatusCode replaces any status code outside the standard response-code
// set with StatusNormalisationFallback before it is sent to the client (ss7).
func NormaliseStatusCode(code int) int {
	if ValidStatusCodes[code] {
		return code
	}
	return StatusNormalisationFallback
}
