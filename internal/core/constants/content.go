package constants

const (
	ContentTypeJSON           = "application/json"
	ContentTypeXML            = "application/xml"
	ContentTypeText           = "text/plain"
	ContentTypeHTML           = "text/html"
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"
	ContentTypeHeader         = "Content-Type"
	ContentLength             = "Content-Length"

	HeaderXRequestID  = "X-Request-Id"
	HeaderXHHDebug    = "X-Hh-Debug"
	HeaderWWWAuth     = "WWW-Authenticate"
	HeaderAllow       = "Allow"
	HeaderAccept      = "Accept"

	DebugQueryParam  = "debug"
	DebugCookieName  = "hh_debug"
	DebugTimestampQS = "debug_timestamp"
)
