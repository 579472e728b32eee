package util

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

var internalRequestSeq atomic.Uint64

// GenerateRequestID returns a random request id, for when no inbound
// x-request-id header is supplied.
func GenerateRequestID() string {
	return uuid.NewString()
}

// NextInternalRequestID returns a monotonically increasing id scoped to this
// process, used as the fallback identity for purely internal traffic.
func NextInternalRequestID() string {
	return fmt.Sprintf("req-%d", internalRequestSeq.Add(1))
}

func GetClientIP(r *http.Request, trustProxyHeaders bool, trustedCIDRs []*net.IPNet) string {
	if !trustProxyHeaders {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}

	sourceIP := getSourceIP(r)
	if sourceIP == nil || !isIPInTrustedCIDRs(sourceIP, trustedCIDRs) {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}

	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func getSourceIP(r *http.Request) net.IP {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(ip)
	}
	return net.ParseIP(r.RemoteAddr)
}

// StripRoutePrefix removes the mount path stamped into ctx by
// router.RegisterPipelineRoute from path, so a pipeline dispatching on the
// remainder doesn't see its own mount point.
func StripRoutePrefix(ctx context.Context, path string, key any) string {
	if routePrefix, ok := ctx.Value(key).(string); ok {
		if strings.HasPrefix(path, routePrefix) {
			stripped := path[len(routePrefix):]
			if stripped == "" || stripped[0] != '/' {
				stripped = "/" + stripped
			}
			return stripped
		}
	}
	return path
}

// StripPrefix removes a fixed route prefix from a path, defaulting to "/"
// when the result would otherwise be empty.
func StripPrefix(path, prefix string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if strings.HasPrefix(path, prefix) {
		stripped := strings.TrimPrefix(path, prefix)
		if stripped == "" {
			return "/"
		}
		if stripped[0] != '/' {
			stripped = "/" + stripped
		}
		return stripped
	}
	return path
}
