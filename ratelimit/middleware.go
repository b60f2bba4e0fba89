package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"polling-gateway/models"
)

type KeyFunc func(r *http.Request) string

// StatsStore records admission decisions. Implementations must be
// best-effort: a recording failure never affects admission.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

type StatsEvent struct {
	Key     string
	Class   string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

type Options struct {
	Limiter            *Limiter
	Stats              StatsStore
	KeyFn              KeyFunc
	TrustXForwardedFor bool
}

func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// first IP in X-Forwarded-For is the original client
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if ip := strings.TrimSpace(parts[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware gates a route group behind the limiter. class scopes the
// counter so that, for one client, exhausting "login" does not lock out
// "signup".
func Middleware(class string, opts Options) gin.HandlerFunc {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}

	return func(c *gin.Context) {
		clientKey := opts.KeyFn(c.Request)
		key := class + ":" + clientKey

		dec := opts.Limiter.Allow(key)

		if opts.Stats != nil {
			_ = opts.Stats.Record(c.Request.Context(), StatsEvent{
				Key:     clientKey,
				Class:   class,
				Allowed: dec.Allowed,
				Method:  c.Request.Method,
				Path:    c.Request.URL.Path,
				At:      time.Now(),
			})
		}

		if !dec.Allowed {
			retry := int(dec.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.APIResponse{
				Success: false,
				Error:   "Too many requests. Please try again later.",
				Code:    "rate_limited",
			})
			return
		}

		c.Next()
	}
}
