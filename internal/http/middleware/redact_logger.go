// Package middleware contains the Gin middleware shared by the webhook
// endpoints and the operational API.
//
// RedactingLogger writes one structured access line per request with
// personal data scrubbed. Phone numbers are the user identity in this
// service, so they are redacted wherever they appear in query strings or
// header values. Provider secrets (bearer tokens, webhook signatures, the
// verify token of the Cloud API handshake) are masked outright.
//
// It also installs the request-scoped logger: on the Gin context for
// handlers (LoggerFrom) and on the request context, where the conversation
// engine picks it up through zerolog.Ctx.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions adds to the built-in masks.
type RedactOptions struct {
	// MaskHeaders are extra header names replaced by "[REDACTED]".
	MaskHeaders []string
	// MaskQuery are extra query parameter names replaced by "[REDACTED]".
	MaskQuery []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so the hex groups of a UUID never match.
	phoneRE = regexp.MustCompile(`\+?\b(?:\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactPII scrubs ids, then emails, then phone numbers (the loosest pattern).
func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(builtin []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(builtin)+len(extra))
	for _, s := range append(append([]string{}, builtin...), extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// RedactingLogger returns the access-log middleware. Place it after
// RequestID. Bodies are never logged.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{
		"Authorization",
		"Cookie",
		"Set-Cookie",
		"X-Hub-Signature",
		"X-Hub-Signature-256",
		"X-Twilio-Signature",
	}, opts.MaskHeaders)
	maskQuery := lowerSet([]string{"hub.verify_token"}, opts.MaskQuery)

	scrubQuery := func(raw string) string {
		if raw == "" {
			return raw
		}
		vals, err := url.ParseQuery(raw)
		if err != nil {
			return redactPII(raw)
		}
		for k := range vals {
			if _, ok := maskQuery[strings.ToLower(k)]; ok {
				vals[k] = []string{"[REDACTED]"}
			}
		}
		// Encode escapes brackets and '+'; decode back so the line stays readable.
		enc, err := url.QueryUnescape(vals.Encode())
		if err != nil {
			enc = vals.Encode()
		}
		return redactPII(enc)
	}

	return func(c *gin.Context) {
		start := time.Now()
		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		lg := log.With().Str("request_id", rid).Logger()
		c.Set(loggerKey, &lg)
		c.Request = c.Request.WithContext(lg.WithContext(c.Request.Context()))

		safeQuery := truncate(scrubQuery(c.Request.URL.RawQuery), maxQueryLogLength)
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactPII(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		ev.Ctx(c.Request.Context()).Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
