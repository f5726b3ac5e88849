package httpadapter

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-chat-service/internal/observability/logging"
)

const requestIDHeader = "X-Request-Id"

// requestTrace is filled in by handlers while a request runs and read back by
// the access log once it completes. Both happen on the serving goroutine.
type requestTrace struct {
	requestID  string
	documentID string
	errorCode  string
}

type requestTraceKey struct{}

func traceFromContext(ctx context.Context) *requestTrace {
	if ctx == nil {
		return nil
	}
	trace, _ := ctx.Value(requestTraceKey{}).(*requestTrace)
	return trace
}

// noteDocument records which document a request addressed.
func noteDocument(r *http.Request, documentID string) {
	if trace := traceFromContext(r.Context()); trace != nil && documentID != "" {
		trace.documentID = documentID
	}
}

func noteErrorCode(r *http.Request, code string) {
	if trace := traceFromContext(r.Context()); trace != nil {
		trace.errorCode = code
	}
}

// requestLogMiddleware assigns the request id, exposes it to use case logging
// through the context and writes one http_request record per request.
func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		trace := &requestTrace{requestID: strings.TrimSpace(r.Header.Get(requestIDHeader))}
		if trace.requestID == "" {
			trace.requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, trace.requestID)

		ctx := context.WithValue(r.Context(), requestTraceKey{}, trace)
		ctx = logging.WithRequestID(ctx, trace.requestID)
		r = r.WithContext(ctx)

		meter := &responseMeter{ResponseWriter: w}
		next.ServeHTTP(meter, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", meter.status()),
			slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0),
			slog.Int("bytes", meter.written),
			slog.String("remote_addr", clientHost(r.RemoteAddr)),
		}
		if trace.documentID != "" {
			attrs = append(attrs, slog.String("document_id", trace.documentID))
		}
		if trace.errorCode != "" {
			attrs = append(attrs, slog.String("error_code", trace.errorCode))
		}
		slog.LogAttrs(ctx, accessLogLevel(r, meter.status()), "http_request", attrs...)
	})
}

func accessLogLevel(r *http.Request, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case exemptFromAdmission(r):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func clientHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// responseMeter records the first status written and the body size.
type responseMeter struct {
	http.ResponseWriter
	code    int
	written int
}

func (m *responseMeter) WriteHeader(code int) {
	if m.code == 0 {
		m.code = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeter) Write(b []byte) (int, error) {
	if m.code == 0 {
		m.code = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(b)
	m.written += n
	return n, err
}

func (m *responseMeter) status() int {
	if m.code == 0 {
		return http.StatusOK
	}
	return m.code
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	token, ok := strings.CutPrefix(strings.TrimSpace(headerValue), "Bearer ")
	if !ok || expectedToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expectedToken)) == 1
}
