package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"riftgate/internal/platform/metrics"
	"riftgate/internal/session"
	id "riftgate/pkg/domain"
	dErrors "riftgate/pkg/domain-errors"
	"riftgate/pkg/platform/httputil"
	"riftgate/pkg/requestcontext"
)

const requestIDHeader = "X-Request-Id"

// RequestID assigns each request an identifier, honoring one supplied by the
// caller when it parses as a UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), requestID)))
	})
}

// ClientMetadata captures the client IP, raw User-Agent, and a parsed device
// name into the request context. The governance session-context gate reads
// the device evidence downstream.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), r.RemoteAddr, r.UserAgent())
		if device := deviceName(r.UserAgent()); device != "" {
			ctx = requestcontext.WithDeviceName(ctx, device)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceName condenses a User-Agent header into "OS browser" form.
func deviceName(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	parts := make([]string, 0, 2)
	if os := ua.OS(); os != "" {
		parts = append(parts, os)
	}
	if browser != "" {
		parts = append(parts, browser)
	}
	return strings.Join(parts, " ")
}

// SessionValidator parses a presented session token into its claims.
type SessionValidator interface {
	Validate(tokenString string) (*session.Claims, error)
}

// RequireSession guards a route group behind a bearer session token of at
// least the given grade. The validated profile and session land in the
// request context for handlers.
func RequireSession(sessions SessionValidator, minGrade id.AccessGrade, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer session token"))
				return
			}

			claims, err := sessions.Validate(token)
			if err != nil {
				if logger != nil {
					logger.WarnContext(ctx, "session token rejected",
						"request_id", requestcontext.RequestID(ctx),
						"error", err,
					)
				}
				httputil.WriteError(w, err)
				return
			}
			if !id.AccessGrade(claims.Grade).AtLeast(minGrade) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "session grade insufficient for this endpoint"))
				return
			}

			if profileID, err := id.ParseProfileID(claims.ProfileID); err == nil {
				ctx = requestcontext.WithProfileID(ctx, profileID)
			}
			if sessionID, err := id.ParseSessionID(claims.SessionID); err == nil {
				ctx = requestcontext.WithSessionID(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Observe records per-route request metrics.
func Observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			m.ObserveRequest(route, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
