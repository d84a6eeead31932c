package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wzshiming/hmacd/pkg/auditlog"
	"github.com/wzshiming/hmacd/pkg/metrics"
	"github.com/wzshiming/hmacd/pkg/sharedkey"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityTransformer turns a raw validated identity into the final identity
// attached to the request, given the requested resource. Implementations are
// invoked concurrently and must be safe for concurrent use. A returned error
// is treated as an internal failure, not an authentication rejection.
type IdentityTransformer interface {
	Transform(resource string, id *sharedkey.Identity) (*sharedkey.Identity, error)
}

// TransformerFunc adapts a function to the IdentityTransformer interface.
type TransformerFunc func(resource string, id *sharedkey.Identity) (*sharedkey.Identity, error)

// Transform implements IdentityTransformer.
func (f TransformerFunc) Transform(resource string, id *sharedkey.Identity) (*sharedkey.Identity, error) {
	return f(resource, id)
}

// errorResponse is the JSON body written on rejection. It never carries
// secret material or computed signatures.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthHandler authenticates every request with a shared-key validator and
// either forwards it with the identity attached to the request context, or
// rejects it. It holds no mutable per-request state.
type AuthHandler struct {
	validator     *sharedkey.Validator
	scheme        string
	transformer   IdentityTransformer
	expiredStatus int
	distinguish   bool
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	audit         *auditlog.Logger
}

// NewAuthHandler creates a handler validating against the given resolver.
// A nil resolver is a programming error and fails construction.
func NewAuthHandler(resolver sharedkey.SecretResolver) (*AuthHandler, error) {
	validator, err := sharedkey.NewValidator(resolver)
	if err != nil {
		return nil, err
	}
	return &AuthHandler{
		validator:     validator,
		scheme:        sharedkey.DefaultScheme,
		expiredStatus: http.StatusForbidden,
		logger:        zerolog.Nop(),
	}, nil
}

// SetScheme overrides the authorization scheme token.
func (h *AuthHandler) SetScheme(scheme string) {
	h.scheme = scheme
	h.validator.SetScheme(scheme)
}

// SetMaxAge overrides the accepted request age.
func (h *AuthHandler) SetMaxAge(maxAge time.Duration) {
	h.validator.SetMaxAge(maxAge)
}

// SetMaxSkew overrides the accepted future clock skew.
func (h *AuthHandler) SetMaxSkew(maxSkew time.Duration) {
	h.validator.SetMaxSkew(maxSkew)
}

// SetClock overrides the validator's time source, for tests.
func (h *AuthHandler) SetClock(now func() time.Time) {
	h.validator.SetClock(now)
}

// SetTransformer installs an identity transformer applied after validation.
func (h *AuthHandler) SetTransformer(t IdentityTransformer) {
	h.transformer = t
}

// SetExpiredStatus selects the status for expired requests. Only 401 and 403
// are accepted.
func (h *AuthHandler) SetExpiredStatus(status int) error {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return fmt.Errorf("middleware: expired status must be 401 or 403, got %d", status)
	}
	h.expiredStatus = status
	return nil
}

// SetDistinguishRejections controls whether unknown accounts and signature
// mismatches are told apart in logs and audit entries. Responses never
// distinguish them either way.
func (h *AuthHandler) SetDistinguishRejections(distinguish bool) {
	h.distinguish = distinguish
}

// SetLogger installs a structured logger.
func (h *AuthHandler) SetLogger(logger zerolog.Logger) {
	h.logger = logger
}

// SetMetrics installs Prometheus instrumentation.
func (h *AuthHandler) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// SetAuditLogger installs a decision log.
func (h *AuthHandler) SetAuditLogger(l *auditlog.Logger) {
	h.audit = l
}

// Middleware wraps next so that only authenticated requests reach it.
func (h *AuthHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()

		id, err := h.validator.Validate(r)
		if err != nil {
			h.reject(w, r, requestID, err, start)
			return
		}

		// A canceled request gets no identity and no further work, not
		// even the transformer.
		if r.Context().Err() != nil {
			return
		}

		if h.transformer != nil {
			account := id.Account
			id, err = h.transformer.Transform(r.URL.Path, id)
			if err != nil {
				h.logger.Error().
					Str("request_id", requestID).
					Str("account", account).
					Err(err).
					Msg("identity transformer failed")
				h.observe(metrics.ResultError, start)
				h.record(r, requestID, account, "TransformerFailure", http.StatusInternalServerError)
				writeError(w, http.StatusInternalServerError, "InternalError", "internal error")
				return
			}
		}

		h.observe(metrics.ResultSuccess, start)
		h.logger.Debug().
			Str("request_id", requestID).
			Str("account", id.Account).
			Msg("request authenticated")

		ctx := context.WithValue(r.Context(), identityKey, id)
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		h.record(r, requestID, id.Account, "Authenticated", rec.status)
	})
}

// responseRecorder captures the status the downstream handler writes so the
// audit entry carries the real response status. The status stays 200 when the
// handler never calls WriteHeader.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (w *responseRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// reject maps a validation error to its response. Unknown accounts and
// signature mismatches produce byte-identical responses so that accounts
// cannot be enumerated.
func (h *AuthHandler) reject(w http.ResponseWriter, r *http.Request, requestID string, err error, start time.Time) {
	var verr *sharedkey.ValidationError
	if !errors.As(err, &verr) {
		h.observe(metrics.ResultError, start)
		writeError(w, http.StatusInternalServerError, "InternalError", "internal error")
		return
	}

	status := http.StatusUnauthorized
	code := "Unauthorized"
	message := "authentication failed"
	outcome := verr.Kind.String()

	switch verr.Kind {
	case sharedkey.MalformedCredential, sharedkey.UnknownAccount, sharedkey.SignatureMismatch:
		if !h.distinguish && (verr.Kind == sharedkey.UnknownAccount || verr.Kind == sharedkey.SignatureMismatch) {
			outcome = "Denied"
		}
		w.Header().Set("WWW-Authenticate", h.scheme)
	case sharedkey.Expired:
		status = h.expiredStatus
		code = "Expired"
		message = "request expired"
	case sharedkey.MissingRequiredField:
		status = http.StatusPreconditionFailed
		code = "PreconditionFailed"
		message = verr.Reason
	}

	h.observe(metrics.ResultRejected, start)
	h.record(r, requestID, verr.Account, outcome, status)
	h.logger.Debug().
		Str("request_id", requestID).
		Str("outcome", outcome).
		Int("status", status).
		Msg("request rejected")

	writeError(w, status, code, message)
}

func (h *AuthHandler) observe(result string, start time.Time) {
	if h.metrics != nil {
		h.metrics.Observe(result, time.Since(start))
	}
}

func (h *AuthHandler) record(r *http.Request, requestID, account, outcome string, status int) {
	if h.audit == nil {
		return
	}
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}
	h.audit.Log(&auditlog.Entry{
		Timestamp:  time.Now(),
		RequestID:  requestID,
		RemoteIP:   remoteIP,
		Method:     r.Method,
		RequestURI: r.URL.RequestURI(),
		Account:    account,
		Outcome:    outcome,
		Status:     status,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Code:    code,
		Message: message,
	})
}

// IdentityFromContext extracts the authenticated identity attached by the
// middleware, if any.
func IdentityFromContext(ctx context.Context) (*sharedkey.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*sharedkey.Identity)
	return id, ok
}
