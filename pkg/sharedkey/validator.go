package sharedkey

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"net/http"
	"time"
)

const (
	// DefaultScheme is the authorization scheme token.
	DefaultScheme = "SharedKey"
	// DefaultMaxAge is how long after its timestamp a signed request stays
	// acceptable.
	DefaultMaxAge = 5 * time.Minute
	// DefaultMaxSkew is how far into the future a timestamp may lie before
	// the request is rejected. Clocks are never perfectly aligned.
	DefaultMaxSkew = 30 * time.Second
)

// dummySecret keeps the work done for an unknown account in the same shape as
// a real verification, so lookups cannot be distinguished by timing.
var dummySecret = []byte("hmacd/unknown-account/v1")

// Validator checks the signature, freshness and completeness of inbound
// requests. It holds no per-request state and is safe for concurrent use.
type Validator struct {
	resolver SecretResolver
	scheme   string
	maxAge   time.Duration
	maxSkew  time.Duration
	now      func() time.Time
}

// NewValidator creates a validator with the default scheme token, maximum age
// and skew tolerance. The resolver must not be nil.
func NewValidator(resolver SecretResolver) (*Validator, error) {
	if resolver == nil {
		return nil, errors.New("sharedkey: resolver must not be nil")
	}
	return &Validator{
		resolver: resolver,
		scheme:   DefaultScheme,
		maxAge:   DefaultMaxAge,
		maxSkew:  DefaultMaxSkew,
		now:      time.Now,
	}, nil
}

// SetScheme overrides the authorization scheme token.
func (v *Validator) SetScheme(scheme string) {
	v.scheme = scheme
}

// SetMaxAge overrides the accepted request age. Negative values are ignored.
func (v *Validator) SetMaxAge(maxAge time.Duration) {
	if maxAge >= 0 {
		v.maxAge = maxAge
	}
}

// SetMaxSkew overrides the accepted future clock skew.
func (v *Validator) SetMaxSkew(maxSkew time.Duration) {
	if maxSkew >= 0 {
		v.maxSkew = maxSkew
	}
}

// SetClock overrides the time source, for tests.
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// Validate checks the request signature and returns the authenticated
// identity, or a *ValidationError describing the rejection. It reads only
// headers and the URL, never the body, and performs no I/O beyond the secret
// lookup.
func (v *Validator) Validate(r *http.Request) (*Identity, error) {
	if r == nil {
		return nil, errors.New("sharedkey: nil request")
	}

	credential, verr := parseCredential(r.Header.Get("Authorization"), v.scheme)
	if verr != nil {
		return nil, verr
	}
	// Rejections past this point know which account the caller claimed.
	fail := func(e *ValidationError) (*Identity, error) {
		e.Account = credential.Account
		return nil, e
	}

	timestamp := r.Header.Get(HeaderDate)
	if timestamp == "" {
		timestamp = r.Header.Get("Date")
	}
	if timestamp == "" {
		return fail(newError(MissingRequiredField, "timestamp header %s is missing", HeaderDate))
	}
	signedAt, err := http.ParseTime(timestamp)
	if err != nil {
		return fail(newError(MissingRequiredField, "timestamp %q is not a valid HTTP date", timestamp))
	}

	age := v.now().Sub(signedAt)
	if age < -v.maxSkew {
		return fail(newError(Expired, "request timestamp is in the future"))
	}
	if age > v.maxAge {
		return fail(newError(Expired, "request expired"))
	}

	// A request that carries a body must also sign a content type, otherwise
	// the body is not bound to the signature in any way.
	if r.ContentLength != 0 && r.Header.Get("Content-Type") == "" {
		return fail(newError(MissingRequiredField, "content-type header is required for requests with a body"))
	}

	canonical := canonicalString(r, timestamp)

	secret, found := v.resolver.LookupSecret(r.Context(), credential.Account)
	if !found {
		// Run the full compute-and-compare against a fixed secret so the
		// rejection costs the same as a mismatch.
		_ = hmac.Equal(computeSignature(dummySecret, canonical), credential.Signature)
		return fail(newError(UnknownAccount, "account is not known"))
	}

	expected := computeSignature(secret, canonical)
	if !hmac.Equal(expected, credential.Signature) {
		return fail(newError(SignatureMismatch, "signature does not match"))
	}

	return &Identity{
		Account: credential.Account,
		Claims:  make(map[string][]string),
	}, nil
}

// computeSignature is HMAC-SHA256 over the canonical string.
func computeSignature(secret, canonical []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	return mac.Sum(nil)
}
