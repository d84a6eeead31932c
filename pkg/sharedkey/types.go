package sharedkey

import (
	"context"
	"fmt"
)

// ErrorKind classifies why validation rejected a request.
type ErrorKind int

const (
	// MalformedCredential means the authorization header was present but
	// could not be parsed into an account and a signature.
	MalformedCredential ErrorKind = iota
	// UnknownAccount means the secret resolver has no secret for the
	// account named in the credential.
	UnknownAccount
	// SignatureMismatch means the computed signature differs from the one
	// the caller supplied.
	SignatureMismatch
	// Expired means the request timestamp is outside the accepted window.
	Expired
	// MissingRequiredField means a header the scheme mandates was absent
	// or unusable.
	MissingRequiredField
)

// String returns the kind's name.
func (k ErrorKind) String() string {
	switch k {
	case MalformedCredential:
		return "MalformedCredential"
	case UnknownAccount:
		return "UnknownAccount"
	case SignatureMismatch:
		return "SignatureMismatch"
	case Expired:
		return "Expired"
	case MissingRequiredField:
		return "MissingRequiredField"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ValidationError is the tagged outcome of a failed validation.
type ValidationError struct {
	Kind   ErrorKind
	Reason string
	// Account is the account named in the credential, when parsing got far
	// enough to know it. It is meant for logs and audit trails, never for
	// responses.
	Account string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

func newError(kind ErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{
		Kind:   kind,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Identity is the result of a successful validation. It is created once per
// request and must never be shared across requests.
type Identity struct {
	// Account is the identifier the caller signed with.
	Account string
	// Claims carries extensible name/value pairs attached to the identity,
	// multiple values per name allowed.
	Claims map[string][]string
}

// AddClaim appends a value under the given claim name.
func (id *Identity) AddClaim(name, value string) {
	if id.Claims == nil {
		id.Claims = make(map[string][]string)
	}
	id.Claims[name] = append(id.Claims[name], value)
}

// Claim returns the first value of the named claim.
func (id *Identity) Claim(name string) (string, bool) {
	values := id.Claims[name]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// SecretResolver maps an account identifier to its secret key bytes.
// Absence of an account is a normal return value, not an error.
//
// Implementations are invoked concurrently by many requests and must be safe
// for concurrent use. The lookup may block on external storage; it receives
// the request context for cancellation.
type SecretResolver interface {
	LookupSecret(ctx context.Context, account string) ([]byte, bool)
}

// ResolverFunc adapts a function to the SecretResolver interface.
type ResolverFunc func(ctx context.Context, account string) ([]byte, bool)

// LookupSecret implements SecretResolver.
func (f ResolverFunc) LookupSecret(ctx context.Context, account string) ([]byte, bool) {
	return f(ctx, account)
}
