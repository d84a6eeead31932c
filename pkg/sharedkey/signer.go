package sharedkey

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"
)

// Signer produces request signatures a Validator with the same scheme and
// secret will accept.
type Signer struct {
	Account string
	Secret  []byte
	// Scheme is the authorization scheme token, DefaultScheme when empty.
	Scheme string
	// Now supplies the timestamp, time.Now when nil.
	Now func() time.Time
}

// NewSigner constructs a signer for the given account.
func NewSigner(account string, secret []byte) *Signer {
	return &Signer{
		Account: account,
		Secret:  secret,
	}
}

// Sign sets the timestamp and authorization headers on the request.
// An existing X-Auth-Date header is kept, which lets callers sign with a
// timestamp of their choosing. Requests with a body must have a content type
// set before signing, since the canonical string includes it.
func (s *Signer) Sign(req *http.Request) error {
	if s.Account == "" || len(s.Secret) == 0 {
		return errors.New("sharedkey: signer account and secret must be set")
	}
	if req.ContentLength != 0 && req.Header.Get("Content-Type") == "" {
		return errors.New("sharedkey: request has a body but no content-type header")
	}

	timestamp := req.Header.Get(HeaderDate)
	if timestamp == "" {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		timestamp = now().UTC().Format(http.TimeFormat)
		req.Header.Set(HeaderDate, timestamp)
	}

	scheme := s.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}

	signature := computeSignature(s.Secret, canonicalString(req, timestamp))
	req.Header.Set("Authorization", scheme+" "+s.Account+":"+base64.StdEncoding.EncodeToString(signature))
	return nil
}

// Transport signs outgoing requests before delegating to a base round
// tripper. The request is cloned first; RoundTrippers must not mutate their
// argument.
type Transport struct {
	Signer *Signer
	// Base is http.DefaultTransport when nil.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	signed := req.Clone(req.Context())
	if err := t.Signer.Sign(signed); err != nil {
		return nil, err
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(signed)
}
