package sharedkey

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func testResolver() SecretResolver {
	secrets := map[string][]byte{
		"alice": []byte("alice-secret-key"),
		"bob":   []byte("bob-secret-key"),
	}
	return ResolverFunc(func(_ context.Context, account string) ([]byte, bool) {
		secret, ok := secrets[account]
		return secret, ok
	})
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(testResolver())
	require.NoError(t, err)
	v.SetClock(func() time.Time { return testTime })
	return v
}

// signedRequest builds a request signed by account at the validator's test
// time.
func signedRequest(t *testing.T, account string, secret []byte, method, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	signer := NewSigner(account, secret)
	signer.Now = func() time.Time { return testTime }
	require.NoError(t, signer.Sign(req))
	return req
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Kind
}

func TestNewValidatorNilResolver(t *testing.T) {
	_, err := NewValidator(nil)
	require.Error(t, err)
}

func TestValidateSuccess(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")

	id, err := v.Validate(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Account)
	assert.NotNil(t, id.Claims)
}

func TestValidateNilRequest(t *testing.T) {
	v := newTestValidator(t)
	_, err := v.Validate(nil)
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr), "nil request is a programming error, not a rejection")
}

func TestValidateMissingAuthorization(t *testing.T) {
	v := newTestValidator(t)
	req := httptest.NewRequest("GET", "/data", nil)
	req.Header.Set(HeaderDate, testTime.Format(http.TimeFormat))

	_, err := v.Validate(req)
	assert.Equal(t, MissingRequiredField, kindOf(t, err))
}

func TestValidateWrongScheme(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")
	req.Header.Set("Authorization", "Basic "+strings.TrimPrefix(req.Header.Get("Authorization"), DefaultScheme+" "))

	_, err := v.Validate(req)
	assert.Equal(t, MalformedCredential, kindOf(t, err))
}

func TestValidateSignatureBitFlip(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")

	cred, verr := parseCredential(req.Header.Get("Authorization"), DefaultScheme)
	require.Nil(t, verr)

	for i := range cred.Signature {
		flipped := make([]byte, len(cred.Signature))
		copy(flipped, cred.Signature)
		flipped[i] ^= 0x01
		req.Header.Set("Authorization",
			DefaultScheme+" alice:"+base64.StdEncoding.EncodeToString(flipped))

		_, err := v.Validate(req)
		assert.Equal(t, SignatureMismatch, kindOf(t, err), "flipped bit in byte %d", i)
	}
}

func TestValidateTruncatedSignature(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")

	cred, verr := parseCredential(req.Header.Get("Authorization"), DefaultScheme)
	require.Nil(t, verr)
	truncated := cred.Signature[:len(cred.Signature)-1]
	req.Header.Set("Authorization",
		DefaultScheme+" alice:"+base64.StdEncoding.EncodeToString(truncated))

	_, err := v.Validate(req)
	assert.Equal(t, MalformedCredential, kindOf(t, err))
}

func TestValidateUnknownAccount(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "mallory", []byte("mallory-secret"), "GET", "/data")

	_, err := v.Validate(req)
	assert.Equal(t, UnknownAccount, kindOf(t, err))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "mallory", verr.Account)
}

// A request signed with the fixed fallback secret must still be rejected as
// unknown; the fallback exists only to equalize rejection cost.
func TestValidateUnknownAccountFallbackSecretRejected(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "mallory", dummySecret, "GET", "/data")

	_, err := v.Validate(req)
	assert.Equal(t, UnknownAccount, kindOf(t, err))
}

func TestValidateMissingTimestamp(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")
	req.Header.Del(HeaderDate)

	_, err := v.Validate(req)
	assert.Equal(t, MissingRequiredField, kindOf(t, err))
}

func TestValidateUnparsableTimestamp(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")
	req.Header.Set(HeaderDate, "not a date")

	_, err := v.Validate(req)
	assert.Equal(t, MissingRequiredField, kindOf(t, err))
}

func TestValidateDateHeaderFallback(t *testing.T) {
	v := newTestValidator(t)
	req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")

	// The raw timestamp string is what gets signed, so moving it to the
	// standard Date header must not invalidate the signature.
	req.Header.Set("Date", req.Header.Get(HeaderDate))
	req.Header.Del(HeaderDate)

	id, err := v.Validate(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Account)
}

func TestValidateExpiry(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		expired bool
	}{
		{"well within max age", testTime.Add(time.Minute), false},
		{"exactly at max age", testTime.Add(DefaultMaxAge), false},
		{"one second past max age", testTime.Add(DefaultMaxAge + time.Second), true},
		{"ten minutes past", testTime.Add(10 * time.Minute), true},
		{"future within skew", testTime.Add(-DefaultMaxSkew), false},
		{"future past skew", testTime.Add(-DefaultMaxSkew - time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(t)
			v.SetClock(func() time.Time { return tt.now })
			req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")

			_, err := v.Validate(req)
			if tt.expired {
				assert.Equal(t, Expired, kindOf(t, err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateShortMaxAge(t *testing.T) {
	v := newTestValidator(t)
	v.SetMaxAge(5 * time.Minute)
	v.SetClock(func() time.Time { return testTime.Add(10 * time.Minute) })
	req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")

	_, err := v.Validate(req)
	assert.Equal(t, Expired, kindOf(t, err))
}

func TestValidateBodyRequiresContentType(t *testing.T) {
	v := newTestValidator(t)

	req := httptest.NewRequest("POST", "/data", strings.NewReader("payload"))
	req.Header.Set(HeaderDate, testTime.Format(http.TimeFormat))
	req.Header.Set("Authorization", DefaultScheme+" alice:"+base64.StdEncoding.EncodeToString(make([]byte, SignatureSize)))

	_, err := v.Validate(req)
	assert.Equal(t, MissingRequiredField, kindOf(t, err))
}

func TestValidateCustomScheme(t *testing.T) {
	v := newTestValidator(t)
	v.SetScheme("HMAC-V1")

	req := httptest.NewRequest("GET", "/data", nil)
	signer := NewSigner("alice", []byte("alice-secret-key"))
	signer.Scheme = "HMAC-V1"
	signer.Now = func() time.Time { return testTime }
	require.NoError(t, signer.Sign(req))

	id, err := v.Validate(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Account)

	// The default token is no longer accepted.
	req2 := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")
	_, err = v.Validate(req2)
	assert.Equal(t, MalformedCredential, kindOf(t, err))
}

func TestValidateTamperedRequest(t *testing.T) {
	tamper := []struct {
		name   string
		mutate func(*http.Request)
	}{
		{"changed path", func(r *http.Request) { r.URL.Path = "/other" }},
		{"changed method", func(r *http.Request) { r.Method = "DELETE" }},
		{"added query", func(r *http.Request) { r.URL.RawQuery = "admin=1" }},
		{"changed extension header", func(r *http.Request) { r.Header.Set("X-Auth-Scope", "root") }},
	}

	for _, tt := range tamper {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(t)
			req := signedRequest(t, "alice", []byte("alice-secret-key"), "GET", "/data")
			tt.mutate(req)

			_, err := v.Validate(req)
			assert.Equal(t, SignatureMismatch, kindOf(t, err))
		})
	}
}
