package sharedkey

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureSize is the length in bytes of a decoded signature.
const SignatureSize = sha256.Size

// Credential is the parsed content of an authorization header.
type Credential struct {
	Account   string
	Signature []byte
}

// parseCredential parses "<scheme> <account>:<base64 signature>".
// A missing header is reported as MissingRequiredField; every other deviation
// is MalformedCredential.
func parseCredential(header, scheme string) (*Credential, *ValidationError) {
	if header == "" {
		return nil, newError(MissingRequiredField, "authorization header is missing")
	}

	token, rest, found := strings.Cut(header, " ")
	if !found || token != scheme {
		return nil, newError(MalformedCredential, "unsupported authorization scheme")
	}

	account, encoded, found := strings.Cut(strings.TrimSpace(rest), ":")
	if !found {
		return nil, newError(MalformedCredential, "credential is not of the form account:signature")
	}
	if account == "" {
		return nil, newError(MalformedCredential, "credential has an empty account")
	}

	signature, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, newError(MalformedCredential, "signature is not valid base64")
	}
	if len(signature) != SignatureSize {
		return nil, newError(MalformedCredential, "signature has length %d, want %d", len(signature), SignatureSize)
	}

	return &Credential{
		Account:   account,
		Signature: signature,
	}, nil
}
