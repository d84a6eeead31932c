// Package sharedkey implements shared-secret request signing and verification
// for HTTP services.
//
// A client proves possession of an account's secret by sending an HMAC-SHA256
// signature computed over a canonical representation of the request:
//
//	Authorization: SharedKey <account>:<base64 signature>
//	X-Auth-Date: Mon, 02 Jan 2006 15:04:05 GMT
//
// The canonical string (wire contract, version 1) is built from the request as
// follows; signer and verifier must produce byte-identical results:
//
//	METHOD                              "\n"
//	value of X-Auth-Content-Sha256      "\n"   (empty if absent)
//	value of Content-Type               "\n"   (empty if absent)
//	value of the timestamp header       "\n"   (raw string, as sent)
//	canonical resource                  "\n"   (escaped path, "?" and query
//	                                            pairs sorted by key then value)
//	canonical extension headers                (every x-auth-* header except the
//	                                            two above: lowercased name,
//	                                            trimmed values joined by ",",
//	                                            sorted, one "name:value\n" each)
//
// The timestamp header is X-Auth-Date, falling back to Date, in any of the
// HTTP date formats accepted by http.ParseTime. Requests older than the
// verifier's maximum age, or dated into the future beyond a small skew
// tolerance, are rejected; this bounds the window in which a captured request
// can be replayed.
//
// Verification is fail-closed: a malformed credential, an unknown account, a
// stale timestamp or a missing required field all reject the request. Unknown
// accounts and signature mismatches are indistinguishable to the caller.
package sharedkey
