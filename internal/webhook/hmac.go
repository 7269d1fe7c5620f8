package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// AlgorithmSHA256 is the only signature algorithm tag accepted by Verify.
const AlgorithmSHA256 = "sha256"

var (
	// ErrEmptySecret is returned by NewVerifier when no secret is configured.
	ErrEmptySecret = errors.New("webhook secret is empty")

	ErrMissingSignature     = errors.New("signature missing")
	ErrMalformedSignature   = errors.New("signature malformed")
	ErrUnsupportedAlgorithm = errors.New("signature algorithm unsupported")
	ErrSignatureMismatch    = errors.New("signature mismatch")
)

// digestSizes lists the algorithm tags GitHub has used, so that a well-formed
// but unsupported header can be told apart from a truncated one.
var digestSizes = map[string]int{
	"sha1":          sha1.Size,
	AlgorithmSHA256: sha256.Size,
	"sha512":        sha512.Size,
}

// Verifier checks X-Hub-Signature-256 values against a shared secret.
// It holds no mutable state and is safe for concurrent use.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret. An empty secret is a
// configuration error.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify checks header against the HMAC-SHA256 of body and returns the body
// wrapped as a verified Payload.
//
// body must be the exact bytes received on the wire.
func (v *Verifier) Verify(body []byte, header string) (*Payload, error) {
	return Verify(v.secret, body, header)
}

// Verify is the stateless form of Verifier.Verify.
func Verify(secret, body []byte, header string) (*Payload, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if header == "" {
		return nil, ErrMissingSignature
	}

	algorithm, provided, err := parseSignature(header)
	if err != nil {
		return nil, err
	}
	if algorithm != AlgorithmSHA256 {
		return nil, ErrUnsupportedAlgorithm
	}

	expected := computeMAC(secret, body)

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare(expected, provided) != 1 {
		return nil, ErrSignatureMismatch
	}

	return &Payload{body: body}, nil
}

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(secret, body []byte) string {
	return AlgorithmSHA256 + "=" + hex.EncodeToString(computeMAC(secret, body))
}

// parseSignature splits "<algorithm>=<hex>" and decodes the digest.
//
// Digest length is only enforced for algorithm tags in digestSizes; anything
// else decodes fine and is rejected by the caller as unsupported.
func parseSignature(header string) (string, []byte, error) {
	algorithm, hexDigest, ok := strings.Cut(header, "=")
	if !ok || algorithm == "" || hexDigest == "" {
		return "", nil, ErrMalformedSignature
	}

	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", nil, ErrMalformedSignature
	}

	if size, known := digestSizes[algorithm]; known && len(digest) != size {
		return "", nil, ErrMalformedSignature
	}

	return algorithm, digest, nil
}

func computeMAC(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
