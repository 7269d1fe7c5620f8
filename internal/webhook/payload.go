package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is a request body whose signature has been verified. The only way
// to obtain one is a successful Verify.
type Payload struct {
	body []byte
}

// Bytes returns the verified body exactly as received. Callers must not
// modify the returned slice.
func (p *Payload) Bytes() []byte {
	return p.body
}

// Len returns the body size in bytes.
func (p *Payload) Len() int {
	return len(p.body)
}

// DecodeError reports a verified body that could not be decoded into the
// requested type.
type DecodeError struct {
	// Path is the dotted JSON field path where decoding failed, if known.
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decode payload: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("decode payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode unmarshals the verified body into a new T.
func Decode[T any](p *Payload) (T, error) {
	var out T
	if p == nil {
		return out, &DecodeError{Err: errors.New("payload is nil")}
	}
	if err := json.Unmarshal(p.body, &out); err != nil {
		return out, newDecodeError(err)
	}
	return out, nil
}

// Extract verifies body against header and decodes it into T.
func Extract[T any](v *Verifier, body []byte, header string) (T, error) {
	p, err := v.Verify(body, header)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](p)
}

func newDecodeError(err error) *DecodeError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &DecodeError{Path: typeErr.Field, Err: err}
	}
	return &DecodeError{Err: err}
}
