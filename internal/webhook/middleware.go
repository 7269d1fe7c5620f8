package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
)

var (
	errPayloadTooLarge = errors.New("payload too large")
	errReadBody        = errors.New("error reading body")
	errNoPayload       = errors.New("internal error")
)

type payloadKey struct{}

// Option customises Middleware and Handler.
type Option func(*options)

type options struct {
	header      string
	maxBodySize int64
	logger      *slog.Logger
}

// WithSignatureHeader overrides the header carrying the signature.
func WithSignatureHeader(name string) Option {
	return func(o *options) {
		if name != "" {
			o.header = name
		}
	}
}

// WithMaxBodySize caps the number of body bytes read before verification.
func WithMaxBodySize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithLogger sets the logger used for rejections.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		header:      SignatureHeader,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Middleware rejects requests whose body does not match the signature header.
// Verified requests continue with the Payload in their context and r.Body
// rewound to the same bytes.
func (v *Verifier) Middleware(opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := readBody(r.Body, o.maxBodySize)
			if err != nil {
				o.reject(w, r, err)
				return
			}

			// Header.Get returns the first value when the header is repeated.
			payload, err := v.Verify(body, r.Header.Get(o.header))
			if err != nil {
				o.reject(w, r, err)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), payloadKey{}, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PayloadFromContext returns the Payload stored by Middleware.
func PayloadFromContext(ctx context.Context) (*Payload, bool) {
	p, ok := ctx.Value(payloadKey{}).(*Payload)
	return p, ok && p != nil
}

// EventHandlerFunc receives a verified, decoded webhook event.
type EventHandlerFunc[T any] func(w http.ResponseWriter, r *http.Request, d Delivery, event T)

// Handler verifies each request and decodes its body into T before calling
// fn. Requests that fail either step never reach fn.
func Handler[T any](v *Verifier, fn EventHandlerFunc[T], opts ...Option) http.Handler {
	o := newOptions(opts)

	decode := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := PayloadFromContext(r.Context())
		if !ok {
			o.reject(w, r, errNoPayload)
			return
		}
		event, err := Decode[T](payload)
		if err != nil {
			o.reject(w, r, err)
			return
		}
		fn(w, r, DeliveryFromRequest(r), event)
	})

	return v.Middleware(opts...)(decode)
}

func readBody(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return []byte{}, nil
	}
	// One extra byte distinguishes "exactly limit" from "over limit".
	n := limit
	if n < math.MaxInt64 {
		n++
	}
	data, err := io.ReadAll(io.LimitReader(body, n))
	if err != nil {
		return nil, errReadBody
	}
	if int64(len(data)) > limit {
		return nil, errPayloadTooLarge
	}
	return data, nil
}

// reject logs err without body or signature and writes the error response.
func (o options) reject(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	o.logger.Warn("webhook rejected",
		"path", r.URL.Path,
		"header", o.header,
		"delivery_id", r.Header.Get(DeliveryHeader),
		"status", status,
		"error", err,
	)
	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoPayload):
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
