package webhook

import (
	"context"

	"github.com/daaku/ghwebhook/internal/delivery"
)

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/daaku/ghwebhook/internal/webhook DeliveryRecorder

// DeliveryRecorder logs verified deliveries.
type DeliveryRecorder interface {
	Record(ctx context.Context, req delivery.RecordRequest) (delivery.Record, bool, error)
}

// Config holds receiver server configuration.
type Config struct {
	Listen    string           `yaml:"listen"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/webhook/github")
	Path string `yaml:"path"`

	// Secret is the resolved HMAC secret
	Secret string `yaml:"-"`

	// SignatureHeader defaults to X-Hub-Signature-256
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`

	// Events restricts accepted X-GitHub-Event values. Empty accepts all;
	// ping is always accepted.
	Events []string `yaml:"events,omitempty"`
}

// DeliveryResponse is the JSON response for accepted deliveries.
type DeliveryResponse struct {
	DeliveryID string `json:"delivery_id"`
	Event      string `json:"event"`
	Status     string `json:"status"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Delivery statuses reported in DeliveryResponse.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
)

const DefaultMaxBodySize = 1048576 // 1 MB
