package delivery

import (
	"errors"
	"time"
)

// Record is one accepted webhook delivery.
type Record struct {
	ID         string
	DeliveryID string
	Endpoint   string
	Event      string
	Action     string
	HookID     string
	BodySize   int
	BodyDigest string
	ReceivedAt time.Time
}

// RecordRequest describes a verified delivery to log. Body is hashed, not
// stored.
type RecordRequest struct {
	DeliveryID string
	Endpoint   string
	Event      string
	Action     string
	HookID     string
	Body       []byte
}

var ErrNotFound = errors.New("delivery not found")

// timeLayout is fixed-width so received_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"
