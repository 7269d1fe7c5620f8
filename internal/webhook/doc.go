// Package webhook verifies GitHub webhook deliveries and exposes their
// bodies only after the X-Hub-Signature-256 header has been checked.
//
// A delivery is authentic when the header carries "sha256=" followed by the
// hex HMAC-SHA256 of the raw request body keyed with the shared secret. The
// comparison is constant time.
//
// # Rejections
//
// Verification fails with one of the sentinel errors, checked in this order:
//
//   - ErrMissingSignature: header absent or empty
//   - ErrMalformedSignature: no "algo=hex" shape, bad hex, or wrong digest length
//   - ErrUnsupportedAlgorithm: any algorithm other than sha256
//   - ErrSignatureMismatch: digest does not match the body
//
// Middleware and Handler answer every rejection with 400 and a JSON body
// {"error": "<message>"}, except oversized bodies which get 413.
//
// # Example Usage
//
//	v, err := webhook.NewVerifier(os.Getenv("GITHUB_WEBHOOK_SECRET"))
//	if err != nil {
//		return err
//	}
//
//	r := chi.NewRouter()
//	r.Method(http.MethodPost, "/hook", webhook.Handler(v,
//		func(w http.ResponseWriter, r *http.Request, d webhook.Delivery, ev github.PushEvent) {
//			// ev is only reachable after verification succeeded.
//		}))
//
// Server wires the same verification into a chi router with one route per
// configured endpoint and records accepted deliveries through a
// DeliveryRecorder.
package webhook
