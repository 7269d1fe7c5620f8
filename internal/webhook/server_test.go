package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daaku/ghwebhook/internal/delivery"
	"github.com/daaku/ghwebhook/internal/webhook/mocks"
)

const testSecret = "test-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, recorder DeliveryRecorder, endpoints ...EndpointConfig) *Server {
	t.Helper()
	if len(endpoints) == 0 {
		endpoints = []EndpointConfig{{Path: "/webhook/github", Secret: testSecret}}
	}
	s, err := New(Config{Listen: "127.0.0.1:0", Endpoints: endpoints}, recorder, discardLogger())
	require.NoError(t, err)
	return s
}

func signedRequest(path, event, deliveryID string, body []byte, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(SignatureHeader, Sign([]byte(secret), body))
	if event != "" {
		req.Header.Set(EventHeader, event)
	}
	if deliveryID != "" {
		req.Header.Set(DeliveryHeader, deliveryID)
	}
	req.Header.Set(HookIDHeader, "12345")
	return req
}

func decodeDeliveryResponse(t *testing.T, rec *httptest.ResponseRecorder) DeliveryResponse {
	t.Helper()
	var resp DeliveryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestServer_AcceptsVerifiedDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockDeliveryRecorder(ctrl)

	body := []byte(`{"action":"opened","number":7}`)
	recorder.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req delivery.RecordRequest) (delivery.Record, bool, error) {
			assert.Equal(t, "d-1", req.DeliveryID)
			assert.Equal(t, "/webhook/github", req.Endpoint)
			assert.Equal(t, "pull_request", req.Event)
			assert.Equal(t, "opened", req.Action)
			assert.Equal(t, "12345", req.HookID)
			assert.Equal(t, body, req.Body)
			return delivery.Record{DeliveryID: req.DeliveryID, Event: req.Event, Action: req.Action}, false, nil
		})

	s := newTestServer(t, recorder)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest("/webhook/github", "pull_request", "d-1", body, testSecret))

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeDeliveryResponse(t, rec)
	assert.Equal(t, DeliveryResponse{DeliveryID: "d-1", Event: "pull_request", Status: StatusAccepted}, resp)
}

func TestServer_DuplicateDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockDeliveryRecorder(ctrl)
	recorder.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Return(delivery.Record{DeliveryID: "d-1", Event: "push"}, true, nil)

	s := newTestServer(t, recorder)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest("/webhook/github", "push", "d-1", []byte(`{}`), testSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusDuplicate, decodeDeliveryResponse(t, rec).Status)
}

func TestServer_IgnoresFilteredEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockDeliveryRecorder(ctrl)

	s := newTestServer(t, recorder, EndpointConfig{
		Path:   "/webhook/github",
		Secret: testSecret,
		Events: []string{"push"},
	})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest("/webhook/github", "issues", "d-2", []byte(`{"action":"opened"}`), testSecret))

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeDeliveryResponse(t, rec)
	assert.Equal(t, StatusIgnored, resp.Status)
	assert.Equal(t, "issues", resp.Event)
}

func TestServer_PingAlwaysAccepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockDeliveryRecorder(ctrl)
	recorder.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Return(delivery.Record{DeliveryID: "d-3", Event: EventPing}, false, nil)

	s := newTestServer(t, recorder, EndpointConfig{
		Path:   "/webhook/github",
		Secret: testSecret,
		Events: []string{"push"},
	})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest("/webhook/github", EventPing, "d-3", []byte(`{"zen":"hello"}`), testSecret))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, StatusAccepted, decodeDeliveryResponse(t, rec).Status)
}

func TestServer_RecorderFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockDeliveryRecorder(ctrl)
	recorder.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Return(delivery.Record{}, false, errors.New("disk full"))

	s := newTestServer(t, recorder)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest("/webhook/github", "push", "d-4", []byte(`{}`), testSecret))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "failed to record delivery", resp.Error)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestServer_RejectsBeforeRecording(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(r *http.Request)
		body       []byte
		wantStatus int
		wantError  string
	}{
		{
			name:       "wrong secret",
			mutate:     func(r *http.Request) { r.Header.Set(SignatureHeader, Sign([]byte("other"), []byte(`{}`))) },
			body:       []byte(`{}`),
			wantStatus: http.StatusBadRequest,
			wantError:  "signature mismatch",
		},
		{
			name:       "missing signature",
			mutate:     func(r *http.Request) { r.Header.Del(SignatureHeader) },
			body:       []byte(`{}`),
			wantStatus: http.StatusBadRequest,
			wantError:  "signature missing",
		},
		{
			name:       "malformed signature",
			mutate:     func(r *http.Request) { r.Header.Set(SignatureHeader, "sha256=zz") },
			body:       []byte(`{}`),
			wantStatus: http.StatusBadRequest,
			wantError:  "signature malformed",
		},
		{
			name:       "missing event header",
			mutate:     func(r *http.Request) { r.Header.Del(EventHeader) },
			body:       []byte(`{}`),
			wantStatus: http.StatusBadRequest,
			wantError:  "event header missing",
		},
		{
			name:       "body too large",
			mutate:     func(r *http.Request) {},
			body:       bytes.Repeat([]byte("a"), 65),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantError:  "payload too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			recorder := mocks.NewMockDeliveryRecorder(ctrl)

			s := newTestServer(t, recorder, EndpointConfig{
				Path:        "/webhook/github",
				Secret:      testSecret,
				MaxBodySize: 64,
			})
			req := signedRequest("/webhook/github", "push", "d-5", tt.body, testSecret)
			tt.mutate(req)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestServer_CustomSignatureHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockDeliveryRecorder(ctrl)
	recorder.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Return(delivery.Record{DeliveryID: "d-6", Event: "push"}, false, nil)

	s := newTestServer(t, recorder, EndpointConfig{
		Path:            "/hooks/mirror",
		Secret:          testSecret,
		SignatureHeader: "X-Mirror-Signature",
	})

	body := []byte(`{"ref":"refs/heads/main"}`)
	req := httptest.NewRequest(http.MethodPost, "/hooks/mirror", bytes.NewReader(body))
	req.Header.Set("X-Mirror-Signature", Sign([]byte(testSecret), body))
	req.Header.Set(EventHeader, "push")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_UnknownPathAndMethod(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestServer(t, mocks.NewMockDeliveryRecorder(ctrl))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest("/webhook/unknown", "push", "", []byte(`{}`), testSecret))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/github", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestServer(t, mocks.NewMockDeliveryRecorder(ctrl))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNew_RejectsInvalidEndpoints(t *testing.T) {
	tests := []struct {
		name      string
		endpoints []EndpointConfig
		wantErr   string
	}{
		{
			name:      "empty secret",
			endpoints: []EndpointConfig{{Path: "/a"}},
			wantErr:   "secret",
		},
		{
			name: "duplicate path",
			endpoints: []EndpointConfig{
				{Path: "/a", Secret: "x"},
				{Path: "/a", Secret: "y"},
			},
			wantErr: "duplicate path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(Config{Endpoints: tt.endpoints}, nil, discardLogger())
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	s, err := New(Config{Endpoints: []EndpointConfig{{Path: "/a", Secret: "x"}}}, nil, nil)
	require.NoError(t, err)

	ep := s.endpoints["/a"]
	require.NotNil(t, ep)
	assert.Equal(t, int64(DefaultMaxBodySize), ep.MaxBodySize)
	assert.Equal(t, SignatureHeader, ep.SignatureHeader)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	s, err := New(Config{
		Listen:    "127.0.0.1:0",
		Endpoints: []EndpointConfig{{Path: "/a", Secret: "x"}},
	}, nil, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestServer_StartReportsListenError(t *testing.T) {
	s, err := New(Config{
		Listen:    "not-a-valid-address",
		Endpoints: []EndpointConfig{{Path: "/a", Secret: "x"}},
	}, nil, discardLogger())
	require.NoError(t, err)

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "webhook server error"))
}

func TestServer_HandleDeliveryWithoutPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestServer(t, mocks.NewMockDeliveryRecorder(ctrl))

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(EventHeader, "push")
	rec := httptest.NewRecorder()
	s.handleDelivery(s.endpoints["/webhook/github"])(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
