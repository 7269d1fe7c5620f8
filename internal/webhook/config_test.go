package webhook

import (
	"bytes"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daaku/ghwebhook/internal/config"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: DefaultMaxBodySize},
		{in: "1048576", want: 1048576},
		{in: "512KB", want: 512 << 10},
		{in: "1MB", want: 1 << 20},
		{in: " 2 mb ", want: 2 << 20},
		{in: "1GB", want: 1 << 30},
		{in: "0", wantErr: true},
		{in: "-5KB", wantErr: true},
		{in: "lots", wantErr: true},
		{in: "9223372036854775807GB", wantErr: true},
		{in: "9223372036854775807", want: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGlobalConfig(t *testing.T) {
	wc := config.WebhooksConfig{
		Listen: "127.0.0.1:8081",
		Endpoints: []config.WebhookEndpoint{
			{Path: "/a", Secret: "inline", MaxBodySize: "64KB", Events: []string{"push"}},
			{Path: "/b", SecretRef: "gh", SignatureHeader: "X-Other"},
		},
	}

	cfg, err := FromGlobalConfig(wc, map[string]string{"gh": "from-ref"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8081", cfg.Listen)
	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, EndpointConfig{Path: "/a", Secret: "inline", MaxBodySize: 64 << 10, Events: []string{"push"}}, cfg.Endpoints[0])
	assert.Equal(t, EndpointConfig{Path: "/b", Secret: "from-ref", SignatureHeader: "X-Other", MaxBodySize: DefaultMaxBodySize}, cfg.Endpoints[1])
}

func TestFromGlobalConfig_Errors(t *testing.T) {
	_, err := FromGlobalConfig(config.WebhooksConfig{
		Endpoints: []config.WebhookEndpoint{{Path: "/a", SecretRef: "missing"}},
	}, nil)
	assert.ErrorContains(t, err, `"/a"`)

	_, err = FromGlobalConfig(config.WebhooksConfig{
		Endpoints: []config.WebhookEndpoint{{Path: "/a", Secret: "x", MaxBodySize: "huge"}},
	}, nil)
	assert.ErrorContains(t, err, "max_body_size")
}

func TestParseSize_MaxValueStillVerifies(t *testing.T) {
	limit, err := ParseSize("9223372036854775807")
	require.NoError(t, err)

	v, err := NewVerifier("s")
	require.NoError(t, err)

	body := []byte(`{"zen":"unbounded"}`)
	var got []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PayloadFromContext(r.Context())
		got = p.Bytes()
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, Sign([]byte("s"), body))
	rec := httptest.NewRecorder()
	v.Middleware(WithMaxBodySize(limit), WithLogger(discardLogger()))(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, body, got)
}
