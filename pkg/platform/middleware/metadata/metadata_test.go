package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "peer v4", remote: "10.0.0.7:5123", want: "10.0.0.7"},
		{name: "peer v6", remote: "[::1]:5123", want: "::1"},
		{name: "forwarded ignored without trust", remote: "10.0.0.7:5123",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"}, want: "10.0.0.7"},
		{name: "first forwarded hop", remote: "10.0.0.7:5123", trustProxy: true,
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, want: "203.0.113.9"},
		{name: "real ip", remote: "10.0.0.7:5123", trustProxy: true,
			headers: map[string]string{"X-Real-IP": " 198.51.100.4 "}, want: "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req, tt.trustProxy))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	var ip, ua string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = GetClientIP(r.Context())
		ua = GetUserAgent(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:443"
	req.Header.Set("User-Agent", "registrar-app/2.1")

	ClientMetadata(false)(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.1", ip)
	assert.Equal(t, "registrar-app/2.1", ua)
}
