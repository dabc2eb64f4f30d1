package middleware

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "203.0.113.9", "10.0.0.1:4321", "203.0.113.9"},
		{"forwarded list takes first", "203.0.113.9, 10.0.0.2", "10.0.0.1:4321", "203.0.113.9"},
		{"no forwarded falls to remote", "", "192.0.2.7:5555", "192.0.2.7"},
		{"remote without port", "", "192.0.2.7", "192.0.2.7"},
		{"nothing available", "", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/contact", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			if got := ClientIP(r); got != tt.want {
				t.Fatalf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}

	if got := ClientIP(nil); got != "unknown" {
		t.Fatalf("ClientIP(nil) = %q", got)
	}
}
