package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenResponse_Failed(t *testing.T) {
	tests := []struct {
		name string
		resp TokenResponse
		want bool
	}{
		{"token", TokenResponse{AccessToken: "tok1"}, false},
		{"error", TokenResponse{Error: "access_denied"}, true},
		{"error with token", TokenResponse{AccessToken: "tok1", Error: "x"}, true},
		{"dismissed", TokenResponse{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resp.Failed())
		})
	}
}

func TestTokenResponse_HasScope(t *testing.T) {
	resp := TokenResponse{Scope: "openid email https://www.googleapis.com/auth/calendar"}
	assert.True(t, resp.HasScope("https://www.googleapis.com/auth/calendar"))
	assert.False(t, resp.HasScope("https://www.googleapis.com/auth/calendar.readonly"))
	assert.False(t, TokenResponse{}.HasScope("openid"))
}
