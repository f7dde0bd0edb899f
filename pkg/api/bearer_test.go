package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnwrapBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{name: "plain token", header: "Bearer abc123", token: "abc123", ok: true},
		{name: "padded token", header: "Bearer   abc123  ", token: "abc123", ok: true},
		{name: "lowercase scheme", header: "bearer abc123", token: "abc123", ok: true},
		{name: "mixed case scheme", header: "BeArEr abc123", token: "abc123", ok: true},
		{name: "empty header", header: "", ok: false},
		{name: "scheme only", header: "Bearer ", ok: false},
		{name: "scheme with spaces only", header: "Bearer    ", ok: false},
		{name: "basic scheme", header: "Basic abc123", ok: false},
		{name: "no scheme", header: "abc123", ok: false},
		{name: "scheme without space", header: "Bearerabc123", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := unwrapBearer(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}
