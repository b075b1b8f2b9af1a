package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestSubmitterFrom(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "no headers falls back to anonymous",
			headers:  map[string]string{},
			expected: "anonymous",
		},
		{
			name: "CI jobs name themselves",
			headers: map[string]string{
				"X-Warband-Submitter": "nightly-pipeline",
			},
			expected: "nightly-pipeline",
		},
		{
			name: "explicit submitter beats proxy identity",
			headers: map[string]string{
				"X-Warband-Submitter": "nightly-pipeline",
				"X-Forwarded-User":    "alice",
			},
			expected: "nightly-pipeline",
		},
		{
			name: "proxy user beats proxy email",
			headers: map[string]string{
				"X-Forwarded-User":  "alice",
				"X-Forwarded-Email": "alice@example.com",
			},
			expected: "alice",
		},
		{
			name: "proxy email used when nothing else is set",
			headers: map[string]string{
				"X-Forwarded-Email": "bob@example.com",
			},
			expected: "bob@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			assert.Equal(t, tt.expected, submitterFrom(c))
		})
	}
}
