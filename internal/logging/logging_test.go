package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestMiddlewareRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	const given = "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	cases := []struct {
		name   string
		header string
		keep   bool
	}{
		{"uuid kept", given, true},
		{"missing", "", false},
		{"not a uuid", "abc\nlevel=ERROR msg=forged", false},
		{"oversized", strings.Repeat("a", 4096), false},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		r := gin.New()
		r.Use(Middleware(New(&buf, "info", "text")))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("X-Request-ID", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get("X-Request-ID")
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("%s: response id %q is not a uuid", tc.name, got)
		}
		if tc.keep && got != given {
			t.Fatalf("%s: expected id %q kept, got %q", tc.name, given, got)
		}
		if !tc.keep && got == tc.header {
			t.Fatalf("%s: client id echoed", tc.name)
		}
		if !strings.Contains(buf.String(), "request_id="+got) || strings.Contains(buf.String(), "forged") {
			t.Fatalf("%s: unexpected log %q", tc.name, buf.String())
		}
	}
}
