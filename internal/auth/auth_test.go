package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testIssuer(now time.Time) *Issuer {
	iss := NewIssuer("test-issuer", "k3y", time.Minute, time.Hour)
	iss.Now = func() time.Time { return now }
	return iss
}

func TestIssueAndParse(t *testing.T) {
	t.Parallel()

	now := time.Now()
	iss := testIssuer(now)
	pair, err := iss.Issue(Identity{ID: "u1", Email: "t@example.com", Name: "T", Role: RoleTeacher})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := iss.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != RoleTeacher || claims.Email != "t@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.IsAdmin() {
		t.Fatalf("teacher must not be admin")
	}

	if _, err := iss.ParseAccess(pair.RefreshToken); err == nil {
		t.Fatalf("refresh token must not pass as access token")
	}
	if _, err := iss.ParseRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	now := time.Now()
	iss := testIssuer(now)
	pair, err := iss.Issue(Identity{ID: "u1", Role: RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	other := NewIssuer("test-issuer", "different", time.Minute, time.Hour)
	if _, err := other.ParseAccess(pair.AccessToken); err == nil {
		t.Fatalf("expected signature failure")
	}

	wrongIssuer := NewIssuer("someone-else", "k3y", time.Minute, time.Hour)
	if _, err := wrongIssuer.ParseAccess(pair.AccessToken); err == nil {
		t.Fatalf("expected issuer mismatch")
	}

	later := testIssuer(now.Add(2 * time.Minute))
	if _, err := later.ParseAccess(pair.AccessToken); err == nil {
		t.Fatalf("expected expired token")
	}
}

func TestPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := CheckPassword(hash, "correct horse"); err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	if ok, err := CheckPassword(hash, "wrong"); err != nil || ok {
		t.Fatalf("expected mismatch without error, ok=%v err=%v", ok, err)
	}
	if _, err := CheckPassword("not-a-hash", "x"); err == nil {
		t.Fatalf("expected malformed hash error")
	}
}

func TestDeviceKey(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.POST("/scan", DeviceKey("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"right", "s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/scan", nil)
		if tc.header != "" {
			req.Header.Set(DeviceKeyHeader, tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestDeviceKeyDisabledWhenEmpty(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.POST("/scan", DeviceKey(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scan", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
}

func TestUserAuthAndRoles(t *testing.T) {
	t.Parallel()

	iss := NewIssuer("test-issuer", "k3y", time.Minute, time.Hour)
	admin, _ := iss.Issue(Identity{ID: "a", Role: RoleAdmin})
	teacher, _ := iss.Issue(Identity{ID: "t", Role: RoleTeacher})

	r := gin.New()
	r.GET("/admin", UserAuth(iss), RequireRole(RoleAdmin), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})

	do := func(target, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := do("/admin", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := do("/admin", "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", w.Code)
	}
	if w := do("/admin", teacher.AccessToken); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for teacher, got %d", w.Code)
	}
	if w := do("/admin", admin.AccessToken); w.Code != http.StatusOK || w.Body.String() != "a" {
		t.Fatalf("expected admin pass, got %d %q", w.Code, w.Body.String())
	}
	if w := do("/admin?token="+admin.AccessToken, ""); w.Code != http.StatusOK {
		t.Fatalf("expected query token to be accepted, got %d", w.Code)
	}
}
