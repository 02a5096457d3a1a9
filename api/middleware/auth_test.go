package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgauth "github.com/lumenfolio/portal-backend/pkg/auth"
	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	"github.com/lumenfolio/portal-backend/pkg/logger"
)

var testJWTConfig = config.JWTConfig{Secret: "test-secret", Issuer: "lumenfolio", ExpirationMinutes: 60}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func mintTestToken(t *testing.T, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(testJWTConfig, time.Now(), pkgauth.AccessTokenPayload{
		Email: "studio@lumenfolio.studio",
		Role:  role,
		JTI:   "test-jti",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAdminAuth_AllowsAdmin(t *testing.T) {
	var gotEmail string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEmail = AdminEmailFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/resources", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, enums.ActorRoleAdmin))
	resp := httptest.NewRecorder()
	AdminAuth(testJWTConfig, testLogger())(next).ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotEmail != "studio@lumenfolio.studio" {
		t.Fatalf("unexpected admin email %q", gotEmail)
	}
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/resources", nil)
	resp := httptest.NewRecorder()
	AdminAuth(testJWTConfig, testLogger())(next).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestAdminAuth_GarbageToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/resources", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp := httptest.NewRecorder()
	AdminAuth(testJWTConfig, testLogger())(next).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestAdminAuth_ClientRoleForbidden(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/resources", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, enums.ActorRoleClient))
	resp := httptest.NewRecorder()
	AdminAuth(testJWTConfig, testLogger())(next).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestAdminAuth_WrongSecret(t *testing.T) {
	otherCfg := config.JWTConfig{Secret: "other-secret", Issuer: "lumenfolio", ExpirationMinutes: 60}
	token, err := pkgauth.MintAccessToken(otherCfg, time.Now(), pkgauth.AccessTokenPayload{
		Email: "studio@lumenfolio.studio",
		Role:  enums.ActorRoleAdmin,
		JTI:   "test-jti",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/resources", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	AdminAuth(testJWTConfig, testLogger())(next).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
