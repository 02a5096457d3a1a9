package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lumenfolio/portal-backend/pkg/auth"
	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	"github.com/lumenfolio/portal-backend/pkg/security"
)

func adminTestConfigs(t *testing.T, password string) (config.AdminConfig, config.JWTConfig) {
	t.Helper()
	hashCfg := config.AccessCodeConfig{
		ArgonMemoryKB:    8,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     8,
		ArgonKeyLen:      16,
	}
	hash, err := security.HashAccessCode(password, hashCfg)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	adminCfg := config.AdminConfig{Email: "studio@lumenfolio.studio", PasswordHash: hash}
	jwtCfg := config.JWTConfig{Secret: "test-secret", Issuer: "lumenfolio", ExpirationMinutes: 60}
	return adminCfg, jwtCfg
}

func TestAdminLogin_MintsToken(t *testing.T) {
	adminCfg, jwtCfg := adminTestConfigs(t, "open-sesame")

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login",
		strings.NewReader(`{"email":"Studio@Lumenfolio.studio","password":"open-sesame"}`))
	resp := httptest.NewRecorder()
	AdminLogin(adminCfg, jwtCfg, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ExpiresIn != 3600 {
		t.Fatalf("unexpected expires_in %d", envelope.Data.ExpiresIn)
	}

	claims, err := auth.ParseAccessToken(jwtCfg, envelope.Data.AccessToken)
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if claims.Role != enums.ActorRoleAdmin {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Email != "studio@lumenfolio.studio" {
		t.Fatalf("unexpected email %s", claims.Email)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) <= 0 {
		t.Fatal("token already expired")
	}
}

func TestAdminLogin_WrongPassword(t *testing.T) {
	adminCfg, jwtCfg := adminTestConfigs(t, "open-sesame")

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login",
		strings.NewReader(`{"email":"studio@lumenfolio.studio","password":"guess"}`))
	resp := httptest.NewRecorder()
	AdminLogin(adminCfg, jwtCfg, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestAdminLogin_UnknownEmail(t *testing.T) {
	adminCfg, jwtCfg := adminTestConfigs(t, "open-sesame")

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login",
		strings.NewReader(`{"email":"intruder@example.com","password":"open-sesame"}`))
	resp := httptest.NewRecorder()
	AdminLogin(adminCfg, jwtCfg, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "invalid credentials") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
