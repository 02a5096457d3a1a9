package controllers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/lumenfolio/portal-backend/api/responses"
	"github.com/lumenfolio/portal-backend/api/validators"
	pkgauth "github.com/lumenfolio/portal-backend/pkg/auth"
	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/security"
)

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type adminLoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// AdminLogin authenticates the single back-office account and mints a JWT.
// Wrong email and wrong password answer identically.
func AdminLogin(adminCfg config.AdminConfig, jwtCfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body adminLoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		emailOK := subtle.ConstantTimeCompare(
			[]byte(strings.ToLower(strings.TrimSpace(body.Email))),
			[]byte(strings.ToLower(adminCfg.Email)),
		) == 1

		passwordOK, err := security.VerifyAccessCode(body.Password, adminCfg.PasswordHash)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verifying credentials"))
			return
		}

		if !emailOK || !passwordOK {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
			return
		}

		token, err := pkgauth.MintAccessToken(jwtCfg, time.Now().UTC(), pkgauth.AccessTokenPayload{
			Email: adminCfg.Email,
			Role:  enums.ActorRoleAdmin,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting token"))
			return
		}

		responses.WriteSuccess(w, adminLoginResponse{
			AccessToken: token,
			ExpiresIn:   jwtCfg.ExpirationMinutes * 60,
		})
	}
}
