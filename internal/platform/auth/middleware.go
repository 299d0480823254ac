package auth

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/ward/pkg/apperr"
)

const (
	msgNoToken      = "No token, authorization denied"
	msgInvalidToken = "Token is not valid"
)

type AuthenticatorConfig struct {
	Tokens      *TokenIssuer
	Identities  IdentityResolver
	Revocations RevocationStore
	Skipper     echomw.Skipper
	Logger      zerolog.Logger
}

// Authenticate resolves the bearer token to an active user and attaches
// its Identity to the request context. Every failure is 401 except
// infrastructure errors, which surface as 500.
func Authenticate(cfg AuthenticatorConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = echomw.DefaultSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperr.Unauthenticated(msgNoToken)
			}

			claims, err := cfg.Tokens.Parse(tokenStr)
			if err != nil {
				return apperr.Unauthenticated(msgInvalidToken)
			}

			ctx := c.Request().Context()
			if cfg.Revocations != nil {
				revoked, err := cfg.Revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					return apperr.Unexpected(err, "Server error")
				}
				if revoked {
					return apperr.Unauthenticated(msgInvalidToken)
				}
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return apperr.Unauthenticated(msgInvalidToken)
			}

			identity, err := cfg.Identities.ResolveIdentity(ctx, userID)
			if err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					return apperr.Unauthenticated(msgInvalidToken)
				}
				return err
			}
			if identity == nil || !identity.Active {
				cfg.Logger.Debug().Str("user_id", userID.String()).Msg("token for inactive user")
				return apperr.Unauthenticated(msgInvalidToken)
			}

			identity.TokenID = claims.ID
			if claims.ExpiresAt != nil {
				identity.TokenExpiresAt = claims.ExpiresAt.Time
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(ctx, identity)))
			c.Set("user_id", identity.UserID.String())
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
