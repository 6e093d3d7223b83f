package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"pomolink/internal/types"
)

// Authenticator validates provider-issued JWTs against the issuer's JWKS and
// resolves the token subject to a local user.
type Authenticator struct {
	issuer string
	jwks   keyfunc.Keyfunc
	users  types.UserStore
}

// NewAuthenticator fetches the issuer's JWKS and keeps it refreshed in the
// background.
func NewAuthenticator(issuer string, users types.UserStore) (*Authenticator, error) {
	if issuer == "" {
		return nil, fmt.Errorf("identity issuer URL is required")
	}

	jwksURL := issuer + "/.well-known/jwks.json"
	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}

	return &Authenticator{
		issuer: issuer,
		jwks:   jwks,
		users:  users,
	}, nil
}

// Authenticate validates a bearer token and returns the acting user. The
// token subject is the provider's external user id; an unknown subject means
// the webhook sync has not caught up yet and maps to auth_user_not_found.
func (a *Authenticator) Authenticate(ctx context.Context, tokenStr string) (*types.Actor, error) {
	token, err := jwt.Parse(tokenStr, a.jwks.KeyfuncCtx(ctx),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token claims", nil)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token missing subject", nil)
	}

	user, err := a.users.GetByExternalID(ctx, sub)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus() == 404 {
			return nil, types.NewAppError(types.ErrCodeAuthUserNotFound, "no account for this token", nil)
		}
		return nil, err
	}

	return &types.Actor{
		UserID:     user.ID,
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Plan:       user.Plan,
	}, nil
}
