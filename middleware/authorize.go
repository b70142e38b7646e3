package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authgate"
)

// Authorizer decides whether an authenticated principal may perform action
// on resource. *authgate.Engine satisfies it through its role table.
type Authorizer interface {
	Authorize(ctx context.Context, auth *authgate.AuthResult, resource, action string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, auth *authgate.AuthResult, resource, action string) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, auth *authgate.AuthResult, resource, action string) error {
	return f(ctx, auth, resource, action)
}

// Authorize must run after Authenticate. Requests without a principal get 401,
// denied ones 403.
func Authorize(authz Authorizer, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				WriteError(w, authgate.ErrTokenInvalid)
				return
			}
			if authz == nil {
				WriteError(w, authgate.ErrForbidden)
				return
			}
			if err := authz.Authorize(r.Context(), res, resource, action); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOTP gates the wrapped handler on a fresh OTP verification for
// purpose. Without one the response is 403 with code otp_required and the
// methods the user can complete.
func RequireOTP(engine *authgate.Engine, purpose string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				WriteError(w, authgate.ErrTokenInvalid)
				return
			}
			if err := engine.RequireOTP(r.Context(), res, purpose); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
