package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authgate"
)

// AccessTokenCookie and AccessTokenQuery name the fallback token locations.
const (
	AccessTokenCookie = "access_token"
	AccessTokenQuery  = "access_token"
	DeviceIDHeader    = "X-Device-ID"
	CountryHeader     = "X-Country"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the principal stored by Authenticate.
func AuthResultFromContext(ctx context.Context) (*authgate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authgate.AuthResult)
	return res, ok && res != nil
}

// ClientInfo copies the caller's address, User-Agent, device id and country
// into the request context, where the engine reads them for fingerprinting,
// risk scoring and audit events.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), r)))
	})
}

// WithClient attaches the client metadata of r to ctx.
func WithClient(ctx context.Context, r *http.Request) context.Context {
	if ip := remoteIP(r.RemoteAddr); ip != "" {
		ctx = authgate.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = authgate.WithUserAgent(ctx, ua)
	}
	if id := strings.TrimSpace(r.Header.Get(DeviceIDHeader)); id != "" {
		ctx = authgate.WithClientID(ctx, id)
	}
	if c := strings.TrimSpace(r.Header.Get(CountryHeader)); c != "" {
		ctx = authgate.WithCountry(ctx, strings.ToUpper(c))
	}
	return ctx
}

func remoteIP(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Authenticate validates the access token of every request and stores the
// resulting *authgate.AuthResult in the context. The token is read from the
// Authorization bearer header, then the access_token query parameter, then
// the access_token cookie.
func Authenticate(engine *authgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authgate.ErrEngineNotReady)
				return
			}
			token := TokenFromRequest(r)
			if token == "" {
				WriteError(w, authgate.ErrTokenInvalid)
				return
			}

			ctx := WithClient(r.Context(), r)
			res, err := engine.Authenticate(ctx, token)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest extracts the access token or returns "".
func TokenFromRequest(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if token := strings.TrimSpace(r.URL.Query().Get(AccessTokenQuery)); token != "" {
		return token
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
