// Package middleware adapts authgate.Engine to net/http.
//
// # Handlers
//
//   - [Authenticate] validates the access token and stores the principal in
//     the request context.
//   - [Authorize] checks a resource/action pair through an [Authorizer].
//   - [RequireOTP] demands a fresh OTP verification for a purpose.
//   - [ClientInfo] forwards address, User-Agent, device id and country to the
//     engine for unauthenticated routes such as login.
//
// Engine errors are mapped to HTTP statuses by [Status] and written as a
// JSON [ErrorBody]: 401 for token and credential failures, 423 for a locked
// account, 403 for inactive accounts, risk blocks, missing OTP and denied
// authorization, 503 when the store is unavailable.
//
// This package makes no security decisions of its own. Token parsing,
// session checks and OTP state live in the engine.
package middleware
