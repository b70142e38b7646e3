// Package rate counts requests per key in fixed Redis windows.
//
// A window is INCR plus PEXPIRE on the first hit, so it starts with the first
// request and resets when the key expires. The HTTP server uses it to throttle
// login and OTP requests per client address; per-account lockout is the
// engine's job and does not depend on this package.
package rate
