// Package authgate is the authentication, session and risk-gated access core.
//
// An [Engine] logs users in with a password, issues access, refresh and
// identity tokens, caps concurrent sessions, tracks devices, locks accounts
// after repeated failures and decides through a risk score and the OTP gate
// whether a request needs an additional factor. Engine methods are safe for
// concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface: [Engine], [Builder], [Config] and the value
// types. The components it orchestrates live in their own packages
// (credential, session, device, lockout, risk, otp, policy) and never import
// authgate. Persistence goes through store.Store; account data comes from the
// application's [UserProvider].
//
// # Concurrency
//
// Every mutation of a user's security record runs under a per-user lock
// (internal/keylock, or store/redisstore.Locker across processes). Buffered
// security events and login history are written before the lock is released.
// Audit mirroring and OTP delivery run after it is released, and their
// failures never fail the operation.
//
// # What this package must NOT do
//
//   - Reveal whether a failed login named an unknown account.
//   - Retry store operations. Backend failures surface as ErrStoreUnavailable.
//   - Grant device trust implicitly.
package authgate
