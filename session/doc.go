// Package session tracks logical client sessions apart from their bearer
// credentials.
//
// # Cap and eviction
//
// A user has at most MaxActive active sessions. [Manager.Create] first hard
// deletes expired sessions, then deactivates the active session with the
// smallest CreatedAt until there is room. Ties on CreatedAt break on ID so
// eviction is deterministic.
//
// # Expiry
//
// Sessions expire Timeout after their last activity. [Manager.Touch] slides the
// expiry forward, or deactivates the session and fails with
// [ErrSessionExpired] once it has passed.
//
// # What this package must NOT do
//
//   - Issue or revoke credentials. The engine revokes the credentials of
//     evicted sessions.
//   - Lock. Callers serialize writes per user.
package session
