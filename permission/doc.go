// Package permission maps roles to "resource:action" permissions for request
// authorization.
//
// # Model
//
// A [Registry] assigns each permission name a bit in a fixed-width [Mask]
// (64, 128, 256 or 512 bits). A [RoleManager] composes one mask per role.
// Both are built at startup, frozen, and then only read.
//
// When the registry reserves a root bit, a role holding it is allowed
// everything. A permission of the form "resource:*" grants every action on
// that resource.
//
// # What this package must NOT do
//
//   - Persist roles or permissions. Role and permission CRUD belongs to the
//     application.
//   - Import authgate, jwt or session.
package permission
