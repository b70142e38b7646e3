// Package jwt signs and verifies the access, refresh and identity tokens, each
// in its own key domain with its own audience. Issuer and audience are checked
// on every parse.
package jwt
