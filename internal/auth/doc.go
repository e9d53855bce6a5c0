// Package auth issues and verifies the bearer tokens guarding the RF
// bridge HTTP API.
//
// Tokens are HS256 JWTs carrying a subject and a role:
//   - viewer: read-only access to bridges, devices and candidates
//   - operator: may also send commands, run discovery scans and
//     reinitialize bridges
//
// There is no user store. Operators mint tokens with
// "rfbridge token -subject <name> -role operator" using the configured
// api.jwt_secret.
package auth
