// Package auth issues and verifies operator tokens for the emubot API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. Each token carries
// a subject (the operator name) and a Role. Roles map to a fixed permission
// set:
//   - viewer reads the catalog, runs and instances
//   - operator also starts and stops runs
//   - admin also edits the catalog and reads the audit trail
//
// There is no user store. Tokens are minted offline with `emubot token` and
// validated by signature only.
package auth
