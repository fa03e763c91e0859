// Package auth authenticates operators of the bridge's HTTP API.
//
// Operators are configured statically (security.operators) with argon2id
// password hashes in PHC format; HashPassword produces them. A successful
// login yields a short-lived HS256 JWT carrying the operator's role.
//
// Roles are cumulative: viewer reads, operator also commands devices,
// admin also manages the controller connection (refresh, probe, metadata).
package auth
