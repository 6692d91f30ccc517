// Package auth provides pluggable authentication for the bruecke
// server.
//
// Authenticators are evaluated as a chain with three-outcome voting:
// each returns Allow (identity established), Deny (credentials present
// but invalid), or Abstain (cannot handle this credential type). The
// chain stops at the first non-abstaining vote; a configurable
// fallback decides when every authenticator abstains.
//
// Auth is wired as HTTP middleware ahead of the route table. On
// success it injects the caller identity and the tenant scope for
// storage into the request context.
package auth
