// Package guard enforces the security and resource policy checked
// before any tool call is dispatched: path confinement under an allowed
// root, a command denylist, argument payload ceilings, and a per
// session/tool rate budget. Violations are security_policy errors,
// distinguishable from execution failures for audit purposes.
package guard
