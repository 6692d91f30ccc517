// Package calls extracts tool invocations from native model output and
// formats them into the external tool-call array shape. Extraction
// preserves block order and assigns collision-resistant call ids;
// formatting canonicalizes argument payloads into compact JSON and
// decides the turn-level finish reason.
package calls
