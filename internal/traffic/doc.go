// Package traffic gates paste submissions per client identity.
//
// The gate is a strict one-submission-per-window admission check, not a token
// bucket: a client identity that was allowed within the last N seconds is
// denied until its window expires. Identities are keyed HMAC digests of the
// client's origin address, so raw addresses never reach the persisted table.
//
// What this does protect against:
//   - a single client flooding the submission endpoint with pastes
//   - storage growth from abusive anonymous clients (the table is re-purged on
//     every check)
//
// What this does NOT protect against:
//   - distributed abuse across many addresses
//   - connection-level resource exhaustion (see internal/flood for that layer)
//
// Exemption is a privilege and fails closed: a malformed exemption entry or a
// containment error never excuses a client from the gate.
package traffic
