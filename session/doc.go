// Package session provides Redis-backed cookie sessions and the short-lived
// challenges that bridge multi-step sign-in flows.
//
// # Binary encoding
//
// Sessions and challenges are stored as compact versioned binary records.
// Decoders reject unknown versions instead of guessing.
//
// # Architecture boundaries
//
// This package owns the [Store] and [ChallengeStore] (Redis operations) and
// their models. It does NOT look up users, compare security stamps or decide
// whether a session is still acceptable; those decisions belong to the Engine.
//
// # What this package must NOT do
//
//   - Import shopauth (no upward imports).
//   - Store passwords, refresh tokens or authenticator keys.
package session
