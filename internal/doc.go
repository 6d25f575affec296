// Package internal holds helpers private to shopauth: random identifiers,
// token digests and security stamps.
//
// Sub-packages:
//
//   - audit: async audit event dispatch and sinks
//   - db: Postgres connection and schema migrations
//   - limiters: registration and mail flow throttles
//   - logger: zap logger construction
//   - rate: Redis fixed-window throttling for sign-in attempts
package internal
